package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseJSONStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"intent\":\"ask_price\",\"confidence\":0.9}\n```"
	assert.Equal(t, `{"intent":"ask_price","confidence":0.9}`, normaliseJSON(raw))
}

func TestNormaliseJSONExtractsEmbeddedObject(t *testing.T) {
	raw := `Sure! Here is the result: {"intent":"ask_stock","confidence":0.8} hope that helps`
	assert.Equal(t, `{"intent":"ask_stock","confidence":0.8}`, normaliseJSON(raw))
}

func TestNormaliseJSONClosesTruncatedOutput(t *testing.T) {
	raw := `{"intent":"start_order","confidence":0.8`
	got := normaliseJSON(raw)
	assert.Equal(t, `{"intent":"start_order","confidence":0.8}`, got)
}

func TestFallbackParseIntent(t *testing.T) {
	raw := `{"intent":"start_order","confidence":0.85,"reply":"","entities":{"product":"crocin","quantity":"2"`
	result, err := fallbackParseIntent(raw)
	require.NoError(t, err)
	assert.Equal(t, "start_order", result.Intent)
	assert.Equal(t, 0.85, result.Confidence)
	assert.Equal(t, "crocin", result.Entities["product"])
	assert.Equal(t, "2", result.Entities["quantity"])
}

func TestFallbackParseIntentRequiresIntent(t *testing.T) {
	_, err := fallbackParseIntent(`{"confidence":0.5}`)
	assert.Error(t, err)
}
