package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractQuantityNumeric(t *testing.T) {
	q := ExtractQuantity("10 de do", ModeIdle, 0)
	assert.Equal(t, 10.0, q.Value)
	assert.Equal(t, 0.95, q.Confidence)
	assert.Equal(t, SourceNumeric, q.Source)
}

func TestExtractQuantitySuspiciouslyLarge(t *testing.T) {
	q := ExtractQuantity("50000", ModeOrdering, 0)
	assert.Equal(t, 50000.0, q.Value)
	assert.Equal(t, 0.5, q.Confidence, "huge amounts must not be authoritative")
}

func TestExtractQuantityNumberWords(t *testing.T) {
	cases := map[string]float64{
		"ek strip":    1,
		"do de do":    2,
		"paanch dena": 5,
		"das chahiye": 10,
		"twenty":      20,
		"dozen dedo":  12,
	}
	for text, want := range cases {
		q := ExtractQuantity(text, ModeOrdering, 0)
		assert.Equal(t, want, q.Value, "input %q", text)
		assert.Equal(t, 0.85, q.Confidence, "input %q", text)
		assert.Equal(t, SourceWord, q.Source, "input %q", text)
	}
}

func TestExtractQuantityFirstNumberWordWins(t *testing.T) {
	// Deterministic: the number word appearing first in the text wins,
	// no matter how many the message contains.
	q := ExtractQuantity("do teen strip", ModeOrdering, 0)
	assert.Equal(t, 2.0, q.Value)

	q = ExtractQuantity("teen do strip", ModeOrdering, 0)
	assert.Equal(t, 3.0, q.Value)
}

func TestExtractQuantityWordBoundary(t *testing.T) {
	// "done" must not read as the number word "do" or "one".
	q := ExtractQuantity("done", ModeOrdering, 0)
	assert.True(t, q.Empty())
}

func TestExtractQuantityContextCarryOver(t *testing.T) {
	q := ExtractQuantity("wahi quantity", ModeOrdering, 10)
	assert.Equal(t, 10.0, q.Value)
	assert.Equal(t, 0.4, q.Confidence)
	assert.Equal(t, SourceContext, q.Source)

	// Carry-over never applies outside locked-quantity modes.
	assert.True(t, ExtractQuantity("wahi quantity", ModeIdle, 10).Empty())
}

func TestExtractProductMention(t *testing.T) {
	m := ExtractProductMention("Dolo 650 hai kya?")
	assert.Equal(t, "Dolo 650", m.Value)
	assert.Equal(t, 0.8, m.Confidence)

	m = ExtractProductMention("paracetamol chahiye")
	assert.Equal(t, "paracetamol", m.Value)
	assert.Equal(t, 0.6, m.Confidence)

	assert.True(t, ExtractProductMention("").Empty())
	assert.True(t, ExtractProductMention("hai kya stock check").Empty())
}

func TestExtractProductAndQuantity(t *testing.T) {
	product, qty := ExtractProductAndQuantity("10 Dolo 650")
	assert.Equal(t, "Dolo 650", product.Value)
	assert.Equal(t, 10.0, qty.Value)
	assert.Equal(t, SourcePattern, product.Source)

	product, qty = ExtractProductAndQuantity("2 Crocin!")
	assert.Equal(t, "Crocin", product.Value)
	assert.Equal(t, 2.0, qty.Value)

	product, _ = ExtractProductAndQuantity("Dolo 10")
	assert.True(t, product.Empty(), "quantity must come first")

	product, _ = ExtractProductAndQuantity("10")
	assert.True(t, product.Empty())
}

func TestExtractCustomerName(t *testing.T) {
	const walkIn = "Walk-in Customer"

	c := ExtractCustomerName("mere liye", walkIn)
	assert.Equal(t, walkIn, c.Value)
	assert.Equal(t, 0.9, c.Confidence)
	assert.Equal(t, SourceSelf, c.Source)

	c = ExtractCustomerName("Ramesh ko", walkIn)
	assert.Equal(t, "Ramesh", c.Value)
	assert.Equal(t, 0.85, c.Confidence)

	c = ExtractCustomerName("for Priya", walkIn)
	assert.Equal(t, "Priya", c.Value)
	assert.Equal(t, 0.8, c.Confidence)

	c = ExtractCustomerName("Ramesh", walkIn)
	assert.Equal(t, "Ramesh", c.Value)
	assert.Equal(t, 0.7, c.Confidence)
	assert.Equal(t, SourceName, c.Source)

	assert.True(t, ExtractCustomerName("10 dolo", walkIn).Empty())
	assert.True(t, ExtractCustomerName("", walkIn).Empty())
}

func TestExtractSymptom(t *testing.T) {
	s := ExtractSymptom("bukhar ki dawai batao")
	assert.Equal(t, "bukhar", s.Value)
	assert.Equal(t, SourceKeyword, s.Source)

	assert.True(t, ExtractSymptom("dolo 650").Empty())
}
