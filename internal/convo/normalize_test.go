package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Dolo 650 Hai Kya?  ", "dolo 650 hai kya"},
		{"PARACETAMOL!!!", "paracetamol"},
		{"bhai please dolo de do na", "dolo de do"},
		{"", ""},
		{"???", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeNeverDropsNegationOrDigits(t *testing.T) {
	assert.Equal(t, "nahi chahiye", Normalize("nahi chahiye"))
	assert.Equal(t, "10 dolo", Normalize("10 dolo please"))
	assert.Equal(t, "mat karo", Normalize("mat karo bhai"))
}

func TestNormalizeMention(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Dolo 650 hai kya?", "dolo 650"},
		{"PARACETAMOL chahiye", "paracetamol"},
		{"crocin ka price kitne", "crocin"},
		{"2 strip combiflam dedo", "2 combiflam"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeMention(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Dolo 650 hai kya?", "bhai PRICE batao!!", "  bukhar ki dawai  "}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
