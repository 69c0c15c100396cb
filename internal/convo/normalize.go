package convo

import (
	"regexp"
	"strings"
)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Politeness particles and question tags safe to drop from any text.
// Digits and negation words ("nahi", "mat") are never removed here.
var fillerWords = map[string]struct{}{
	"please": {}, "plz": {}, "pls": {}, "bhai": {}, "bhaiya": {},
	"sir": {}, "madam": {}, "ji": {}, "yaar": {}, "dost": {},
	"zara": {}, "thoda": {}, "na": {}, "toh": {},
}

// Mention noise: filler plus order/query chatter that never belongs in a
// product name. Used when normalizing a mention for inventory matching.
var mentionNoiseWords = map[string]struct{}{
	"hai": {}, "kya": {}, "ka": {}, "ki": {}, "ke": {}, "chahiye": {},
	"dena": {}, "dedo": {}, "de": {}, "do": {}, "lo": {}, "give": {},
	"order": {}, "pack": {}, "tablet": {}, "tablets": {}, "strip": {},
	"strips": {}, "bottle": {}, "bottles": {}, "available": {},
	"stock": {}, "check": {}, "milega": {}, "kitne": {}, "kitna": {},
	"kitni": {}, "price": {}, "cost": {}, "rate": {},
}

// Normalize lower-cases, strips punctuation, collapses whitespace and
// drops filler words. Pure and total.
func Normalize(text string) string {
	return normalizeWith(text, fillerWords)
}

// NormalizeMention prepares a product mention for inventory matching:
// Normalize plus removal of order/query chatter.
//
//	"Dolo 650 hai kya?" -> "dolo 650"
//	"PARACETAMOL chahiye" -> "paracetamol"
func NormalizeMention(text string) string {
	s := normalizeWith(text, fillerWords)
	return normalizeWith(s, mentionNoiseWords)
}

func normalizeWith(text string, drop map[string]struct{}) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = punctRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if _, skip := drop[w]; skip {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
