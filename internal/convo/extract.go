package convo

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	quantityRe       = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\b`)
	productQtyRe     = regexp.MustCompile(`^(\d+)\s+([\p{L}][\p{L}\p{N} ]*)$`)
	customerKoRe     = regexp.MustCompile(`([\p{L}]+)\s+ko\b`)
	customerForRe    = regexp.MustCompile(`(?i)\bfor\s+([\p{L}]+)`)
	suspiciousAmount = 10000.0
)

// Hindi/English number words with their values. Matched against whole
// tokens so "done" never reads as "one".
var numberWords = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "fifteen": 15, "twenty": 20,
	"thirty": 30, "forty": 40, "fifty": 50, "hundred": 100,
	"ek": 1, "do": 2, "teen": 3, "char": 4, "paanch": 5, "panch": 5,
	"chhe": 6, "saat": 7, "aath": 8, "aat": 8, "nau": 9, "das": 10,
	"gyarah": 11, "barah": 12, "pandrah": 15, "bees": 20,
	"tees": 30, "chalis": 40, "pachas": 50, "sau": 100,
	"dozen": 12, "derzen": 12,
}

// Self-reference phrases that mean the customer is the person chatting.
var selfReferences = []string{
	"mujhe", "mere liye", "mera", "apne liye", "khud", "myself", "for me",
}

// ExtractQuantity pulls a quantity from text. Numeric literals score
// highest, then number words; a contextual carry-over of the previously
// locked quantity applies only in locked-quantity modes. Pure: never
// calls the NLU fallback.
func ExtractQuantity(text string, mode Mode, prev float64) NumberEntity {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return NumberEntity{}
	}

	if m := quantityRe.FindStringSubmatch(lower); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err == nil && value > 0 {
			if value > suspiciousAmount {
				return NumberEntity{Value: value, Confidence: 0.5, Source: SourceNumeric}
			}
			return NumberEntity{Value: value, Confidence: 0.95, Source: SourceNumeric}
		}
		return NumberEntity{}
	}

	// Tokens are scanned in text order so a message naming two numbers
	// always yields the first one.
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool { return !isWordRune(r) }) {
		if value, ok := numberWords[tok]; ok {
			return NumberEntity{Value: value, Confidence: 0.85, Source: SourceWord}
		}
	}

	if prev > 0 && (mode == ModeOrdering || mode == ModeStockConfirmed) {
		return NumberEntity{Value: prev, Confidence: 0.4, Source: SourceContext}
	}

	return NumberEntity{}
}

// ExtractProductMention returns the longest normalized substring that
// plausibly denotes a product. Words carrying digits or starting with a
// capital look medicine-like and score higher.
func ExtractProductMention(text string) StringEntity {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return StringEntity{}
	}

	var kept []string
	for _, w := range strings.Fields(trimmed) {
		cleaned := strings.Trim(w, "?!.,:;\"'")
		if cleaned == "" {
			continue
		}
		if _, noise := mentionNoiseWords[strings.ToLower(cleaned)]; noise {
			continue
		}
		if _, filler := fillerWords[strings.ToLower(cleaned)]; filler {
			continue
		}
		kept = append(kept, cleaned)
	}
	if len(kept) == 0 {
		return StringEntity{}
	}

	var medicineLike []string
	for _, w := range kept {
		if len(w) > 2 && (startsUpper(w) || containsDigit(w)) {
			medicineLike = append(medicineLike, w)
		}
	}
	if len(medicineLike) > 0 {
		return StringEntity{Value: strings.Join(medicineLike, " "), Confidence: 0.8, Source: SourceExtraction}
	}

	if len(kept) <= 3 {
		var substantial []string
		for _, w := range kept {
			if len(w) > 2 {
				substantial = append(substantial, w)
			}
		}
		if len(substantial) > 0 {
			return StringEntity{Value: strings.Join(substantial, " "), Confidence: 0.6, Source: SourceExtraction}
		}
		return StringEntity{Value: strings.Join(kept, " "), Confidence: 0.4, Source: SourceExtraction}
	}

	return StringEntity{}
}

// ExtractProductAndQuantity matches direct-order patterns like "10 Dolo".
func ExtractProductAndQuantity(text string) (StringEntity, NumberEntity) {
	m := productQtyRe.FindStringSubmatch(strings.Trim(strings.TrimSpace(text), "?!.,"))
	if m == nil {
		return StringEntity{}, NumberEntity{}
	}
	qty, err := strconv.ParseFloat(m[1], 64)
	if err != nil || qty <= 0 {
		return StringEntity{}, NumberEntity{}
	}
	mention := strings.TrimSpace(m[2])
	if NormalizeMention(mention) == "" {
		return StringEntity{}, NumberEntity{}
	}
	return StringEntity{Value: mention, Confidence: 0.9, Source: SourcePattern},
		NumberEntity{Value: qty, Confidence: 0.95, Source: SourceNumeric}
}

// ExtractCustomerName finds a buyer name: self-references map to the
// walk-in label, "<name> ko" and "for <name>" patterns score above bare
// capitalized tokens.
func ExtractCustomerName(text, selfLabel string) StringEntity {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return StringEntity{}
	}
	lower := strings.ToLower(trimmed)

	for _, ref := range selfReferences {
		if containsWord(lower, ref) {
			return StringEntity{Value: selfLabel, Confidence: 0.9, Source: SourceSelf}
		}
	}

	if m := customerKoRe.FindStringSubmatch(trimmed); m != nil {
		return StringEntity{Value: capitalize(m[1]), Confidence: 0.85, Source: SourcePattern}
	}
	if m := customerForRe.FindStringSubmatch(trimmed); m != nil {
		return StringEntity{Value: capitalize(m[1]), Confidence: 0.8, Source: SourcePattern}
	}

	words := strings.Fields(trimmed)
	if len(words) >= 1 && len(words) <= 2 && startsUpper(words[0]) && !containsDigit(trimmed) {
		return StringEntity{Value: strings.Join(words, " "), Confidence: 0.7, Source: SourceName}
	}

	return StringEntity{}
}

// ExtractSymptom matches against the fixed symptom keyword set.
func ExtractSymptom(text string) StringEntity {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return StringEntity{}
	}
	for _, keywords := range symptomCategories {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return StringEntity{Value: kw, Confidence: 0.9, Source: SourceKeyword}
			}
		}
	}
	return StringEntity{}
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordRune(rune(text[start-1]))
		afterOK := end == len(text) || !isWordRune(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
