package convo

import "strings"

// Symptom keyword categories, English plus Hinglish. Matching is
// deterministic keyword containment against the inventory disease field.
var symptomCategories = map[string][]string{
	"fever":          {"fever", "bukhar", "bukhaar"},
	"pain":           {"pain", "dard", "ache"},
	"headache":       {"headache", "sir dard", "sirdard"},
	"cold":           {"cold", "sardi", "cough", "khasi", "jukam"},
	"stomach":        {"stomach", "pet", "acidity", "gas"},
	"allergy":        {"allergy", "khujli", "rash"},
	"vitamin":        {"vitamin", "kamjori", "weakness"},
	"diabetes":       {"sugar", "diabetes"},
	"blood_pressure": {"bp", "blood pressure"},
	"infection":      {"infection", "bacterial"},
	"anxiety":        {"tension", "anxiety", "stress"},
}

const maxSymptomResults = 5

// MapSymptom returns inventory items whose disease field matches the
// symptom keywords found in text. If no category matches, the raw
// normalized text is tried directly against the disease field.
func MapSymptom(products []Product, text string) []Product {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}

	keywords := map[string]struct{}{}
	for _, kws := range symptomCategories {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				for _, k := range kws {
					keywords[k] = struct{}{}
				}
				break
			}
		}
	}
	if len(keywords) == 0 {
		if n := NormalizeMention(lower); n != "" {
			keywords[n] = struct{}{}
		}
	}

	var results []Product
	seen := map[int64]struct{}{}
	for _, p := range products {
		disease := strings.ToLower(p.Disease)
		if disease == "" {
			continue
		}
		for kw := range keywords {
			if strings.Contains(disease, kw) {
				if _, dup := seen[p.ID]; !dup {
					seen[p.ID] = struct{}{}
					results = append(results, p)
				}
				break
			}
		}
		if len(results) == maxSymptomResults {
			break
		}
	}
	return results
}
