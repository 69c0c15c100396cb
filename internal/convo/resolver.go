package convo

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNoMatch means no inventory item scored above the threshold.
	ErrNoMatch = errors.New("no product match above threshold")
	// ErrAmbiguous means the top two candidates scored too close to pick
	// one without asking.
	ErrAmbiguous = errors.New("ambiguous product match")
)

const ambiguityMargin = 0.1

// Match pairs a canonical product with the similarity score that
// selected it.
type Match struct {
	Product    Product
	Confidence float64
}

// Resolver maps normalized product mentions onto canonical inventory
// records. It never returns or retains the raw mention.
type Resolver struct {
	MinConfidence float64
}

// NewResolver creates a resolver with the given acceptance threshold.
func NewResolver(minConfidence float64) *Resolver {
	if minConfidence <= 0 {
		minConfidence = 0.7
	}
	return &Resolver{MinConfidence: minConfidence}
}

// Resolve picks the best-scoring inventory item for a mention. Ties are
// broken by higher stock quantity, then lexical order of the canonical
// name. Returns ErrNoMatch below threshold and ErrAmbiguous when the two
// best scores are within the ambiguity margin.
func (r *Resolver) Resolve(products []Product, mention string) (*Match, error) {
	normalized := NormalizeMention(mention)
	if normalized == "" || len(products) == 0 {
		return nil, ErrNoMatch
	}

	ranked := rankProducts(products, normalized)
	best := ranked[0]
	if best.Confidence < r.MinConfidence {
		return nil, ErrNoMatch
	}
	if len(ranked) > 1 {
		second := ranked[1]
		if second.Product.ID != best.Product.ID && best.Confidence-second.Confidence < ambiguityMargin {
			return nil, ErrAmbiguous
		}
	}
	return &best, nil
}

// ResolveMultiple returns up to max candidates at or above floor, ranked
// by score. Used for disambiguation lists when Resolve fails.
func (r *Resolver) ResolveMultiple(products []Product, mention string, floor float64, max int) []Match {
	normalized := NormalizeMention(mention)
	if normalized == "" || len(products) == 0 {
		return nil
	}
	var out []Match
	for _, m := range rankProducts(products, normalized) {
		if m.Confidence < floor {
			break
		}
		out = append(out, m)
		if len(out) == max {
			break
		}
	}
	return out
}

func rankProducts(products []Product, normalizedMention string) []Match {
	matches := make([]Match, 0, len(products))
	for _, p := range products {
		matches = append(matches, Match{
			Product:    p,
			Confidence: matchConfidence(normalizedMention, p.Name),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Product.Stock != b.Product.Stock {
			return a.Product.Stock > b.Product.Stock
		}
		return a.Product.Name < b.Product.Name
	})
	return matches
}

// matchConfidence scores a normalized mention against a product name.
// Containment scores highest, then token overlap, then an edit-distance
// derived score when no tokens intersect.
func matchConfidence(mention, productName string) float64 {
	name := NormalizeMention(productName)
	if mention == "" || name == "" {
		return 0
	}
	if mention == name {
		return 1.0
	}
	if strings.Contains(name, mention) {
		return 0.95
	}
	if strings.Contains(mention, name) {
		return 0.92
	}

	mentionWords := fieldSet(mention)
	nameWords := fieldSet(name)
	intersection := 0
	for w := range mentionWords {
		if _, ok := nameWords[w]; ok {
			intersection++
		}
	}
	union := len(mentionWords) + len(nameWords) - intersection
	if union == 0 {
		return 0
	}
	jaccard := float64(intersection) / float64(union)
	if intersection > 0 {
		score := 0.7 + jaccard*0.2
		if score > 0.95 {
			score = 0.95
		}
		return score
	}

	return editSimilarity(mention, name) * 0.6
}

func fieldSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// editSimilarity is 1 - levenshtein/maxlen over the full strings.
func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	dist := prev[len(rb)]
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(dist)/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
