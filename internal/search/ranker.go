// Package search ranks catalog products against free-text cashier queries.
package search

import (
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"kasirinaja/cashier/internal/domain"
)

const DefaultMaxResults = 20

const (
	scoreExactCode      = 1000
	scoreCodePrefix     = 800
	scoreCodeContains   = 600
	scoreNameEqual      = 900
	scoreNamePrefix     = 700
	scoreAllWords       = 500
	scorePartialWords   = 300
	scoreNameContains   = 400
	scorePhrase         = 200
	fuzzyMinQueryLength = 3
	fuzzyThreshold      = 0.6
	fuzzyWeight         = 100
)

type Ranker struct {
	maxResults int
	tag        language.Tag
}

func NewRanker(maxResults int, locale string) *Ranker {
	if maxResults < 1 {
		maxResults = DefaultMaxResults
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Indonesian
	}
	return &Ranker{maxResults: maxResults, tag: tag}
}

type scored struct {
	product domain.Product
	score   float64
}

// Search returns matching products best first. The result is a fresh slice;
// calling it again with the same inputs yields the same order.
func (r *Ranker) Search(catalog []domain.Product, query string) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(catalog) == 0 {
		return nil
	}
	words := strings.Fields(q)

	candidates := make([]scored, 0, len(catalog))
	for _, product := range catalog {
		if s := Score(product, q, words); s > 0 {
			candidates = append(candidates, scored{product: product, score: s})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// collate.Collator keeps internal buffers, so each call gets its own.
	collator := collate.New(r.tag, collate.IgnoreCase)
	slices.SortStableFunc(candidates, func(a, b scored) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		la, lb := utf8.RuneCountInString(a.product.Name), utf8.RuneCountInString(b.product.Name)
		if la != lb {
			return la - lb
		}
		if c := collator.CompareString(a.product.Name, b.product.Name); c != 0 {
			return c
		}
		return strings.Compare(a.product.Code, b.product.Code)
	})

	if len(candidates) > r.maxResults {
		candidates = candidates[:r.maxResults]
	}
	result := make([]domain.Product, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, c.product)
	}
	return result
}

// Score rates one product against a lowercased, trimmed query and its words.
func Score(product domain.Product, q string, words []string) float64 {
	code := strings.ToLower(product.Code)
	name := strings.ToLower(product.Name)

	if code == q {
		return scoreExactCode
	}

	score := 0.0
	switch {
	case strings.HasPrefix(code, q):
		score += scoreCodePrefix
	case strings.Contains(code, q):
		score += scoreCodeContains
	}

	switch {
	case name == q:
		score += scoreNameEqual
	case strings.HasPrefix(name, q):
		score += scoreNamePrefix
	}

	if len(words) > 0 {
		matched := 0
		for _, w := range words {
			if strings.Contains(name, w) {
				matched++
			}
		}
		if matched == len(words) {
			score += scoreAllWords
		} else if matched > 0 {
			score += float64(matched) / float64(len(words)) * scorePartialWords
		}
	}

	if strings.Contains(name, q) {
		score += scoreNameContains
	}

	if len(words) > 1 && strings.Contains(name, strings.Join(words, " ")) {
		score += scorePhrase
	}

	if score == 0 && utf8.RuneCountInString(q) >= fuzzyMinQueryLength {
		if sim := jaccard(q, name); sim > fuzzyThreshold {
			score += sim * fuzzyWeight
		}
	}
	return score
}

// jaccard compares the character sets of a and b, ignoring spaces.
func jaccard(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		if r == ' ' {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}
