package rerank

import (
	"context"
	"strings"
	"unicode"
)

// LexicalScorer scores a pair by the share of query tokens present in the passage.
// It needs no model and is used when no cross-encoder endpoint is configured.
type LexicalScorer struct{}

// ScorePair implements CrossScorer. The result is in [0,1].
func (LexicalScorer) ScorePair(_ context.Context, query, text string) (float64, error) {
	return tokenOverlap(toTokenSet(query), toTokenSet(text)), nil
}

func tokenOverlap(query, passage map[string]struct{}) float64 {
	if len(query) == 0 || len(passage) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := passage[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}
