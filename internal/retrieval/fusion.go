package retrieval

import (
	"sort"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/models"
)

// Weights are the relative contributions of the two sub-retrievers.
type Weights struct {
	Lexical float64
	Dense   float64
}

// Normalize scales weights to sum to 1. Negative weights count as zero; all-zero gives 0.5/0.5.
func (w Weights) Normalize() Weights {
	if w.Lexical < 0 {
		w.Lexical = 0
	}
	if w.Dense < 0 {
		w.Dense = 0
	}
	sum := w.Lexical + w.Dense
	if sum == 0 {
		return Weights{Lexical: 0.5, Dense: 0.5}
	}
	return Weights{Lexical: w.Lexical / sum, Dense: w.Dense / sum}
}

// Fuse merges two ranked hit lists with weighted reciprocal-rank fusion:
// score = sum over sources of w / (rrfK + rank), rank 1-based.
// A chunk in both lists becomes one candidate. Equal scores keep first-seen order, lexical first.
func Fuse(lexical, dense []corpus.Hit, w Weights, rrfK int, k int) []models.Candidate {
	w = w.Normalize()
	byID := make(map[string]int, len(lexical)+len(dense))
	out := make([]models.Candidate, 0, len(lexical)+len(dense))

	slot := func(c *models.Chunk) *models.Candidate {
		if i, ok := byID[c.ID]; ok {
			return &out[i]
		}
		byID[c.ID] = len(out)
		out = append(out, models.Candidate{Chunk: c})
		return &out[len(out)-1]
	}

	for i, h := range lexical {
		c := slot(h.Chunk)
		if c.LexicalRank != 0 {
			continue
		}
		c.LexicalRank = i + 1
		c.LexicalScore = h.Score
		c.Score += w.Lexical / float64(rrfK+i+1)
	}
	for i, h := range dense {
		c := slot(h.Chunk)
		if c.DenseRank != 0 {
			continue
		}
		c.DenseRank = i + 1
		c.DenseScore = h.Score
		c.Score += w.Dense / float64(rrfK+i+1)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
