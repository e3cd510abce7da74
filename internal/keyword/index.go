// Package keyword provides the lexical (term-frequency) side of the corpus index.
package keyword

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Index defines lexical indexing and search over chunks.
type Index interface {
	// IndexChunks adds chunks in order. Order is the tie-break for equal scores.
	IndexChunks(ctx context.Context, chunks []*models.Chunk) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	DocCount() (uint64, error)
	Close() error
}

// Result is a single lexical hit.
type Result struct {
	ID    string
	Score float64
}

// SearchOptions tunes fuzzy retry. Nil means use defaults.
type SearchOptions struct {
	// FuzzyRetry runs a fuzzy query when the exact query finds nothing.
	FuzzyRetry bool
	// Fuzziness is the maximum edit distance for the fuzzy retry (1 or 2).
	Fuzziness int
}

// DefaultSearchOptions enables fuzzy retry with edit distance 1.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{FuzzyRetry: true, Fuzziness: 1}
}
