// Package vector provides the dense side of the corpus index.
package vector

import "context"

// Index defines vector storage and similarity search.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Size() int
	Dimensions() int
}

// Result is a single vector search hit; ID is the chunk ID.
type Result struct {
	ID    string
	Score float64 // inner product, equal to cosine similarity for normalized vectors
}
