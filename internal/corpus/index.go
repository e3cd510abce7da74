// Package corpus builds and serves the immutable lexical + dense index over chunks.
package corpus

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// embedBatchSize bounds texts per embedder call during a build.
const embedBatchSize = 32

// Hit is one search result from either side of the index.
type Hit struct {
	Chunk *models.Chunk
	Score float64
}

// Index is a read-only pair of lexical and dense indexes over the same chunk sequence.
type Index struct {
	chunks   []*models.Chunk
	byID     map[string]*models.Chunk
	lexical  keyword.Index
	dense    vector.Index
	embedder embedding.Embedder
	builtAt  time.Time
}

// Build indexes chunks in order. Chunks that already carry an embedding of the right width
// are not re-embedded. Duplicate IDs keep the first occurrence. An empty sequence is valid.
func Build(ctx context.Context, chunks []*models.Chunk, embedder embedding.Embedder) (*Index, error) {
	dims := embedder.Dimensions()
	ix := &Index{
		chunks:   make([]*models.Chunk, 0, len(chunks)),
		byID:     make(map[string]*models.Chunk, len(chunks)),
		embedder: embedder,
	}

	var missing []int
	for _, c := range chunks {
		if c == nil || c.ID == "" {
			return nil, models.WrapError(models.ErrInvalidInput, "build corpus", fmt.Errorf("chunk without id"))
		}
		if _, dup := ix.byID[c.ID]; dup {
			continue
		}
		cp := *c
		if len(cp.Embedding) != dims {
			cp.Embedding = nil
			missing = append(missing, len(ix.chunks))
		}
		ix.chunks = append(ix.chunks, &cp)
		ix.byID[cp.ID] = &cp
	}

	if err := ix.embedMissing(ctx, missing); err != nil {
		return nil, models.WrapError(models.ErrIndexBuild, "embed chunks", err)
	}

	lex, err := keyword.NewBleveIndex(nil)
	if err != nil {
		return nil, models.WrapError(models.ErrIndexBuild, "lexical index", err)
	}
	if err := lex.IndexChunks(ctx, ix.chunks); err != nil {
		_ = lex.Close()
		return nil, models.WrapError(models.ErrIndexBuild, "lexical index", err)
	}
	ix.lexical = lex

	dense, err := vector.NewMemoryIndex(dims)
	if err != nil {
		_ = lex.Close()
		return nil, models.WrapError(models.ErrIndexBuild, "dense index", err)
	}
	ids := make([]string, len(ix.chunks))
	vecs := make([][]float32, len(ix.chunks))
	for i, c := range ix.chunks {
		ids[i] = c.ID
		vecs[i] = c.Embedding
	}
	if err := dense.Add(ctx, ids, vecs); err != nil {
		_ = lex.Close()
		return nil, models.WrapError(models.ErrIndexBuild, "dense index", err)
	}
	ix.dense = dense
	ix.builtAt = time.Now()
	return ix, nil
}

func (ix *Index) embedMissing(ctx context.Context, positions []int) error {
	for start := 0; start < len(positions); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(positions) {
			end = len(positions)
		}
		batch := positions[start:end]
		texts := make([]string, len(batch))
		for i, pos := range batch {
			texts[i] = ix.chunks[pos].Content
		}
		vecs, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		for i, pos := range batch {
			ix.chunks[pos].Embedding = vecs[i]
		}
	}
	return nil
}

// SearchLexical returns up to k chunks by term-frequency score.
func (ix *Index) SearchLexical(ctx context.Context, query string, k int) ([]Hit, error) {
	results, err := ix.lexical.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return ix.hits(len(results), func(i int) (string, float64) { return results[i].ID, results[i].Score }), nil
}

// SearchDense embeds query and returns up to k chunks by inner product.
func (ix *Index) SearchDense(ctx context.Context, query string, k int) ([]Hit, error) {
	if len(ix.chunks) == 0 || k <= 0 {
		return nil, nil
	}
	qv, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := ix.dense.Search(ctx, qv, k)
	if err != nil {
		return nil, err
	}
	return ix.hits(len(results), func(i int) (string, float64) { return results[i].ID, results[i].Score }), nil
}

func (ix *Index) hits(n int, at func(int) (string, float64)) []Hit {
	out := make([]Hit, 0, n)
	for i := 0; i < n; i++ {
		id, score := at(i)
		if c, ok := ix.byID[id]; ok {
			out = append(out, Hit{Chunk: c, Score: score})
		}
	}
	return out
}

// Chunk returns the chunk with id.
func (ix *Index) Chunk(id string) (*models.Chunk, bool) {
	c, ok := ix.byID[id]
	return c, ok
}

// Chunks returns the indexed chunk sequence. Callers must not modify it.
func (ix *Index) Chunks() []*models.Chunk {
	return ix.chunks
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// BuiltAt returns when the index finished building.
func (ix *Index) BuiltAt() time.Time {
	return ix.builtAt
}
