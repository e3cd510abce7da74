package corpus

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
)

func sampleChunks() []*models.Chunk {
	return []*models.Chunk{
		{ID: "a_0", DocumentID: "a", Content: "LLMs are large language models trained on text."},
		{ID: "b_0", DocumentID: "b", Content: "Go is a statically typed compiled language."},
		{ID: "c_0", DocumentID: "c", Content: "Bleve is a full text search library for Go."},
	}
}

func TestBuild_SearchBothSides(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, sampleChunks(), embedding.NewHashEmbedder(128))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("Len = %d", ix.Len())
	}
	lex, err := ix.SearchLexical(ctx, "search library", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(lex) == 0 || lex[0].Chunk.ID != "c_0" {
		t.Errorf("lexical top = %+v, want c_0", lex)
	}
	dense, err := ix.SearchDense(ctx, "large language models", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(dense) != 2 || dense[0].Chunk.ID != "a_0" {
		t.Errorf("dense top = %+v, want a_0", dense)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(64)
	ix1, err := Build(ctx, sampleChunks(), emb)
	if err != nil {
		t.Fatal(err)
	}
	ix2, err := Build(ctx, sampleChunks(), emb)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"language", "Go", "text search"} {
		l1, _ := ix1.SearchLexical(ctx, q, 3)
		l2, _ := ix2.SearchLexical(ctx, q, 3)
		d1, _ := ix1.SearchDense(ctx, q, 3)
		d2, _ := ix2.SearchDense(ctx, q, 3)
		if !sameIDs(l1, l2) || !sameIDs(d1, d2) {
			t.Errorf("query %q: rankings differ between builds", q)
		}
	}
}

func sameIDs(a, b []Hit) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Chunk.ID != b[i].Chunk.ID {
			return false
		}
	}
	return true
}

type countingEmbedder struct {
	*embedding.HashEmbedder
	embedded int
	fail     bool
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("embedder down")
	}
	c.embedded += len(texts)
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestBuild_ReusesStoredEmbeddings(t *testing.T) {
	emb := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(8)}
	chunks := sampleChunks()
	chunks[0].Embedding = []float32{1, 0, 0, 0, 0, 0, 0, 0}
	chunks[1].Embedding = []float32{1, 0} // wrong width, re-embedded
	ix, err := Build(context.Background(), chunks, emb)
	if err != nil {
		t.Fatal(err)
	}
	if emb.embedded != 2 {
		t.Errorf("embedded %d chunks, want 2", emb.embedded)
	}
	if c, _ := ix.Chunk("a_0"); c.Embedding[0] != 1 {
		t.Error("stored embedding should be kept")
	}
	if len(chunks[2].Embedding) != 0 {
		t.Error("Build must not modify input chunks")
	}
}

func TestBuild_EmptyAndDuplicates(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, nil, embedding.NewHashEmbedder(8))
	if err != nil {
		t.Fatalf("empty build: %v", err)
	}
	lex, err := ix.SearchLexical(ctx, "anything", 5)
	if err != nil || len(lex) != 0 {
		t.Errorf("lexical on empty: %v, %v", lex, err)
	}
	dense, err := ix.SearchDense(ctx, "anything", 5)
	if err != nil || len(dense) != 0 {
		t.Errorf("dense on empty: %v, %v", dense, err)
	}

	dup := append(sampleChunks(), &models.Chunk{ID: "a_0", Content: "duplicate"})
	ix, err = Build(ctx, dup, embedding.NewHashEmbedder(8))
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 3 {
		t.Errorf("duplicate should be dropped, Len = %d", ix.Len())
	}
}

func TestStore_RebuildFailureKeepsOldIndex(t *testing.T) {
	emb := &countingEmbedder{HashEmbedder: embedding.NewHashEmbedder(16)}
	swaps := 0
	s, err := NewStore(emb, WithOnSwap(func(int) { swaps++ }))
	if err != nil {
		t.Fatal(err)
	}
	if s.Current() == nil || s.Current().Len() != 0 {
		t.Fatal("new store should serve an empty index")
	}
	ctx := context.Background()
	if err := s.Rebuild(ctx, sampleChunks()); err != nil {
		t.Fatal(err)
	}
	served := s.Current()
	if served.Len() != 3 {
		t.Fatalf("Len = %d", served.Len())
	}

	emb.fail = true
	err = s.Rebuild(ctx, append(sampleChunks(), &models.Chunk{ID: "d_0", Content: "new"}))
	if !models.IsKind(err, models.ErrIndexBuild) {
		t.Fatalf("expected index build error, got %v", err)
	}
	if s.Current() != served {
		t.Error("failed rebuild must keep the previous index")
	}
	if swaps != 2 {
		t.Errorf("swaps = %d, want 2", swaps)
	}
}
