package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
)

func hit(id string, score float64) corpus.Hit {
	return corpus.Hit{Chunk: &models.Chunk{ID: id}, Score: score}
}

func TestFuse_DuplicateAppearsOnce(t *testing.T) {
	lex := []corpus.Hit{hit("a", 3), hit("b", 2)}
	dense := []corpus.Hit{hit("b", 0.9), hit("c", 0.5)}
	out := Fuse(lex, dense, Weights{Lexical: 0.5, Dense: 0.5}, 60, 10)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Chunk.ID != "b" {
		t.Errorf("b is in both lists and should rank first, got %s", out[0].Chunk.ID)
	}
	want := 0.5/62 + 0.5/61
	if math.Abs(out[0].Score-want) > 1e-12 {
		t.Errorf("fused score = %v, want %v", out[0].Score, want)
	}
	if out[0].LexicalRank != 2 || out[0].DenseRank != 1 {
		t.Errorf("ranks = %d/%d", out[0].LexicalRank, out[0].DenseRank)
	}
	seen := map[string]int{}
	for _, c := range out {
		seen[c.Chunk.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("%s appears %d times", id, n)
		}
	}
}

func TestFuse_TiesKeepFirstSeenLexicalFirst(t *testing.T) {
	lex := []corpus.Hit{hit("x", 1)}
	dense := []corpus.Hit{hit("y", 1)}
	out := Fuse(lex, dense, Weights{Lexical: 1, Dense: 1}, 60, 10)
	if out[0].Chunk.ID != "x" || out[1].Chunk.ID != "y" {
		t.Errorf("order = %s,%s, want x,y", out[0].Chunk.ID, out[1].Chunk.ID)
	}
}

func TestFuse_WeightsAndLimit(t *testing.T) {
	lex := []corpus.Hit{hit("l1", 1), hit("l2", 1)}
	dense := []corpus.Hit{hit("d1", 1), hit("d2", 1)}
	out := Fuse(lex, dense, Weights{Lexical: 1, Dense: 3}, 60, 3)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Chunk.ID != "d1" || out[1].Chunk.ID != "d2" {
		t.Errorf("dense-weighted order = %s,%s", out[0].Chunk.ID, out[1].Chunk.ID)
	}
}

func TestWeights_Normalize(t *testing.T) {
	w := Weights{Lexical: 2, Dense: 6}.Normalize()
	if w.Lexical != 0.25 || w.Dense != 0.75 {
		t.Errorf("normalized = %+v", w)
	}
	w = Weights{}.Normalize()
	if w.Lexical != 0.5 || w.Dense != 0.5 {
		t.Errorf("zero weights = %+v", w)
	}
}

func buildIndex(t *testing.T, emb embedding.Embedder, chunks ...*models.Chunk) *corpus.Index {
	t.Helper()
	ix, err := corpus.Build(context.Background(), chunks, emb)
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestRetriever_Retrieve(t *testing.T) {
	ix := buildIndex(t, embedding.NewHashEmbedder(64),
		&models.Chunk{ID: "a_0", Content: "LLMs are large language models trained on text."},
		&models.Chunk{ID: "b_0", Content: "Gardening tips for tomatoes."},
	)
	out, err := New().Retrieve(context.Background(), ix, "large language models", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 || out[0].Chunk.ID != "a_0" {
		t.Fatalf("top candidate = %+v, want a_0", out)
	}
	if len(out) > 2 {
		t.Errorf("more candidates than chunks: %d", len(out))
	}
}

func TestRetriever_EmptyCorpus(t *testing.T) {
	ix := buildIndex(t, embedding.NewHashEmbedder(8))
	out, err := New().Retrieve(context.Background(), ix, "anything", 5)
	if err != nil || len(out) != 0 {
		t.Errorf("empty corpus: %v, %v", out, err)
	}
}

type failingEmbedder struct{ *embedding.HashEmbedder }

func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedder down")
}

func TestRetriever_DenseFailureContributesNothing(t *testing.T) {
	emb := failingEmbedder{embedding.NewHashEmbedder(8)}
	ix := buildIndex(t, emb, &models.Chunk{ID: "a_0", Content: "bleve search"})
	out, err := New().Retrieve(context.Background(), ix, "bleve", 5)
	if err != nil {
		t.Fatalf("sub-retriever failure must not be an error: %v", err)
	}
	if len(out) != 1 || out[0].DenseRank != 0 || out[0].LexicalRank != 1 {
		t.Errorf("unexpected candidates: %+v", out)
	}
}

func TestRetriever_Cancelled(t *testing.T) {
	ix := buildIndex(t, embedding.NewHashEmbedder(8), &models.Chunk{ID: "a_0", Content: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Retrieve(ctx, ix, "x", 5); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
