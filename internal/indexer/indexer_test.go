package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

type testEnv struct {
	idx     *Indexer
	storage *storage.SQLiteStorage
	store   *corpus.Store
}

func newTestEnv(t *testing.T, embedder embedding.Embedder) *testEnv {
	t.Helper()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if embedder == nil {
		embedder = embedding.NewHashEmbedder(32)
	}
	store, err := corpus.NewStore(embedder)
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndexer(st, store, config.IngestConfig{ChunkSize: 10, ChunkOverlap: 2}, extract.NewExtractor())
	return &testEnv{idx: idx, storage: st, store: store}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{"txt"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".go", nil, true},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestIndexDocuments_PublishesAndPersists(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	ids, err := env.idx.IndexDocuments(ctx, []*models.DocumentInput{
		{ID: "llm", Title: "LLMs", Content: "LLMs are large language models trained on text."},
		{Content: "Go is a statically typed compiled language."},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "llm" || ids[1] == "" {
		t.Fatalf("ids = %v", ids)
	}
	if got := env.store.Current().Len(); got != 2 {
		t.Errorf("served chunks = %d, want 2", got)
	}
	chunks, err := env.storage.ListChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("stored chunks = %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c.Embedding) != 32 {
			t.Errorf("chunk %s stored without embedding", c.ID)
		}
	}
	if _, ok := env.store.Current().Chunk("llm_0"); !ok {
		t.Error("llm_0 not served")
	}
}

func TestIndexDocuments_ReplaceExisting(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	long := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen"
	if _, err := env.idx.IndexDocuments(ctx, []*models.DocumentInput{{ID: "d", Content: long}}); err != nil {
		t.Fatal(err)
	}
	if got := env.store.Current().Len(); got != 2 {
		t.Fatalf("chunks after first index = %d", got)
	}
	if _, err := env.idx.IndexDocuments(ctx, []*models.DocumentInput{{ID: "d", Content: "short now"}}); err != nil {
		t.Fatal(err)
	}
	if got := env.store.Current().Len(); got != 1 {
		t.Errorf("chunks after replace = %d, want 1", got)
	}
	if _, ok := env.store.Current().Chunk("d_1"); ok {
		t.Error("stale chunk d_1 still served")
	}
}

func TestIndexDocuments_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.idx.IndexDocuments(context.Background(), []*models.DocumentInput{{ID: "x", Content: "  "}})
	if !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("blank content error = %v", err)
	}
	_, err = env.idx.IndexDocuments(context.Background(), []*models.DocumentInput{
		{ID: "x", Content: "a"}, {ID: "x", Content: "b"},
	})
	if !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("duplicate id error = %v", err)
	}
}

type failingEmbedder struct {
	*embedding.HashEmbedder
	fail bool
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	return f.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestIndexDocuments_FailureLeavesStateUnchanged(t *testing.T) {
	emb := &failingEmbedder{HashEmbedder: embedding.NewHashEmbedder(16)}
	env := newTestEnv(t, emb)
	ctx := context.Background()

	if _, err := env.idx.IndexDocuments(ctx, []*models.DocumentInput{{ID: "a", Content: "alpha"}}); err != nil {
		t.Fatal(err)
	}
	before := env.store.Current()

	emb.fail = true
	_, err := env.idx.IndexDocuments(ctx, []*models.DocumentInput{{ID: "b", Content: "beta"}})
	if !models.IsKind(err, models.ErrIndexBuild) {
		t.Fatalf("error = %v, want index build failure", err)
	}
	if env.store.Current() != before {
		t.Error("served index changed after failed ingest")
	}
	if n, _ := env.storage.CountDocuments(ctx); n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.idx.IndexDocuments(ctx, []*models.DocumentInput{
		{ID: "a", Content: "alpha"}, {ID: "b", Content: "beta"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := env.idx.DeleteDocument(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if got := env.store.Current().Len(); got != 1 {
		t.Errorf("served chunks = %d, want 1", got)
	}
	if err := env.idx.DeleteDocument(ctx, "a"); !models.IsKind(err, models.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
}

func TestLoadCorpus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.idx.IndexDocuments(ctx, []*models.DocumentInput{{ID: "a", Content: "alpha beta"}}); err != nil {
		t.Fatal(err)
	}

	fresh, err := corpus.NewStore(embedding.NewHashEmbedder(32))
	if err != nil {
		t.Fatal(err)
	}
	reloaded := NewIndexer(env.storage, fresh, config.IngestConfig{ChunkSize: 10, ChunkOverlap: 2}, nil)
	n, err := reloaded.LoadCorpus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || fresh.Current().Len() != 1 {
		t.Errorf("loaded %d, served %d", n, fresh.Current().Len())
	}
}

func TestIndexFile_SkipsUnchanged(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("first version"), 0644); err != nil {
		t.Fatal(err)
	}

	indexed, err := env.idx.IndexFile(ctx, path, []string{".txt"})
	if err != nil || !indexed {
		t.Fatalf("first IndexFile = %v, %v", indexed, err)
	}
	indexed, err = env.idx.IndexFile(ctx, path, []string{".txt"})
	if err != nil || indexed {
		t.Fatalf("unchanged IndexFile = %v, %v", indexed, err)
	}

	if err := os.WriteFile(path, []byte("second version, longer"), 0644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	_ = os.Chtimes(path, later, later)
	indexed, err = env.idx.IndexFile(ctx, path, []string{".txt"})
	if err != nil || !indexed {
		t.Fatalf("changed IndexFile = %v, %v", indexed, err)
	}
	abs, _ := filepath.Abs(path)
	doc, err := env.storage.GetDocument(ctx, fileid.DocID(abs))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "second version, longer" || doc.Title != "notes.txt" {
		t.Errorf("doc = %+v", doc)
	}

	if _, err := env.idx.IndexFile(ctx, path, []string{".md"}); !models.IsKind(err, models.ErrInvalidInput) {
		t.Errorf("disallowed extension error = %v", err)
	}
}

func TestIndexDirectory(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "a.txt"):     "alpha document",
		filepath.Join(dir, "b.md"):      "beta document",
		filepath.Join(dir, "skip.go"):   "package main",
		filepath.Join(sub, "c.txt"):     "gamma document",
		filepath.Join(dir, "empty.txt"): "   ",
	}
	for p, body := range files {
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	exts := []string{".txt", ".md"}

	n, err := env.idx.IndexDirectory(ctx, dir, exts, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("non-recursive indexed %d, want 2", n)
	}

	n, err = env.idx.IndexDirectory(ctx, dir, exts, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("recursive pass indexed %d new files, want 1", n)
	}
	if got := env.store.Current().Len(); got != 3 {
		t.Errorf("served chunks = %d, want 3", got)
	}

	if err := env.idx.DeleteFiles(ctx, []string{
		filepath.Join(sub, "c.txt"),
		filepath.Join(sub, "never-indexed.txt"),
	}); err != nil {
		t.Fatal(err)
	}
	if got := env.store.Current().Len(); got != 2 {
		t.Errorf("served chunks after delete = %d, want 2", got)
	}

	if _, err := env.idx.IndexDirectory(ctx, filepath.Join(dir, "a.txt"), exts, true); err == nil {
		t.Error("expected error for non-directory")
	}
}
