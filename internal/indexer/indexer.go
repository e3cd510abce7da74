package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Indexer ingests documents. Every change persists to storage and swaps a freshly built
// corpus index; a failure at any step leaves both unchanged.
type Indexer struct {
	storage   storage.Storage
	store     *corpus.Store
	chunker   *Chunker
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = utils.LoggerOrNop(l) }
}

// NewIndexer creates an indexer. extractor may be nil, in which case files are read as plain text.
func NewIndexer(st storage.Storage, store *corpus.Store, cfg config.IngestConfig, extractor *extract.Extractor, opts ...Option) *Indexer {
	idx := &Indexer{
		storage:   st,
		store:     store,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// LoadCorpus builds the served index from stored chunks. Stored embeddings are reused.
func (idx *Indexer) LoadCorpus(ctx context.Context) (int, error) {
	chunks, err := idx.storage.ListChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	if err := idx.store.Rebuild(ctx, chunks); err != nil {
		return 0, err
	}
	idx.logger.Info("corpus loaded", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// IndexDocuments chunks, embeds and publishes inputs. Inputs without an ID get a UUID.
// An input whose ID already exists replaces that document. Returns the document IDs in input order.
func (idx *Indexer) IndexDocuments(ctx context.Context, inputs []*models.DocumentInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	docs := make([]*models.Document, 0, len(inputs))
	var chunks []*models.Chunk
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		content := Preprocess(in.Content)
		if content == "" {
			return nil, models.WrapError(models.ErrInvalidInput, "index documents",
				fmt.Errorf("document %d has no content", i))
		}
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, dup := seen[id]; dup {
			return nil, models.WrapError(models.ErrInvalidInput, "index documents",
				fmt.Errorf("duplicate document id %s", id))
		}
		seen[id] = struct{}{}
		doc := &models.Document{ID: id, Title: in.Title, Content: content, Metadata: in.Metadata}
		docs = append(docs, doc)
		chunks = append(chunks, idx.chunker.Chunk(doc, content)...)
	}

	if err := idx.embed(ctx, chunks); err != nil {
		return nil, err
	}

	unlock := idx.store.Lock()
	defer unlock()

	existing, err := idx.storage.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	candidate := make([]*models.Chunk, 0, len(existing)+len(chunks))
	for _, c := range existing {
		if _, replaced := seen[c.DocumentID]; !replaced {
			candidate = append(candidate, c)
		}
	}
	candidate = append(candidate, chunks...)

	ix, err := idx.store.Build(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if err := idx.storage.ReplaceDocuments(ctx, docs, chunks); err != nil {
		return nil, fmt.Errorf("persist documents: %w", err)
	}
	idx.store.Swap(ix)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	idx.logger.Info("documents indexed",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("corpus_chunks", ix.Len()))
	return ids, nil
}

// embed fills chunk embeddings so they are persisted with the chunks.
func (idx *Indexer) embed(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := idx.store.Embedder().EmbedBatch(ctx, texts)
	if err != nil {
		return models.WrapError(models.ErrIndexBuild, "embed chunks", err)
	}
	if len(vecs) != len(chunks) {
		return models.WrapError(models.ErrIndexBuild, "embed chunks",
			fmt.Errorf("got %d embeddings for %d chunks", len(vecs), len(chunks)))
	}
	for i := range chunks {
		chunks[i].Embedding = vecs[i]
	}
	return nil
}

// DeleteDocument removes a document and republishes the corpus without it.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	unlock := idx.store.Lock()
	defer unlock()

	if _, err := idx.storage.GetDocument(ctx, id); err != nil {
		return err
	}
	return idx.deleteLocked(ctx, []string{id})
}

// DeleteFiles removes the documents ingested from paths in one rebuild. Paths that were
// never ingested are ignored.
func (idx *Indexer) DeleteFiles(ctx context.Context, paths []string) error {
	unlock := idx.store.Lock()
	defer unlock()

	var ids []string
	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("absolute path: %w", err)
		}
		id := fileid.DocID(absPath)
		if _, err := idx.storage.GetDocument(ctx, id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return idx.deleteLocked(ctx, ids)
}

func (idx *Indexer) deleteLocked(ctx context.Context, ids []string) error {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	existing, err := idx.storage.ListChunks(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	remaining := existing[:0]
	for _, c := range existing {
		if _, gone := drop[c.DocumentID]; !gone {
			remaining = append(remaining, c)
		}
	}
	ix, err := idx.store.Build(ctx, remaining)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := idx.storage.DeleteDocument(ctx, id); err != nil && !models.IsKind(err, models.ErrNotFound) {
			return err
		}
	}
	idx.store.Swap(ix)
	idx.logger.Info("documents deleted", zap.Strings("ids", ids), zap.Int("corpus_chunks", ix.Len()))
	return nil
}

// IndexFile ingests one file. Files whose size and mtime match the stored stamp are skipped.
// Returns whether the file was (re)indexed.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (bool, error) {
	input, err := idx.fileInput(ctx, path, allowedExts)
	if err != nil || input == nil {
		return false, err
	}
	if _, err := idx.IndexDocuments(ctx, []*models.DocumentInput{input}); err != nil {
		return false, err
	}
	return true, nil
}

// IndexFiles ingests the changed files among paths in one rebuild. Files that cannot be
// read or extracted are logged and skipped. Returns how many files were (re)indexed.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string, allowedExts []string) (int, error) {
	var inputs []*models.DocumentInput
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		input, err := idx.fileInput(ctx, p, allowedExts)
		if err != nil {
			idx.logger.Warn("skipping file", zap.String("path", p), zap.Error(err))
			continue
		}
		if input != nil {
			inputs = append(inputs, input)
		}
	}
	if _, err := idx.IndexDocuments(ctx, inputs); err != nil {
		return 0, err
	}
	return len(inputs), nil
}

// IndexDirectory ingests every changed file under dir whose extension is allowed.
// Hidden subdirectories are skipped.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, models.WrapError(models.ErrInvalidInput, "index directory", fmt.Errorf("not a directory: %s", absDir))
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absDir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if extensionAllowed(filepath.Ext(path), allowedExts) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n, err := idx.IndexFiles(ctx, paths, allowedExts)
	if err != nil {
		return 0, err
	}
	idx.logger.Info("directory indexed", zap.String("dir", absDir), zap.Int("files", n))
	return n, nil
}

// fileInput extracts path into a document input. It returns nil when the file is unchanged
// since it was last ingested.
func (idx *Indexer) fileInput(ctx context.Context, path string, allowedExts []string) (*models.DocumentInput, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !extensionAllowed(filepath.Ext(absPath), allowedExts) {
		return nil, models.WrapError(models.ErrInvalidInput, "index file",
			fmt.Errorf("extension %q not allowed", filepath.Ext(absPath)))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, models.WrapError(models.ErrInvalidInput, "index file", fmt.Errorf("not a regular file: %s", absPath))
	}

	docID := fileid.DocID(absPath)
	stamp := fileid.StampOf(absPath, info)
	if doc, err := idx.storage.GetDocument(ctx, docID); err == nil {
		if stored, ok := fileid.StampFromMetadata(doc.Metadata); ok && stored == stamp {
			idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
			return nil, nil
		}
	}

	text, err := idx.extractContent(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", absPath, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, models.WrapError(models.ErrInvalidInput, "index file", fmt.Errorf("no text in %s", absPath))
	}
	return &models.DocumentInput{
		ID:       docID,
		Title:    filepath.Base(absPath),
		Content:  text,
		Metadata: stamp.Metadata(),
	}, nil
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// extensionAllowed matches ext case-insensitively, with or without the dot. An empty list allows all.
func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
