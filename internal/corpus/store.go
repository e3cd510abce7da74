package corpus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Store holds the served Index. Readers never see a partially built index.
type Store struct {
	current  atomic.Pointer[Index]
	embedder embedding.Embedder
	buildMu  sync.Mutex
	logger   *zap.Logger
	onSwap   func(chunks int)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithOnSwap registers a callback run after each successful swap.
func WithOnSwap(fn func(chunks int)) Option {
	return func(s *Store) { s.onSwap = fn }
}

// NewStore returns a Store serving an empty index.
func NewStore(embedder embedding.Embedder, opts ...Option) (*Store, error) {
	s := &Store{embedder: embedder}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.LoggerOrNop(s.logger)
	empty, err := Build(context.Background(), nil, embedder)
	if err != nil {
		return nil, err
	}
	s.Swap(empty)
	return s, nil
}

// Current returns the served index. It is safe to call concurrently with Rebuild.
func (s *Store) Current() *Index {
	return s.current.Load()
}

// Build builds a candidate index without serving it.
func (s *Store) Build(ctx context.Context, chunks []*models.Chunk) (*Index, error) {
	start := time.Now()
	ix, err := Build(ctx, chunks, s.embedder)
	if err != nil {
		s.logger.Warn("corpus build failed", zap.Int("chunks", len(chunks)), zap.Error(err))
		return nil, err
	}
	s.logger.Debug("corpus built", zap.Int("chunks", ix.Len()), zap.Duration("duration", time.Since(start)))
	return ix, nil
}

// Swap atomically serves ix.
func (s *Store) Swap(ix *Index) {
	s.current.Store(ix)
	if s.onSwap != nil {
		s.onSwap(ix.Len())
	}
}

// Rebuild builds from chunks and swaps only on success. On failure the previous index stays served.
// Concurrent rebuilds are serialized.
func (s *Store) Rebuild(ctx context.Context, chunks []*models.Chunk) error {
	unlock := s.Lock()
	defer unlock()
	ix, err := s.Build(ctx, chunks)
	if err != nil {
		return err
	}
	s.Swap(ix)
	s.logger.Info("corpus swapped", zap.Int("chunks", ix.Len()))
	return nil
}

// Lock serializes multi-step updates (build, persist, swap) by callers outside this package.
func (s *Store) Lock() (unlock func()) {
	s.buildMu.Lock()
	return s.buildMu.Unlock
}

// Embedder returns the embedder used for builds and dense queries.
func (s *Store) Embedder() embedding.Embedder {
	return s.embedder
}
