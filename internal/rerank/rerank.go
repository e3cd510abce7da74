// Package rerank orders retrieval candidates by a query/passage cross-scorer.
package rerank

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CrossScorer scores one (query, passage) pair jointly. Higher is more relevant.
type CrossScorer interface {
	ScorePair(ctx context.Context, query, text string) (float64, error)
}

// BatchScorer is an optional CrossScorer extension that scores many passages in one call.
// A nil entry in the result marks a passage the scorer did not score.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, query string, texts []string) ([]*float64, error)
}

// DefaultTopN is the number of chunks kept after reranking.
const DefaultTopN = 5

// Reranker scores candidates and keeps the best N.
type Reranker struct {
	scorer      CrossScorer
	topN        int
	concurrency int
	logger      *zap.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reranker) { r.logger = l }
}

// WithTopN sets how many chunks survive the rerank.
func WithTopN(n int) Option {
	return func(r *Reranker) {
		if n > 0 {
			r.topN = n
		}
	}
}

// WithConcurrency bounds parallel ScorePair calls.
func WithConcurrency(n int) Option {
	return func(r *Reranker) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// New creates a Reranker around scorer.
func New(scorer CrossScorer, opts ...Option) *Reranker {
	r := &Reranker{scorer: scorer, topN: DefaultTopN, concurrency: 4}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.LoggerOrNop(r.logger)
	return r
}

// TopN returns the configured list length.
func (r *Reranker) TopN() int {
	return r.topN
}

// Rerank scores every candidate against query and returns the top N by score.
// Candidates whose scoring fails are excluded. Equal scores keep candidate order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []models.Candidate) models.RerankedList {
	if len(candidates) == 0 {
		return models.RerankedList{}
	}
	start := time.Now()
	scores := r.score(ctx, query, candidates)

	out := make(models.RerankedList, 0, len(candidates))
	for i, c := range candidates {
		if scores[i] == nil {
			continue
		}
		out = append(out, models.RankedChunk{Chunk: c.Chunk, Score: *scores[i]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > r.topN {
		out = out[:r.topN]
	}
	r.logger.Debug("reranked",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out
}

func (r *Reranker) score(ctx context.Context, query string, candidates []models.Candidate) []*float64 {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Content
	}
	if bs, ok := r.scorer.(BatchScorer); ok {
		scores, err := bs.ScoreBatch(ctx, query, texts)
		if err == nil && len(scores) == len(texts) {
			for i, s := range scores {
				if s == nil {
					r.logger.Warn("rerank candidate excluded", zap.String("chunk_id", candidates[i].Chunk.ID))
				}
			}
			return scores
		}
		r.logger.Warn("batch rerank failed, scoring pairs", zap.Error(err))
	}

	scores := make([]*float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range texts {
		g.Go(func() error {
			s, err := r.scorer.ScorePair(gctx, query, texts[i])
			if err != nil {
				r.logger.Warn("rerank candidate excluded",
					zap.String("chunk_id", candidates[i].Chunk.ID),
					zap.Error(err))
				return nil
			}
			scores[i] = &s
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// JoinContext concatenates chunk content in ranked order, separated by blank lines.
func JoinContext(list models.RerankedList) string {
	parts := make([]string, 0, len(list))
	for _, rc := range list {
		parts = append(parts, rc.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

// NewScorer returns the HTTP cross-encoder when an endpoint is configured, else the lexical scorer.
func NewScorer(cfg config.RerankConfig, exec *llm.Executor) CrossScorer {
	if cfg.Provider == "http" && cfg.Endpoint != "" {
		return NewHTTPCrossScorer(cfg.Endpoint, cfg.Model, cfg.Timeout, exec)
	}
	return LexicalScorer{}
}
