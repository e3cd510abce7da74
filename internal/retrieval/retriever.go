// Package retrieval merges lexical and dense search into one candidate list.
package retrieval

import (
	"context"
	"time"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Retriever runs both sub-retrievers concurrently and fuses their results.
type Retriever struct {
	weights  Weights
	rrfK     int
	defaultK int
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithWeights sets the fusion weights.
func WithWeights(w Weights) Option {
	return func(r *Retriever) { r.weights = w }
}

// WithRRFK sets the reciprocal-rank constant.
func WithRRFK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.rrfK = k
		}
	}
}

// WithDefaultK sets the candidate count used when Retrieve gets k < 1.
func WithDefaultK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// New creates a Retriever with 0.5/0.5 weights, rrf_k 60 and k 20 unless overridden.
func New(opts ...Option) *Retriever {
	r := &Retriever{
		weights:  Weights{Lexical: 0.5, Dense: 0.5},
		rrfK:     60,
		defaultK: 20,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.weights = r.weights.Normalize()
	r.logger = utils.LoggerOrNop(r.logger)
	return r
}

// Retrieve returns at most k fused candidates for query. A failing sub-retriever contributes
// nothing; only caller cancellation is returned as an error.
func (r *Retriever) Retrieve(ctx context.Context, idx *corpus.Index, query string, k int) ([]models.Candidate, error) {
	if k < 1 {
		k = r.defaultK
	}
	if idx == nil || idx.Len() == 0 {
		return nil, ctx.Err()
	}

	start := time.Now()
	var lexical, dense []corpus.Hit
	g, gctx := errgroup.WithContext(ctx)

	if r.weights.Lexical > 0 {
		g.Go(func() error {
			hits, err := idx.SearchLexical(gctx, query, k)
			if err != nil {
				r.logger.Warn("lexical retrieval failed", zap.String("query", query), zap.Error(err))
				return nil
			}
			lexical = hits
			return nil
		})
	}
	if r.weights.Dense > 0 {
		g.Go(func() error {
			hits, err := idx.SearchDense(gctx, query, k)
			if err != nil {
				r.logger.Warn("dense retrieval failed", zap.String("query", query), zap.Error(err))
				return nil
			}
			dense = hits
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := Fuse(lexical, dense, r.weights, r.rrfK, k)
	r.logger.Debug("retrieved",
		zap.String("query", query),
		zap.Int("lexical", len(lexical)),
		zap.Int("dense", len(dense)),
		zap.Int("candidates", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}
