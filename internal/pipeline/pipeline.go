// Package pipeline runs the answer state machine: refine, retrieve and rerank, score, then
// either generate from internal context or fall back to web search.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/generate"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rerank"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Stage names used for logging and metrics.
const (
	StageRefine    = "refine"
	StageRetrieve  = "retrieve_rerank"
	StageScore     = "score"
	StageGenerate  = "generate_internal"
	StageSearch    = "fallback_search"
	StageSummarize = "summarize"
	StageFallback  = "generate_fallback"
)

// IndexSource serves the current corpus index.
type IndexSource interface {
	Current() *corpus.Index
}

// Retriever returns fused candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, idx *corpus.Index, query string, k int) ([]models.Candidate, error)
}

// Reranker orders candidates by cross-encoder relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.Candidate) models.RerankedList
}

// Scorer grades how well text answers a query, in [0,1].
type Scorer interface {
	Score(ctx context.Context, query, documentText string) float64
}

// Refiner rewrites the query in state.
type Refiner interface {
	Refine(ctx context.Context, state models.QueryState) models.StateDelta
}

// Generator answers a query from context. It never returns an empty string.
type Generator interface {
	Generate(ctx context.Context, query, docContext string) string
}

// Summarizer condenses web snippets.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Searcher fetches web snippets for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Deps are the collaborators of a Pipeline. All are required.
type Deps struct {
	Store      IndexSource
	Retriever  Retriever
	Reranker   Reranker
	Scorer     Scorer
	Refiner    Refiner
	Generator  Generator
	Summarizer Summarizer
	Searcher   Searcher
}

// Config controls branching and bookkeeping.
type Config struct {
	Threshold            float64
	MaxRefinementRetries int
	FallbackMode         string
	RetryOnLowRelevance  bool
	RequestTimeout       time.Duration
	TopK                 int
}

// DefaultConfig matches the defaults of the YAML configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:            config.DefaultRelevanceThreshold,
		MaxRefinementRetries: 5,
		FallbackMode:         config.FallbackSummarize,
		RequestTimeout:       2 * time.Minute,
		TopK:                 20,
	}
}

// ConfigFrom builds a pipeline Config from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Threshold:            cfg.Pipeline.Threshold(),
		MaxRefinementRetries: cfg.Pipeline.MaxRefinementRetries,
		FallbackMode:         cfg.Pipeline.FallbackMode,
		RetryOnLowRelevance:  cfg.Pipeline.RetryOnLowRelevance,
		RequestTimeout:       cfg.Pipeline.RequestTimeout,
		TopK:                 cfg.Retrieval.TopK,
	}
}

// Pipeline answers queries. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = utils.LoggerOrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline.
func New(deps Deps, cfg Config, opts ...Option) *Pipeline {
	if cfg.MaxRefinementRetries < 1 {
		cfg.MaxRefinementRetries = 1
	}
	if cfg.TopK < 1 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.FallbackMode == "" {
		cfg.FallbackMode = config.FallbackSummarize
	}
	p := &Pipeline{deps: deps, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Answer runs one query to completion. The only errors are an empty query and
// cancellation of ctx by the caller; every other failure degrades the answer instead.
func (p *Pipeline) Answer(ctx context.Context, query string) (*models.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.WrapError(models.ErrInvalidInput, "answer", errEmptyQuery)
	}
	start := time.Now()

	runCtx := ctx
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	state := p.run(runCtx, models.NewQueryState(query))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer := models.AnswerFromState(state)
	answer.QueryTime = time.Since(start).Milliseconds()
	p.metrics.IncAnswer(answerPath(state))
	p.logger.Info("answered",
		zap.String("query", utils.Truncate(query, 80)),
		zap.String("refined_query", state.RefinedQuery),
		zap.Float64("score", state.RelevanceScore),
		zap.Bool("used_fallback", state.UsedFallback),
		zap.Bool("degraded", state.Degraded),
		zap.Int("refinements", state.RefinementCount),
		zap.Int64("query_time_ms", answer.QueryTime))
	return answer, nil
}

func (p *Pipeline) run(ctx context.Context, state models.QueryState) models.QueryState {
	for {
		if state.RefinementCount < p.cfg.MaxRefinementRetries {
			state = state.Apply(p.timed(StageRefine, func() models.StateDelta {
				return p.deps.Refiner.Refine(ctx, state)
			}))
			p.metrics.IncRefinements()
		}
		state = state.Apply(p.timed(StageRetrieve, func() models.StateDelta {
			return p.retrieve(ctx, state)
		}))
		state = state.Apply(p.timed(StageScore, func() models.StateDelta {
			return p.score(ctx, state)
		}))

		if state.RelevanceScore >= p.cfg.Threshold {
			return state.Apply(p.timed(StageGenerate, func() models.StateDelta {
				return p.generateInternal(ctx, state)
			}))
		}
		if !p.cfg.RetryOnLowRelevance || state.RefinementCount >= p.cfg.MaxRefinementRetries || ctx.Err() != nil {
			return state.Apply(p.fallback(ctx, state))
		}
		p.logger.Debug("low relevance, refining again",
			zap.Float64("score", state.RelevanceScore),
			zap.Int("refinements", state.RefinementCount))
	}
}

func (p *Pipeline) retrieve(ctx context.Context, state models.QueryState) models.StateDelta {
	query := state.EffectiveQuery()
	idx := p.deps.Store.Current()
	candidates, err := p.deps.Retriever.Retrieve(ctx, idx, query, p.cfg.TopK)
	if err != nil {
		p.logger.Warn("retrieval failed", zap.String("query", query), zap.Error(err))
		return models.StateDelta{RetrievedContext: models.Ptr("")}
	}
	ranked := p.deps.Reranker.Rerank(ctx, query, candidates)
	p.logger.Debug("retrieved",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
		zap.Int("reranked", len(ranked)))
	return models.StateDelta{RetrievedContext: models.Ptr(rerank.JoinContext(ranked))}
}

func (p *Pipeline) score(ctx context.Context, state models.QueryState) models.StateDelta {
	score := utils.Clamp01(p.deps.Scorer.Score(ctx, state.EffectiveQuery(), state.RetrievedContext))
	p.metrics.ObserveScore(score)
	return models.StateDelta{RelevanceScore: models.Ptr(score)}
}

func (p *Pipeline) generateInternal(ctx context.Context, state models.QueryState) models.StateDelta {
	answer := p.deps.Generator.Generate(ctx, state.EffectiveQuery(), state.RetrievedContext)
	return models.StateDelta{
		UsedFallback: models.Ptr(false),
		FinalAnswer:  models.Ptr(answer),
	}
}

// fallback runs web search and generates from the results. When search yields nothing
// the answer comes from whatever internal context exists and is marked degraded.
func (p *Pipeline) fallback(ctx context.Context, state models.QueryState) models.StateDelta {
	query := state.EffectiveQuery()
	delta := models.StateDelta{UsedFallback: models.Ptr(true)}

	var snippets string
	var searchErr error
	p.timed(StageSearch, func() models.StateDelta {
		snippets, searchErr = p.deps.Searcher.Search(ctx, query)
		return models.StateDelta{}
	})
	if searchErr != nil || strings.TrimSpace(snippets) == "" {
		p.logger.Warn("web search yielded nothing, answering from internal context",
			zap.String("query", query),
			zap.Bool("has_context", state.RetrievedContext != ""),
			zap.Error(searchErr))
		answer := generate.InsufficientContext
		if strings.TrimSpace(state.RetrievedContext) != "" {
			p.timed(StageFallback, func() models.StateDelta {
				answer = p.deps.Generator.Generate(ctx, query, state.RetrievedContext)
				return models.StateDelta{}
			})
		}
		delta.Degraded = models.Ptr(true)
		delta.FinalAnswer = models.Ptr(answer)
		return delta
	}

	docContext := snippets
	if p.cfg.FallbackMode == config.FallbackSummarize {
		p.timed(StageSummarize, func() models.StateDelta {
			summary, err := p.deps.Summarizer.Summarize(ctx, snippets)
			if err != nil || strings.TrimSpace(summary) == "" {
				p.logger.Warn("summarization failed, using raw snippets", zap.Error(err))
				return models.StateDelta{}
			}
			docContext = summary
			return models.StateDelta{}
		})
	}

	var answer string
	p.timed(StageFallback, func() models.StateDelta {
		answer = p.deps.Generator.Generate(ctx, query, docContext)
		return models.StateDelta{}
	})
	delta.RetrievedContext = models.Ptr(docContext)
	delta.FinalAnswer = models.Ptr(answer)
	return delta
}

func (p *Pipeline) timed(stage string, fn func() models.StateDelta) models.StateDelta {
	start := time.Now()
	delta := fn()
	d := time.Since(start)
	p.metrics.ObserveStage(stage, d)
	p.logger.Debug("stage done", zap.String("stage", stage), zap.Duration("duration", d))
	return delta
}

func answerPath(s models.QueryState) string {
	switch {
	case s.Degraded:
		return metrics.PathDegraded
	case s.UsedFallback:
		return metrics.PathFallback
	default:
		return metrics.PathInternal
	}
}
