// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Answerer runs the answer pipeline.
type Answerer interface {
	Answer(ctx context.Context, query string) (*models.Answer, error)
}

// DocumentIndexer publishes and removes documents.
type DocumentIndexer interface {
	IndexDocuments(ctx context.Context, inputs []*models.DocumentInput) ([]string, error)
	DeleteDocument(ctx context.Context, id string) error
}

// IndexSource serves the current corpus index.
type IndexSource interface {
	Current() *corpus.Index
}

// Server is the HTTP server for the kotae API.
type Server struct {
	answerer  Answerer
	indexer   DocumentIndexer
	storage   storage.Storage
	corpus    IndexSource
	config    *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	watchDirs func() []string
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = utils.LoggerOrNop(l) }
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatchDirectories reports watched directories in the status endpoint.
func WithWatchDirectories(dirs func() []string) Option {
	return func(s *Server) { s.watchDirs = dirs }
}

// NewServer creates a server with the given dependencies.
func NewServer(answerer Answerer, idx DocumentIndexer, st storage.Storage, source IndexSource, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		answerer: answerer,
		indexer:  idx,
		storage:  st,
		corpus:   source,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))
		r.Post("/answer", s.handleAnswer)
		r.Post("/documents", s.handleIndexDocuments)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// requestTimeout leaves headroom over the pipeline deadline so degraded answers still get written.
func (s *Server) requestTimeout() time.Duration {
	d := s.config.Pipeline.RequestTimeout
	if d <= 0 {
		d = 2 * time.Minute
	}
	return d + 5*time.Second
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}
