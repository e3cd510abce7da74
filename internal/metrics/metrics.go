// Package metrics exposes Prometheus collectors for the answer pipeline and HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Answer paths.
const (
	PathInternal = "internal"
	PathFallback = "fallback"
	PathDegraded = "degraded"
)

// Metrics holds collectors on a private registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	answersTotal    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	relevanceScore  prometheus.Histogram
	refinements     prometheus.Counter
	corpusChunks    prometheus.Gauge
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		answersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotae",
			Subsystem: "pipeline",
			Name:      "answers_total",
			Help:      "Answers produced, by decision path.",
		}, []string{"path"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kotae",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		relevanceScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kotae",
			Subsystem: "pipeline",
			Name:      "relevance_score",
			Help:      "Relevance scores assigned to retrieved context.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		refinements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kotae",
			Subsystem: "pipeline",
			Name:      "refinements_total",
			Help:      "Query refinement calls.",
		}),
		corpusChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kotae",
			Subsystem: "corpus",
			Name:      "chunks",
			Help:      "Chunks in the served corpus index.",
		}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotae",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests processed.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kotae",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	registry.MustRegister(
		m.answersTotal,
		m.stageDuration,
		m.relevanceScore,
		m.refinements,
		m.corpusChunks,
		m.requestTotal,
		m.requestDuration,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveScore records a relevance score.
func (m *Metrics) ObserveScore(score float64) {
	if m == nil {
		return
	}
	m.relevanceScore.Observe(score)
}

// IncRefinements counts one refinement call.
func (m *Metrics) IncRefinements() {
	if m == nil {
		return
	}
	m.refinements.Inc()
}

// IncAnswer counts an answer on path.
func (m *Metrics) IncAnswer(path string) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(path).Inc()
}

// SetCorpusChunks sets the served chunk count.
func (m *Metrics) SetCorpusChunks(n int) {
	if m == nil {
		return
	}
	m.corpusChunks.Set(float64(n))
}

// Middleware records request count and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
