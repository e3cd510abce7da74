package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.IncAnswer(PathInternal)
	m.IncAnswer(PathFallback)
	m.IncAnswer(PathFallback)
	m.IncRefinements()
	m.ObserveScore(0.7)
	m.ObserveStage("refine", 10*time.Millisecond)
	m.SetCorpusChunks(42)

	if got := testutil.ToFloat64(m.answersTotal.WithLabelValues(PathFallback)); got != 2 {
		t.Errorf("fallback answers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.corpusChunks); got != 42 {
		t.Errorf("corpus chunks = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.refinements); got != 1 {
		t.Errorf("refinements = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.IncAnswer(PathInternal)
	m.ObserveScore(1)
	m.ObserveStage("x", time.Second)
	m.IncRefinements()
	m.SetCorpusChunks(1)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMetrics_HandlerAndMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/7", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `kotae_http_requests_total{method="GET",route="/items/{id}",status="418"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}
