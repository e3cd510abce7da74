package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refinedOutput struct {
	RefinedQuery string `json:"refined_query"`
}

func refineSchema() Schema {
	return Schema{
		Name:   "refine",
		Fields: []Field{{Name: "refined_query", Types: []FieldType{TypeString}}},
		New:    func() any { return &refinedOutput{} },
	}
}

func TestExtractString_Adapters(t *testing.T) {
	assert.Equal(t, "better", ExtractString(StructResult{Value: &refinedOutput{RefinedQuery: "better"}}, "refined_query"))
	assert.Equal(t, "better", ExtractString(StructResult{Value: refinedOutput{RefinedQuery: "better"}}, "RefinedQuery"))
	assert.Equal(t, "", ExtractString(StructResult{Value: refinedOutput{}}, "missing"))

	assert.Equal(t, "mapped", ExtractString(MapResult{Values: map[string]any{"refined_query": "mapped"}}, "refined_query"))
	assert.Equal(t, "", ExtractString(MapResult{Values: map[string]any{}}, "refined_query"))
	assert.Equal(t, "0.8", ExtractString(MapResult{Values: map[string]any{"score": json.Number("0.8")}}, "score"))
	assert.Equal(t, "1", ExtractString(MapResult{Values: map[string]any{"score": 1}}, "score"))

	assert.Equal(t, "plain text", ExtractString(RawResult{Text: "plain text"}, "anything"))
	assert.Equal(t, "", ExtractString(nil, "x"))
}

func TestParseStructured(t *testing.T) {
	r := ParseStructured(`{"refined_query":"what is a transformer"}`, refineSchema())
	_, isStruct := r.(StructResult)
	assert.True(t, isStruct)
	assert.Equal(t, "what is a transformer", ExtractString(r, "refined_query"))

	r = ParseStructured("Sure! {\"score\": 0.7} hope that helps", Schema{Name: "score"})
	m, isMap := r.(MapResult)
	require.True(t, isMap)
	assert.Equal(t, json.Number("0.7"), m.Values["score"])

	r = ParseStructured("no json here", refineSchema())
	assert.Equal(t, RawResult{Text: "no json here"}, r)
}

func TestSchema_JSONSchema(t *testing.T) {
	s := Schema{Name: "score", Fields: []Field{{Name: "score", Types: []FieldType{TypeString, TypeNumber}, Description: "0..1"}}}
	js := s.JSONSchema()
	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"score"}, js["required"])
	props := js["properties"].(map[string]any)
	prop := props["score"].(map[string]any)
	assert.Equal(t, []FieldType{TypeString, TypeNumber}, prop["type"])
	assert.Equal(t, "0..1", prop["description"])
}

func TestOllamaClient_CompleteStructured(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"refined_query":"large language model definition"}`},
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1", time.Second, WithTemperature(0))
	res, err := c.CompleteStructured(context.Background(), "refine: llm", refineSchema())
	require.NoError(t, err)
	assert.Equal(t, "large language model definition", ExtractString(res, "refined_query"))
	assert.False(t, got.Stream)
	assert.Equal(t, "llama3.1", got.Model)
	assert.NotNil(t, got.Format)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "refine: llm", got.Messages[0].Content)
}

func TestOllamaClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"content": "  hello  "}})
	}))
	defer srv.Close()

	exec := NewExecutor(ExecutorConfig{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond, RetryMaxBackoff: time.Millisecond}, nil)
	c := NewOllamaClient(srv.URL, "m", time.Second, WithExecutor(exec))
	res, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Raw())
	assert.EqualValues(t, 3, calls.Load())
}

func TestOllamaClient_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m", time.Second)
	_, err := c.Complete(context.Background(), "hi")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.False(t, models.IsKind(err, models.ErrTemporary))
	assert.EqualValues(t, 1, calls.Load())
}

func TestExecutor_RetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}, nil)

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecutor_OpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         time.Millisecond,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}, nil)

	errTemp := errors.New("temporary")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error { return errTemp }, nil)
		require.ErrorIs(t, err, errTemp)
	}
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatal("circuit should be open")
		return nil
	}, nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, IsCircuitOpen(err))
}

func TestClassifyHTTPError(t *testing.T) {
	assert.True(t, ClassifyHTTPError(&HTTPStatusError{StatusCode: 503}).Retryable)
	assert.True(t, ClassifyHTTPError(&HTTPStatusError{StatusCode: 429}).Retryable)
	assert.False(t, ClassifyHTTPError(&HTTPStatusError{StatusCode: 404}).Retryable)
	assert.False(t, ClassifyHTTPError(context.DeadlineExceeded).Retryable)
	assert.False(t, ClassifyHTTPError(errors.New("boom")).Retryable)
}
