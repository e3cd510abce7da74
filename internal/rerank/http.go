package rerank

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/llm"
)

type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// HTTPCrossScorer calls an external cross-encoder service at POST {endpoint}/v1/rerank.
type HTTPCrossScorer struct {
	endpoint   string
	model      string
	httpClient *http.Client
	executor   *llm.Executor
}

// NewHTTPCrossScorer creates a scorer for endpoint. A nil executor gets defaults.
func NewHTTPCrossScorer(endpoint, model string, timeout time.Duration, exec *llm.Executor) *HTTPCrossScorer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if exec == nil {
		exec = llm.NewExecutor(llm.DefaultExecutorConfig(), nil)
	}
	return &HTTPCrossScorer{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   exec,
	}
}

// ScorePair implements CrossScorer.
func (s *HTTPCrossScorer) ScorePair(ctx context.Context, query, text string) (float64, error) {
	scores, err := s.ScoreBatch(ctx, query, []string{text})
	if err != nil {
		return 0, err
	}
	if scores[0] == nil {
		return 0, fmt.Errorf("rerank: no score returned")
	}
	return *scores[0], nil
}

// ScoreBatch implements BatchScorer. Indexes missing from the reply stay nil.
func (s *HTTPCrossScorer) ScoreBatch(ctx context.Context, query string, texts []string) ([]*float64, error) {
	req := rerankRequest{Query: query, Candidates: texts, Model: s.model}
	var resp rerankResponse
	err := s.executor.Execute(ctx, "rerank", func(ctx context.Context) error {
		resp = rerankResponse{}
		return llm.PostJSON(ctx, s.httpClient, s.endpoint+"/v1/rerank", req, &resp, "rerank")
	}, llm.ClassifyHTTPError)
	if err != nil {
		return nil, llm.WrapTemporary("rerank", err)
	}
	out := make([]*float64, len(texts))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			continue
		}
		score := r.Score
		out[r.Index] = &score
	}
	return out, nil
}
