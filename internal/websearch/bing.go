package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Bing searches the Bing Web Search v7 API.
type Bing struct {
	endpoint   string
	apiKey     string
	numResults int
	httpClient *http.Client
	executor   *llm.Executor
	logger     *zap.Logger
}

// NewBing creates a Bing searcher. Endpoint and API key are required.
func NewBing(endpoint, apiKey string, numResults int, timeout time.Duration, exec *llm.Executor, logger *zap.Logger) (*Bing, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("bing search requires endpoint configuration")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("bing search requires api key")
	}
	if numResults <= 0 {
		numResults = 5
	}
	if exec == nil {
		exec = llm.NewExecutor(llm.DefaultExecutorConfig(), logger)
	}
	return &Bing{
		endpoint:   endpoint,
		apiKey:     apiKey,
		numResults: numResults,
		httpClient: &http.Client{Timeout: timeout},
		executor:   exec,
		logger:     utils.LoggerOrNop(logger),
	}, nil
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// Search implements Searcher.
func (b *Bing) Search(ctx context.Context, query string) (string, error) {
	results, err := b.Results(ctx, query)
	if err != nil {
		return "", err
	}
	return JoinSnippets(results), nil
}

// Results returns up to numResults structured hits.
func (b *Bing) Results(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(b.numResults))
	u.RawQuery = q.Encode()

	var resp bingResponse
	headers := map[string]string{"Ocp-Apim-Subscription-Key": b.apiKey}
	err = b.executor.Execute(ctx, "websearch:bing", func(ctx context.Context) error {
		resp = bingResponse{}
		return llm.GetJSON(ctx, b.httpClient, u.String(), headers, &resp, "bing search")
	}, llm.ClassifyHTTPError)
	if err != nil {
		return nil, llm.WrapTemporary("bing search", err)
	}

	results := make([]Result, 0, len(resp.WebPages.Value))
	for _, v := range resp.WebPages.Value {
		if len(results) >= b.numResults {
			break
		}
		results = append(results, Result{Title: v.Name, URL: v.URL, Snippet: v.Snippet})
	}
	b.logger.Debug("bing search", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}
