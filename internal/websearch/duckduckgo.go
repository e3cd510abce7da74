package websearch

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// DefaultDuckDuckGoEndpoint is the Instant Answer API.
const DefaultDuckDuckGoEndpoint = "https://api.duckduckgo.com/"

// DuckDuckGo searches the DuckDuckGo Instant Answer API.
type DuckDuckGo struct {
	endpoint   string
	numResults int
	httpClient *http.Client
	executor   *llm.Executor
	logger     *zap.Logger
}

// NewDuckDuckGo creates a DuckDuckGo searcher. An empty endpoint uses the public API.
func NewDuckDuckGo(endpoint string, numResults int, timeout time.Duration, exec *llm.Executor, logger *zap.Logger) *DuckDuckGo {
	if endpoint == "" {
		endpoint = DefaultDuckDuckGoEndpoint
	}
	if numResults <= 0 {
		numResults = 5
	}
	if exec == nil {
		exec = llm.NewExecutor(llm.DefaultExecutorConfig(), logger)
	}
	return &DuckDuckGo{
		endpoint:   endpoint,
		numResults: numResults,
		httpClient: &http.Client{Timeout: timeout},
		executor:   exec,
		logger:     utils.LoggerOrNop(logger),
	}
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading        string     `json:"Heading"`
	AbstractText   string     `json:"AbstractText"`
	AbstractSource string     `json:"AbstractSource"`
	AbstractURL    string     `json:"AbstractURL"`
	Answer         string     `json:"Answer"`
	Definition     string     `json:"Definition"`
	RelatedTopics  []ddgTopic `json:"RelatedTopics"`
}

// Search implements Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	results, err := d.Results(ctx, query)
	if err != nil {
		return "", err
	}
	return JoinSnippets(results), nil
}

// Results returns up to numResults structured hits.
func (d *DuckDuckGo) Results(ctx context.Context, query string) ([]Result, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	u.RawQuery = q.Encode()

	var resp ddgResponse
	headers := map[string]string{"User-Agent": "kotae/1.0"}
	err = d.executor.Execute(ctx, "websearch:duckduckgo", func(ctx context.Context) error {
		resp = ddgResponse{}
		return llm.GetJSON(ctx, d.httpClient, u.String(), headers, &resp, "duckduckgo search")
	}, llm.ClassifyHTTPError)
	if err != nil {
		return nil, llm.WrapTemporary("duckduckgo search", err)
	}

	results := make([]Result, 0, d.numResults)
	if resp.Answer != "" {
		results = append(results, Result{Title: resp.Heading, Snippet: resp.Answer})
	}
	if resp.AbstractText != "" {
		results = append(results, Result{Title: resp.AbstractSource, URL: resp.AbstractURL, Snippet: resp.AbstractText})
	}
	if resp.Definition != "" && len(results) < d.numResults {
		results = append(results, Result{Title: resp.Heading, Snippet: resp.Definition})
	}
	results = appendTopics(results, resp.RelatedTopics, d.numResults)
	if len(results) > d.numResults {
		results = results[:d.numResults]
	}
	d.logger.Debug("duckduckgo search", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

// appendTopics flattens topic groups depth-first until limit is reached.
func appendTopics(results []Result, topics []ddgTopic, limit int) []Result {
	for _, t := range topics {
		if len(results) >= limit {
			return results
		}
		if len(t.Topics) > 0 {
			results = appendTopics(results, t.Topics, limit)
			continue
		}
		if t.Text == "" {
			continue
		}
		title := t.Text
		if len(title) > 100 {
			title = utils.Truncate(title, 100)
		}
		results = append(results, Result{Title: title, URL: t.FirstURL, Snippet: t.Text})
	}
	return results
}
