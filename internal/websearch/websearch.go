// Package websearch is the live web search boundary used by the fallback branch.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/llm"
	"go.uber.org/zap"
)

// Searcher returns a free-text blob of result snippets. No results is "", nil.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Result is a single web hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// JoinSnippets joins non-empty snippets with blank lines.
func JoinSnippets(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if s := strings.TrimSpace(r.Snippet); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// New builds the configured provider behind a rate limiter.
func New(cfg config.WebSearchConfig, exec *llm.Executor, logger *zap.Logger) (Searcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var s Searcher
	switch cfg.Provider {
	case "duckduckgo", "":
		s = NewDuckDuckGo(cfg.Endpoint, cfg.NumResults, timeout, exec, logger)
	case "bing":
		b, err := NewBing(cfg.Endpoint, cfg.APIKey, cfg.NumResults, timeout, exec, logger)
		if err != nil {
			return nil, err
		}
		s = b
	default:
		return nil, fmt.Errorf("unknown web search provider: %s (supported: duckduckgo, bing)", cfg.Provider)
	}
	if cfg.RatePerSecond > 0 {
		s = NewRateLimited(s, cfg.RatePerSecond, 1)
	}
	return s, nil
}
