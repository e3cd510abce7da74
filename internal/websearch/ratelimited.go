package websearch

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an inner Searcher.
type RateLimited struct {
	inner   Searcher
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond searches with the given burst.
func NewRateLimited(inner Searcher, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Search waits for a token, then delegates. A cancelled wait returns the context error.
func (r *RateLimited) Search(ctx context.Context, query string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.Search(ctx, query)
}
