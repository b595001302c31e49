package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped backend.
type RateLimited struct {
	next    Backend
	limiter *rate.Limiter
}

// NewRateLimited allows requestsPerMinute calls with the given burst. A
// non-positive rate returns next unwrapped.
func NewRateLimited(next Backend, requestsPerMinute float64, burst int) Backend {
	if requestsPerMinute <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60), burst),
	}
}

// Generate waits for a token, then delegates.
func (r *RateLimited) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return r.next.Generate(ctx, req)
}
