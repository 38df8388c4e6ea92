package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// rateLimited gates every call on a shared token bucket.
type rateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so calls are spread to at most requestsPerSecond, with
// bursts of up to burst calls. A non-positive rate returns p unchanged.
func WithRateLimit(p Provider, requestsPerSecond float64, burst int) Provider {
	if requestsPerSecond <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimited{next: p, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

func (r *rateLimited) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit wait: %w", err)
	}
	return r.next.Complete(ctx, systemPrompt, userPrompt, maxTokens, temperature)
}

// timeoutProvider bounds each call with its own deadline.
type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// WithTimeout wraps p so each call is cancelled after d. A non-positive d
// returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{next: p, timeout: d}
}

func (t *timeoutProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, systemPrompt, userPrompt, maxTokens, temperature)
}
