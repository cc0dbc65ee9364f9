package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// BreakerFetcher guards a slow or flaky fetcher behind a circuit breaker.
// While the breaker is open, fetches fail fast with the breaker's error
// and the pipeline degrades the pillar instead of hanging the run.
type BreakerFetcher struct {
	next    Fetcher
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerFetcher wraps next with a circuit breaker. Trips after five
// consecutive failures, holds open for timeout.
func NewBreakerFetcher(next Fetcher, name string, timeout time.Duration) *BreakerFetcher {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerFetcher{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (f *BreakerFetcher) Fetch(ctx context.Context, pillar string) ([]Source, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		sources, err := f.next.Fetch(ctx, pillar)
		if errors.Is(err, ErrMissingSource) {
			// A missing pillar is an expected outcome, not a fetcher
			// fault; it must not trip the breaker.
			return []Source(nil), nil
		}
		return sources, err
	})
	if err != nil {
		return nil, err
	}
	sources := result.([]Source)
	if len(sources) == 0 {
		return nil, ErrMissingSource
	}
	return sources, nil
}

// ThrottledFetcher paces fetches through a token bucket so bursts of
// pillar loads do not hammer a shared upstream.
type ThrottledFetcher struct {
	next    Fetcher
	limiter *rate.Limiter
}

// NewThrottledFetcher wraps next with an rps-limited token bucket.
func NewThrottledFetcher(next Fetcher, rps float64, burst int) *ThrottledFetcher {
	return &ThrottledFetcher{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (f *ThrottledFetcher) Fetch(ctx context.Context, pillar string) ([]Source, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return f.next.Fetch(ctx, pillar)
}
