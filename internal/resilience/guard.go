package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// GuardConfig configures a Guard.
type GuardConfig struct {
	Name string
	// RequestsPerSecond caps call rate; zero disables limiting.
	RequestsPerSecond float64
	FailureThreshold  int
	Cooldown          time.Duration
	Retry             RetryPolicy
}

// Guard wraps one backend with a rate limiter, a breaker and retries. Each
// retry attempt waits on the limiter and passes through the breaker.
type Guard struct {
	limiter *rate.Limiter
	breaker *Breaker
	retry   RetryPolicy
}

// NewGuard creates a Guard from cfg.
func NewGuard(cfg GuardConfig) *Guard {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	retry := cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = LogRetries(cfg.Name, "call")
	}
	return &Guard{
		limiter: rate.NewLimiter(limit, 1),
		breaker: NewBreaker(cfg.Name, cfg.FailureThreshold, cfg.Cooldown),
		retry:   retry,
	}
}

// Breaker exposes the guard's breaker for status reporting.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Call runs fn under the guard.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := g.retry
	base := retry.normalized().Retryable
	retry.Retryable = func(err error) bool {
		return !eris.Is(err, ErrBreakerOpen) && base(err)
	}
	return Retry(ctx, retry, func(ctx context.Context) (T, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, eris.Wrap(err, "resilience: rate limit wait")
		}
		return Run(ctx, g.breaker, fn)
	})
}
