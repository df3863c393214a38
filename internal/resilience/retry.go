package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds retry attempts with exponential backoff.
type RetryPolicy struct {
	// Attempts is the total number of tries including the first. Default 3.
	Attempts int
	// Backoff is the delay before the first retry. Default 500ms.
	Backoff time.Duration
	// MaxBackoff caps a single delay. Default 10s.
	MaxBackoff time.Duration
	// Retryable overrides IsTransient.
	Retryable func(error) bool
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns the policy used for enrichment calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// delay returns the sleep before retry n (0-based) with up to 25% jitter.
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.Backoff << n
	if d <= 0 || d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(d)/4 + 1))
	return d - jitter
}

// Retry runs fn until it succeeds, returns a non-retryable error, the
// context ends, or attempts run out. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts-1 {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		t := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
	return zero, err
}

// LogRetries returns an OnRetry callback that logs through zap.
func LogRetries(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
