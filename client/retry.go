package client

import (
	"context"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

// RetryPolicy controls how transient failures are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the first retry; it doubles on each retry.
	BaseDelay time.Duration
}

// DefaultRetryPolicy allows three retries, waiting 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay}
}

// Delay returns the wait before retry number attempt+1 (attempt is 0-based).
// No jitter is applied.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base < 0 {
		base = 0
	}
	return base << attempt
}

// ShouldRetry reports whether a failure on the given 0-based attempt is
// followed by another attempt.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	return err != nil && IsRetryable(err) && attempt < p.MaxRetries
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
