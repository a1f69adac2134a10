package storage

import (
	"context"
	"time"
)

// RetryPolicy bounds retries for transient transport errors.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the initial delay between attempts; it doubles per
	// attempt and is capped at 30 seconds.
	Delay time.Duration
}

// DefaultRetryPolicy matches the transport defaults used across adapters.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// Do runs fn up to MaxAttempts times with exponential backoff,
// returning nil on the first success and the last error otherwise.
// Context cancellation cuts the retry loop short.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.Delay
	if delay == 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}
