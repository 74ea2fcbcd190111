package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff maps a zero-based attempt number to the delay before the next
// attempt.
type Backoff func(attempt int) time.Duration

// Exponential doubles the base delay on every attempt: base, 2*base,
// 4*base, ...
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base << uint(attempt)
	}
}

// Linear grows the delay by one base step per attempt: base, 2*base,
// 3*base, ...
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt+1)
	}
}

// Do runs fn up to maxAttempts times, sleeping per backoff between
// attempts. Only errors for which retryable returns true are retried;
// anything else propagates immediately. A nil retryable retries every
// error. The context cancels the sleep, not a running fn.
func Do(ctx context.Context, maxAttempts int, backoff Backoff, retryable func(error) bool, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		var delay time.Duration
		if backoff != nil {
			delay = backoff(attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}
