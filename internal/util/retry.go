package util

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy bounds how often and how patiently an operation is retried.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the pause after the given failed attempt (0-indexed).
	// A nil Backoff retries immediately.
	Backoff func(attempt int) time.Duration
}

// ConstantBackoff waits d between every attempt.
func ConstantBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff waits base, 2*base, 4*base, ...
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(1<<attempt) * base
	}
}

// NoDelay is a policy with the given attempt count and no pauses, for tests.
func NoDelay(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

// Do calls fn up to MaxAttempts times (at least once) until it returns nil.
// fn receives the current attempt number (0-indexed).
// If the context is cancelled, Do returns the context error immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		// Don't wait after the last attempt
		if attempt == attempts-1 {
			break
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
