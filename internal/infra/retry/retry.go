// Package retry is the single retryable-operation wrapper shared by the
// session negotiator and the tool invocation client. Call sites configure
// attempts, backoff, and retryability; the loop itself lives here once.
package retry

import (
	"context"
	"time"
)

// Policy parameterizes one retryable operation.
type Policy struct {
	// MaxAttempts caps total attempts, first try included. Values below 1
	// mean a single attempt.
	MaxAttempts int

	// Backoff returns how long to sleep before re-running after the given
	// 1-based attempt failed. Nil means no sleep.
	Backoff func(attempt int, err error) time.Duration

	// Retryable decides whether the error is worth another attempt. Nil
	// retries everything until attempts run out.
	Retryable func(err error) bool

	// OnRetry runs before each re-attempt, after the backoff sleep. The
	// attempt number is the one about to run.
	OnRetry func(ctx context.Context, attempt int, lastErr error)
}

// Sleep is the context-aware pause used between attempts. Overridable in
// tests to record backoff without waiting.
type Sleep func(ctx context.Context, d time.Duration) error

func RealSleep(ctx context.Context, d time.Duration) error {
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

// Do runs op under the policy and returns the first success or the last
// error once attempts are exhausted. The operation receives the 1-based
// attempt number.
func Do[T any](ctx context.Context, policy Policy, sleep Sleep, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if sleep == nil {
		sleep = RealSleep
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			break
		}
		if policy.Backoff != nil {
			if sleepErr := sleep(ctx, policy.Backoff(attempt, err)); sleepErr != nil {
				return zero, sleepErr
			}
		}
		if policy.OnRetry != nil {
			policy.OnRetry(ctx, attempt+1, err)
		}
	}
	return zero, lastErr
}
