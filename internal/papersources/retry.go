package papersources

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// BackoffFunc computes the delay before the retry that follows the given
// zero-based attempt.
type BackoffFunc func(base time.Duration, attempt int) time.Duration

// JitterFunc returns a random extra delay added to each backoff.
type JitterFunc func() time.Duration

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy describes how an operation is retried.
// The zero value runs the operation once.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the unit passed to Backoff.
	BaseDelay time.Duration

	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay time.Duration

	// Backoff computes the delay per attempt. Defaults to ConstantBackoff.
	Backoff BackoffFunc

	// Jitter adds randomness to each delay. Nil means no jitter.
	Jitter JitterFunc

	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error except context cancellation.
	Retryable func(error) bool

	// Sleep waits between attempts. Defaults to a timer honoring ctx.
	Sleep SleepFunc
}

// ConstantBackoff waits base between every attempt.
func ConstantBackoff(base time.Duration, _ int) time.Duration {
	return base
}

// LinearBackoff waits base*(attempt+1).
func LinearBackoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt+1)
}

// ExponentialBackoff waits base*2^attempt.
func ExponentialBackoff(base time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return base * time.Duration(1<<uint(attempt))
}

// UniformJitter returns a JitterFunc drawing uniformly from [0, max).
func UniformJitter(max time.Duration) JitterFunc {
	if max <= 0 {
		return nil
	}
	return func() time.Duration {
		return rand.N(max)
	}
}

// Delay returns the wait after the given zero-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff == nil {
		backoff = ConstantBackoff
	}
	d := backoff(p.BaseDelay, attempt)
	if p.Jitter != nil {
		d += p.Jitter()
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Attempts returns the effective number of attempts (at least 1).
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error
	max := p.Attempts()

	for attempt := 0; attempt < max; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempt, lastErr
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if !p.retryable(lastErr) || attempt == max-1 {
			return attempt + 1, lastErr
		}
		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return attempt + 1, lastErr
		}
	}

	return max, lastErr
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for the specified duration, respecting context cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
