// Package retry provides bounded retry loops with pluggable backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffFunc returns the delay to wait after the given failed attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// ErrorClassifier determines if an error is retryable.
type ErrorClassifier func(error) bool

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// Backoff computes the wait between attempts. Nil means no wait.
	Backoff BackoffFunc
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Sleep overrides the wait implementation (tests use a no-op).
	Sleep SleepFunc
}

// Exponential returns min(base^(attempt-1), maxWait) seconds with symmetric
// jitter of +/- jitterFraction.
func Exponential(base float64, maxWait time.Duration, jitterFraction float64) BackoffFunc {
	return func(attempt int) time.Duration {
		wait := time.Duration(math.Pow(base, float64(attempt-1)) * float64(time.Second))
		if wait > maxWait || wait <= 0 {
			wait = maxWait
		}
		return wait + jitter(wait, jitterFraction)
	}
}

// Linear returns delay * attempt.
func Linear(delay time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return delay * time.Duration(attempt)
	}
}

// Fixed returns the same delay after every attempt.
func Fixed(delay time.Duration) BackoffFunc {
	return func(int) time.Duration {
		return delay
	}
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. fn receives the 1-based attempt number.
func Do(ctx context.Context, cfg Config, classifier ErrorClassifier, fn func(ctx context.Context, attempt int) error) error {
	if classifier == nil {
		classifier = func(error) bool { return true }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	maxAttempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !classifier(err) {
			return err
		}

		// Last attempt, don't sleep
		if attempt == maxAttempts {
			break
		}

		var wait time.Duration
		if cfg.Backoff != nil {
			wait = cfg.Backoff(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// Sleep waits for d or returns early if the context is canceled.
func Sleep(ctx context.Context, d time.Duration) error {
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

// jitter returns a random duration in range [-fraction*d, +fraction*d].
func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return 0
	}
	jitterRange := float64(d) * fraction
	return time.Duration((rand.Float64() - 0.5) * 2 * jitterRange)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
