// Package resilience provides the retry helper the gateway client uses for
// per-model attempts, patterned after gomind's resilience.Retry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMaxAttemptsExceeded wraps the last error once a retry budget runs out.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// RetryConfig configures exponential backoff with optional jitter.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// DelayOverride, when non-nil, lets fn's error dictate the next wait
	// (e.g. a server's Retry-After header) instead of the exponential
	// schedule. Returning ok=false falls back to the computed delay.
	DelayOverride func(err error, attempt int) (wait time.Duration, ok bool)
}

// DefaultRetryConfig matches the gateway's per-model attempt budget: two
// tries, short backoff, since a failed primary slot falls over to its
// fallback rather than waiting out a long retry schedule.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// ShouldRetry decides, given an error, whether another attempt is worth
// making. Retry stops early when fn returns a non-retryable error.
type ShouldRetry func(err error) bool

// Retry executes fn up to config.MaxAttempts times, backing off
// exponentially between attempts, and stops early if shouldRetry is
// non-nil and returns false for the error fn produced.
func Retry(ctx context.Context, config *RetryConfig, shouldRetry ShouldRetry, fn func(attempt int) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(attempt); err == nil {
			return nil
		} else {
			lastErr = err
			if shouldRetry != nil && !shouldRetry(err) {
				return err
			}
		}

		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		wait := delay
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			wait += jitter
		}
		if config.DelayOverride != nil {
			if override, ok := config.DelayOverride(lastErr, attempt); ok {
				wait = override
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%d attempts exhausted: %w: %w", config.MaxAttempts, ErrMaxAttemptsExceeded, lastErr)
}
