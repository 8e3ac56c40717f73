package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsFirstTry(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	calls := 0
	err := Retry(context.Background(), cfg, nil, func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	sentinel := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), cfg, nil, func(attempt int) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestRetryStopsEarlyWhenShouldRetryReturnsFalse(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2}
	fatal := errors.New("fatal")
	calls := 0
	err := Retry(context.Background(), cfg, func(error) bool { return false }, func(attempt int) error {
		calls++
		return fatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, cfg, nil, func(attempt int) error {
		return errors.New("never succeeds")
	})
	require.Error(t, err)
}
