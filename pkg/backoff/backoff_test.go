package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsWithinBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, nil, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	attempts := 0
	boom := errors.New("permanent transient")
	err := Retry(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, nil, func() error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	nonRetryable := errors.New("invalid request")
	attempts := 0
	err := Retry(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(error) bool {
		return false
	}, func() error {
		attempts++
		return nonRetryable
	})
	assert.ErrorIs(t, err, nonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, Config{MaxAttempts: 3, InitialDelay: time.Second}, nil, func() error {
		attempts++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
