package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cherr "github.com/chronolab/chrono/pkg/errors"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts: maxAttempts,
		Strategy:    &LinearBackoff{Delay: time.Millisecond},
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", cherr.New(cherr.ErrRateLimit, "slow down")
		}
		return "ok", nil
	}, fastConfig(3))

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), func() (int, error) {
		attempts++
		return 0, cherr.New(cherr.ErrInvalidInput, "bad input")
	}, fastConfig(5))

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), func() (int, error) {
		attempts++
		return 0, cherr.New(cherr.ErrTimeout, "timeout")
	}, fastConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoRetriesUnknownErrors(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), func() (int, error) {
		attempts++
		return 0, errors.New("plain error")
	}, fastConfig(2))

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := Do(ctx, func() (int, error) {
		attempts++
		return 0, cherr.New(cherr.ErrTimeout, "timeout")
	}, Config{MaxAttempts: 5, Strategy: &LinearBackoff{Delay: time.Second}})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoInvokesOnRetry(t *testing.T) {
	var retries []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error) {
		retries = append(retries, attempt)
	}

	attempts := 0
	Do(context.Background(), func() (int, error) {
		attempts++
		return 0, cherr.New(cherr.ErrTimeout, "timeout")
	}, cfg)

	assert.Equal(t, []int{0, 1}, retries)
}

func TestExponentialBackoffCapsDelay(t *testing.T) {
	b := &ExponentialBackoff{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, b.NextDelay(0))
	assert.Equal(t, 2*time.Second, b.NextDelay(1))
	assert.Equal(t, 3*time.Second, b.NextDelay(5))
}
