// Package retry provides a generic retry executor with pluggable backoff
// strategies. Retryability decisions defer to the error taxonomy.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	cherr "github.com/chronolab/chrono/pkg/errors"
)

// Strategy defines retry strategy interface
type Strategy interface {
	NextDelay(attempt int) time.Duration
	ShouldRetry(attempt int, err error) bool
}

// Config defines retry configuration
type Config struct {
	MaxAttempts int
	Strategy    Strategy
	Jitter      float64
	OnRetry     func(attempt int, err error)
}

// ExponentialBackoff implements exponential backoff strategy
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextDelay calculates next delay for exponential backoff
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialDelay) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxDelay) {
		return e.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry consults the taxonomy; unknown errors default to retry.
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) bool {
	if rerr, ok := err.(*cherr.ResearchError); ok {
		return rerr.ShouldRetry()
	}
	return true
}

// LinearBackoff implements constant-delay backoff.
type LinearBackoff struct {
	Delay time.Duration
}

// NextDelay returns constant delay for linear backoff
func (l *LinearBackoff) NextDelay(attempt int) time.Duration {
	return l.Delay
}

// ShouldRetry consults the taxonomy; unknown errors default to retry.
func (l *LinearBackoff) ShouldRetry(attempt int, err error) bool {
	if rerr, ok := err.(*cherr.ResearchError); ok {
		return rerr.ShouldRetry()
	}
	return true
}

// Do executes operation with retry logic. MaxAttempts counts the first
// attempt, so MaxAttempts=3 means at most two retries.
func Do[T any](ctx context.Context, operation func() (T, error), config Config) (T, error) {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == config.MaxAttempts-1 || !config.Strategy.ShouldRetry(attempt, err) {
			break
		}

		delay := config.Strategy.NextDelay(attempt)
		if config.Jitter > 0 {
			delay = applyJitter(delay, config.Jitter)
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	var zero T
	return zero, lastErr
}

// applyJitter adds random jitter to delay
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	jitter := float64(delay) * jitterFactor
	randomJitter := (rand.Float64() - 0.5) * 2 * jitter
	finalDelay := float64(delay) + randomJitter
	if finalDelay < 0 {
		return 0
	}
	return time.Duration(finalDelay)
}

// Generation is the standard policy for structured generation calls:
// one attempt plus two retries with exponential backoff.
func Generation() Config {
	return Config{
		MaxAttempts: 3,
		Strategy: &ExponentialBackoff{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
		Jitter: 0.2,
	}
}

// Search is the standard policy for search calls.
func Search() Config {
	return Config{
		MaxAttempts: 3,
		Strategy:    &LinearBackoff{Delay: 200 * time.Millisecond},
		Jitter:      0.1,
	}
}
