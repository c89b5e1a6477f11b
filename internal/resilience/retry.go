package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	JitterEnabled bool          `json:"jitter_enabled"`
	// Retryable decides whether an error is worth another attempt. Nil retries
	// everything except context cancellation.
	Retryable func(error) bool `json:"-"`
}

// DefaultRetryConfig suits connecting to local dependencies at startup
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error is returned.
func Retry(ctx context.Context, name string, config RetryConfig, fn func() error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == config.MaxAttempts-1 {
			break
		}

		delay := backoff(config, attempt)
		slog.Warn("Retrying after failure",
			"operation", name,
			"attempt", attempt+1,
			"max_attempts", config.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func backoff(config RetryConfig, attempt int) time.Duration {
	factor := config.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(factor, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.JitterEnabled && delay >= 10 {
		delay += time.Duration(rand.Int63n(int64(delay / 10)))
	}
	return delay
}
