package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("redis", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Call(fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	calls := 0
	err := cb.Call(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Zero(t, calls)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Call(ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(1), cb.Stats()["opens"])
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("redis", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errBoom })
	now = now.Add(time.Second)
	_ = cb.Call(func() error { return errBoom })

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrBreakerOpen)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.Stats()["state"])
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

	t.Run("succeeds after failures", func(t *testing.T) {
		var attempts int32
		err := Retry(context.Background(), "test", cfg, func() error {
			if atomic.AddInt32(&attempts, 1) < 3 {
				return errBoom
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, int32(3), attempts)
	})

	t.Run("returns last error", func(t *testing.T) {
		var attempts int32
		err := Retry(context.Background(), "test", cfg, func() error {
			atomic.AddInt32(&attempts, 1)
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, int32(3), attempts)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		c := cfg
		c.Retryable = func(error) bool { return false }
		var attempts int32
		err := Retry(context.Background(), "test", c, func() error {
			atomic.AddInt32(&attempts, 1)
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, int32(1), attempts)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Retry(ctx, "test", cfg, func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, backoff(cfg, 0))
	assert.Equal(t, 2*time.Second, backoff(cfg, 1))
	assert.Equal(t, 3*time.Second, backoff(cfg, 5))
}

func TestHealthMonitorLevels(t *testing.T) {
	var redisErr, dbErr error
	hm := NewHealthMonitor(time.Second)
	hm.Register("database", true, func(context.Context) error { return dbErr })
	hm.Register("redis", false, func(context.Context) error { return redisErr })

	report := hm.Check(context.Background())
	assert.Equal(t, LevelHealthy, report.Status)
	require.Len(t, report.Components, 2)
	assert.Equal(t, "database", report.Components[0].Name)

	redisErr = errBoom
	report = hm.Check(context.Background())
	assert.Equal(t, LevelDegraded, report.Status)
	assert.Equal(t, "boom", report.Components[1].Message)
	assert.Equal(t, int64(1), report.Components[1].Failures)

	dbErr = errBoom
	report = hm.Check(context.Background())
	assert.Equal(t, LevelDown, report.Status)

	redisErr, dbErr = nil, nil
	report = hm.Check(context.Background())
	assert.Equal(t, LevelHealthy, report.Status)
	assert.Zero(t, report.Components[1].Failures)
}

func TestHealthMonitorProbeTimeout(t *testing.T) {
	hm := NewHealthMonitor(10 * time.Millisecond)
	hm.Register("model", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := hm.Check(context.Background())
	assert.Equal(t, LevelDown, report.Status)
	assert.Contains(t, report.Components[0].Message, "deadline")
}
