package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/ZanzyTHEbar/gradewatch/internal/resilience"
	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	IPLimit         int // requests per minute per client IP
	LoginLimit      int // login attempts per minute per client IP
	CleanupInterval time.Duration
	MaxFallbackKeys int
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		IPLimit:         120,
		LoginLimit:      10,
		CleanupInterval: time.Hour,
		MaxFallbackKeys: 10000,
	}
}

// Rate is a number of events allowed per period
type Rate struct {
	Limit  int
	Period time.Duration
}

// PerMinute returns a Rate of n events per minute
func PerMinute(n int) Rate {
	return Rate{Limit: n, Period: time.Minute}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter uses Redis when available and an in-memory token bucket otherwise
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	breaker      *resilience.CircuitBreaker
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*rate.Limiter
	fallbackMutex    sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts the fallback cleanup loop
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.MaxFallbackKeys <= 0 {
		config.MaxFallbackKeys = 10000
	}

	rl := &RateLimiter{
		redisClient:      redisClient,
		breaker:          resilience.NewCircuitBreaker("redis-ratelimit", resilience.BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second}),
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*rate.Limiter),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.Client())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupFallbackLimiters()

	return rl
}

// Close stops the cleanup loop
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// AllowIP checks the general per-IP limit
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.Allow(ctx, "ratelimit:ip:"+ip, PerMinute(rl.config.IPLimit))
}

// AllowLogin checks the per-IP login attempt limit
func (rl *RateLimiter) AllowLogin(ctx context.Context, ip string) (*Result, error) {
	return rl.Allow(ctx, loginKey(ip), PerMinute(rl.config.LoginLimit))
}

// ResetLogin clears the login counter for ip after a successful login
func (rl *RateLimiter) ResetLogin(ctx context.Context, ip string) error {
	return rl.Reset(ctx, loginKey(ip))
}

func loginKey(ip string) string {
	return "ratelimit:login:" + ip
}

// Allow consumes one event for key under r
func (rl *RateLimiter) Allow(ctx context.Context, key string, r Rate) (*Result, error) {
	if r.Limit <= 0 || r.Period <= 0 {
		return nil, fmt.Errorf("invalid rate %d/%s", r.Limit, r.Period)
	}

	if rl.redisLimiter != nil && rl.redisClient.IsEnabled() {
		var result *Result
		err := rl.breaker.Call(func() error {
			var err error
			result, err = rl.allowRedis(ctx, key, r)
			return err
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, resilience.ErrBreakerOpen) {
			slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitRedisError()
			}
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, r), nil
}

// Reset forgets all consumed events for key
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	rl.fallbackMutex.Lock()
	delete(rl.fallbackLimiters, key)
	rl.fallbackMutex.Unlock()

	if rl.redisLimiter != nil && rl.redisClient.IsEnabled() {
		if err := rl.redisLimiter.Reset(ctx, key); err != nil {
			return fmt.Errorf("redis rate limit reset failed: %w", err)
		}
	}
	return nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, r Rate) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   r.Limit,
		Burst:  r.Limit,
		Period: r.Period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (rl *RateLimiter) allowFallback(key string, r Rate) *Result {
	rl.fallbackMutex.Lock()
	limiter, exists := rl.fallbackLimiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(float64(r.Limit)/r.Period.Seconds()), r.Limit)
		rl.fallbackLimiters[key] = limiter
	}
	rl.fallbackMutex.Unlock()

	now := time.Now()
	allowed := limiter.AllowN(now, 1)

	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	perToken := r.Period / time.Duration(r.Limit)
	result := &Result{
		Allowed:   allowed,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(r.Limit-remaining) * perToken),
	}
	if !allowed {
		result.RetryAfter = perToken
	}
	return result
}

func (rl *RateLimiter) cleanupFallbackLimiters() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup drops every fallback bucket once the map grows past MaxFallbackKeys
func (rl *RateLimiter) cleanup() {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	if len(rl.fallbackLimiters) > rl.config.MaxFallbackKeys {
		slog.Info("Cleaning up fallback rate limiters", "count", len(rl.fallbackLimiters))
		rl.fallbackLimiters = make(map[string]*rate.Limiter)
	}
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": fallbackCount,
		"ip_limit":          rl.config.IPLimit,
		"login_limit":       rl.config.LoginLimit,
	}

	if rl.redisClient.IsEnabled() {
		stats["redis_pool"] = rl.redisClient.GetPoolStats()
		stats["redis_breaker"] = rl.breaker.Stats()
	}

	return stats
}
