package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled is returned by Ping when no Redis connection is held.
var ErrRedisDisabled = errors.New("redis is disabled")

// RedisOptions selects the Redis instance that shares login counters between
// server replicas. An empty Addr disables Redis.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// RedisClient holds the connection used by the distributed limiter. The zero
// value is a disabled client, which keeps limiting in memory.
type RedisClient struct {
	client *redis.Client
	addr   string
}

// NewRedisClient dials Redis and checks it with a ping. When Addr is empty the
// client is disabled and no error is returned. When the ping fails the client is
// disabled and the error is returned so the caller can retry or log it.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if opts.Addr == "" {
		return &RedisClient{}, nil
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.PingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     8,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return &RedisClient{addr: opts.Addr}, fmt.Errorf("redis %s: %w", opts.Addr, err)
	}

	slog.Info("Redis connected for login rate limiting", "addr", opts.Addr, "db", opts.DB)
	return &RedisClient{client: client, addr: opts.Addr}, nil
}

// IsEnabled reports whether a live connection is held.
func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.client != nil
}

// Client exposes the connection to redis_rate.
func (r *RedisClient) Client() *redis.Client {
	if !r.IsEnabled() {
		return nil
	}
	return r.client
}

// Ping backs the non-critical redis health probe.
func (r *RedisClient) Ping(ctx context.Context) error {
	if !r.IsEnabled() {
		return ErrRedisDisabled
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	if !r.IsEnabled() {
		return nil
	}
	return r.client.Close()
}

// GetPoolStats reports the connection pool for /metrics.
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	if !r.IsEnabled() {
		return map[string]interface{}{"enabled": false, "addr": r.addrOrEmpty()}
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"timeouts":    stats.Timeouts,
	}
}

func (r *RedisClient) addrOrEmpty() string {
	if r == nil {
		return ""
	}
	return r.addr
}
