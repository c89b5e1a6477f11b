package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// LimitedHandler renders the response for a rejected request
type LimitedHandler func(c *gin.Context, result *Result)

// JSONLimited is the default LimitedHandler for API routes
func JSONLimited(c *gin.Context, result *Result) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate limit exceeded",
		"retry_after": retryAfterSeconds(result),
		"reset_at":    result.ResetAt.Unix(),
	})
}

// IPRateLimitMiddleware applies the general per-IP limit
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("ip", rl.AllowIP, JSONLimited)
}

// LoginRateLimitMiddleware applies the login attempt limit. onLimited renders the rejection.
func (rl *RateLimiter) LoginRateLimitMiddleware(onLimited LimitedHandler) gin.HandlerFunc {
	if onLimited == nil {
		onLimited = JSONLimited
	}
	return rl.middleware("login", rl.AllowLogin, onLimited)
}

func (rl *RateLimiter) middleware(scope string, allow func(ctx context.Context, ip string) (*Result, error), onLimited LimitedHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		result, err := allow(c.Request.Context(), ip)
		if err != nil {
			// Limiter failure must not lock users out.
			slog.Error("Rate limit check failed", "scope", scope, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitBlock()
			}
			slog.Warn("Rate limit exceeded", "scope", scope, "ip", ip)
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
			onLimited(c, result)
			c.Abort()
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(result *Result) int {
	s := int(result.RetryAfter.Seconds())
	if s < 1 {
		s = 1
	}
	return s
}
