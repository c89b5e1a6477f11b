package security

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxInputLength int
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxInputLength: 128,
		AllowedOrigins: []string{"http://localhost:8080"},
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   16 << 10,
	}
}

// SecurityMiddleware bundles the request guards configured by SecurityConfig
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// ValidateInput checks a single free-text field such as a login or student id
func (sm *SecurityMiddleware) ValidateInput(input string) error {
	if len(input) > sm.config.MaxInputLength {
		return fmt.Errorf("input exceeds maximum length of %d characters", sm.config.MaxInputLength)
	}

	if strings.ContainsRune(input, 0) {
		return fmt.Errorf("input contains invalid characters")
	}

	if !utf8.ValidString(input) {
		return fmt.Errorf("input contains invalid UTF-8 encoding")
	}

	for _, r := range input {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("input contains control characters")
		}
	}

	return nil
}

// ValidateContentType rejects request bodies that are not JSON or form data
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
		c.Next()
		return
	}

	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType != "" {
		allowed := []string{
			"application/json",
			"application/x-www-form-urlencoded",
			"multipart/form-data",
		}

		found := false
		for _, a := range allowed {
			if strings.Contains(contentType, a) {
				found = true
				break
			}
		}

		if !found {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content type",
			})
			return
		}
	}

	if sm.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}

	c.Next()
}

// RequestTimeout bounds the request context
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORS returns the cross-origin policy for the JSON API
func (sm *SecurityMiddleware) CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
