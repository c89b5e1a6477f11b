package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const nonceKey = "csp-nonce"

// GenerateNonce generates a cryptographically secure random nonce
func GenerateNonce() (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(nonceBytes), nil
}

// CSPMiddleware generates a per-request nonce and sets the page policy.
// Pages may frame same-origin chart documents but nothing may frame them.
func CSPMiddleware(reportURI string) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := GenerateNonce()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(nonceKey, nonce)

		policy := buildCSPPolicy(nonce)
		c.Header("Content-Security-Policy", policy)
		if reportURI != "" {
			c.Header("Content-Security-Policy-Report-Only", policy+"; report-uri "+reportURI)
		}

		c.Next()
	}
}

// ChartFramePolicy replaces the page policy for the embeddable chart document.
// The chart script is inline and pulls echarts from assetsHost, so both are allowed,
// and only same-origin pages may frame it.
func ChartFramePolicy(assetsHost string) gin.HandlerFunc {
	src := "'self'"
	if origin := assetOrigin(assetsHost); origin != "" {
		src += " " + origin
	}
	policy := "default-src 'self'; " +
		"script-src " + src + " 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"frame-ancestors 'self'; " +
		"base-uri 'self'"

	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", policy)
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Next()
	}
}

// GetNonce retrieves the nonce from the Gin context
func GetNonce(c *gin.Context) string {
	if nonce, exists := c.Get(nonceKey); exists {
		if nonceStr, ok := nonce.(string); ok {
			return nonceStr
		}
	}
	return ""
}

func buildCSPPolicy(nonce string) string {
	return fmt.Sprintf(
		"default-src 'self'; "+
			"script-src 'self' 'nonce-%s'; "+
			"style-src 'self' 'nonce-%s'; "+
			"img-src 'self' data:; "+
			"font-src 'self' data:; "+
			"connect-src 'self'; "+
			"frame-src 'self'; "+
			"frame-ancestors 'none'; "+
			"base-uri 'self'; "+
			"form-action 'self'",
		nonce, nonce,
	)
}

// assetOrigin reduces an asset URL to scheme://host for use in a policy.
func assetOrigin(host string) string {
	if host == "" {
		return ""
	}
	scheme := ""
	if i := strings.Index(host, "://"); i >= 0 {
		scheme, host = host[:i+3], host[i+3:]
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return ""
	}
	return scheme + host
}
