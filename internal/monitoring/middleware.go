package monitoring

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const slowRequestThreshold = 5 * time.Second

// MonitoringMiddleware records request metrics and logs each request
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)
		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, userAgent, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		if duration > slowRequestThreshold {
			logger.Warn("Slow Request", "method", method, "path", path, "duration_ms", duration.Milliseconds())
		}
	}
}

var suspiciousAgents = []string{
	"sqlmap", "nmap", "masscan", "zmap", "dirbuster",
	"gobuster", "nikto", "acunetix", "openvas", "nessus",
}

var injectionPatterns = []string{
	"union select", "union all", "drop table", "delete from", "';--", "/*",
}

// SecurityMonitoringMiddleware logs requests that look like scans or injection probes
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		details := make(map[string]interface{})

		query := c.Request.URL.RawQuery
		if unescaped, err := url.QueryUnescape(query); err == nil {
			query = unescaped
		}
		query = strings.ToLower(query)
		for _, p := range injectionPatterns {
			if strings.Contains(query, p) {
				details["type"] = "potential_sql_injection"
				details["query"] = c.Request.URL.RawQuery
				break
			}
		}

		ua := strings.ToLower(c.GetHeader("User-Agent"))
		for _, agent := range suspiciousAgents {
			if strings.Contains(ua, agent) {
				details["type"] = "suspicious_user_agent"
				details["user_agent"] = c.GetHeader("User-Agent")
				break
			}
		}

		if len(details) > 0 {
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), c.GetHeader("User-Agent"), details)
		}

		c.Next()
	}
}

// MetricsHandler serves the metrics snapshot
func MetricsHandler(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, metrics.GetStats())
	}
}
