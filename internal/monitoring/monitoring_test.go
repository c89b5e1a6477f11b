package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.IncrementRequest()
	m.IncrementRequest()
	m.IncrementError()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementCacheMiss()
	m.RecordLogin(true)
	m.RecordLogin(false)
	m.RecordAnalysis(true)
	m.IncrementRateLimitBlock()

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["total_requests"])
	assert.Equal(t, int64(1), stats["error_count"])
	assert.InDelta(t, 50.0, stats["error_rate_percent"], 1e-9)
	assert.InDelta(t, 100.0/3, stats["cache_hit_rate_percent"], 1e-9)
	assert.Equal(t, int64(1), stats["login_successes"])
	assert.Equal(t, int64(1), stats["login_failures"])
	assert.Equal(t, int64(1), stats["analyses"])
	assert.Equal(t, int64(1), m.GetRateLimitStats()["blocks"])

	m.Reset()
	assert.Equal(t, int64(0), m.GetStats()["total_requests"])
	assert.Empty(t, m.GetStatusCodeDistribution())
}

func TestPercentileResponseTime(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.GetPercentileResponseTime(50))

	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))
}

func TestResponseTimeSampleIsBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < responseSampleSize+10; i++ {
		m.RecordResponseTime(time.Millisecond)
	}
	assert.Len(t, m.samples, responseSampleSize)
}

func TestMonitoringMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)
	metrics := NewMetrics()

	r := gin.New()
	r.Use(MonitoringMiddleware(metrics, logger))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.String(http.StatusInternalServerError, "fail")
	})

	for _, path := range []string{"/ok", "/fail"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, map[int]int64{200: 1, 500: 1}, metrics.GetStatusCodeDistribution())
	assert.Equal(t, int64(1), metrics.GetStats()["error_count"])
	assert.Contains(t, buf.String(), `"msg":"HTTP Request"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestSecurityMonitoringMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)

	r := gin.New()
	r.Use(SecurityMonitoringMiddleware(logger))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/?q=1%20UNION%20SELECT%20password", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Contains(t, buf.String(), "potential_sql_injection")

	buf.Reset()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), "suspicious_user_agent")

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, buf.String())
}

func TestMetricsHandler(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordAnalysis(false)

	r := gin.New()
	r.GET("/metrics", MetricsHandler(metrics))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["analysis_failures"])
}

func TestLoginLoggerNeverMarksFailureAsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)

	logger.LoginLogger("ivanov", "10.0.0.1", "", false)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), "Login Failed")
}
