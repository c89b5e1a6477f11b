package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	c.Set("a", "text/html", []byte("<p>chart</p>"))

	item, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "text/html", item.ContentType)
	assert.Equal(t, []byte("<p>chart</p>"), item.Data)
	assert.Equal(t, 1, c.Size())

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	defer c.Close()

	c.Set("a", "image/png", []byte{1})
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestCacheStatsAndClear(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	c.Set("a", "", nil)
	c.Set("b", "", nil)

	stats := c.Stats()
	assert.Equal(t, 2, stats["total_items"])
	assert.Equal(t, 2, stats["active_items"])
	assert.Equal(t, 60.0, stats["ttl_seconds"])

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestKeyIsStableAndSeparated(t *testing.T) {
	assert.Equal(t, Key("html", "S1", "9"), Key("html", "S1", "9"))
	assert.NotEqual(t, Key("html", "S1", "9"), Key("png", "S1", "9"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Len(t, Key("x"), 64)
}

func TestCacheMiddleware(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	metrics := monitoring.NewMetrics()

	calls := 0
	r := gin.New()
	r.GET("/chart", c.Middleware(metrics, func(ctx *gin.Context) (string, bool) {
		id := ctx.Query("student")
		return Key("chart", id), id != ""
	}), func(ctx *gin.Context) {
		calls++
		ctx.Data(http.StatusOK, "text/html; charset=utf-8", []byte("chart"))
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/chart?student=S1")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "chart", w.Body.String())

	w = get("/chart?student=S1")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "chart", w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	get("/chart")
	get("/chart")

	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(1), metrics.CacheHits.Load())
	assert.Equal(t, int64(1), metrics.CacheMisses.Load())
}

func TestCacheMiddlewareSkipsErrors(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()

	r := gin.New()
	r.GET("/chart", c.Middleware(nil, func(*gin.Context) (string, bool) {
		return Key("fixed"), true
	}), func(ctx *gin.Context) {
		ctx.String(http.StatusUnprocessableEntity, "no record")
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chart", nil))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	}
	assert.Equal(t, 0, c.Size())
}
