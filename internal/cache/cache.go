package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/gin-gonic/gin"
)

// CacheItem is a cached response body with its content type
type CacheItem struct {
	Data        []byte
	ContentType string
	ExpiresAt   time.Time
}

// IsExpired checks if the cache item has expired
func (c *CacheItem) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Cache is a thread-safe TTL map of rendered responses
type Cache struct {
	mu    sync.RWMutex
	items map[string]*CacheItem
	ttl   time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a cache with the given TTL and starts the expiry sweep
func NewCache(ttl time.Duration) *Cache {
	cache := &Cache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}

	go cache.cleanup(sweepInterval(ttl))

	return cache
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 5*time.Minute {
		return 5 * time.Minute
	}
	return ttl
}

// Close stops the expiry sweep
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if item.IsExpired() {
			delete(c.items, key)
		}
	}
}

// Key hashes parts into a fixed-length cache key
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a live item from the cache
func (c *Cache) Get(key string) (*CacheItem, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if item.IsExpired() {
		c.Delete(key)
		return nil, false
	}
	return item, true
}

// Set stores data under key for the cache TTL
func (c *Cache) Set(key, contentType string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem{
		Data:        data,
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(c.ttl),
	}
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheItem)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalItems := len(c.items)
	expiredItems := 0
	for _, item := range c.items {
		if item.IsExpired() {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// KeyFunc derives the cache key for a request. ok=false bypasses the cache.
type KeyFunc func(c *gin.Context) (key string, ok bool)

// Middleware serves cached 200 responses and stores fresh ones under keyFn's key
func (c *Cache) Middleware(metrics *monitoring.Metrics, keyFn KeyFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}

		key, ok := keyFn(ctx)
		if !ok {
			ctx.Next()
			return
		}

		if item, found := c.Get(key); found {
			slog.Debug("Cache hit", "key", key[:8]+"...")
			if metrics != nil {
				metrics.IncrementCacheHit()
			}
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, item.ContentType, item.Data)
			ctx.Abort()
			return
		}

		slog.Debug("Cache miss", "key", key[:8]+"...")
		if metrics != nil {
			metrics.IncrementCacheMiss()
		}

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Header("X-Cache", "MISS")
		ctx.Next()

		if wrapper.Status() == http.StatusOK && !ctx.IsAborted() {
			c.Set(key, wrapper.Header().Get("Content-Type"), wrapper.body.Bytes())
		}
	}
}

// StatsHandler serves Stats as JSON
func (c *Cache) StatsHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Stats())
	}
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
