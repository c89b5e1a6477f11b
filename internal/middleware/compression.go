package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // smallest body worth compressing, in bytes
	CompressionLevel int      // gzip level, 1-9
	ContentTypes     []string // content types eligible for compression
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
			"image/svg+xml",
		},
	}
}

// CompressionMiddleware gzips eligible responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler buffers the response and gzips it on the way out when the client
// accepts gzip and the body is large enough.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead || !clientAcceptsGzip(c.Request) {
			c.Next()
			return
		}

		original := c.Writer
		bw := &bufferedWriter{ResponseWriter: original, status: http.StatusOK}
		c.Writer = bw
		defer func() { c.Writer = original }()

		c.Next()

		body := bw.buf.Bytes()
		header := original.Header()

		if !cm.eligible(header, len(body)) {
			cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
			bw.flushPlain()
			return
		}

		var compressed bytes.Buffer
		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(&compressed)
		_, werr := gz.Write(body)
		cerr := gz.Close()
		cm.pool.Put(gz)
		if werr != nil || cerr != nil {
			cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
			bw.flushPlain()
			return
		}

		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		header.Set("Content-Length", strconv.Itoa(compressed.Len()))
		original.WriteHeader(bw.status)
		_, _ = original.Write(compressed.Bytes())

		cm.stats.RecordRequest(int64(len(body)), int64(compressed.Len()), true)
	}
}

func clientAcceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (cm *CompressionMiddleware) eligible(header http.Header, size int) bool {
	if size < cm.config.MinSize || header.Get("Content-Encoding") != "" {
		return false
	}
	contentType := header.Get("Content-Type")
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// bufferedWriter holds status and body until the middleware decides how to send them
type bufferedWriter struct {
	gin.ResponseWriter
	buf     bytes.Buffer
	status  int
	written bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {
	w.written = true
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	if !w.written {
		return -1
	}
	return w.buf.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.written
}

// Flush is a no-op; buffered responses are sent whole.
func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) flushPlain() {
	w.ResponseWriter.WriteHeader(w.status)
	if w.buf.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.buf.Bytes())
	} else if w.written {
		w.ResponseWriter.WriteHeaderNow()
	}
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
}

// RecordRequest records a response's sizes
func (cs *CompressionStats) RecordRequest(originalSize, sentSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalRequests, 1)
	atomic.AddInt64(&cs.TotalBytes, originalSize)
	if compressed {
		atomic.AddInt64(&cs.CompressedRequests, 1)
	}
	atomic.AddInt64(&cs.CompressedBytes, sentSize)
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := atomic.LoadInt64(&cs.TotalBytes)
	sent := atomic.LoadInt64(&cs.CompressedBytes)

	ratio := float64(1)
	if total > 0 {
		ratio = float64(sent) / float64(total)
	}

	return map[string]interface{}{
		"total_requests":      atomic.LoadInt64(&cs.TotalRequests),
		"compressed_requests": atomic.LoadInt64(&cs.CompressedRequests),
		"total_bytes":         total,
		"sent_bytes":          sent,
		"compression_ratio":   ratio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
