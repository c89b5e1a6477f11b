package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const responseSampleSize = 1000

// Metrics holds the process counters exposed on /metrics.
type Metrics struct {
	Requests         atomic.Int64
	Errors           atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
	LoginSuccesses   atomic.Int64
	LoginFailures    atomic.Int64
	Analyses         atomic.Int64
	AnalysisFailures atomic.Int64

	RateLimitBlocks      atomic.Int64
	RateLimitRedisErrors atomic.Int64
	RateLimitFallbacks   atomic.Int64

	avgResponse atomic.Int64 // nanoseconds, exponential
	started     atomic.Int64 // unix nanoseconds

	mu       sync.Mutex
	samples  []time.Duration // ring of the latest response times
	next     int
	byStatus map[int]int64
}

// NewMetrics creates a zeroed metrics set.
func NewMetrics() *Metrics {
	m := &Metrics{
		samples:  make([]time.Duration, 0, responseSampleSize),
		byStatus: make(map[int]int64),
	}
	m.started.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) IncrementRequest()   { m.Requests.Add(1) }
func (m *Metrics) IncrementError()     { m.Errors.Add(1) }
func (m *Metrics) IncrementCacheHit()  { m.CacheHits.Add(1) }
func (m *Metrics) IncrementCacheMiss() { m.CacheMisses.Add(1) }

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(success bool) {
	if success {
		m.LoginSuccesses.Add(1)
		return
	}
	m.LoginFailures.Add(1)
}

// RecordAnalysis counts a pipeline run.
func (m *Metrics) RecordAnalysis(success bool) {
	if success {
		m.Analyses.Add(1)
		return
	}
	m.AnalysisFailures.Add(1)
}

func (m *Metrics) IncrementRateLimitBlock()      { m.RateLimitBlocks.Add(1) }
func (m *Metrics) IncrementRateLimitRedisError() { m.RateLimitRedisErrors.Add(1) }
func (m *Metrics) IncrementRateLimitFallback()   { m.RateLimitFallbacks.Add(1) }

// RecordResponseTime feeds the moving average and the percentile sample.
func (m *Metrics) RecordResponseTime(d time.Duration) {
	for {
		cur := m.avgResponse.Load()
		next := d.Nanoseconds()
		if cur != 0 {
			next = (cur + next) / 2
		}
		if m.avgResponse.CompareAndSwap(cur, next) {
			break
		}
	}

	m.mu.Lock()
	if len(m.samples) < responseSampleSize {
		m.samples = append(m.samples, d)
	} else {
		m.samples[m.next] = d
		m.next = (m.next + 1) % responseSampleSize
	}
	m.mu.Unlock()
}

// RecordRequestByStatus counts a response by status code.
func (m *Metrics) RecordRequestByStatus(status int) {
	m.mu.Lock()
	m.byStatus[status]++
	m.mu.Unlock()
}

// GetPercentileResponseTime returns the p-th percentile of the sampled response times.
func (m *Metrics) GetPercentileResponseTime(p float64) time.Duration {
	m.mu.Lock()
	sorted := make([]time.Duration, len(m.samples))
	copy(sorted, m.samples)
	m.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p / 100.0)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// GetStatusCodeDistribution returns a copy of the per-status counters.
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]int64, len(m.byStatus))
	for code, n := range m.byStatus {
		out[code] = n
	}
	return out
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// GetStats snapshots every counter.
func (m *Metrics) GetStats() map[string]interface{} {
	requests := m.Requests.Load()
	errs := m.Errors.Load()
	hits, misses := m.CacheHits.Load(), m.CacheMisses.Load()
	started := time.Unix(0, m.started.Load())

	return map[string]interface{}{
		"uptime_seconds":         time.Since(started).Seconds(),
		"start_time":             started.Format(time.RFC3339),
		"total_requests":         requests,
		"error_count":            errs,
		"error_rate_percent":     percent(errs, requests),
		"cache_hits":             hits,
		"cache_misses":           misses,
		"cache_hit_rate_percent": percent(hits, hits+misses),
		"login_successes":        m.LoginSuccesses.Load(),
		"login_failures":         m.LoginFailures.Load(),
		"analyses":               m.Analyses.Load(),
		"analysis_failures":      m.AnalysisFailures.Load(),

		"avg_response_time_ms":     float64(m.avgResponse.Load()) / 1e6,
		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"rate_limit":               m.GetRateLimitStats(),
	}
}

// GetRateLimitStats returns the limiter counters.
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	return map[string]interface{}{
		"blocks":         m.RateLimitBlocks.Load(),
		"redis_errors":   m.RateLimitRedisErrors.Load(),
		"fallback_count": m.RateLimitFallbacks.Load(),
	}
}

// Reset clears all counters and restarts the uptime clock.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.Requests, &m.Errors, &m.CacheHits, &m.CacheMisses,
		&m.LoginSuccesses, &m.LoginFailures, &m.Analyses, &m.AnalysisFailures,
		&m.RateLimitBlocks, &m.RateLimitRedisErrors, &m.RateLimitFallbacks,
		&m.avgResponse,
	} {
		c.Store(0)
	}

	m.mu.Lock()
	m.samples = m.samples[:0]
	m.next = 0
	m.byStatus = make(map[int]int64)
	m.mu.Unlock()

	m.started.Store(time.Now().UnixNano())
}
