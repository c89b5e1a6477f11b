package resilience

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Level is the health of one component or of the whole service
type Level string

const (
	LevelHealthy  Level = "ok"
	LevelDegraded Level = "degraded"
	LevelDown     Level = "down"
)

// CheckFunc probes a component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// ComponentHealth is the last known state of a component
type ComponentHealth struct {
	Name      string    `json:"name"`
	Level     Level     `json:"level"`
	Critical  bool      `json:"critical"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Failures  int64     `json:"consecutive_failures"`
}

// Report aggregates every component. Status is down when a critical component
// is down and degraded when any other component is unhealthy.
type Report struct {
	Status     Level             `json:"status"`
	Components []ComponentHealth `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

type component struct {
	check    CheckFunc
	critical bool
	health   ComponentHealth
}

// HealthMonitor probes registered components on demand and in the background
type HealthMonitor struct {
	timeout time.Duration

	mu         sync.RWMutex
	components map[string]*component
}

// NewHealthMonitor returns a monitor whose probes time out after timeout
func NewHealthMonitor(timeout time.Duration) *HealthMonitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthMonitor{
		timeout:    timeout,
		components: make(map[string]*component),
	}
}

// Register adds a component. Critical components take the whole service down.
func (hm *HealthMonitor) Register(name string, critical bool, check CheckFunc) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.components[name] = &component{
		check:    check,
		critical: critical,
		health:   ComponentHealth{Name: name, Level: LevelHealthy, Critical: critical},
	}
	slog.Debug("Registered health check", "component", name, "critical", critical)
}

// Check probes every component now and returns the aggregated report
func (hm *HealthMonitor) Check(ctx context.Context) Report {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.components))
	for name := range hm.components {
		names = append(names, name)
	}
	hm.mu.RUnlock()
	sort.Strings(names)

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			hm.probe(ctx, name)
		}(name)
	}
	wg.Wait()

	return hm.Snapshot()
}

func (hm *HealthMonitor) probe(ctx context.Context, name string) {
	hm.mu.RLock()
	c, ok := hm.components[name]
	hm.mu.RUnlock()
	if !ok || c.check == nil {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()
	err := c.check(checkCtx)

	hm.mu.Lock()
	defer hm.mu.Unlock()

	prev := c.health.Level
	c.health.CheckedAt = time.Now()
	if err != nil {
		c.health.Failures++
		c.health.Message = err.Error()
		c.health.Level = LevelDegraded
		if c.critical {
			c.health.Level = LevelDown
		}
	} else {
		c.health.Failures = 0
		c.health.Message = ""
		c.health.Level = LevelHealthy
	}

	if prev != c.health.Level {
		slog.Warn("Component health changed",
			"component", name,
			"old_level", prev,
			"new_level", c.health.Level,
			"error", err)
	}
}

// Snapshot returns the last known state without probing
func (hm *HealthMonitor) Snapshot() Report {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	report := Report{Status: LevelHealthy, Timestamp: time.Now()}
	for _, c := range hm.components {
		report.Components = append(report.Components, c.health)
		switch {
		case c.health.Level == LevelDown:
			report.Status = LevelDown
		case c.health.Level != LevelHealthy && report.Status == LevelHealthy:
			report.Status = LevelDegraded
		}
	}
	sort.Slice(report.Components, func(i, j int) bool {
		return report.Components[i].Name < report.Components[j].Name
	})
	return report
}

// Start probes all components every interval until ctx is done
func (hm *HealthMonitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hm.Check(ctx)
			}
		}
	}()
}
