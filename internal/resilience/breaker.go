package resilience

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the position of a circuit breaker
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned by Call while the breaker rejects calls
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig holds configuration for the circuit breaker
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // consecutive failures before opening
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`  // wait before a half-open probe
	SuccessThreshold int           `json:"success_threshold"` // half-open successes needed to close
}

// CircuitBreaker stops calling a failing dependency for RecoveryTimeout after
// FailureThreshold consecutive failures.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	nextAttempt time.Time
	opens       int64
}

// NewCircuitBreaker creates a closed breaker, filling zero config fields with defaults
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
	}
}

// Call runs fn unless the breaker is open
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.admit() {
		return ErrBreakerOpen
	}

	err := fn()
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	if cb.now().Before(cb.nextAttempt) {
		return false
	}
	cb.state = StateHalfOpen
	cb.successes = 0
	return true
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = StateOpen
		cb.nextAttempt = cb.now().Add(cb.config.RecoveryTimeout)
		cb.opens++
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
		}
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}

// Stats returns a snapshot for the metrics endpoint
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":     cb.name,
		"state":    cb.state.String(),
		"failures": cb.failures,
		"opens":    cb.opens,
	}
}
