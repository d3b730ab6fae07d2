package backend

import (
	"errors"
	"sync"
	"time"

	"github.com/tshop/admin/internal/config"
)

// ErrCircuitOpen is returned without contacting the backend while the
// service's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the current state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets every request through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects every request until the open timeout passes.
	BreakerOpen
	// BreakerHalfOpen lets probe requests through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// gaugeValue maps the state onto the breaker gauge: 0 closed, 1 half-open,
// 2 open.
func (s BreakerState) gaugeValue() float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}

// minErrorRateSamples is the number of calls a window needs before its
// error rate may trip the breaker.
const minErrorRateSamples = 10

// CircuitBreaker trips on consecutive failures or on the error rate of a
// tumbling window. It is safe for concurrent use.
type CircuitBreaker struct {
	mu       sync.Mutex
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration

	errorRateThreshold float64
	errorRateWindow    time.Duration
	windowStart        time.Time
	windowTotal        int
	windowFailures     int

	now      func() time.Time
	onChange func(BreakerState)
}

// NewCircuitBreaker creates a closed breaker. Zero thresholds take the
// defaults of 5 failures, 2 probe successes and a 30s open timeout; a zero
// error rate threshold or window disables rate-based tripping.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:              BreakerClosed,
		failureThreshold:   cfg.FailureThreshold,
		successThreshold:   cfg.SuccessThreshold,
		timeout:            cfg.Timeout,
		errorRateThreshold: cfg.ErrorRateThreshold,
		errorRateWindow:    cfg.ErrorRateWindow,
		now:                time.Now,
	}
	if cb.failureThreshold < 1 {
		cb.failureThreshold = 5
	}
	if cb.successThreshold < 1 {
		cb.successThreshold = 2
	}
	if cb.timeout <= 0 {
		cb.timeout = 30 * time.Second
	}
	cb.windowStart = cb.now()
	return cb
}

// OnStateChange registers a callback invoked, with the lock held, whenever
// the breaker changes state.
func (cb *CircuitBreaker) OnStateChange(fn func(BreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.currentState() == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess records a call the backend answered without a server error.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case BreakerClosed:
		cb.failures = 0
		cb.recordWindowCall(false)
	case BreakerHalfOpen:
		cb.probes++
		if cb.probes >= cb.successThreshold {
			cb.failures = 0
			cb.resetWindow()
			cb.transition(BreakerClosed)
		}
	}
}

// RecordFailure records a network failure or a server error.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case BreakerClosed:
		cb.failures++
		cb.recordWindowCall(true)
		if cb.failures >= cb.failureThreshold || cb.errorRateExceeded() {
			cb.trip()
		}
	case BreakerHalfOpen:
		cb.trip()
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState moves an expired open breaker to half-open. Must be called
// with the lock held.
func (cb *CircuitBreaker) currentState() BreakerState {
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.probes = 0
		cb.transition(BreakerHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.probes = 0
	cb.resetWindow()
	cb.transition(BreakerOpen)
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	if cb.state == to {
		return
	}
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(to)
	}
}

func (cb *CircuitBreaker) recordWindowCall(failed bool) {
	if cb.errorRateWindow <= 0 {
		return
	}
	if cb.now().Sub(cb.windowStart) > cb.errorRateWindow {
		cb.resetWindow()
	}
	cb.windowTotal++
	if failed {
		cb.windowFailures++
	}
}

func (cb *CircuitBreaker) resetWindow() {
	cb.windowStart = cb.now()
	cb.windowTotal = 0
	cb.windowFailures = 0
}

func (cb *CircuitBreaker) errorRateExceeded() bool {
	if cb.errorRateThreshold <= 0 || cb.errorRateWindow <= 0 {
		return false
	}
	if cb.windowTotal < minErrorRateSamples {
		return false
	}
	return float64(cb.windowFailures)/float64(cb.windowTotal) >= cb.errorRateThreshold
}
