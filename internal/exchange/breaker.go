package exchange

import (
	"fmt"
	"sync"
	"time"

	"autotrader/internal/errors"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "HALF_OPEN" // One probe allowed through
)

// ErrCircuitOpen is returned without calling the exchange while the circuit
// is open. It is transient so callers retry on a later cycle.
var ErrCircuitOpen = fmt.Errorf("exchange circuit open: %w", errors.ErrTransient)

// CircuitBreaker stops hammering the exchange after repeated transient
// failures. Permanent errors (bad symbol, rejected order) do not count.
type CircuitBreaker struct {
	threshold int
	timeout   time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewCircuitBreaker opens after threshold consecutive transient failures
// and allows a single probe once timeout has passed.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
		state:     CircuitClosed,
	}
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.probeActive = true
		return nil
	case CircuitHalfOpen:
		if cb.probeActive {
			return ErrCircuitOpen
		}
		cb.probeActive = true
	}
	return nil
}

// Record feeds the outcome of an allowed request back into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	transient := err != nil && errors.IsTransient(err)
	switch cb.state {
	case CircuitHalfOpen:
		cb.probeActive = false
		if transient {
			cb.open()
			return
		}
		cb.state = CircuitClosed
		cb.failures = 0
	case CircuitClosed:
		if !transient {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.open()
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = CircuitOpen
	cb.openedAt = cb.now()
	cb.failures = 0
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
