package llm

import (
	"sync"
	"time"
)

// state is the breaker's position in the closed -> open -> half-open
// cycle.
type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker opens after threshold consecutive LLM failures and, once
// timeout has elapsed, lets exactly one half-open probe call through
// before deciding whether to close (probe succeeded) or reopen (probe
// failed) for another timeout. This differs from the teacher's plain
// open/closed toggle (internal/extraction/circuit_breaker.go), which
// resets failures to 0 the instant timeout elapses and lets every
// caller back in at once: under this system's concurrent-request
// fingerprint coalescing, several goroutines can hit the same open
// breaker simultaneously, and waking them all against a still-unhealthy
// provider just reproduces the failure storm that opened it. Gating
// recovery to a single probe bounds the retry load a flapping provider
// sees to one request per timeout window.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	lastFailure time.Time
	threshold   int
	timeout     time.Duration
}

// NewCircuitBreaker builds a breaker that opens after threshold
// consecutive failures and stays open for timeout before allowing one
// half-open probe.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, timeout: timeout}
}

// ErrOpen is returned when the circuit is open or a half-open probe is
// already in flight.
type ErrOpen struct{}

func (ErrOpen) Error() string { return "llm: circuit breaker is open" }

// Call runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrOpen{}
	}

	err := fn()
	cb.after(err)
	return err
}

// allow decides whether this call may proceed, transitioning
// open->half-open for exactly one caller once timeout has elapsed. All
// other callers that arrive while a probe is in flight are refused.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateOpen:
		if time.Since(cb.lastFailure) < cb.timeout {
			return false
		}
		cb.state = stateHalfOpen
		return true
	case stateHalfOpen:
		return false
	default: // stateClosed
		return true
	}
}

// after records fn's outcome and advances the state machine: a failure
// from closed or half-open opens the breaker and restarts its timeout; a
// successful half-open probe closes it; a successful closed-state call
// just resets the failure streak.
func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.state == stateHalfOpen || cb.failures >= cb.threshold {
			cb.state = stateOpen
		}
		return
	}

	cb.failures = 0
	cb.state = stateClosed
}

// IsOpen reports whether the breaker is currently refusing calls
// outright because it is open and still within its timeout.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen && time.Since(cb.lastFailure) < cb.timeout
}
