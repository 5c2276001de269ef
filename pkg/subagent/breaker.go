package subagent

import (
	"sync"
	"time"
)

// BreakerState is one of the three classic circuit-breaker states.
type BreakerState string

const (
	Closed   BreakerState = "closed"
	Open     BreakerState = "open"
	HalfOpen BreakerState = "half_open"
)

// CircuitBreaker trips after a run of consecutive failures, rejecting
// further attempts until resetTimeout elapses, then allows exactly one
// trial call through (HalfOpen) before deciding whether to close again
// or re-open. No prior equivalent exists; this is authored fresh in the
// decorator-chain idiom the toolregistry example in the reference
// corpus uses for wrapping tool execution with cross-cutting concerns.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	halfOpenTry bool
}

func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		state:            Closed,
	}
}

// Allow reports whether a call may proceed right now, transitioning
// Open -> HalfOpen once resetTimeout has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.state = HalfOpen
			b.halfOpenTry = false // this call is the single trial
			return true
		}
		return false
	case HalfOpen:
		if b.halfOpenTry {
			b.halfOpenTry = false
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
}

// RecordFailure increments the failure count, tripping the breaker
// open once the threshold is reached. A failure while HalfOpen
// re-opens immediately regardless of threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		return
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
