// Package gateway implements the edge gateway: longest-prefix routing to
// upstreams, per-upstream circuit breaking, and the standard error envelope
// on gateway-level failures.
package gateway

import (
	"sync"
	"time"
)

// Breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker is a per-upstream circuit breaker counting consecutive failures.
// After failMax consecutive failures it opens; after resetTimeout it allows a
// single probe; the probe's outcome decides between closed and open again.
type Breaker struct {
	failMax      int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(failMax int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		failMax:      failMax,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Allow reports whether a request may proceed. In the open state it returns
// false until resetTimeout has elapsed since the last failure, then admits
// exactly one probe in the half-open state.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.resetTimeout {
			b.state = StateHalfOpen
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Success records a successful upstream response.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// Failure records an upstream failure: any 5xx, transport error, or timeout.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	b.probing = false
	if b.state == StateHalfOpen {
		b.state = StateOpen
		return
	}
	b.failures++
	if b.failures >= b.failMax {
		b.state = StateOpen
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}
