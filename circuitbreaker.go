package qpe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/theapemachine/errnie"
)

var (
	ErrBreakerOpen = errors.New("circuit breaker open")
)

/*
CircuitState represents the state of the circuit breaker.
*/
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation state
	CircuitOpen                         // Failure state, rejecting requests
	CircuitHalfOpen                     // Probationary state, allowing limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

/*
CircuitBreaker stops calls into a failing backend. After maxFailures
consecutive failures it opens and rejects everything until resetTimeout has
passed, then lets halfOpenMax probe calls through. Enough successful probes
close it again; a failed probe reopens it.
*/
type CircuitBreaker struct {
	mu               sync.Mutex
	maxFailures      int           // Maximum failures before opening circuit
	resetTimeout     time.Duration // Time to wait before attempting recovery
	halfOpenMax      int           // Maximum requests allowed in half-open state
	failureCount     int           // Current count of consecutive failures
	state            CircuitState  // Current state of the circuit breaker
	openTime         time.Time     // Time when circuit was opened
	halfOpenAttempts int           // Number of attempts made in half-open state
}

/*
NewCircuitBreaker creates a new circuit breaker instance in the closed state.
*/
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
		state:        CircuitClosed,
	}
}

/*
RecordFailure records a failure and opens the circuit once the threshold is
reached. Any failure while half-open reopens it immediately.
*/
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.openTime = time.Now()
		errnie.Info("circuit breaker reopened from half-open state")
	case CircuitClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.openTime = time.Now()
			errnie.Info("circuit breaker opened after %d failures", cb.failureCount)
		}
	}
}

/*
RecordSuccess records a successful attempt and updates the circuit state.
*/
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.halfOpenMax {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.halfOpenAttempts = 0
			errnie.Info("circuit breaker closed from half-open")
		}
	case CircuitClosed:
		cb.failureCount = 0
	}
}

/*
Allow determines if a request is allowed based on the circuit state.
*/
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.openTime) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenAttempts = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return cb.halfOpenAttempts < cb.halfOpenMax
	default:
		return false
	}
}

// State reports the current state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

/*
GuardedBackend routes every Run through a CircuitBreaker. Several backends
may share one breaker, so a broken simulator trips all of them together.
Context cancellation is not counted as a backend failure.
*/
type GuardedBackend struct {
	backend Backend
	breaker *CircuitBreaker
}

// Guard wraps backend with breaker. A nil breaker returns backend unchanged.
func Guard(backend Backend, breaker *CircuitBreaker) Backend {
	if breaker == nil {
		return backend
	}
	return &GuardedBackend{backend: backend, breaker: breaker}
}

func (g *GuardedBackend) Name() string {
	return g.backend.Name()
}

func (g *GuardedBackend) Run(ctx context.Context, circuit *Circuit, shots int) (Counts, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("%w: backend %s", ErrBreakerOpen, g.backend.Name())
	}

	counts, err := g.backend.Run(ctx, circuit, shots)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			g.breaker.RecordFailure()
		}
		return nil, err
	}

	g.breaker.RecordSuccess()
	return counts, nil
}
