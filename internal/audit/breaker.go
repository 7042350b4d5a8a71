package audit

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState string

const (
	// BreakerClosed admits all calls.
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects all calls until the cooldown elapses.
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen admits a single trial call at a time.
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker
// is open or a half-open trial is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards the sandbox collaborator. It opens after a run of
// consecutive failures, rejects calls while open, and after a cooldown lets
// single trial calls through until enough successes close it again.
//
// One breaker guards all sandbox calls made through one pipeline instance,
// so distinct sandbox targets share a failure history.
type CircuitBreaker struct {
	failureThreshold int
	cooldown         time.Duration
	successThreshold int
	now              func() time.Time

	// mu protects the fields below.
	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	halfOpenSuccesses   int
	trialInFlight       bool
	openedAt            time.Time
}

// NewCircuitBreaker creates a closed breaker. It opens after
// failureThreshold consecutive failures, waits cooldown before trial calls,
// and closes after successThreshold consecutive trial successes.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration, successThreshold int) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if successThreshold < 1 {
		successThreshold = 1
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		successThreshold: successThreshold,
		now:              time.Now,
		state:            BreakerClosed,
	}
}

// Allow reports whether a call may proceed. When the breaker is open and
// the cooldown has elapsed it moves to half-open and admits one trial call;
// further calls are rejected until that trial is recorded.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.halfOpenSuccesses = 0
		cb.trialInFlight = true
		return nil

	case BreakerHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
		return nil

	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.consecutiveFailures = 0

	case BreakerHalfOpen:
		cb.trialInFlight = false
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.successThreshold {
			cb.state = BreakerClosed
			cb.consecutiveFailures = 0
			cb.halfOpenSuccesses = 0
		}
	}
}

// RecordFailure reports a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.now()
		}

	case BreakerHalfOpen:
		// Any half-open failure re-opens fully.
		cb.trialInFlight = false
		cb.halfOpenSuccesses = 0
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
	}
}

// State returns the breaker's current position.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
