// Package circuitbreaker stops the client from hammering a backend that is
// not answering. Only failures the classifier accepts count; HTTP error
// responses mean the backend is up and never trip the breaker.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail immediately
	StateHalfOpen              // a limited number of probes pass
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold    int           // consecutive failures before opening
	SuccessThreshold    int           // probe successes needed to close again
	Timeout             time.Duration // time spent open before probing
	MaxRequestsHalfOpen int           // probes allowed while half-open

	// IsFailure decides whether an error counts. Nil counts every error
	// except context cancellation.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    1,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	halfOpenRequests int
	lastFailureTime  time.Time
	stateChangeTime  time.Time

	onStateChange func(from, to State)
}

func New(config Config) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	if config.MaxRequestsHalfOpen < 1 {
		config.MaxRequestsHalfOpen = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}
	cb := &CircuitBreaker{config: config, now: time.Now}
	cb.stateChangeTime = cb.now()
	return cb
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// OnStateChange registers fn, called synchronously after each transition
// with the breaker unlocked.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// Call is Execute for functions with a result.
func Call[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := cb.Allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	cb.Record(err)
	return v, err
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by exactly one Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var from, to State
	changed := false

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.stateChangeTime) < cb.config.Timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		from, to, changed = cb.transitionLocked(StateHalfOpen)
		cb.halfOpenRequests++
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxRequestsHalfOpen {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.halfOpenRequests++
	}
	fn := cb.onStateChange
	cb.mu.Unlock()

	if changed && fn != nil {
		fn(from, to)
	}
	return nil
}

// Record feeds the outcome of an allowed call back into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	var from, to State
	changed := false

	if err != nil && cb.config.IsFailure(err) {
		cb.failureCount++
		cb.successCount = 0
		cb.lastFailureTime = cb.now()
		switch {
		case cb.state == StateHalfOpen:
			from, to, changed = cb.transitionLocked(StateOpen)
		case cb.state == StateClosed && cb.failureCount >= cb.config.FailureThreshold:
			from, to, changed = cb.transitionLocked(StateOpen)
		}
	} else {
		cb.failureCount = 0
		cb.successCount++
		if cb.state == StateHalfOpen {
			if cb.halfOpenRequests > 0 {
				cb.halfOpenRequests--
			}
			if cb.successCount >= cb.config.SuccessThreshold {
				from, to, changed = cb.transitionLocked(StateClosed)
			}
		}
	}
	fn := cb.onStateChange
	cb.mu.Unlock()

	if changed && fn != nil {
		fn(from, to)
	}
}

func (cb *CircuitBreaker) transitionLocked(next State) (State, State, bool) {
	prev := cb.state
	if prev == next {
		return prev, next, false
	}
	cb.state = next
	cb.stateChangeTime = cb.now()
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenRequests = 0
	return prev, next, true
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats holds circuit breaker statistics
type Stats struct {
	State            State
	FailureCount     int
	SuccessCount     int
	HalfOpenRequests int
	LastFailureTime  time.Time
	StateChangeTime  time.Time
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		HalfOpenRequests: cb.halfOpenRequests,
		LastFailureTime:  cb.lastFailureTime,
		StateChangeTime:  cb.stateChangeTime,
	}
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from, to, changed := cb.transitionLocked(StateClosed)
	cb.failureCount, cb.successCount, cb.halfOpenRequests = 0, 0, 0
	fn := cb.onStateChange
	cb.mu.Unlock()

	if changed && fn != nil {
		fn(from, to)
	}
}
