// Package resilience guards backend calls with a circuit breaker.
//
// A [CircuitBreaker] counts consecutive failures. Once MaxFailures is reached
// it opens and rejects calls without running them until Cooldown has passed;
// the next call is then let through as a single probe that either closes the
// breaker or opens it again. A breaker never retries a call.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen matches every error returned for a rejected call.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// OpenError is returned instead of running a call while the breaker is open.
// It unwraps to both [ErrCircuitOpen] and the failure that opened the
// breaker, so callers keep classifying it like that failure.
type OpenError struct {
	Name string
	Last error
}

func (e *OpenError) Error() string {
	if e.Last == nil {
		return ErrCircuitOpen.Error() + ": " + e.Name
	}
	return ErrCircuitOpen.Error() + ": " + e.Name + ": " + e.Last.Error()
}

func (e *OpenError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrCircuitOpen}
	}
	return []error{ErrCircuitOpen, e.Last}
}

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// Defaults applied by [NewCircuitBreaker] to zero config fields.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = 30 * time.Second
)

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and errors.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker.
	MaxFailures int

	// Cooldown is how long the breaker stays open before a probe is allowed.
	Cooldown time.Duration

	// Logger receives state changes. Defaults to slog.Default().
	Logger *slog.Logger
}

// CircuitBreaker implements the closed / open / half-open breaker.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	lastErr  error
	probing  bool
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Execute runs fn unless the breaker is open. [context.Canceled] is passed
// through without counting as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.record(probe, err)
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false, &OpenError{Name: cb.name, Last: cb.lastErr}
		}
		cb.state = StateHalfOpen
		cb.logger.Info("resilience: circuit half-open", "name", cb.name)
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			return false, &OpenError{Name: cb.name, Last: cb.lastErr}
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	if errors.Is(err, context.Canceled) {
		// The caller gave up; that says nothing about the backend.
		if probe {
			cb.state = StateOpen
		}
		return
	}

	if err == nil {
		if cb.state != StateClosed {
			cb.logger.Info("resilience: circuit closed", "name", cb.name)
		}
		cb.state = StateClosed
		cb.failures = 0
		cb.lastErr = nil
		return
	}

	cb.lastErr = err
	cb.failures++
	if probe || cb.failures >= cb.maxFailures {
		if cb.state != StateOpen {
			cb.logger.Warn("resilience: circuit opened", "name", cb.name, "failures", cb.failures, "err", err)
		}
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.lastErr = nil
	cb.probing = false
}
