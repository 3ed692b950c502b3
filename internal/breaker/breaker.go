// Package breaker implements the per-action-type circuit breaker described
// in §4.5: CLOSED/OPEN only, no half-open probe state. It opens on a
// sliding-window failure-count breach and closes strictly when the open
// duration has elapsed — checked lazily on the next IsOpen call, never by a
// background timer.
//
// This is deliberately not github.com/sony/gobreaker: gobreaker is a
// three-state machine that requires a trial call through Execute to leave
// HALF-OPEN, whereas this breaker is consulted as a pure read (Brain calls
// IsOpen before executing) and must close purely by elapsed time. Wrapping
// gobreaker to fake that shape would cost more than it buys — see
// DESIGN.md.
//
// Modeled on original_source/core/brain/circuit_breaker.py.
package breaker

import (
	"sync"
	"time"

	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/metrics"
)

const (
	// DefaultFailureThreshold is the in-window failure count that opens
	// the circuit.
	DefaultFailureThreshold = 3
	// DefaultFailureWindow is how far back record_failure looks when
	// counting failures.
	DefaultFailureWindow = 300 * time.Second
	// DefaultOpenDuration is how long the circuit stays open before the
	// next IsOpen call lazily closes it.
	DefaultOpenDuration = 600 * time.Second
)

type perAction struct {
	failures []time.Time
	openedAt *time.Time
}

// Breaker is a per-action-type sliding-window circuit breaker. Safe for
// concurrent use.
type Breaker struct {
	mu              sync.Mutex
	state           map[string]*perAction
	failureThresh   int
	failureWindow   time.Duration
	openDuration    time.Duration
	clock           clock.Clock
}

// Option configures a Breaker at construction.
type Option func(*Breaker)

func WithFailureThreshold(n int) Option        { return func(b *Breaker) { b.failureThresh = n } }
func WithFailureWindow(d time.Duration) Option  { return func(b *Breaker) { b.failureWindow = d } }
func WithOpenDuration(d time.Duration) Option   { return func(b *Breaker) { b.openDuration = d } }

// New constructs a Breaker with default thresholds, driven by clk.
func New(clk clock.Clock, opts ...Option) *Breaker {
	b := &Breaker{
		state:         make(map[string]*perAction),
		failureThresh: DefaultFailureThreshold,
		failureWindow: DefaultFailureWindow,
		openDuration:  DefaultOpenDuration,
		clock:         clk,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RecordFailure appends a failure timestamp for actionType, prunes entries
// older than the failure window, and opens the circuit if the in-window
// count reaches the threshold and it is not already open.
func (b *Breaker) RecordFailure(actionType string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.entry(actionType)
	now := b.clock.Now()
	st.failures = append(st.failures, now)

	cutoff := now.Add(-b.failureWindow)
	kept := st.failures[:0]
	for _, ts := range st.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.failures = kept

	if len(st.failures) >= b.failureThresh && st.openedAt == nil {
		opened := now
		st.openedAt = &opened
		metrics.CircuitBreakerTripsTotal.WithLabelValues(actionType).Inc()
		metrics.CircuitBreakerState.WithLabelValues(actionType).Set(1)
	}
}

// RecordSuccess clears the failure history for actionType. It deliberately
// does NOT close an already-open circuit — the timer must expire.
func (b *Breaker) RecordSuccess(actionType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.entry(actionType)
	st.failures = nil
}

// IsOpen reports whether the circuit for actionType is currently open. If
// the open duration has elapsed, it lazily clears opened-at and the failure
// history and returns false.
func (b *Breaker) IsOpen(actionType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.entry(actionType)
	if st.openedAt == nil {
		return false
	}

	if b.clock.Since(*st.openedAt) >= b.openDuration {
		st.openedAt = nil
		st.failures = nil
		metrics.CircuitBreakerState.WithLabelValues(actionType).Set(0)
		return false
	}
	return true
}

// State describes a breaker's observable, auditable status for one action
// type.
type State struct {
	ActionType        string
	CircuitOpen       bool
	FailureCount      int
	FailureThreshold  int
	OpenedAt          *time.Time
	RemainingSeconds  float64
}

// GetState returns the current observable state for actionType.
func (b *Breaker) GetState(actionType string) State {
	open := b.IsOpen(actionType)

	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.entry(actionType)

	s := State{
		ActionType:       actionType,
		CircuitOpen:      open,
		FailureCount:     len(st.failures),
		FailureThreshold: b.failureThresh,
	}
	if open && st.openedAt != nil {
		opened := *st.openedAt
		s.OpenedAt = &opened
		remaining := b.openDuration - b.clock.Since(opened)
		if remaining < 0 {
			remaining = 0
		}
		s.RemainingSeconds = remaining.Seconds()
	}
	return s
}

// Clear drops all tracked state, for tests.
func (b *Breaker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = make(map[string]*perAction)
}

func (b *Breaker) entry(actionType string) *perAction {
	st, ok := b.state[actionType]
	if !ok {
		st = &perAction{}
		b.state[actionType] = st
	}
	return st
}
