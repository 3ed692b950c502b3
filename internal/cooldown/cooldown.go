// Package cooldown tracks per-(action_type, scope_key) last-execution
// timestamps, modeled on
// original_source/core/brain/cooldown_tracker.py.
package cooldown

import (
	"sync"
	"time"

	"github.com/orion-sre/orion/internal/clock"
)

type key struct {
	actionType string
	scopeKey   string
}

// Tracker holds last-execution timestamps per (action_type, scope_key).
// Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	last  map[key]time.Time
	clock clock.Clock
}

// New constructs an empty Tracker driven by clk.
func New(clk clock.Clock) *Tracker {
	return &Tracker{last: make(map[key]time.Time), clock: clk}
}

// Check returns true iff the action has never executed, or at least
// cooldownSeconds have elapsed since its last recorded execution.
// cooldownSeconds <= 0 always returns true.
func (t *Tracker) Check(actionType string, cooldownSeconds int, scopeKey string) bool {
	if cooldownSeconds <= 0 {
		return true
	}

	t.mu.Lock()
	last, ok := t.last[key{actionType, scopeKey}]
	t.mu.Unlock()

	if !ok {
		return true
	}
	return t.clock.Since(last) >= secondsToDuration(cooldownSeconds)
}

// Record overwrites the last-execution timestamp for (actionType, scopeKey)
// with the current time.
func (t *Tracker) Record(actionType string, scopeKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[key{actionType, scopeKey}] = t.clock.Now()
}

// Remaining returns the remaining cooldown in seconds, 0 if none or expired.
func (t *Tracker) Remaining(actionType string, cooldownSeconds int, scopeKey string) int {
	if cooldownSeconds <= 0 {
		return 0
	}

	t.mu.Lock()
	last, ok := t.last[key{actionType, scopeKey}]
	t.mu.Unlock()

	if !ok {
		return 0
	}

	elapsed := t.clock.Since(last)
	remaining := secondsToDuration(cooldownSeconds) - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds() + 0.999) // round up to whole seconds
}

// Clear drops all tracked state, for tests.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[key]time.Time)
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
