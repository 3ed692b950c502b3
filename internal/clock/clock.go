// Package clock abstracts wall-clock and monotonic time so cooldown windows,
// circuit-breaker timers, and contract timestamps can be advanced
// deterministically in tests instead of sleeping real time.
package clock

import "time"

// Clock is the capability every time-sensitive component depends on instead
// of calling time.Now directly.
type Clock interface {
	// Now returns the current wall-clock time, used for contract timestamps
	// (expires_at, issued_at) that must be RFC3339 UTC on the wire.
	Now() time.Time

	// Since returns the elapsed duration since t, used for cooldown and
	// circuit-breaker window arithmetic. Real.Now converts to UTC, which
	// drops the monotonic clock reading, so for Real this is a wall-clock
	// difference and shifts if the system clock is stepped.
	Since(t time.Time) time.Duration
}

// real is the production Clock, backed directly by the runtime clock.
type real struct{}

// Real is the Clock every non-test entrypoint should inject.
var Real Clock = real{}

func (real) Now() time.Time                  { return time.Now().UTC() }
func (real) Since(t time.Time) time.Duration { return time.Since(t) }
