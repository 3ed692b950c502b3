package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orion-sre/orion/internal/clock"
)

func TestTracker_FirstCheckAlwaysPasses(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := New(fc)
	assert.True(t, tr.Check("acknowledge_incident", 60, "incident-1"))
}

func TestTracker_BlocksWithinCooldownThenPasses(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := New(fc)

	tr.Record("acknowledge_incident", "incident-1")
	assert.False(t, tr.Check("acknowledge_incident", 60, "incident-1"), "must block inside the cooldown window")

	fc.Advance(59 * time.Second)
	assert.False(t, tr.Check("acknowledge_incident", 60, "incident-1"))

	fc.Advance(2 * time.Second)
	assert.True(t, tr.Check("acknowledge_incident", 60, "incident-1"), "must pass once the cooldown has elapsed")
}

func TestTracker_ScopeKeysAreIndependent(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := New(fc)

	tr.Record("acknowledge_incident", "incident-1")
	assert.False(t, tr.Check("acknowledge_incident", 60, "incident-1"))
	assert.True(t, tr.Check("acknowledge_incident", 60, "incident-2"), "a different scope key must not be blocked")
}

func TestTracker_ZeroOrNegativeCooldownAlwaysPasses(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := New(fc)

	tr.Record("acknowledge_incident", "incident-1")
	assert.True(t, tr.Check("acknowledge_incident", 0, "incident-1"))
	assert.True(t, tr.Check("acknowledge_incident", -5, "incident-1"))
}

func TestTracker_RemainingCountsDownAndFloorsAtZero(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := New(fc)

	tr.Record("acknowledge_incident", "incident-1")
	assert.Equal(t, 60, tr.Remaining("acknowledge_incident", 60, "incident-1"))

	fc.Advance(45 * time.Second)
	assert.Equal(t, 15, tr.Remaining("acknowledge_incident", 60, "incident-1"))

	fc.Advance(30 * time.Second)
	assert.Equal(t, 0, tr.Remaining("acknowledge_incident", 60, "incident-1"))
}
