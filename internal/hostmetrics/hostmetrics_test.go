package hostmetrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_FreeRAMMBReturnsPositiveValue(t *testing.T) {
	m := New()
	mb, err := m.FreeRAMMB(context.Background())
	require.NoError(t, err)
	assert.Positive(t, mb)
}

func TestMonitor_PollReturnsSaneSnapshot(t *testing.T) {
	m := New()
	snap, err := m.Poll(context.Background())
	require.NoError(t, err)
	assert.Positive(t, snap.CPUCount)
	assert.Positive(t, snap.MemTotal)
	assert.GreaterOrEqual(t, snap.MemPercent, 0.0)
	assert.LessOrEqual(t, snap.MemPercent, 100.0)
	assert.GreaterOrEqual(t, snap.DiskPercent, 0.0)
}
