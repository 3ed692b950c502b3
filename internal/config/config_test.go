package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_LoadAppliesDefaultsWithNoFile(t *testing.T) {
	m := NewManager("")
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "N0", cfg.Brain.AutonomyLevel)
	assert.Equal(t, 300, cfg.Brain.ApprovalTimeoutS)
	assert.Equal(t, 0.7, cfg.Council.ConfidenceThreshold)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/orion.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  addr: redis.internal:6380
brain:
  autonomy_level: N3
council:
  enabled: true
`), 0o644))

	m := NewManager(path)
	require.NoError(t, m.Load())

	cfg := m.Get()
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "N3", cfg.Brain.AutonomyLevel)
	assert.True(t, cfg.Council.Enabled)
}

func TestLoad_MissingConfigFileFails(t *testing.T) {
	m := NewManager("/nonexistent/orion.yaml")
	assert.Error(t, m.Load())
}

func TestValidate_RejectsUnknownAutonomyLevel(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/orion.yaml"
	require.NoError(t, os.WriteFile(path, []byte("brain:\n  autonomy_level: N99\n"), 0o644))

	m := NewManager(path)
	err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "autonomy_level")
}

func TestValidate_RejectsEmptyRedisAddr(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/orion.yaml"
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: \"\"\n"), 0o644))

	m := NewManager(path)
	err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")
}
