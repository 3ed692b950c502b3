package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-sre/orion/internal/contracts"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStore_LoadClassifiesAndParsesCooldowns(t *testing.T) {
	dir := t.TempDir()
	safe := writeTempFile(t, dir, "safe.yaml", `
safe_actions:
  - action_type: acknowledge_incident
    description: no side effects
    reversible: true
    external_side_effects: false
    justification: observational only
`)
	risky := writeTempFile(t, dir, "risky.yaml", `
risky_actions:
  - action_type: restart_service
    description: drops connections
    reversible: false
    external_side_effects: true
    blast_radius: single_service
    justification: requires sign-off
    requires_approval: true
`)
	cooldowns := writeTempFile(t, dir, "cooldowns.yaml", `
action_cooldowns:
  - action_type: acknowledge_incident
    cooldown: 60s
  - action_type: restart_service
    cooldown: 5m
`)

	s := NewStore()
	require.NoError(t, s.Load(safe, risky, cooldowns, nil))

	assert.True(t, s.IsSafe("acknowledge_incident"))
	assert.False(t, s.IsRisky("acknowledge_incident"))
	assert.Equal(t, contracts.SafetyClassificationSafe, s.Classify("acknowledge_incident"))

	assert.True(t, s.IsRisky("restart_service"))
	assert.Equal(t, contracts.SafetyClassificationRisky, s.Classify("restart_service"))

	assert.Equal(t, contracts.SafetyClassificationUnknown, s.Classify("scale_deployment"))

	assert.Equal(t, 60, s.Cooldown("acknowledge_incident"))
	assert.Equal(t, 300, s.Cooldown("restart_service"))
	assert.Equal(t, 0, s.Cooldown("unconfigured_action"))
}

func TestStore_LoadFailureEmptiesEverySet(t *testing.T) {
	dir := t.TempDir()
	safe := writeTempFile(t, dir, "safe.yaml", `
safe_actions:
  - action_type: acknowledge_incident
    description: ok
    reversible: true
    external_side_effects: false
    justification: ok
`)

	s := NewStore()
	// Seed the store with a successful load first...
	risky := writeTempFile(t, dir, "risky.yaml", "risky_actions: []\n")
	cooldowns := writeTempFile(t, dir, "cooldowns.yaml", "action_cooldowns: []\n")
	require.NoError(t, s.Load(safe, risky, cooldowns, nil))
	require.True(t, s.IsSafe("acknowledge_incident"))

	// ...then point at a missing cooldowns file: the whole load must fail
	// closed, clearing the previously loaded SAFE set too.
	err := s.Load(safe, risky, filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
	assert.False(t, s.IsSafe("acknowledge_incident"), "a failed reload must fail closed, not keep stale state")
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"60s", 60, false},
		{"5m", 300, false},
		{"1h", 3600, false},
		{"90", 90, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		if c.wantErr {
			assert.Error(t, err, "input %q", c.in)
			continue
		}
		assert.NoError(t, err, "input %q", c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
	}
}
