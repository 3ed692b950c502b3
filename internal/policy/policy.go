// Package policy is the read-only-at-runtime action classifier: SAFE set,
// RISKY set, and per-action cooldowns, loaded once at startup from YAML
// files. Modeled on original_source/core/brain/policy_loader.py.
//
// If loading fails, both sets are emptied and all cooldowns cleared —
// fail-closed: no action becomes executable.
package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/orion-sre/orion/internal/contracts"
)

// SafeActionEntry is one row of the SAFE policy listing.
type SafeActionEntry struct {
	ActionType           string `yaml:"action_type"`
	Description          string `yaml:"description"`
	Reversible           bool   `yaml:"reversible"`
	ExternalSideEffects  bool   `yaml:"external_side_effects"`
	MaxFrequency         string `yaml:"max_frequency,omitempty"`
	Justification        string `yaml:"justification"`
}

// RiskyActionEntry is one row of the RISKY policy listing.
type RiskyActionEntry struct {
	ActionType          string `yaml:"action_type"`
	Description         string `yaml:"description"`
	Reversible          bool   `yaml:"reversible"`
	ExternalSideEffects bool   `yaml:"external_side_effects"`
	BlastRadius         string `yaml:"blast_radius"`
	Justification       string `yaml:"justification"`
	RequiresApproval    bool   `yaml:"requires_approval"`
}

type safeFile struct {
	SafeActions []SafeActionEntry `yaml:"safe_actions"`
}

type riskyFile struct {
	RiskyActions []RiskyActionEntry `yaml:"risky_actions"`
}

type cooldownEntry struct {
	ActionType string `yaml:"action_type"`
	Cooldown   string `yaml:"cooldown"`
}

type cooldownsFile struct {
	ActionCooldowns []cooldownEntry `yaml:"action_cooldowns"`
}

// Store is the single source of truth for SAFE vs RISKY classification and
// per-action cooldowns. Safe for concurrent use; immutable after Load.
type Store struct {
	mu        sync.RWMutex
	safe      map[string]SafeActionEntry
	risky     map[string]RiskyActionEntry
	cooldowns map[string]int
}

// NewStore constructs an empty, fail-closed Store. Call Load to populate it.
func NewStore() *Store {
	return &Store{
		safe:      map[string]SafeActionEntry{},
		risky:     map[string]RiskyActionEntry{},
		cooldowns: map[string]int{},
	}
}

// Load reads the three policy files. Any failure empties every set —
// equivalently, no action becomes executable — matching
// PolicyLoader._load_policies's except clause.
func (s *Store) Load(safePath, riskyPath, cooldownsPath string, log *zap.Logger) error {
	safe, risky, cooldowns, err := loadAll(safePath, riskyPath, cooldownsPath)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.safe = map[string]SafeActionEntry{}
		s.risky = map[string]RiskyActionEntry{}
		s.cooldowns = map[string]int{}
		if log != nil {
			log.Error("policy: failed to load policies, failing closed", zap.Error(err))
		}
		return err
	}
	s.safe = safe
	s.risky = risky
	s.cooldowns = cooldowns
	if log != nil {
		log.Info("policy: loaded",
			zap.Int("safe_count", len(safe)),
			zap.Int("risky_count", len(risky)),
			zap.Int("cooldown_count", len(cooldowns)),
		)
	}
	return nil
}

func loadAll(safePath, riskyPath, cooldownsPath string) (map[string]SafeActionEntry, map[string]RiskyActionEntry, map[string]int, error) {
	var sf safeFile
	if err := readYAML(safePath, &sf); err != nil {
		return nil, nil, nil, fmt.Errorf("policy: safe file: %w", err)
	}
	var rf riskyFile
	if err := readYAML(riskyPath, &rf); err != nil {
		return nil, nil, nil, fmt.Errorf("policy: risky file: %w", err)
	}
	var cf cooldownsFile
	if err := readYAML(cooldownsPath, &cf); err != nil {
		return nil, nil, nil, fmt.Errorf("policy: cooldowns file: %w", err)
	}

	safe := make(map[string]SafeActionEntry, len(sf.SafeActions))
	for _, a := range sf.SafeActions {
		safe[a.ActionType] = a
	}
	risky := make(map[string]RiskyActionEntry, len(rf.RiskyActions))
	for _, a := range rf.RiskyActions {
		risky[a.ActionType] = a
	}
	cooldowns := make(map[string]int, len(cf.ActionCooldowns))
	for _, c := range cf.ActionCooldowns {
		secs, err := ParseDuration(c.Cooldown)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("policy: cooldown %q for %s: %w", c.Cooldown, c.ActionType, err)
		}
		cooldowns[c.ActionType] = secs
	}
	return safe, risky, cooldowns, nil
}

func readYAML(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}

// ParseDuration parses "60s" | "5m" | "1h" (or a bare integer, seconds) into
// whole seconds, matching PolicyLoader._parse_duration.
func ParseDuration(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	unit := s[len(s)-1]
	switch unit {
	case 's':
		return strconv.Atoi(s[:len(s)-1])
	case 'm':
		n, err := strconv.Atoi(s[:len(s)-1])
		return n * 60, err
	case 'h':
		n, err := strconv.Atoi(s[:len(s)-1])
		return n * 3600, err
	default:
		return strconv.Atoi(s)
	}
}

// IsSafe reports whether actionType is in the SAFE set.
func (s *Store) IsSafe(actionType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.safe[actionType]
	return ok
}

// IsRisky reports whether actionType is in the RISKY set.
func (s *Store) IsRisky(actionType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.risky[actionType]
	return ok
}

// Classify returns SAFE, RISKY, or UNKNOWN (treated as RISKY by callers,
// fail-closed) for actionType.
func (s *Store) Classify(actionType string) contracts.SafetyClassification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.safe[actionType]; ok {
		return contracts.SafetyClassificationSafe
	}
	if _, ok := s.risky[actionType]; ok {
		return contracts.SafetyClassificationRisky
	}
	return contracts.SafetyClassificationUnknown
}

// Cooldown returns the configured cooldown in seconds for actionType, or 0
// if none is configured.
func (s *Store) Cooldown(actionType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cooldowns[actionType]
}
