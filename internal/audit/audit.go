// Package audit is the immutable append-only sink: one rotated,
// line-delimited JSON file per contract kind in {event, incident,
// decision}. Grounded on kubilitics-ai/internal/audit/logger.go's
// lumberjack-based rotation, adapted to contract-kind segregation and
// read-back with {limit, since} filters instead of that teacher's
// correlation-ID event taxonomy.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/metrics"
)

// Config controls rotation for every segregated log file.
type Config struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig mirrors the teacher's audit-log rotation defaults.
func DefaultConfig() Config {
	return Config{
		Dir:        "logs/audit",
		MaxSizeMB:  100,
		MaxBackups: 10,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

type segment struct {
	path     string
	rotator  *lumberjack.Logger
	mu       sync.Mutex
}

// Store is the append-only audit sink for events, incidents, and
// decisions. Each kind gets its own rotated file; writes are raw JSON lines
// (the contract payload, nothing wrapped around it) so Read can parse them
// back without a schema of its own.
type Store struct {
	segments map[contracts.Kind]*segment
}

// supportedKinds is the fixed contract-kind triple the audit store covers
// per §6 — not the full seven-kind contract set.
var supportedKinds = []contracts.Kind{contracts.KindEvent, contracts.KindIncident, contracts.KindDecision}

// New constructs a Store, creating cfg.Dir and one rotated file per
// supported kind.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	segments := make(map[contracts.Kind]*segment, len(supportedKinds))
	for _, kind := range supportedKinds {
		path := filepath.Join(cfg.Dir, string(kind)+"s.log")
		segments[kind] = &segment{
			path: path,
			rotator: &lumberjack.Logger{
				Filename:   path,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   cfg.Compress,
			},
		}
	}

	return &Store{segments: segments}, nil
}

// Append writes v as one JSON line to the file for kind. Returns an error
// if kind is not one of the three audited kinds.
func (s *Store) Append(kind contracts.Kind, v interface{}) error {
	seg, ok := s.segments[kind]
	if !ok {
		return fmt.Errorf("audit: kind %q is not audited", kind)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("audit: marshal %s: %w", kind, err)
	}
	raw = append(raw, '\n')

	seg.mu.Lock()
	defer seg.mu.Unlock()
	if _, err := seg.rotator.Write(raw); err != nil {
		return err
	}
	metrics.AuditAppendsTotal.WithLabelValues(string(kind)).Inc()
	return nil
}

// Filter bounds a Read call.
type Filter struct {
	Limit int       // 0 means unbounded
	Since time.Time // zero value means unbounded
}

// Read returns raw JSON lines for kind matching filter, oldest first. Since
// rotation moves old entries into numbered backups, this only reads the
// live (current) file — matching the append-only contract of "read what's
// been flushed", not an archive scan.
func (s *Store) Read(kind contracts.Kind, filter Filter) ([]json.RawMessage, error) {
	seg, ok := s.segments[kind]
	if !ok {
		return nil, fmt.Errorf("audit: kind %q is not audited", kind)
	}

	seg.mu.Lock()
	defer seg.mu.Unlock()

	f, err := os.Open(seg.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", seg.path, err)
	}
	defer f.Close()

	var out []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !filter.Since.IsZero() {
			var stamped struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if err := json.Unmarshal(line, &stamped); err == nil && stamped.Timestamp.Before(filter.Since) {
				continue
			}
		}
		cp := make(json.RawMessage, len(line))
		copy(cp, line)
		out = append(out, cp)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", seg.path, err)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// Close flushes and releases every segment's rotator.
func (s *Store) Close() error {
	var firstErr error
	for _, seg := range s.segments {
		if err := seg.rotator.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
