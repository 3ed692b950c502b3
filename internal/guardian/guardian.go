// Package guardian correlates raw events into incidents: bounded buffer,
// fingerprint-based deduplication, and a fixed event_type -> incident_type
// mapping. Modeled on original_source/core/guardian/guardian.py.
package guardian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/bus"
	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/metrics"
)

const (
	// defaultBufferSize is M, the bounded event buffer size.
	defaultBufferSize = 100
	// defaultWindow is W, the correlation window in seconds.
	defaultWindow = 60 * time.Second
)

// Guardian deduplicates and correlates raw events into incidents. One
// instance owns its event buffer and fingerprint map; it is not safe to
// share across goroutines (the bus subscribe loop is sequential per
// consumer, per §5, so Guardian never needs internal locking).
type Guardian struct {
	b              bus.Bus
	clock          clock.Clock
	log            *zap.Logger
	source         string
	window         time.Duration
	bufferSize     int
	buffer         []contracts.Event
	fingerprintMap map[string]string // fingerprint -> incident_id
}

// Option configures a Guardian at construction.
type Option func(*Guardian)

func WithWindow(d time.Duration) Option    { return func(g *Guardian) { g.window = d } }
func WithBufferSize(n int) Option          { return func(g *Guardian) { g.bufferSize = n } }
func WithSource(source string) Option      { return func(g *Guardian) { g.source = source } }

// New constructs a Guardian publishing incidents through b.
func New(b bus.Bus, clk clock.Clock, log *zap.Logger, opts ...Option) *Guardian {
	g := &Guardian{
		b:              b,
		clock:          clk,
		log:            log,
		source:         "orion-guardian",
		window:         defaultWindow,
		bufferSize:     defaultBufferSize,
		fingerprintMap: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run subscribes to the event stream and correlates forever until ctx is
// cancelled.
func (g *Guardian) Run(ctx context.Context, group, consumer string) error {
	g.log.Info("guardian: starting correlation loop")
	return g.b.Subscribe(ctx, contracts.KindEvent, group, consumer, g.handle)
}

func (g *Guardian) handle(ctx context.Context, msg bus.Message) error {
	var event contracts.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		g.log.Error("guardian: malformed event", zap.Error(err))
		return fmt.Errorf("guardian: unmarshal event: %w", err)
	}

	incident := g.HandleEvent(event)
	if incident == nil {
		return nil
	}

	if err := g.b.Publish(ctx, contracts.KindIncident, *incident); err != nil {
		g.log.Error("guardian: failed to publish incident", zap.String("incident_id", incident.IncidentID), zap.Error(err))
		return err
	}
	g.log.Info("guardian: published incident",
		zap.String("incident_id", incident.IncidentID),
		zap.String("incident_type", incident.IncidentType),
		zap.String("severity", string(incident.Severity)),
	)
	return nil
}

// HandleEvent appends event to the buffer and attempts correlation,
// returning a freshly minted Incident if one was produced (nil otherwise).
// Exported for direct unit testing without going through the bus.
func (g *Guardian) HandleEvent(event contracts.Event) *contracts.Incident {
	metrics.EventsReceivedTotal.WithLabelValues(event.EventType, string(event.Severity)).Inc()

	g.buffer = append(g.buffer, event)
	if len(g.buffer) > g.bufferSize {
		g.buffer = g.buffer[len(g.buffer)-g.bufferSize:]
	}
	metrics.CorrelationBufferSize.Set(float64(len(g.buffer)))

	incident := g.correlate()
	if incident != nil {
		metrics.IncidentsCreatedTotal.WithLabelValues(incident.IncidentType, string(incident.Severity)).Inc()
	}
	return incident
}

func (g *Guardian) correlate() *contracts.Incident {
	if len(g.buffer) == 0 {
		return nil
	}

	head := g.buffer[len(g.buffer)-1]

	now := g.clock.Now()
	windowStart := now.Add(-g.window)

	var windowEvents []contracts.Event
	for _, e := range g.buffer {
		if !e.Timestamp.Before(windowStart) {
			windowEvents = append(windowEvents, e)
		}
	}

	if !shouldCreateIncident(windowEvents) {
		return nil
	}

	fingerprint := fingerprintOf(head)
	if _, exists := g.fingerprintMap[fingerprint]; exists {
		g.log.Debug("guardian: suppressing duplicate incident", zap.String("fingerprint", fingerprint))
		metrics.IncidentsDeduplicatedTotal.WithLabelValues(determineIncidentType(windowEvents)).Inc()
		return nil
	}

	incident := g.buildIncident(windowEvents, windowStart, now)
	g.fingerprintMap[fingerprint] = incident.IncidentID
	return &incident
}

// shouldCreateIncident requires at least one warning-or-worse event in the
// window — conservative, info-only bursts never correlate.
func shouldCreateIncident(events []contracts.Event) bool {
	for _, e := range events {
		if e.Severity.Rank() >= contracts.SeverityWarning.Rank() {
			return true
		}
	}
	return false
}

func (g *Guardian) buildIncident(events []contracts.Event, start, end time.Time) contracts.Incident {
	eventIDs := make([]string, len(events))
	maxSeverity := contracts.SeverityInfo
	for i, e := range events {
		eventIDs[i] = e.EventID
		if e.Severity.Rank() > maxSeverity.Rank() {
			maxSeverity = e.Severity
		}
	}

	incidentType := determineIncidentType(events)
	severity := contracts.IncidentSeverityFor(maxSeverity)

	return contracts.Incident{
		Version:      contracts.Version,
		IncidentID:   contracts.NewID(),
		Timestamp:    end,
		Source:       g.source,
		IncidentType: incidentType,
		Severity:     severity,
		EventIDs:     eventIDs,
		CorrelationWindow: contracts.CorrelationWindow{
			Start: start,
			End:   end,
		},
		State:       contracts.IncidentStateOpen,
		Description: fmt.Sprintf("Correlated %d event(s): %s", len(events), incidentType),
	}
}

// determineIncidentType applies the fixed event_type -> incident_type
// mapping from §4.2 step 5.
func determineIncidentType(events []contracts.Event) string {
	types := make(map[string]bool, len(events))
	for _, e := range events {
		types[e.EventType] = true
	}
	switch {
	case types["service_down"]:
		return "service_outage"
	case types["metric_threshold_exceeded"]:
		return "metric_anomaly"
	case types["edge_device_offline"]:
		return "edge_device_failure"
	default:
		return "correlation_detected"
	}
}

// fingerprintOf computes the 16-hex truncated SHA-256 fingerprint used for
// incident deduplication, over a stable, sorted subset of identifying
// fields.
func fingerprintOf(e contracts.Event) string {
	fields := map[string]string{
		"event_type": e.EventType,
		"source":     e.Source,
		"severity":   string(e.Severity),
	}
	if v, ok := e.Data["service_name"]; ok {
		fields["service_name"] = fmt.Sprint(v)
	}
	if v, ok := e.Data["resource_type"]; ok {
		fields["resource_type"] = fmt.Sprint(v)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		buf = append(buf, []byte(k+"="+fields[k]+";")...)
	}

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])[:16]
}
