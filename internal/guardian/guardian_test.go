package guardian

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/testsupport"
)

func newTestGuardian(t *testing.T, fc *clock.Fake, opts ...Option) *Guardian {
	t.Helper()
	b := testsupport.NewMemBus(contracts.NewValidator())
	return New(b, fc, zap.NewNop(), opts...)
}

func baseEvent(eventType string, sev contracts.Severity, ts time.Time) contracts.Event {
	return contracts.Event{
		Version:   contracts.Version,
		EventID:   contracts.NewID(),
		Timestamp: ts,
		Source:    "test-source",
		EventType: eventType,
		Severity:  sev,
		Data:      map[string]interface{}{"service_name": "checkout"},
	}
}

func TestHandleEvent_InfoOnlyNeverCorrelates(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := newTestGuardian(t, fc)

	incident := g.HandleEvent(baseEvent("metric_threshold_exceeded", contracts.SeverityInfo, fc.Now()))
	assert.Nil(t, incident)
}

func TestHandleEvent_WarningCorrelatesIntoIncident(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := newTestGuardian(t, fc)

	incident := g.HandleEvent(baseEvent("metric_threshold_exceeded", contracts.SeverityWarning, fc.Now()))
	require.NotNil(t, incident)
	assert.Equal(t, "metric_anomaly", incident.IncidentType)
	assert.Equal(t, contracts.IncidentSeverityFor(contracts.SeverityWarning), incident.Severity)
	assert.Equal(t, contracts.IncidentStateOpen, incident.State)
	assert.Len(t, incident.EventIDs, 1)
}

func TestHandleEvent_DuplicateFingerprintSuppressed(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := newTestGuardian(t, fc)

	first := g.HandleEvent(baseEvent("metric_threshold_exceeded", contracts.SeverityError, fc.Now()))
	require.NotNil(t, first)

	fc.Advance(5 * time.Second)
	second := g.HandleEvent(baseEvent("metric_threshold_exceeded", contracts.SeverityError, fc.Now()))
	assert.Nil(t, second, "identical fingerprint within the window must be deduplicated")
}

func TestHandleEvent_OutsideWindowIsNotCorrelated(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := newTestGuardian(t, fc, WithWindow(60*time.Second))

	stale := baseEvent("metric_threshold_exceeded", contracts.SeverityWarning, fc.Now())
	g.buffer = append(g.buffer, stale)

	fc.Advance(61 * time.Second)
	incident := g.HandleEvent(baseEvent("edge_device_offline", contracts.SeverityInfo, fc.Now()))
	assert.Nil(t, incident, "an info-only event alone in the window must not correlate")
}

func TestHandleEvent_BufferIsBounded(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := newTestGuardian(t, fc, WithBufferSize(3))

	for i := 0; i < 10; i++ {
		g.HandleEvent(baseEvent("metric_threshold_exceeded", contracts.SeverityInfo, fc.Now()))
	}
	assert.Len(t, g.buffer, 3)
}

func TestDetermineIncidentType(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{"service_down", "service_outage"},
		{"metric_threshold_exceeded", "metric_anomaly"},
		{"edge_device_offline", "edge_device_failure"},
		{"something_else", "correlation_detected"},
	}
	for _, c := range cases {
		events := []contracts.Event{{EventType: c.eventType}}
		assert.Equal(t, c.want, determineIncidentType(events))
	}
}

func TestFingerprintOf_StableForIdenticalFields(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := baseEvent("metric_threshold_exceeded", contracts.SeverityWarning, ts)
	b := baseEvent("metric_threshold_exceeded", contracts.SeverityWarning, ts.Add(time.Minute))
	b.EventID = contracts.NewID()

	assert.Equal(t, fingerprintOf(a), fingerprintOf(b), "fingerprint must ignore timestamp and event_id")
}
