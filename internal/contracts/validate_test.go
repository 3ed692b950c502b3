package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidEventPasses(t *testing.T) {
	v := NewValidator()
	ev := Event{
		Version:   Version,
		EventID:   NewID(),
		Timestamp: time.Now().UTC(),
		Source:    "watcher.host",
		EventType: "service_down",
		Severity:  SeverityCritical,
		Data:      map[string]interface{}{"service_name": "checkout"},
	}
	assert.NoError(t, v.Validate(KindEvent, ev))
}

func TestValidator_RejectsUnknownField(t *testing.T) {
	v := NewValidator()
	raw := map[string]interface{}{
		"version":    Version,
		"event_id":   NewID(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"source":     "watcher.host",
		"event_type": "service_down",
		"severity":   "critical",
		"data":       map[string]interface{}{},
		"extra_field": "not allowed",
	}
	err := v.Validate(KindEvent, raw)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, KindEvent, verr.Kind)
}

func TestValidator_RejectsEmptyRequiredField(t *testing.T) {
	v := NewValidator()
	ev := Event{
		Version:   Version,
		EventID:   "",
		Timestamp: time.Now().UTC(),
		Source:    "watcher.host",
		EventType: "service_down",
		Severity:  SeverityWarning,
		Data:      map[string]interface{}{},
	}
	assert.Error(t, v.Validate(KindEvent, ev), "empty event_id must fail minLength")
}

func TestValidator_RejectsUnknownSeverityEnum(t *testing.T) {
	v := NewValidator()
	raw := map[string]interface{}{
		"version":    Version,
		"event_id":   NewID(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"source":     "watcher.host",
		"event_type": "service_down",
		"severity":   "catastrophic",
		"data":       map[string]interface{}{},
	}
	assert.Error(t, v.Validate(KindEvent, raw))
}

func TestValidator_ValidatesAllSevenKinds(t *testing.T) {
	v := NewValidator()
	now := time.Now().UTC()

	event := Event{
		Version:   Version,
		EventID:   NewID(),
		Timestamp: now,
		Source:    "watcher.host",
		EventType: "service_down",
		Severity:  SeverityCritical,
		Data:      map[string]interface{}{"service_name": "checkout"},
	}
	assert.NoError(t, v.Validate(KindEvent, event))

	incident := Incident{
		Version:      Version,
		IncidentID:   NewID(),
		Timestamp:    now,
		Source:       "guardian",
		IncidentType: "service_outage",
		Severity:     IncidentSeverityHigh,
		EventIDs:     []string{NewID()},
		CorrelationWindow: CorrelationWindow{
			Start: now.Add(-time.Minute),
			End:   now,
		},
		State:       IncidentStateOpen,
		Description: "checkout service reporting down",
	}
	assert.NoError(t, v.Validate(KindIncident, incident))

	decision := Decision{
		Version:              Version,
		DecisionID:            NewID(),
		Timestamp:             now,
		Source:                "brain",
		IncidentID:            NewID(),
		DecisionType:          DecisionTypeExecuteSafeAction,
		SafetyClassification:  SafetyClassificationSafe,
		RequiresApproval:      false,
		Reasoning:             "known safe remediation",
		AutonomyLevel:         AutonomyN2,
		ProposedAction: &ProposedAction{
			ActionType: "acknowledge_incident",
		},
	}
	assert.NoError(t, v.Validate(KindDecision, decision))

	areq := ApprovalRequest{
		Version:           Version,
		ApprovalRequestID: NewID(),
		Timestamp:         now,
		Source:            "approval",
		DecisionID:        NewID(),
		ActionType:        "restart_service",
		RiskLevel:         "RISKY",
		RequestedAction:   ProposedAction{ActionType: "restart_service"},
		ExpiresAt:         now.Add(time.Hour),
		IncidentID:        NewID(),
	}
	assert.NoError(t, v.Validate(KindApprovalRequest, areq))

	adec := ApprovalDecision{
		Version:           Version,
		ApprovalID:        NewID(),
		Timestamp:         now,
		Source:            "approval",
		ApprovalRequestID: areq.ApprovalRequestID,
		DecisionID:        areq.DecisionID,
		Decision:          ApprovalApprove,
		AdminIdentity:     "orion-admin",
		Reason:            "confirmed with on-call",
		IssuedAt:          now,
		ExpiresAt:         now.Add(time.Hour),
	}
	assert.NoError(t, v.Validate(KindApprovalDecision, adec))

	action := Action{
		Version:              Version,
		ActionID:             NewID(),
		Timestamp:            now,
		Source:               "commander",
		DecisionID:           decision.DecisionID,
		ActionType:           "acknowledge_incident",
		SafetyClassification: SafetyClassificationSafe,
		State:                ActionStatePending,
		RollbackEnabled:      false,
		DryRun:               false,
	}
	assert.NoError(t, v.Validate(KindAction, action))

	outcome := Outcome{
		Version:         Version,
		OutcomeID:       NewID(),
		Timestamp:       now,
		Source:          "commander",
		ActionID:        action.ActionID,
		Status:          OutcomeSucceeded,
		ExecutionTimeMs: 12,
	}
	assert.NoError(t, v.Validate(KindOutcome, outcome))
}

func TestIncidentSeverityFor_NeverEscalatesBeyondSource(t *testing.T) {
	assert.Equal(t, IncidentSeverityLow, IncidentSeverityFor(SeverityInfo))
	assert.Equal(t, IncidentSeverityMedium, IncidentSeverityFor(SeverityWarning))
	assert.Equal(t, IncidentSeverityHigh, IncidentSeverityFor(SeverityError))
	assert.Equal(t, IncidentSeverityCritical, IncidentSeverityFor(SeverityCritical))
}

func TestSeverityRank_OrdersTotal(t *testing.T) {
	assert.True(t, SeverityInfo.Rank() < SeverityWarning.Rank())
	assert.True(t, SeverityWarning.Rank() < SeverityError.Rank())
	assert.True(t, SeverityError.Rank() < SeverityCritical.Rank())
	assert.Equal(t, -1, Severity("bogus").Rank())
}

func TestNewID_ProducesDistinctUUIDs(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
