package commander

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/testsupport"
)

type fakeExecutor struct {
	executeErr  error
	rollbackErr error
	result      map[string]interface{}
}

func (f *fakeExecutor) Execute(ctx context.Context, action contracts.Action) (map[string]interface{}, error) {
	return f.result, f.executeErr
}

func (f *fakeExecutor) Rollback(ctx context.Context, action contracts.Action) error {
	return f.rollbackErr
}

func newTestCommander(t *testing.T, fc *clock.Fake, executors map[string]Executor) (*Commander, *testsupport.MemBus) {
	t.Helper()
	b := testsupport.NewMemBus(contracts.NewValidator())
	c := New(b, fc, zap.NewNop(), nil, executors)
	return c, b
}

func safeDecision(actionType string) contracts.Decision {
	return contracts.Decision{
		Version:              contracts.Version,
		DecisionID:           contracts.NewID(),
		Timestamp:            time.Now().UTC(),
		Source:               "brain",
		IncidentID:           contracts.NewID(),
		DecisionType:         contracts.DecisionTypeExecuteSafeAction,
		SafetyClassification: contracts.SafetyClassificationSafe,
		Reasoning:            "known safe remediation path",
		AutonomyLevel:        contracts.AutonomyN2,
		ProposedAction:       &contracts.ProposedAction{ActionType: actionType},
	}
}

func TestHandleDecision_ExecuteSafeSucceedsAndPublishesOutcome(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	executors := map[string]Executor{
		"acknowledge_incident": &fakeExecutor{result: map[string]interface{}{"ok": true}},
	}
	c, b := newTestCommander(t, fc, executors)

	err := c.HandleDecision(context.Background(), safeDecision("acknowledge_incident"))
	require.NoError(t, err)

	msgs, err := b.Read(context.Background(), contracts.KindOutcome, "-", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var outcome contracts.Outcome
	require.NoError(t, json.Unmarshal(msgs[0].Data, &outcome))
	assert.Equal(t, contracts.OutcomeSucceeded, outcome.Status)
}

func TestHandleDecision_ExecuteSafeFailsAndRollsBack(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	executors := map[string]Executor{
		"acknowledge_incident": &fakeExecutor{executeErr: assertError("boom")},
	}
	c, b := newTestCommander(t, fc, executors)

	err := c.HandleDecision(context.Background(), safeDecision("acknowledge_incident"))
	require.NoError(t, err)

	msgs, err := b.Read(context.Background(), contracts.KindOutcome, "-", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var outcome contracts.Outcome
	require.NoError(t, json.Unmarshal(msgs[0].Data, &outcome))
	assert.Equal(t, contracts.OutcomeRolledBack, outcome.Status)
	assert.True(t, outcome.RollbackExecuted)
}

func TestHandleDecision_UnknownExecutorFailsClosed(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c, b := newTestCommander(t, fc, map[string]Executor{})

	err := c.HandleDecision(context.Background(), safeDecision("restart_service"))
	require.NoError(t, err)

	msgs, err := b.Read(context.Background(), contracts.KindOutcome, "-", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var outcome contracts.Outcome
	require.NoError(t, json.Unmarshal(msgs[0].Data, &outcome))
	assert.Equal(t, contracts.OutcomeFailed, outcome.Status)
	require.NotNil(t, outcome.Error)
}

func TestHandleDecision_RequestApprovalWithoutApprovalDoesNothing(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	executors := map[string]Executor{"restart_service": &fakeExecutor{}}
	c, b := newTestCommander(t, fc, executors)

	decision := safeDecision("restart_service")
	decision.DecisionType = contracts.DecisionTypeRequestApproval

	err := c.HandleDecision(context.Background(), decision)
	require.NoError(t, err)

	msgs, err := b.Read(context.Background(), contracts.KindOutcome, "-", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 0, "no outcome until a matching approval arrives")
}

func TestHandleDecision_RequestApprovalExecutesOnceApproved(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	executors := map[string]Executor{"restart_service": &fakeExecutor{result: map[string]interface{}{"done": true}}}
	c, b := newTestCommander(t, fc, executors)

	decision := safeDecision("restart_service")
	decision.DecisionType = contracts.DecisionTypeRequestApproval

	approval := contracts.ApprovalDecision{
		Version:           contracts.Version,
		ApprovalID:        contracts.NewID(),
		Timestamp:         fc.Now(),
		Source:            "approval",
		ApprovalRequestID: contracts.NewID(),
		DecisionID:        decision.DecisionID,
		Decision:          contracts.ApprovalApprove,
		AdminIdentity:     "orion-admin",
		Reason:            "confirmed with on-call",
		IssuedAt:          fc.Now(),
		ExpiresAt:         fc.Now().Add(time.Hour),
	}
	c.IngestApproval(approval)

	err := c.HandleDecision(context.Background(), decision)
	require.NoError(t, err)

	msgs, err := b.Read(context.Background(), contracts.KindOutcome, "-", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var outcome contracts.Outcome
	require.NoError(t, json.Unmarshal(msgs[0].Data, &outcome))
	assert.Equal(t, contracts.OutcomeSucceeded, outcome.Status)

	// the approval is one-time use: a second attempt finds nothing to consume.
	err = c.HandleDecision(context.Background(), decision)
	require.NoError(t, err)
	msgs, err = b.Read(context.Background(), contracts.KindOutcome, "-", 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "the approval must not be reusable")
}

func TestIngestApproval_DropsExpiredAndNonApproveVerdicts(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c, _ := newTestCommander(t, fc, map[string]Executor{})

	denied := contracts.ApprovalDecision{
		DecisionID: "d1", Decision: contracts.ApprovalDeny,
		ApprovalRequestID: "r1", ExpiresAt: fc.Now().Add(time.Hour),
	}
	c.IngestApproval(denied)
	_, _, ok := c.findApproval("d1")
	assert.False(t, ok, "a deny verdict must never be stored as executable")

	expired := contracts.ApprovalDecision{
		DecisionID: "d2", Decision: contracts.ApprovalApprove,
		ApprovalRequestID: "r2", ExpiresAt: fc.Now().Add(-time.Minute),
	}
	c.IngestApproval(expired)
	_, _, ok = c.findApproval("d2")
	assert.False(t, ok, "an already-expired approval must not be stored")
}

// assertError is a tiny helper to avoid importing errors just for one call.
type assertError string

func (e assertError) Error() string { return string(e) }
