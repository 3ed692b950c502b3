// Package commander implements the executor: it turns SAFE and
// admin-approved RISKY decisions into Actions, runs them, and always
// publishes an Outcome — rolling back on failure. Modeled on
// original_source/core/commander/commander.py.
package commander

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/bus"
	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/metrics"
	"github.com/orion-sre/orion/internal/orionerr"
	"github.com/orion-sre/orion/internal/policy"
)

// Executor runs one action type to completion. Implementations must be
// idempotent where the action semantics require it (acknowledge_incident
// is idempotent per §8's round-trip laws).
type Executor interface {
	Execute(ctx context.Context, action contracts.Action) (result map[string]interface{}, err error)
	Rollback(ctx context.Context, action contracts.Action) error
}

// Commander subscribes to decision and approval_decision, and emits
// outcome.
type Commander struct {
	b      bus.Bus
	clock  clock.Clock
	log    *zap.Logger
	policy *policy.Store
	source string

	executors map[string]Executor

	mu               sync.Mutex
	pendingApprovals map[string]contracts.ApprovalDecision // keyed by approval_request_id
}

// Option configures a Commander at construction.
type Option func(*Commander)

func WithSource(s string) Option { return func(c *Commander) { c.source = s } }

// New constructs a Commander. executors maps action_type to the Executor
// that runs it; acknowledge_incident should always be registered.
func New(b bus.Bus, clk clock.Clock, log *zap.Logger, p *policy.Store, executors map[string]Executor, opts ...Option) *Commander {
	c := &Commander{
		b:                b,
		clock:            clk,
		log:              log,
		policy:           p,
		source:           "orion-commander",
		executors:        executors,
		pendingApprovals: make(map[string]contracts.ApprovalDecision),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes to both the decision and approval_decision streams and
// executes until ctx is cancelled. Both subscriptions share ctx's
// cancellation but run as independent consumer groups, per §5's "no
// ordering guarantee across streams".
func (c *Commander) Run(ctx context.Context, decisionGroup, decisionConsumer, approvalGroup, approvalConsumer string) error {
	c.log.Info("commander: starting execution loop")

	errCh := make(chan error, 2)
	go func() { errCh <- c.b.Subscribe(ctx, contracts.KindDecision, decisionGroup, decisionConsumer, c.handleDecision) }()
	go func() { errCh <- c.b.Subscribe(ctx, contracts.KindApprovalDecision, approvalGroup, approvalConsumer, c.handleApprovalDecision) }()

	err := <-errCh
	<-errCh
	return err
}

func (c *Commander) handleApprovalDecision(ctx context.Context, msg bus.Message) error {
	var decision contracts.ApprovalDecision
	if err := json.Unmarshal(msg.Data, &decision); err != nil {
		c.log.Error("commander: malformed approval_decision", zap.Error(err))
		return fmt.Errorf("commander: unmarshal approval_decision: %w", err)
	}
	c.IngestApproval(decision)
	return nil
}

// IngestApproval stores decision for later correlation with a matching
// REQUEST_APPROVAL decision, unless it is not approve/force or has already
// expired. Exported for direct unit testing.
func (c *Commander) IngestApproval(decision contracts.ApprovalDecision) {
	if decision.Decision != contracts.ApprovalApprove && decision.Decision != contracts.ApprovalForce {
		return
	}
	if !c.clock.Now().Before(decision.ExpiresAt) {
		c.log.Warn("commander: approval decision already expired, dropping", zap.String("approval_id", decision.ApprovalID))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingApprovals[decision.ApprovalRequestID] = decision
}

func (c *Commander) handleDecision(ctx context.Context, msg bus.Message) error {
	var decision contracts.Decision
	if err := json.Unmarshal(msg.Data, &decision); err != nil {
		c.log.Error("commander: malformed decision", zap.Error(err))
		return fmt.Errorf("commander: unmarshal decision: %w", err)
	}
	return c.HandleDecision(ctx, decision)
}

// HandleDecision dispatches decision per §4.9 and publishes an outcome for
// every action it actually executes. Exported for direct unit testing.
func (c *Commander) HandleDecision(ctx context.Context, decision contracts.Decision) error {
	switch decision.DecisionType {
	case contracts.DecisionTypeExecuteSafeAction:
		return c.handleExecuteSafe(ctx, decision)
	case contracts.DecisionTypeRequestApproval:
		return c.handleRequestApproval(ctx, decision)
	default:
		return nil
	}
}

func (c *Commander) handleExecuteSafe(ctx context.Context, decision contracts.Decision) error {
	if decision.ProposedAction == nil {
		c.log.Error("commander: EXECUTE_SAFE_ACTION with no proposed_action", zap.String("decision_id", decision.DecisionID))
		return nil
	}
	actionType := decision.ProposedAction.ActionType

	if c.policy != nil && !c.policy.IsSafe(actionType) {
		c.log.Error("commander: refusing to execute, not SAFE", zap.String("action_type", actionType), zap.String("decision_id", decision.DecisionID))
		return nil
	}

	action := c.newAction(decision, "")
	return c.executeAndPublish(ctx, action)
}

func (c *Commander) handleRequestApproval(ctx context.Context, decision contracts.Decision) error {
	if decision.ProposedAction == nil {
		c.log.Error("commander: REQUEST_APPROVAL with no proposed_action", zap.String("decision_id", decision.DecisionID))
		return nil
	}

	approval, requestID, ok := c.findApproval(decision.DecisionID)
	if !ok {
		c.log.Warn("commander: no valid approval found, not executing", zap.String("decision_id", decision.DecisionID))
		return nil
	}

	if approval.Decision == contracts.ApprovalForce {
		c.log.Warn("commander: executing FORCED action",
			zap.String("approval_id", approval.ApprovalID),
			zap.Bool("override_circuit_breaker", approval.OverrideCircuitBreaker),
			zap.Bool("override_cooldown", approval.OverrideCooldown),
		)
	} else {
		c.log.Info("commander: executing approved RISKY action", zap.String("approval_id", approval.ApprovalID))
	}

	action := c.newAction(decision, approval.ApprovalID)
	err := c.executeAndPublish(ctx, action)

	// Consume the approval — one-time use — regardless of execution outcome.
	c.mu.Lock()
	delete(c.pendingApprovals, requestID)
	c.mu.Unlock()

	return err
}

// findApproval matches a stored approval by decision_id, and purges it if
// found but expired — correlating by decision_id even though the map is
// keyed by approval_request_id, per §4.9's Open Question (a) resolution.
func (c *Commander) findApproval(decisionID string) (contracts.ApprovalDecision, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for reqID, appr := range c.pendingApprovals {
		if appr.DecisionID != decisionID {
			continue
		}
		if !c.clock.Now().Before(appr.ExpiresAt) {
			c.log.Error("commander: approval expired, cannot execute", zap.String("approval_id", appr.ApprovalID))
			delete(c.pendingApprovals, reqID)
			return contracts.ApprovalDecision{}, "", false
		}
		return appr, reqID, true
	}
	return contracts.ApprovalDecision{}, "", false
}

func (c *Commander) newAction(decision contracts.Decision, approvalID string) contracts.Action {
	return contracts.Action{
		Version:              contracts.Version,
		ActionID:             contracts.NewID(),
		Timestamp:            c.clock.Now(),
		Source:               c.source,
		DecisionID:           decision.DecisionID,
		ActionType:           decision.ProposedAction.ActionType,
		SafetyClassification: decision.SafetyClassification,
		State:                contracts.ActionStatePending,
		Parameters:           decision.ProposedAction.Parameters,
		RollbackEnabled:      true,
		DryRun:               false,
		ApprovalID:           approvalID,
	}
}

// executeAndPublish runs action through its registered Executor, measures
// execution time, attempts rollback on failure, and always publishes an
// outcome.
func (c *Commander) executeAndPublish(ctx context.Context, action contracts.Action) error {
	outcome := c.execute(ctx, action)
	if err := c.b.Publish(ctx, contracts.KindOutcome, outcome); err != nil {
		c.log.Error("commander: failed to publish outcome", zap.String("outcome_id", outcome.OutcomeID), zap.Error(err))
		return err
	}
	c.log.Info("commander: published outcome",
		zap.String("outcome_id", outcome.OutcomeID),
		zap.String("action_id", action.ActionID),
		zap.String("status", string(outcome.Status)),
	)
	return nil
}

func (c *Commander) execute(ctx context.Context, action contracts.Action) contracts.Outcome {
	start := c.clock.Now()
	c.log.Info("commander: executing action", zap.String("action_id", action.ActionID), zap.String("action_type", action.ActionType))

	executor, ok := c.executors[action.ActionType]
	if !ok {
		return c.outcomeFor(action, start, contracts.OutcomeFailed, nil, &contracts.OutcomeError{
			Code:    "EXECUTION_FAILED",
			Message: orionerr.ErrUnknownAction.Error(),
			Details: map[string]interface{}{"action_type": action.ActionType},
		}, false)
	}

	result, err := executor.Execute(ctx, action)
	if err == nil {
		return c.outcomeFor(action, start, contracts.OutcomeSucceeded, result, nil, false)
	}

	c.log.Error("commander: action failed, attempting rollback", zap.String("action_id", action.ActionID), zap.Error(err))

	rollbackErr := executor.Rollback(ctx, action)
	status := contracts.OutcomeRolledBack
	rolledBack := true
	if rollbackErr != nil {
		c.log.Error("commander: rollback failed", zap.String("action_id", action.ActionID), zap.Error(rollbackErr))
		status = contracts.OutcomeFailed
		rolledBack = false
	} else {
		metrics.ActionsRolledBackTotal.WithLabelValues(action.ActionType).Inc()
	}

	outErr := &contracts.OutcomeError{
		Code:    "EXECUTION_FAILED",
		Message: err.Error(),
		Details: map[string]interface{}{"action_type": action.ActionType},
	}
	return c.outcomeFor(action, start, status, nil, outErr, rolledBack)
}

func (c *Commander) outcomeFor(action contracts.Action, start time.Time, status contracts.OutcomeStatus, result map[string]interface{}, outErr *contracts.OutcomeError, rolledBack bool) contracts.Outcome {
	elapsed := c.clock.Since(start)
	metrics.ActionsExecutedTotal.WithLabelValues(action.ActionType, string(status)).Inc()
	metrics.ActionExecutionDuration.WithLabelValues(action.ActionType).Observe(elapsed.Seconds())
	outcome := contracts.Outcome{
		Version:         contracts.Version,
		OutcomeID:       contracts.NewID(),
		Timestamp:       c.clock.Now(),
		Source:          c.source,
		ActionID:        action.ActionID,
		Status:          status,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Result:          result,
		Error:           outErr,
	}
	if status == contracts.OutcomeRolledBack {
		outcome.RollbackExecuted = rolledBack
	}
	return outcome
}
