// Package approval implements the Approval Coordinator: the human gate
// between an N3 REQUEST_APPROVAL decision and execution. Tracks pending
// requests and settled decisions keyed by approval_request_id, verifies
// channel-specific admin identity, and enforces that silence is never
// permission — expiry is checked both on ingest and on every admin
// operation. Modeled on
// original_source/core/approval/approval_coordinator.py.
package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/bus"
	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/metrics"
	"github.com/orion-sre/orion/internal/orionerr"
)

// DefaultApprovalTimeout is the validity window stamped onto a freshly
// issued ApprovalDecision.
const DefaultApprovalTimeout = 5 * time.Minute

// MinForceReasonLen is the minimum reason length required for a force
// decision — a longer justification bar than ordinary approve/deny.
const MinForceReasonLen = 10

// Coordinator tracks approval lifecycle and verifies admin identity before
// ruling on a pending request.
type Coordinator struct {
	b        bus.Bus
	clock    clock.Clock
	log      *zap.Logger
	identity *Identity
	source   string
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]contracts.ApprovalRequest
	settled map[string]contracts.ApprovalDecision
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

func WithSource(s string) Option                 { return func(c *Coordinator) { c.source = s } }
func WithApprovalTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// New constructs a Coordinator bound to identity for admin verification.
func New(b bus.Bus, clk clock.Clock, log *zap.Logger, identity *Identity, opts ...Option) *Coordinator {
	c := &Coordinator{
		b:        b,
		clock:    clk,
		log:      log,
		identity: identity,
		source:   "orion-approval-coordinator",
		timeout:  DefaultApprovalTimeout,
		pending:  make(map[string]contracts.ApprovalRequest),
		settled:  make(map[string]contracts.ApprovalDecision),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run subscribes to the approval_request stream and ingests requests until
// ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, group, consumer string) error {
	c.log.Info("approval: starting coordinator loop")
	return c.b.Subscribe(ctx, contracts.KindApprovalRequest, group, consumer, c.handle)
}

func (c *Coordinator) handle(ctx context.Context, msg bus.Message) error {
	var req contracts.ApprovalRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.log.Error("approval: malformed approval_request", zap.Error(err))
		return fmt.Errorf("approval: unmarshal approval_request: %w", err)
	}
	c.Ingest(req)
	return nil
}

// Ingest stores req as pending, unless it has already expired — in which
// case it is escalated (logged) and dropped immediately. Exported for
// direct unit testing without going through the bus.
func (c *Coordinator) Ingest(req contracts.ApprovalRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.clock.Now().Before(req.ExpiresAt) {
		c.escalateLocked(req, "expired before ingestion")
		return
	}

	c.pending[req.ApprovalRequestID] = req
	metrics.ApprovalRequestsTotal.WithLabelValues(req.ActionType, req.RiskLevel).Inc()
	c.log.Info("approval: request pending",
		zap.String("approval_request_id", req.ApprovalRequestID),
		zap.String("action_type", req.ActionType),
	)
}

// Approve grants a pending RISKY request. Returns orionerr.ErrIdentityMismatch,
// orionerr.ErrNotPending, orionerr.ErrExpired, or orionerr.ErrInvalidReason on
// rejection; no approval_decision is ever published for a rejected call.
func (c *Coordinator) Approve(ctx context.Context, requestID string, channel Channel, adminIdentity, reason string) (*contracts.ApprovalDecision, error) {
	return c.settle(ctx, requestID, channel, adminIdentity, contracts.ApprovalApprove, reason, false, false)
}

// Deny rejects a pending RISKY request; no action_id or overrides are
// attached, and no expiry check is performed beyond pending-lookup (a
// denial is always safe to apply even right before expiry).
func (c *Coordinator) Deny(ctx context.Context, requestID string, channel Channel, adminIdentity, reason string) (*contracts.ApprovalDecision, error) {
	return c.settle(ctx, requestID, channel, adminIdentity, contracts.ApprovalDeny, reason, false, false)
}

// Force grants a pending RISKY request while optionally overriding cooldown
// and/or circuit breaker state. Requires a reason of at least
// MinForceReasonLen characters.
func (c *Coordinator) Force(ctx context.Context, requestID string, channel Channel, adminIdentity, reason string, overrideBreaker, overrideCooldown bool) (*contracts.ApprovalDecision, error) {
	return c.settle(ctx, requestID, channel, adminIdentity, contracts.ApprovalForce, reason, overrideBreaker, overrideCooldown)
}

func (c *Coordinator) settle(ctx context.Context, requestID string, channel Channel, adminIdentity string, verdict contracts.ApprovalVerdict, reason string, overrideBreaker, overrideCooldown bool) (*contracts.ApprovalDecision, error) {
	if !c.identity.Verify(channel, adminIdentity) {
		c.log.Error("approval: identity mismatch, rejecting",
			zap.String("channel", string(channel)), zap.String("verdict", string(verdict)))
		return nil, orionerr.ErrIdentityMismatch
	}

	c.mu.Lock()
	req, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		c.log.Error("approval: request not found or already processed", zap.String("approval_request_id", requestID))
		return nil, orionerr.ErrNotPending
	}

	// Expiry is enforced here too (on consumption), not only at ingest:
	// no matter when the clock crosses expires_at, it cannot execute.
	if verdict != contracts.ApprovalDeny && !c.clock.Now().Before(req.ExpiresAt) {
		c.escalateLocked(req, "expired before consumption")
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, orionerr.ErrExpired
	}

	if err := validateReason(verdict, reason); err != nil {
		c.mu.Unlock()
		c.log.Error("approval: invalid reason, rejecting", zap.String("verdict", string(verdict)), zap.Error(err))
		return nil, err
	}

	timeout := c.timeout
	decision := c.buildDecision(req, verdict, adminIdentity, channel, reason, timeout, overrideBreaker, overrideCooldown)

	delete(c.pending, requestID)
	c.settled[requestID] = decision
	c.mu.Unlock()

	if verdict == contracts.ApprovalForce {
		c.log.Warn("approval: FORCE decision issued",
			zap.String("approval_id", decision.ApprovalID),
			zap.String("action_type", req.ActionType),
			zap.Bool("override_circuit_breaker", overrideBreaker),
			zap.Bool("override_cooldown", overrideCooldown),
		)
	}

	if err := c.b.Publish(ctx, contracts.KindApprovalDecision, decision); err != nil {
		// Publish failure does not unblock consumed state: the request stays
		// settled even if the bus write fails — the admin must re-issue.
		c.log.Error("approval: failed to publish approval_decision", zap.String("approval_id", decision.ApprovalID), zap.Error(err))
		return nil, err
	}

	metrics.ApprovalDecisionsTotal.WithLabelValues(string(verdict), string(channel)).Inc()
	metrics.ApprovalLatency.WithLabelValues(string(verdict)).Observe(c.clock.Since(req.Timestamp).Seconds())

	c.log.Info("approval: decision published",
		zap.String("approval_id", decision.ApprovalID),
		zap.String("verdict", string(verdict)),
		zap.String("action_type", req.ActionType),
	)
	return &decision, nil
}

func validateReason(verdict contracts.ApprovalVerdict, reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return orionerr.ErrInvalidReason
	}
	if verdict == contracts.ApprovalForce && len(trimmed) < MinForceReasonLen {
		return orionerr.ErrInvalidReason
	}
	return nil
}

func (c *Coordinator) buildDecision(req contracts.ApprovalRequest, verdict contracts.ApprovalVerdict, adminIdentity string, channel Channel, reason string, timeout time.Duration, overrideBreaker, overrideCooldown bool) contracts.ApprovalDecision {
	now := c.clock.Now()
	decision := contracts.ApprovalDecision{
		Version:           contracts.Version,
		ApprovalID:        contracts.NewID(),
		Timestamp:         now,
		Source:            fmt.Sprintf("orion-approval-%s", channel),
		ApprovalRequestID: req.ApprovalRequestID,
		DecisionID:        req.DecisionID,
		Decision:          verdict,
		AdminIdentity:     adminIdentity,
		Reason:            reason,
		IssuedAt:          now,
		ExpiresAt:         now.Add(timeout),
	}
	if verdict == contracts.ApprovalApprove || verdict == contracts.ApprovalForce {
		decision.ActionID = contracts.NewID()
	}
	if verdict == contracts.ApprovalForce {
		decision.OverrideCircuitBreaker = overrideBreaker
		decision.OverrideCooldown = overrideCooldown
	}
	return decision
}

// escalateLocked logs an ESCALATION entry for a timed-out request. Must be
// called with c.mu held. Never publishes anything — timeout means
// inaction, not execution.
func (c *Coordinator) escalateLocked(req contracts.ApprovalRequest, reason string) {
	metrics.ApprovalExpiredTotal.WithLabelValues(req.ActionType).Inc()
	c.log.Error("approval: ESCALATION — request timed out, action NOT executed",
		zap.String("approval_request_id", req.ApprovalRequestID),
		zap.String("action_type", req.ActionType),
		zap.String("reason", reason),
	)
}

// SweepExpired scans pending requests for ones whose expiry has passed,
// escalating and removing each. Intended to be called periodically.
func (c *Coordinator) SweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for id, req := range c.pending {
		if !now.Before(req.ExpiresAt) {
			c.escalateLocked(req, "timeout sweep")
			delete(c.pending, id)
		}
	}
}

// PendingCount reports how many requests are currently awaiting a decision,
// for observability and tests.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
