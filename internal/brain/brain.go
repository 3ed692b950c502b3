// Package brain implements the reasoner: it subscribes to incidents, gates
// action choice on the configured autonomy level, and for N2/N3 consults the
// policy store, cooldown tracker, circuit breaker and (optionally) the
// council before publishing a decision. Modeled on
// original_source/core/brain/ (the N3+Council revision is treated as
// canonical, per the source tree's multiple Brain revisions).
package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/breaker"
	"github.com/orion-sre/orion/internal/bus"
	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/cooldown"
	"github.com/orion-sre/orion/internal/council"
	"github.com/orion-sre/orion/internal/metrics"
	"github.com/orion-sre/orion/internal/policy"
)

// ackIncidentAction is the only action the pure "action choice" function can
// select, per §4.6.
const ackIncidentAction = "acknowledge_incident"

// DefaultApprovalTimeout is how long an N3 approval_request stays valid.
const DefaultApprovalTimeout = 5 * time.Minute

// Council is the subset of the aggregator's orchestration Brain depends on.
type Council interface {
	ValidateDecisionFor(ctx context.Context, decisionType contracts.DecisionType, classification contracts.SafetyClassification, incidentType string, severity contracts.IncidentSeverity, reasoning string) (council.Result, float64, string)
}

// Brain turns incidents into decisions, gated by a fixed autonomy level.
type Brain struct {
	b              bus.Bus
	clock          clock.Clock
	log            *zap.Logger
	source         string
	autonomy       contracts.AutonomyLevel
	policy         *policy.Store
	cooldowns      *cooldown.Tracker
	breaker        *breaker.Breaker
	council        Council
	approvalTimeout time.Duration
}

// Option configures a Brain at construction.
type Option func(*Brain)

func WithSource(s string) Option                       { return func(b *Brain) { b.source = s } }
func WithPolicy(p *policy.Store) Option                 { return func(b *Brain) { b.policy = p } }
func WithCooldowns(c *cooldown.Tracker) Option           { return func(b *Brain) { b.cooldowns = c } }
func WithBreaker(br *breaker.Breaker) Option             { return func(b *Brain) { b.breaker = br } }
func WithCouncil(c Council) Option                       { return func(b *Brain) { b.council = c } }
func WithApprovalTimeout(d time.Duration) Option         { return func(b *Brain) { b.approvalTimeout = d } }

// New constructs a Brain fixed at autonomy level level.
func New(b bus.Bus, clk clock.Clock, log *zap.Logger, level contracts.AutonomyLevel, opts ...Option) *Brain {
	brain := &Brain{
		b:               b,
		clock:           clk,
		log:             log,
		source:          "orion-brain",
		autonomy:        level,
		approvalTimeout: DefaultApprovalTimeout,
	}
	for _, opt := range opts {
		opt(brain)
	}
	return brain
}

// Run subscribes to the incident stream and reasons forever until ctx is
// cancelled.
func (br *Brain) Run(ctx context.Context, group, consumer string) error {
	br.log.Info("brain: starting reasoning loop", zap.String("autonomy_level", string(br.autonomy)))
	return br.b.Subscribe(ctx, contracts.KindIncident, group, consumer, br.handle)
}

func (br *Brain) handle(ctx context.Context, msg bus.Message) error {
	var incident contracts.Incident
	if err := json.Unmarshal(msg.Data, &incident); err != nil {
		br.log.Error("brain: malformed incident", zap.Error(err))
		return fmt.Errorf("brain: unmarshal incident: %w", err)
	}

	decision, request := br.Decide(ctx, incident)

	if err := br.b.Publish(ctx, contracts.KindDecision, decision); err != nil {
		br.log.Error("brain: failed to publish decision", zap.String("decision_id", decision.DecisionID), zap.Error(err))
		return err
	}
	if request != nil {
		if err := br.b.Publish(ctx, contracts.KindApprovalRequest, *request); err != nil {
			br.log.Error("brain: failed to publish approval_request", zap.String("approval_request_id", request.ApprovalRequestID), zap.Error(err))
			return err
		}
	}
	return nil
}

// Decide reasons over incident and returns the decision to publish, plus a
// non-nil ApprovalRequest when (and only when) an N3 RISKY/UNKNOWN decision
// requires one. Exported for direct unit testing without going through the
// bus.
func (br *Brain) Decide(ctx context.Context, incident contracts.Incident) (contracts.Decision, *contracts.ApprovalRequest) {
	start := br.clock.Now()
	decision, request := br.reason(incident)

	if br.council != nil {
		decision, request = br.applyCouncil(ctx, incident, decision, request)
	}

	metrics.DecisionsTotal.WithLabelValues(string(decision.DecisionType), string(decision.AutonomyLevel), string(decision.SafetyClassification)).Inc()
	metrics.DecisionDuration.WithLabelValues(string(decision.DecisionType)).Observe(br.clock.Since(start).Seconds())
	return decision, request
}

func (br *Brain) chooseAction(incident contracts.Incident) *contracts.ProposedAction {
	switch incident.Severity {
	case contracts.IncidentSeverityMedium, contracts.IncidentSeverityHigh, contracts.IncidentSeverityCritical:
		return &contracts.ProposedAction{
			ActionType: ackIncidentAction,
			Parameters: map[string]interface{}{"incident_id": incident.IncidentID},
		}
	default:
		return nil
	}
}

func (br *Brain) newDecision(incident contracts.Incident, decisionType contracts.DecisionType, classification contracts.SafetyClassification, reasoning string, proposed *contracts.ProposedAction) contracts.Decision {
	return contracts.Decision{
		Version:              contracts.Version,
		DecisionID:           contracts.NewID(),
		Timestamp:            br.clock.Now(),
		Source:               br.source,
		IncidentID:           incident.IncidentID,
		DecisionType:         decisionType,
		SafetyClassification: classification,
		RequiresApproval:     decisionType == contracts.DecisionTypeRequestApproval,
		Reasoning:            reasoning,
		AutonomyLevel:        br.autonomy,
		ProposedAction:       proposed,
	}
}

// reason runs the N0/N2/N3 decision algorithm from §4.6, before any council
// involvement.
func (br *Brain) reason(incident contracts.Incident) (contracts.Decision, *contracts.ApprovalRequest) {
	if br.autonomy == contracts.AutonomyN0 {
		return br.newDecision(incident, contracts.DecisionTypeNoAction, contracts.SafetyClassificationSafe,
			"Autonomy level N0: observe only, no autonomous action taken.", nil), nil
	}

	proposed := br.chooseAction(incident)
	if proposed == nil {
		return br.newDecision(incident, contracts.DecisionTypeNoAction, contracts.SafetyClassificationSafe,
			fmt.Sprintf("Incident severity %q does not warrant action.", incident.Severity), nil), nil
	}

	classification := contracts.SafetyClassificationUnknown
	if br.policy != nil {
		classification = br.policy.Classify(proposed.ActionType)
	}

	switch classification {
	case contracts.SafetyClassificationRisky, contracts.SafetyClassificationUnknown:
		if br.autonomy == contracts.AutonomyN2 {
			reasoning := fmt.Sprintf("Action %q classified %s: suppressed at autonomy level N2 (no approval path).", proposed.ActionType, classification)
			return br.newDecision(incident, contracts.DecisionTypeNoAction, classification, reasoning, nil), nil
		}
		// N3: UNKNOWN is coerced to RISKY for the purpose of the approval path.
		return br.requestApproval(incident, proposed, contracts.SafetyClassificationRisky, classification)

	case contracts.SafetyClassificationSafe:
		return br.executeSafe(incident, proposed)
	}

	// Unreachable: Classify only returns the three cases above.
	return br.newDecision(incident, contracts.DecisionTypeNoAction, contracts.SafetyClassificationUnknown,
		"Unrecognized classification result.", nil), nil
}

func (br *Brain) executeSafe(incident contracts.Incident, proposed *contracts.ProposedAction) (contracts.Decision, *contracts.ApprovalRequest) {
	scopeKey := incident.IncidentID
	cooldownSecs := 0
	if br.policy != nil {
		cooldownSecs = br.policy.Cooldown(proposed.ActionType)
	}

	if br.cooldowns != nil && !br.cooldowns.Check(proposed.ActionType, cooldownSecs, scopeKey) {
		remaining := br.cooldowns.Remaining(proposed.ActionType, cooldownSecs, scopeKey)
		reasoning := fmt.Sprintf("Action %q on cooldown: %ds remaining.", proposed.ActionType, remaining)
		metrics.CooldownBlockedTotal.WithLabelValues(proposed.ActionType).Inc()
		return br.newDecision(incident, contracts.DecisionTypeNoAction, contracts.SafetyClassificationSafe, reasoning, nil), nil
	}

	if br.breaker != nil && br.breaker.IsOpen(proposed.ActionType) {
		reasoning := fmt.Sprintf("Circuit breaker OPEN for action %q: refusing to execute.", proposed.ActionType)
		return br.newDecision(incident, contracts.DecisionTypeNoAction, contracts.SafetyClassificationSafe, reasoning, nil), nil
	}

	// Cooldown is recorded before any council validation, deliberately:
	// council blocking does not refund rate budget.
	if br.cooldowns != nil {
		br.cooldowns.Record(proposed.ActionType, scopeKey)
	}

	reasoning := fmt.Sprintf("Action %q classified SAFE: executing at autonomy level %s.", proposed.ActionType, br.autonomy)
	return br.newDecision(incident, contracts.DecisionTypeExecuteSafeAction, contracts.SafetyClassificationSafe, reasoning, proposed), nil
}

func (br *Brain) requestApproval(incident contracts.Incident, proposed *contracts.ProposedAction, classification, originalClassification contracts.SafetyClassification) (contracts.Decision, *contracts.ApprovalRequest) {
	reasoning := fmt.Sprintf("Action %q classified %s: requesting admin approval at autonomy level N3.", proposed.ActionType, originalClassification)
	decision := br.newDecision(incident, contracts.DecisionTypeRequestApproval, classification, reasoning, proposed)

	request := &contracts.ApprovalRequest{
		Version:           contracts.Version,
		ApprovalRequestID: contracts.NewID(),
		Timestamp:         br.clock.Now(),
		Source:            br.source,
		DecisionID:        decision.DecisionID,
		ActionType:        proposed.ActionType,
		RiskLevel:         string(contracts.SafetyClassificationRisky),
		RequestedAction:   *proposed,
		ExpiresAt:         br.clock.Now().Add(br.approvalTimeout),
		IncidentID:        incident.IncidentID,
	}
	return decision, request
}

// applyCouncil validates decision through the council and applies its
// verdict per §4.6: APPROVED passes through unchanged, BLOCKED mutates to
// NO_ACTION with a prefixed reasoning and no proposed_action, and
// ESCALATE_TO_ADMIN logs but still publishes the decision unchanged. Any
// council failure is treated as BLOCKED (fail-closed).
func (br *Brain) applyCouncil(ctx context.Context, incident contracts.Incident, decision contracts.Decision, request *contracts.ApprovalRequest) (contracts.Decision, *contracts.ApprovalRequest) {
	if decision.DecisionType == contracts.DecisionTypeNoAction {
		return decision, request
	}

	result, confidence, critique := br.safeValidate(ctx, incident, decision)
	metrics.CouncilValidationsTotal.WithLabelValues(string(result)).Inc()

	switch result {
	case council.ResultApproved:
		return decision, request
	case council.ResultEscalateToAdmin:
		br.log.Warn("brain: council escalated decision to admin",
			zap.String("decision_id", decision.DecisionID), zap.Float64("confidence", confidence))
		return decision, request
	default: // BLOCKED, or any council failure mapped to BLOCKED by safeValidate
		blocked := decision
		blocked.DecisionType = contracts.DecisionTypeNoAction
		blocked.RequiresApproval = false
		blocked.ProposedAction = nil
		blocked.Reasoning = fmt.Sprintf("BLOCKED BY COUNCIL: %s. Original reasoning: %s", critique, decision.Reasoning)
		metrics.CouncilBlockedTotal.WithLabelValues(string(decision.DecisionType)).Inc()
		br.log.Warn("brain: council blocked decision", zap.String("decision_id", decision.DecisionID), zap.String("critique", critique))
		return blocked, nil
	}
}

// safeValidate calls the council and converts any panic into a BLOCKED
// verdict — Council implementations in this tree never panic, but the
// boundary is guarded anyway per §4.6's "any thrown failure: treat as
// BLOCKED".
func (br *Brain) safeValidate(ctx context.Context, incident contracts.Incident, decision contracts.Decision) (result council.Result, confidence float64, critique string) {
	defer func() {
		if r := recover(); r != nil {
			result = council.ResultBlocked
			confidence = 0.0
			critique = fmt.Sprintf("council panic: %v", r)
		}
	}()
	return br.council.ValidateDecisionFor(ctx, decision.DecisionType, decision.SafetyClassification, incident.IncidentType, incident.Severity, decision.Reasoning)
}
