package council

import (
	"context"

	"github.com/orion-sre/orion/internal/contracts"
)

// Aggregator is the subset of aggregate.Aggregator's orchestration Brain
// depends on, expressed here (rather than imported directly) to avoid a
// dependency cycle between council and council/aggregate.
type Aggregator interface {
	ValidateDecision(ctx context.Context, req Request, local LocalValidator, external ExternalValidator) (Result, float64, string)
}

// LocalValidator is the local council's Validate method.
type LocalValidator interface {
	Validate(ctx context.Context, req Request) Validation
}

// ExternalValidator is the external council's parallel-dispatch method.
type ExternalValidator interface {
	ValidateParallel(ctx context.Context, req Request) []Validation
}

// Orchestrator adapts an Aggregator plus its two validators into the single
// ValidateDecisionFor call the Brain depends on.
type Orchestrator struct {
	Aggregator Aggregator
	Local      LocalValidator
	External   ExternalValidator
}

// ValidateDecisionFor builds a Request from the Brain's decision fields and
// incident context, then runs the full staged validation.
func (o *Orchestrator) ValidateDecisionFor(ctx context.Context, decisionType contracts.DecisionType, classification contracts.SafetyClassification, incidentType string, severity contracts.IncidentSeverity, reasoning string) (Result, float64, string) {
	req := Request{
		IncidentType:   incidentType,
		Severity:       string(severity),
		Classification: classification,
		DecisionType:   decisionType,
		Reasoning:      reasoning,
	}
	return o.Aggregator.ValidateDecision(ctx, req, o.Local, o.External)
}
