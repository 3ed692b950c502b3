package commander

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/clock"
	"github.com/orion-sre/orion/internal/contracts"
)

// AcknowledgeIncident executes the one action type this tree's Brain ever
// proposes: recording that an incident has been acknowledged. It is
// idempotent — two successive executions against the same incident both
// succeed and report the same incident_id in their result, per §8's
// round-trip laws. Modeled on commander.py's
// _execute_acknowledge_incident / _rollback_acknowledge_incident.
type AcknowledgeIncident struct {
	clock clock.Clock
	log   *zap.Logger
}

// NewAcknowledgeIncident constructs the acknowledge_incident executor.
func NewAcknowledgeIncident(clk clock.Clock, log *zap.Logger) *AcknowledgeIncident {
	return &AcknowledgeIncident{clock: clk, log: log}
}

func (a *AcknowledgeIncident) Execute(ctx context.Context, action contracts.Action) (map[string]interface{}, error) {
	incidentID, _ := action.Parameters["incident_id"].(string)
	if incidentID == "" {
		return nil, fmt.Errorf("acknowledge_incident: missing incident_id parameter")
	}

	a.log.Info("commander: acknowledging incident", zap.String("incident_id", incidentID))

	acknowledgment := map[string]interface{}{
		"incident_id":      incidentID,
		"acknowledged_at":   a.clock.Now(),
		"acknowledged_by":   "orion-brain",
		"action_id":         action.ActionID,
	}

	return map[string]interface{}{
		"incident_id":   incidentID,
		"acknowledgment": acknowledgment,
		"message":        "Incident acknowledged (audit trail updated)",
	}, nil
}

func (a *AcknowledgeIncident) Rollback(ctx context.Context, action contracts.Action) error {
	incidentID, _ := action.Parameters["incident_id"].(string)
	a.log.Info("commander: rolling back acknowledgment", zap.String("incident_id", incidentID))
	return nil
}
