// Package council defines the shared types the three council sub-packages
// (local, external, aggregate) exchange: a validation request built from a
// Decision/Incident pair, a (confidence, critique) Validation, and the
// response-parsing helper common to both the local and external validators.
package council

import (
	"strconv"
	"strings"

	"github.com/orion-sre/orion/internal/contracts"
)

// Request is the context every validator evaluates, assembled from a Brain
// decision and the incident it responds to.
type Request struct {
	IncidentType string
	Severity     string
	Classification contracts.SafetyClassification
	DecisionType contracts.DecisionType
	Reasoning    string
}

// Validation is one validator's (confidence, critique) judgment.
type Validation struct {
	Confidence float64
	Critique   string
}

// Result is the aggregator's final verdict.
type Result string

const (
	ResultApproved        Result = "APPROVED"
	ResultBlocked         Result = "BLOCKED"
	ResultEscalateToAdmin Result = "ESCALATE_TO_ADMIN"
)

// BuildPrompt renders the shared validation prompt both the local and
// external validators send to their respective models.
func BuildPrompt(r Request) string {
	var b strings.Builder
	b.WriteString("You are a safety validator for an autonomous system called ORION.\n\n")
	b.WriteString("TASK: Evaluate if this decision is correctly classified and reasoned.\n\n")
	b.WriteString("INCIDENT CONTEXT:\n")
	b.WriteString("- Type: " + r.IncidentType + "\n")
	b.WriteString("- Severity: " + r.Severity + "\n\n")
	b.WriteString("BRAIN DECISION:\n")
	b.WriteString("- Classification: " + string(r.Classification) + "\n")
	b.WriteString("- Decision Type: " + string(r.DecisionType) + "\n")
	b.WriteString("- Reasoning: " + r.Reasoning + "\n\n")
	b.WriteString("EVALUATE:\n")
	b.WriteString("1. Is the SAFE/RISKY classification appropriate for this incident?\n")
	b.WriteString("2. Does the reasoning logically follow from the incident context?\n")
	b.WriteString("3. Are there any safety concerns with this decision?\n\n")
	b.WriteString("RESPOND IN THIS EXACT FORMAT:\n")
	b.WriteString("CONFIDENCE: [0.0-1.0 score]\n")
	b.WriteString("CRITIQUE: [Your brief evaluation in 1-2 sentences]\n\n")
	b.WriteString("Be conservative - when uncertain, report lower confidence. Safety is paramount.")
	return b.String()
}

// ParseResponse extracts a (confidence, critique) Validation from a model
// response of the exact form "CONFIDENCE: <float>\nCRITIQUE: <text>".
// Accepts "0.85", "85%", "0.85/1.0"; clamps to [0,1]. A response with
// neither line intact falls back to the raw trimmed text as the critique
// and zero confidence.
func ParseResponse(text string) Validation {
	critique := strings.TrimSpace(text)
	confidence := 0.0

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(upper, "CONFIDENCE:"):
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				confidence = parseConfidence(parts[1])
			}
		case strings.HasPrefix(upper, "CRITIQUE:"):
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				critique = strings.TrimSpace(parts[1])
			}
		}
	}

	return Validation{Confidence: confidence, Critique: critique}
}

func parseConfidence(raw string) float64 {
	v := strings.TrimSpace(raw)
	v = strings.ReplaceAll(v, "%", "")
	v = strings.SplitN(v, "/", 2)[0]
	v = strings.TrimSpace(v)

	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0.0
	}
	if parsed > 1.0 {
		parsed = parsed / 100.0
	}
	if parsed < 0 {
		return 0
	}
	if parsed > 1 {
		return 1
	}
	return parsed
}
