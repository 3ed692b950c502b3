package council

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orion-sre/orion/internal/contracts"
)

func TestBuildPrompt_IncludesIncidentAndDecisionContext(t *testing.T) {
	req := Request{
		IncidentType:   "service_outage",
		Severity:       "high",
		Classification: contracts.SafetyClassificationRisky,
		DecisionType:   contracts.DecisionTypeRequestApproval,
		Reasoning:      "restart requires admin sign-off",
	}
	prompt := BuildPrompt(req)
	assert.Contains(t, prompt, "service_outage")
	assert.Contains(t, prompt, "high")
	assert.Contains(t, prompt, "RISKY")
	assert.Contains(t, prompt, "REQUEST_APPROVAL")
	assert.Contains(t, prompt, "restart requires admin sign-off")
}

func TestParseResponse_ExactFormat(t *testing.T) {
	v := ParseResponse("CONFIDENCE: 0.85\nCRITIQUE: Reasoning is sound and classification matches severity.")
	assert.InDelta(t, 0.85, v.Confidence, 0.001)
	assert.Equal(t, "Reasoning is sound and classification matches severity.", v.Critique)
}

func TestParseResponse_PercentAndFractionForms(t *testing.T) {
	assert.InDelta(t, 0.85, ParseResponse("CONFIDENCE: 85%\nCRITIQUE: ok").Confidence, 0.001)
	assert.InDelta(t, 0.85, ParseResponse("CONFIDENCE: 0.85/1.0\nCRITIQUE: ok").Confidence, 0.001)
}

func TestParseResponse_ClampsOutOfRangeValues(t *testing.T) {
	assert.InDelta(t, 1.0, ParseResponse("CONFIDENCE: 150\nCRITIQUE: ok").Confidence, 0.001)
	assert.InDelta(t, 0.0, ParseResponse("CONFIDENCE: -5\nCRITIQUE: ok").Confidence, 0.001)
}

func TestParseResponse_MalformedFallsBackToRawText(t *testing.T) {
	v := ParseResponse("the model just rambled without the expected fields")
	assert.Equal(t, 0.0, v.Confidence)
	assert.Equal(t, "the model just rambled without the expected fields", v.Critique)
}

func TestParseResponse_UnparsableConfidenceDefaultsToZero(t *testing.T) {
	v := ParseResponse("CONFIDENCE: not-a-number\nCRITIQUE: something")
	assert.Equal(t, 0.0, v.Confidence)
	assert.Equal(t, "something", v.Critique)
}
