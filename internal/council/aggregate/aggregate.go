// Package aggregate implements the Council's Consensus Aggregator:
// confidence-weighted voting, a safety veto that dominates aggregation, and
// the staged-validation orchestration across the local and external
// validators. Modeled on
// original_source/core/council/consensus_aggregator.py.
package aggregate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/contracts"
	"github.com/orion-sre/orion/internal/council"
)

const (
	DefaultConfidenceThreshold = 0.7
	DefaultSafetyVetoThreshold = 0.8
)

var (
	blockKeywords  = []string{"block", "blocked", "unsafe", "risky", "concern", "reject", "invalid", "dangerous", "error"}
	approveKeywords = []string{"approve", "approved", "safe", "correct", "valid", "agree", "confident"}
	safetyKeywords = []string{"unsafe", "risky", "concern", "dangerous", "violation", "hazard"}
)

// Aggregator orchestrates staged validation and combines votes.
type Aggregator struct {
	confidenceThreshold float64
	safetyVetoThreshold float64
	log                 *zap.Logger
}

// Option configures an Aggregator at construction.
type Option func(*Aggregator)

func WithConfidenceThreshold(t float64) Option { return func(a *Aggregator) { a.confidenceThreshold = t } }
func WithSafetyVetoThreshold(t float64) Option { return func(a *Aggregator) { a.safetyVetoThreshold = t } }

// New constructs an Aggregator with the default thresholds.
func New(log *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		confidenceThreshold: DefaultConfidenceThreshold,
		safetyVetoThreshold: DefaultSafetyVetoThreshold,
		log:                 log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ShouldEscalate reports whether local confidence is too low, or the
// decision is RISKY, to skip external validation.
func (a *Aggregator) ShouldEscalate(localConfidence float64, classification contracts.SafetyClassification) bool {
	if localConfidence < a.confidenceThreshold {
		return true
	}
	return classification == contracts.SafetyClassificationRisky
}

// parseCritiqueVote returns 1.0 if critique reads as an approval, 0.0
// otherwise (block keywords win ties; absence of either defaults to block —
// conservative).
func parseCritiqueVote(critique string) float64 {
	lower := strings.ToLower(critique)
	for _, kw := range blockKeywords {
		if strings.Contains(lower, kw) {
			return 0.0
		}
	}
	for _, kw := range approveKeywords {
		if strings.Contains(lower, kw) {
			return 1.0
		}
	}
	return 0.0
}

func hasSafetyConcern(critique string) bool {
	lower := strings.ToLower(critique)
	for _, kw := range safetyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SafetyVeto returns a non-empty veto reason if any validation has
// confidence >= the veto threshold AND flags a safety concern. This check
// dominates aggregation — it is evaluated before AggregateVotes and, if
// triggered, the vote is never computed.
func (a *Aggregator) SafetyVeto(validations []council.Validation) string {
	for i, v := range validations {
		if v.Confidence >= a.safetyVetoThreshold && hasSafetyConcern(v.Critique) {
			return fmt.Sprintf("BLOCKED: Safety veto triggered by validator %d (confidence=%.2f): %s", i+1, v.Confidence, truncate(v.Critique, 100))
		}
	}
	return ""
}

// AggregateVotes computes the confidence-weighted vote over validations,
// dropping zero-confidence (failed) entries first.
func (a *Aggregator) AggregateVotes(validations []council.Validation) (council.Result, float64, string) {
	if len(validations) == 0 {
		return council.ResultBlocked, 0.0, "No validations provided"
	}

	var kept []council.Validation
	for _, v := range validations {
		if v.Confidence > 0.0 {
			kept = append(kept, v)
		}
	}

	if len(kept) == 0 {
		var critiques []string
		for _, v := range validations {
			critiques = append(critiques, v.Critique)
		}
		return council.ResultBlocked, 0.0, "All validators failed: " + strings.Join(critiques, "; ")
	}

	var totalWeight, weightedSum float64
	var parts []string
	for _, v := range kept {
		totalWeight += v.Confidence
		weightedSum += v.Confidence * parseCritiqueVote(v.Critique)
		parts = append(parts, fmt.Sprintf("[%.2f] %s", v.Confidence, truncate(v.Critique, 100)))
	}

	var avg float64
	if totalWeight > 0 {
		avg = weightedSum / totalWeight
	}

	result := council.ResultBlocked
	if avg >= a.confidenceThreshold {
		result = council.ResultApproved
	}

	return result, avg, strings.Join(parts, " | ")
}

// ValidateDecision orchestrates the full staged flow: local validation,
// conditional escalation to external validators, safety veto, vote
// aggregation, and the RISKY/confidence<0.9 escalation override.
func (a *Aggregator) ValidateDecision(ctx context.Context, req council.Request, localValidator council.LocalValidator, externalValidator council.ExternalValidator) (council.Result, float64, string) {
	var all []council.Validation

	local := localValidator.Validate(ctx, req)
	all = append(all, council.Validation{Confidence: local.Confidence, Critique: "[Local] " + local.Critique})

	if a.ShouldEscalate(local.Confidence, req.Classification) {
		externals := externalValidator.ValidateParallel(ctx, req)
		names := []string{"Claude", "OpenAI"}
		for i, v := range externals {
			name := "External"
			if i < len(names) {
				name = names[i]
			}
			all = append(all, council.Validation{Confidence: v.Confidence, Critique: "[" + name + "] " + v.Critique})
		}
	}

	if veto := a.SafetyVeto(all); veto != "" {
		a.log.Warn("council: safety veto triggered", zap.String("reason", veto))
		return council.ResultBlocked, 0.0, veto
	}

	result, confidence, critique := a.AggregateVotes(all)

	if result == council.ResultApproved && req.Classification == contracts.SafetyClassificationRisky && confidence < 0.9 {
		a.log.Warn("council: RISKY decision approved below auto-approval bar, escalating to admin",
			zap.Float64("confidence", confidence))
		return council.ResultEscalateToAdmin, confidence, critique
	}

	return result, confidence, critique
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
