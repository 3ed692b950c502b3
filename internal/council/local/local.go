// Package local implements the Council's Local Validator: a resource-gated
// wrapper around a single sequential model inference call. Modeled on
// original_source/core/council/council_validator.py.
package local

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/council"
)

const (
	// DefaultMinFreeRAMMB is R, the minimum free RAM (megabytes) required
	// before invoking the model.
	DefaultMinFreeRAMMB = 4096
	// DefaultCPUTempWarnCelsius is Θ, the advisory (non-blocking) CPU
	// temperature threshold.
	DefaultCPUTempWarnCelsius = 70.0
	// DefaultTimeout bounds a single local inference call.
	DefaultTimeout = 30 * time.Second
)

// ResourceMonitor reports the host resource state the validator must check
// before loading the model.
type ResourceMonitor interface {
	FreeRAMMB(ctx context.Context) (int, error)
	CPUTempCelsius(ctx context.Context) (float64, error)
}

// ModelClient performs the actual sequential inference call.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Validator is the Council's local, resource-gated validator.
type Validator struct {
	resources        ResourceMonitor
	model            ModelClient
	log              *zap.Logger
	minFreeRAMMB     int
	cpuTempWarnC     float64
	timeout          time.Duration
}

// Option configures a Validator at construction.
type Option func(*Validator)

func WithMinFreeRAMMB(mb int) Option            { return func(v *Validator) { v.minFreeRAMMB = mb } }
func WithCPUTempWarnCelsius(c float64) Option   { return func(v *Validator) { v.cpuTempWarnC = c } }
func WithTimeout(d time.Duration) Option        { return func(v *Validator) { v.timeout = d } }

// New constructs a Validator. resources may be nil, in which case resource
// checks are skipped (matching the Python validator's optional
// MemoryManager attachment).
func New(resources ResourceMonitor, model ModelClient, log *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		resources:    resources,
		model:        model,
		log:          log,
		minFreeRAMMB: DefaultMinFreeRAMMB,
		cpuTempWarnC: DefaultCPUTempWarnCelsius,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate evaluates req against the local model. Any error — resource
// starvation, unreachable model, parse failure, empty response — returns a
// zero-confidence Validation; it never returns a Go error, matching the
// fail-closed contract every caller depends on.
func (v *Validator) Validate(ctx context.Context, req council.Request) council.Validation {
	if v.resources != nil {
		freeRAM, err := v.resources.FreeRAMMB(ctx)
		if err != nil {
			v.log.Warn("local council: resource check failed, blocking", zap.Error(err))
			return council.Validation{Confidence: 0.0, Critique: fmt.Sprintf("BLOCKED: resource check failed: %v", err)}
		}
		if freeRAM < v.minFreeRAMMB {
			reason := fmt.Sprintf("insufficient free RAM: %dMB < %dMB required", freeRAM, v.minFreeRAMMB)
			v.log.Warn("local council: blocked on resources", zap.String("reason", reason))
			return council.Validation{Confidence: 0.0, Critique: "BLOCKED: " + reason}
		}

		if temp, err := v.resources.CPUTempCelsius(ctx); err == nil && temp > v.cpuTempWarnC {
			// Advisory only: logged, does not block.
			v.log.Warn("local council: CPU temperature above advisory threshold",
				zap.Float64("temp_celsius", temp), zap.Float64("threshold_celsius", v.cpuTempWarnC))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	prompt := council.BuildPrompt(req)
	response, err := v.model.Generate(ctx, prompt)
	if err != nil {
		v.log.Error("local council: model unreachable", zap.Error(err))
		return council.Validation{Confidence: 0.0, Critique: fmt.Sprintf("ERROR: model unreachable: %v", err)}
	}
	if response == "" {
		v.log.Warn("local council: empty model response")
		return council.Validation{Confidence: 0.0, Critique: "ERROR: empty response from model"}
	}

	validation := council.ParseResponse(response)
	v.log.Info("local council: validation complete",
		zap.Float64("confidence", validation.Confidence),
		zap.Int("critique_length", len(validation.Critique)),
	)
	return validation
}
