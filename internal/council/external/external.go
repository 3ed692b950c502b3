// Package external implements the Council's External Validator: up to two
// independent cloud providers (Claude-class and OpenAI-class), each with a
// 10s timeout and bounded retry on transient errors only. Modeled on
// original_source/core/council/external_validator.py.
package external

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orion-sre/orion/internal/council"
)

const (
	// Timeout is the per-provider call budget (10s per §4.7/§5).
	Timeout = 10 * time.Second
	// MaxRetries bounds retries of transient (connection/timeout) errors.
	MaxRetries = 2
	// InitialRetryDelay is the first backoff delay; it doubles each retry
	// (1s, 2s).
	InitialRetryDelay = 1 * time.Second
)

// ErrNonTransient marks an error the caller must not retry (authentication
// failure or rate limiting) — both are configuration/quota problems, not
// flakiness.
var ErrNonTransient = errors.New("external council: non-transient provider error")

// Provider performs one validation call against a single cloud model.
// Implementations classify their own errors: wrapping with ErrNonTransient
// disables retry, any other error is treated as transient and retried.
type Provider interface {
	Name() string
	Validate(ctx context.Context, req council.Request) (council.Validation, error)
}

// Validator dispatches to all configured Providers concurrently. A
// Validator with zero providers is a valid, fully-functional "nothing
// configured" instance — ValidateParallel returns the single configured-absent
// error tuple spec.md requires.
type Validator struct {
	providers []Provider
	log       *zap.Logger
}

// New constructs a Validator over whichever providers are non-nil. Missing
// credentials are not an error at this layer — callers skip constructing a
// Provider for a missing key and log it themselves (see NewClaudeProvider /
// NewOpenAIProvider).
func New(log *zap.Logger, providers ...Provider) *Validator {
	return &Validator{providers: providers, log: log}
}

// ValidateParallel dispatches req to every configured provider concurrently
// and returns one Validation per provider in configuration order. If no
// provider is configured, returns a single fail-closed tuple.
func (v *Validator) ValidateParallel(ctx context.Context, req council.Request) []council.Validation {
	if len(v.providers) == 0 {
		v.log.Warn("external council: no providers configured")
		return []council.Validation{{Confidence: 0.0, Critique: "ERROR: No external APIs configured"}}
	}

	results := make([]council.Validation, len(v.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range v.providers {
		i, p := i, p
		g.Go(func() error {
			results[i] = v.callWithRetry(gctx, p, req)
			return nil
		})
	}
	// Providers never return an error from this goroutine (callWithRetry is
	// itself fail-closed), so g.Wait() always returns nil.
	_ = g.Wait()

	return results
}

func (v *Validator) callWithRetry(ctx context.Context, p Provider, req council.Request) council.Validation {
	delay := InitialRetryDelay
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		result, err := p.Validate(ctx, req)
		if err == nil {
			v.log.Info("external council: validation complete", zap.String("provider", p.Name()), zap.Float64("confidence", result.Confidence))
			return result
		}

		if errors.Is(err, ErrNonTransient) {
			v.log.Error("external council: non-transient provider error", zap.String("provider", p.Name()), zap.Error(err))
			return council.Validation{Confidence: 0.0, Critique: "ERROR: " + p.Name() + ": " + err.Error()}
		}

		lastErr = err
		if attempt < MaxRetries {
			v.log.Info("external council: transient error, retrying",
				zap.String("provider", p.Name()), zap.Duration("delay", delay), zap.Int("attempt", attempt+1), zap.Error(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return council.Validation{Confidence: 0.0, Critique: "ERROR: " + p.Name() + ": " + ctx.Err().Error()}
			}
			delay *= 2
			continue
		}
	}

	v.log.Warn("external council: exhausted retries", zap.String("provider", p.Name()), zap.Error(lastErr))
	return council.Validation{Confidence: 0.0, Critique: "ERROR: " + p.Name() + " connection failed"}
}
