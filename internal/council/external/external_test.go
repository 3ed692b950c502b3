package external

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/council"
)

type fakeProvider struct {
	name    string
	result  council.Validation
	err     error
	calls   int
	failN   int // fail this many times before succeeding
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Validate(ctx context.Context, req council.Request) (council.Validation, error) {
	f.calls++
	if f.calls <= f.failN {
		return council.Validation{}, errors.New("transient timeout")
	}
	return f.result, f.err
}

func TestValidateParallel_NoProvidersFailsClosed(t *testing.T) {
	v := New(zap.NewNop())
	results := v.ValidateParallel(context.Background(), council.Request{})
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Confidence)
	assert.Contains(t, results[0].Critique, "No external APIs configured")
}

func TestValidateParallel_ReturnsOnePerProviderInOrder(t *testing.T) {
	claude := &fakeProvider{name: "Claude", result: council.Validation{Confidence: 0.9, Critique: "approve"}}
	openai := &fakeProvider{name: "OpenAI", result: council.Validation{Confidence: 0.6, Critique: "reject"}}
	v := New(zap.NewNop(), claude, openai)

	results := v.ValidateParallel(context.Background(), council.Request{})
	require.Len(t, results, 2)
	assert.InDelta(t, 0.9, results[0].Confidence, 0.001)
	assert.InDelta(t, 0.6, results[1].Confidence, 0.001)
}

func TestValidateParallel_NonTransientErrorSkipsRetry(t *testing.T) {
	badProvider := &nonTransientProvider{name: "Claude"}
	v := New(zap.NewNop(), badProvider)

	results := v.ValidateParallel(context.Background(), council.Request{})
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Confidence)
	assert.Equal(t, 1, badProvider.calls, "a non-transient error must never be retried")
}

type nonTransientProvider struct {
	name  string
	calls int
}

func (p *nonTransientProvider) Name() string { return p.name }
func (p *nonTransientProvider) Validate(ctx context.Context, req council.Request) (council.Validation, error) {
	p.calls++
	return council.Validation{}, ErrNonTransient
}

func TestValidateParallel_TransientErrorRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{name: "Claude", failN: 1, result: council.Validation{Confidence: 0.8, Critique: "approve"}}
	v := New(zap.NewNop(), p)

	results := v.ValidateParallel(context.Background(), council.Request{})
	require.Len(t, results, 1)
	assert.InDelta(t, 0.8, results[0].Confidence, 0.001)
	assert.Equal(t, 2, p.calls)
}
