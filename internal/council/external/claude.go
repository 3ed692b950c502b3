package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/orion-sre/orion/internal/council"
)

const claudeModel = anthropic.ModelClaude3_5SonnetLatest

// ClaudeProvider validates via Anthropic's Messages API.
type ClaudeProvider struct {
	client anthropic.Client
}

// NewClaudeProvider constructs a ClaudeProvider, or returns (nil, false) if
// apiKey is empty — the caller skips registering this provider, matching
// the Python validator's "missing key -> log and skip" behavior.
func NewClaudeProvider(apiKey string) (*ClaudeProvider, bool) {
	if apiKey == "" {
		return nil, false
	}
	return &ClaudeProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}, true
}

func (p *ClaudeProvider) Name() string { return "Claude" }

func (p *ClaudeProvider) Validate(ctx context.Context, req council.Request) (council.Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	prompt := council.BuildPrompt(req)

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     claudeModel,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case 401, 403:
				return council.Validation{}, fmt.Errorf("%w: authentication failed: %v", ErrNonTransient, err)
			case 429:
				return council.Validation{}, fmt.Errorf("%w: rate limited: %v", ErrNonTransient, err)
			}
		}
		return council.Validation{}, fmt.Errorf("connection error: %w", err)
	}

	var text string
	if len(resp.Content) > 0 {
		text = resp.Content[0].Text
	}
	if text == "" {
		return council.Validation{Confidence: 0.0, Critique: "ERROR: Empty response from Claude"}, nil
	}

	return council.ParseResponse(text), nil
}
