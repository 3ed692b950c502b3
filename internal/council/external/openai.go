package external

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/orion-sre/orion/internal/council"
)

const openaiModel = openai.ChatModelGPT4Turbo

// OpenAIProvider validates via OpenAI's Chat Completions API.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider constructs an OpenAIProvider, or returns (nil, false) if
// apiKey is empty.
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, bool) {
	if apiKey == "" {
		return nil, false
	}
	return &OpenAIProvider{client: openai.NewClient(option.WithAPIKey(apiKey))}, true
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Validate(ctx context.Context, req council.Request) (council.Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	prompt := council.BuildPrompt(req)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openaiModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
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
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	if text == "" {
		return council.Validation{Confidence: 0.0, Critique: "ERROR: Empty response from OpenAI"}, nil
	}

	return council.ParseResponse(text), nil
}
