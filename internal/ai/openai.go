package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is a small general-purpose chat model.
const DefaultOpenAIModel = "gpt-4o-mini"

// openAIClient is the concrete Completer backed by the go-openai SDK.
// Any OpenAI-compatible /chat/completions endpoint (DeepSeek, a local proxy)
// works by passing its base URL.
type openAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient returns a Completer that calls the OpenAI chat completions
// API.
//   - apiKey:  your OPENAI_API_KEY; empty returns ErrMissingAPIKey
//   - model:   e.g. "gpt-4o-mini"; empty selects DefaultOpenAIModel
//   - baseURL: optional override, e.g. "https://api.deepseek.com/v1"
//
// No client-side timeout is set: the SDK's HTTP defaults apply and callers
// bound the call through ctx.
func NewOpenAIClient(apiKey, model, baseURL string) (Completer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &openAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Complete sends one chat completion request and returns the first choice.
func (c *openAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai: API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
