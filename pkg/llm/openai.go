package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIClient runs completions against the OpenAI chat API via langchaingo.
// Temperature is pinned to zero: the pipeline validates responses against a
// strict schema and wants the most reproducible output available.
type OpenAIClient struct {
	llm    *openai.LLM
	logger *slog.Logger
}

// NewOpenAIClient creates a provider-backed client.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return &OpenAIClient{
		llm:    client,
		logger: slog.Default().With("component", "llm-openai"),
	}, nil
}

// Complete runs one system+user completion and returns the text of the
// first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}

	resp, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("llm completion (%s): %w", req.Kind, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("llm completion (%s): empty response", req.Kind)
	}
	return resp.Choices[0].Content, nil
}
