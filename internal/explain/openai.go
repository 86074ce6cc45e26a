package explain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI explains through any OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client llms.Model
	logger *slog.Logger
}

// NewOpenAI connects to baseURL with token. Local OpenAI-compatible servers
// that do not check credentials accept an empty token.
func NewOpenAI(baseURL, token, model string) (*OpenAI, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return &OpenAI{
		client: client,
		logger: slog.Default().With("component", "openai-explainer", "model", model),
	}, nil
}

func (o *OpenAI) Explain(ctx context.Context, question string, excerpts []Excerpt) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(BuildPrompt(question, excerpts))},
		},
	}
	resp, err := o.client.GenerateContent(ctx, content, llms.WithTemperature(0.1), llms.WithMaxTokens(700))
	if err != nil {
		return "", fmt.Errorf("generating explanation: %w", err)
	}
	if len(resp.Choices) == 0 {
		o.logger.Debug("no choices returned from model")
		return "", ErrEmptyAnswer
	}
	return resp.Choices[0].Content, nil
}
