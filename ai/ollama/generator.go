package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/tmc/langchaingo/llms"
	ollamallm "github.com/tmc/langchaingo/llms/ollama"
)

// Generator implements ai.AnswerGenerator with Ollama's /api/chat endpoint.
type Generator struct {
	client llms.Model
	logger *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
func newGenerator(config *ai.Config, httpClient *http.Client) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	// ChatHost was checked by Validate; ollamallm.WithServerURL exits the
	// process on a URL it cannot parse.
	client, err := ollamallm.New(
		ollamallm.WithServerURL(config.ChatHost),
		ollamallm.WithModel(config.ChatModel),
		ollamallm.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		logger: slog.Default().With("component", "ollama-generator"),
	}, nil
}

// NewGenerator creates a new answer generator using the provided configuration.
//
// Returns ai.AnswerGenerator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.AnswerGenerator, error) {
	return newGenerator(config, nil)
}

// Generate sends a system and a user message in one non-streaming chat
// request and returns the assistant content.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := g.client.GenerateContent(ctx, content)
	if err != nil {
		g.logger.Error("failed to generate answer", "err", err)
		return "", fmt.Errorf("%w: %w", core.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) < 1 {
		g.logger.Debug("no choices returned from model")
		return "", nil
	}
	return resp.Choices[0].Content, nil
}
