package ollama

import (
	"log/slog"
	"net/http"

	"github.com/poiesic/bifrost/ai"
)

// Provider implements ai.AIProvider against a native Ollama server.
// The embedder and generator share one HTTP client.
type Provider struct {
	embedder  *Embedder
	generator *Generator
	client    *http.Client
	logger    *slog.Logger
}

// NewProvider creates a new AI provider for Ollama.
// The config is validated and normalized before use.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: config.Timeout}

	embedder, err := newEmbedder(config, client)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(config, client)
	if err != nil {
		return nil, err
	}

	return &Provider{
		embedder:  embedder,
		generator: generator,
		client:    client,
		logger:    slog.Default().With("component", "ollama-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// AnswerGenerator returns the chat-completion service.
func (p *Provider) AnswerGenerator() ai.AnswerGenerator {
	return p.generator
}

// Close releases idle connections held by the shared HTTP client.
func (p *Provider) Close() error {
	p.logger.Debug("closing Ollama provider")
	p.client.CloseIdleConnections()
	return nil
}
