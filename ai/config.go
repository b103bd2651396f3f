// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Supported provider names.
const (
	// ProviderOllama talks to Ollama's native /api/embeddings and /api/chat endpoints.
	ProviderOllama = "ollama"
	// ProviderOpenAI talks to any OpenAI-compatible /v1 API.
	ProviderOpenAI = "openai"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the wire protocol: "ollama" or "openai".
	Provider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434"
	EmbeddingHost string

	// ChatHost is the base URL for the chat-completion service API.
	// Example: "http://localhost:11434"
	ChatHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "phi3", "nomic-embed-text"
	EmbeddingModel string

	// ChatModel is the model identifier used to generate answers.
	// Example: "phi3", "qwen2.5:3b"
	ChatModel string

	// Token is the bearer token for OpenAI-compatible services.
	// Local services accept any value.
	Token string

	// Timeout bounds a single HTTP request made by a client. Zero disables
	// the client-level timeout; callers still bound calls through their context.
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the provider name.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithChatHost sets the chat service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithHost sets both embedding and chat hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ChatHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithModel sets both the embedding and chat model identifiers.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
		c.ChatModel = model
	}
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// DefaultConfig returns a Config for a local Ollama instance serving phi3
// for both embeddings and answers.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434"
	return &Config{
		Provider:       ProviderOllama,
		EmbeddingHost:  defaultHost,
		ChatHost:       defaultHost,
		EmbeddingModel: "phi3",
		ChatModel:      "phi3",
		Token:          "none",
		Timeout:        30 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://gpu-box:11434"),
//	    WithEmbeddingModel("nomic-embed-text"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
//
// OpenAI-compatible hosts get a /v1 suffix when missing. Native Ollama hosts
// lose any trailing slash or /v1 suffix since the native endpoints live
// under /api.
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	c.EmbeddingHost = normalizeHost(c.Provider, c.EmbeddingHost)
	c.ChatHost = normalizeHost(c.Provider, c.ChatHost)
}

func normalizeHost(provider, host string) string {
	if host == "" {
		return host
	}
	host = strings.TrimSuffix(host, "/")
	switch provider {
	case ProviderOpenAI:
		if !strings.HasSuffix(host, "/v1") {
			host += "/v1"
		}
	case ProviderOllama:
		host = strings.TrimSuffix(host, "/v1")
	}
	return host
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Provider != ProviderOllama && c.Provider != ProviderOpenAI {
		return fmt.Errorf("ai config: unknown provider %q", c.Provider)
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ChatHost == "" {
		return errors.New("ai config: ChatHost is required")
	}
	if err := validateURL(c.EmbeddingHost); err != nil {
		return fmt.Errorf("ai config: EmbeddingHost: %w", err)
	}
	if err := validateURL(c.ChatHost); err != nil {
		return fmt.Errorf("ai config: ChatHost: %w", err)
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.Timeout < 0 {
		return errors.New("ai config: Timeout must not be negative")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
