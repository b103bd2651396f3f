package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, ProviderOllama, cfg.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434", cfg.ChatHost)
	assert.Equal(t, "phi3", cfg.EmbeddingModel)
	assert.Equal(t, "phi3", cfg.ChatModel)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, "http://localhost:11434", cfg.EmbeddingHost)
		assert.Equal(t, "http://localhost:11434", cfg.ChatHost)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080"))

		assert.Equal(t, "http://custom:8080", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080", cfg.ChatHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080"),
			WithChatHost("http://chat:9090"),
		)

		assert.Equal(t, "http://embed:8080", cfg.EmbeddingHost)
		assert.Equal(t, "http://chat:9090", cfg.ChatHost)
	})

	t.Run("with one model for both", func(t *testing.T) {
		cfg := NewConfig(WithModel("llama3"))

		assert.Equal(t, "llama3", cfg.EmbeddingModel)
		assert.Equal(t, "llama3", cfg.ChatModel)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithProvider(ProviderOpenAI),
			WithEmbeddingModel("text-embedding-3-small"),
			WithChatModel("gpt-4o-mini"),
			WithToken("secret"),
			WithTimeout(5*time.Second),
		)

		assert.Equal(t, ProviderOpenAI, cfg.Provider)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
		assert.Equal(t, "secret", cfg.Token)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		host     string
		want     string
	}{
		{name: "ollama plain", provider: ProviderOllama, host: "http://localhost:11434", want: "http://localhost:11434"},
		{name: "ollama trailing slash", provider: ProviderOllama, host: "http://localhost:11434/", want: "http://localhost:11434"},
		{name: "ollama strips v1", provider: ProviderOllama, host: "http://localhost:11434/v1", want: "http://localhost:11434"},
		{name: "openai adds v1", provider: ProviderOpenAI, host: "http://localhost:11434", want: "http://localhost:11434/v1"},
		{name: "openai keeps v1", provider: ProviderOpenAI, host: "http://localhost:11434/v1/", want: "http://localhost:11434/v1"},
		{name: "empty provider defaults to ollama", provider: "", host: "http://x/v1", want: "http://x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, EmbeddingHost: tt.host, ChatHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
			assert.Equal(t, tt.want, cfg.ChatHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "bedrock" }, wantErr: "unknown provider"},
		{name: "missing embedding host", mutate: func(c *Config) { c.EmbeddingHost = "" }, wantErr: "EmbeddingHost is required"},
		{name: "missing chat host", mutate: func(c *Config) { c.ChatHost = "" }, wantErr: "ChatHost is required"},
		{name: "bad scheme", mutate: func(c *Config) { c.ChatHost = "ftp://host" }, wantErr: "unsupported scheme"},
		{name: "no host", mutate: func(c *Config) { c.EmbeddingHost = "http://" }, wantErr: "missing host"},
		{name: "missing embedding model", mutate: func(c *Config) { c.EmbeddingModel = "" }, wantErr: "EmbeddingModel is required"},
		{name: "missing chat model", mutate: func(c *Config) { c.ChatModel = "" }, wantErr: "ChatModel is required"},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -time.Second }, wantErr: "Timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
