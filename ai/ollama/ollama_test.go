package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *ai.Config {
	return ai.NewConfig(ai.WithHost(url), ai.WithModel("phi3"))
}

func TestEmbedder_EmbedText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[0.5,-1,2.25]}`))
	}))
	defer srv.Close()

	emb, err := NewEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	vec, err := emb.EmbedText(context.Background(), "Label: cat")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2.25}, vec)
	assert.Equal(t, "phi3", got["model"])
	assert.Equal(t, "Label: cat", got["prompt"])
	assert.Equal(t, "Label: cat", got["text"])
}

func TestEmbedder_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `model crashed`},
		{name: "not found", status: http.StatusNotFound, body: `{"error":"model not found"}`},
		{name: "empty embedding", status: http.StatusOK, body: `{"embedding":[]}`},
		{name: "missing embedding", status: http.StatusOK, body: `{}`},
		{name: "malformed json", status: http.StatusOK, body: `{"embedding":`},
		{name: "error field", status: http.StatusOK, body: `{"error":"busy"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			emb, err := NewEmbedder(testConfig(srv.URL))
			require.NoError(t, err)

			vec, err := emb.EmbedText(context.Background(), "x")
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrEmbeddingUnavailable))
			assert.Nil(t, vec)
		})
	}
}

func TestEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	emb, err := NewEmbedder(testConfig(url))
	require.NoError(t, err)

	_, err = emb.EmbedText(context.Background(), "x")
	assert.True(t, errors.Is(err, core.ErrEmbeddingUnavailable))
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{float64(len(req.Prompt))}})
	}))
	defer srv.Close()

	emb, err := NewEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	vecs, err := emb.EmbedTexts(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}}, vecs)
}

func TestGenerator_Generate(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"model":"phi3","message":{"role":"assistant","content":"Two people."},"done":true}` + "\n"))
	}))
	defer srv.Close()

	gen, err := NewGenerator(testConfig(srv.URL))
	require.NoError(t, err)

	answer, err := gen.Generate(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, "Two people.", answer)

	assert.Equal(t, "phi3", req.Model)
	assert.False(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "system text", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "user text", req.Messages[1].Content)
}

func TestGenerator_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}` + "\n"))
	}))
	defer srv.Close()

	gen, err := NewGenerator(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrGenerationUnavailable))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ai.DefaultConfig())
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.Embedder())
	assert.NotNil(t, p.AnswerGenerator())

	_, err = NewProvider(ai.NewConfig(ai.WithEmbeddingModel("")))
	assert.Error(t, err)
}
