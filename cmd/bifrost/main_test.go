package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/bifrost/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// fakeOllama serves /api/embeddings and /api/chat.
type fakeOllama struct {
	*httptest.Server
	dimension atomic.Int32
	chats     atomic.Int32
}

func newFakeOllama(t *testing.T) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}
	f.dimension.Store(3)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		vec := make([]float64, f.dimension.Load())
		vec[0] = 1
		vec[1] = float64(len(req.Prompt) % 7)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		f.chats.Add(1)
		_, _ = w.Write([]byte(`{"model":"phi3","message":{"role":"assistant","content":"Two people."},"done":true}` + "\n"))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

type env struct {
	configPath string
	dataDir    string
	aiHost     string
}

func newEnv(t *testing.T, aiHost string) *env {
	t.Helper()
	dir := t.TempDir()
	return &env{
		configPath: filepath.Join(dir, "bifrost.yaml"),
		dataDir:    filepath.Join(dir, "data"),
		aiHost:     aiHost,
	}
}

// run executes the CLI with the environment's global flags and returns its output.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	argv := []string{"bifrost", "--log-level", "error", "--config", e.configPath, "--data-dir", e.dataDir}
	if e.aiHost != "" {
		argv = append(argv, "--ai-host", e.aiHost)
	}
	err := app.Run(append(argv, args...))
	return out.String(), err
}

func writeFrames(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

const (
	frameOne = `{"frame":1,"detections":[{"label":"person","bbox":{"x":1,"y":2,"width":3,"height":4},"confidence":0.9,"utc":"2025-03-01T10:00:00Z"},{"label":"person","bbox":{"x":5,"y":6,"width":7,"height":8},"confidence":0.8,"utc":"2025-03-01T10:00:01Z"}]}`
	frameTwo = `{"frame":2,"detections":[{"label":"dog","bbox":{"x":1,"y":1,"width":1,"height":1},"utc":"2025-03-01T10:00:02Z"}]}`
)

func TestSetupLogger_InvalidLevel(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run([]string{"bifrost", "--log-level", "verbose", "collections"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bifrost.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  host: broker.local\nretrieval:\n  top_n: 5\n"), 0o644))

	var got *config.AppConfig
	app := newApp()
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "probe",
		Flags: mqttFlags(),
		Action: func(c *cli.Context) error {
			var err error
			got, err = loadConfig(c)
			return err
		},
	})

	err := app.Run([]string{"bifrost", "--config", path, "--data-dir", "/var/lib/bifrost",
		"--ai-host", "http://gpu:11434", "--chat-model", "qwen2.5:3b",
		"probe", "--mqtt-port", "8883", "--mqtt-topic", "pi5/camera/2"})
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "/var/lib/bifrost", got.Storage.DataDir)
	assert.Equal(t, "http://gpu:11434", got.AI.EmbeddingHost)
	assert.Equal(t, "http://gpu:11434", got.AI.ChatHost)
	assert.Equal(t, "qwen2.5:3b", got.AI.ChatModel)
	assert.Equal(t, "phi3", got.AI.EmbeddingModel)
	assert.Equal(t, "broker.local", got.MQTT.Host)
	assert.Equal(t, 8883, got.MQTT.Port)
	assert.Equal(t, "pi5/camera/2", got.MQTT.Topic)
	assert.Equal(t, 5, got.Retrieval.TopN)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BIFROST_EMBEDDING_MODEL", "nomic-embed-text")

	var got *config.AppConfig
	app := newApp()
	app.Commands = append(app.Commands, &cli.Command{
		Name: "probe",
		Action: func(c *cli.Context) error {
			var err error
			got, err = loadConfig(c)
			return err
		},
	})
	require.NoError(t, app.Run([]string{"bifrost", "--config", filepath.Join(t.TempDir(), "none.yaml"), "probe"}))
	assert.Equal(t, "nomic-embed-text", got.AI.EmbeddingModel)
}

func TestConfigInitAndShow(t *testing.T) {
	e := newEnv(t, "")

	out, err := e.run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+e.configPath)

	_, err = e.run(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = e.run(t, "config", "init", "--force")
	require.NoError(t, err)

	out, err = e.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "topic: pi5/camera/1")
	assert.Contains(t, out, "data_dir: "+e.dataDir)
}

func TestIngestFileAskAndCollections(t *testing.T) {
	ollama := newFakeOllama(t)
	e := newEnv(t, ollama.URL)

	frames := writeFrames(t, frameOne, "not json", "", frameTwo)
	out, err := e.run(t, "ingest", "--file", frames)
	require.NoError(t, err)
	assert.Contains(t, out, "frame 1: stored 2, skipped 0")
	assert.Contains(t, out, "line 2:")
	assert.Contains(t, out, "frame 2: stored 0, skipped 1")

	out, err = e.run(t, "collections")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `bifrost_data\s+2\s+3`, out)
	assert.Regexp(t, `pi5_camera_1\s+2\s+3`, out)

	out, err = e.run(t, "ask", "how", "many", "people?")
	require.NoError(t, err)
	assert.Contains(t, out, "Available collections: bifrost_data, pi5_camera_1")
	assert.Contains(t, out, "Context: Detection 1: label=person")
	assert.Contains(t, out, "Detection 2: label=person")
	assert.Contains(t, out, "Answer: Two people.")
	assert.Equal(t, int32(1), ollama.chats.Load())
}

func TestAsk_ReadsQuestionFromInput(t *testing.T) {
	ollama := newFakeOllama(t)
	e := newEnv(t, ollama.URL)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader("anything there?\n")
	err := app.Run([]string{"bifrost", "--log-level", "error", "--config", e.configPath,
		"--data-dir", e.dataDir, "--ai-host", ollama.URL, "ask"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Ask a question about the captured data: ")
	assert.Contains(t, out.String(), "Context: No relevant data found.")
}

func TestIngest_DimensionMismatchIsFatal(t *testing.T) {
	ollama := newFakeOllama(t)
	e := newEnv(t, ollama.URL)

	_, err := e.run(t, "ingest", "--file", writeFrames(t, frameOne))
	require.NoError(t, err)

	// The embedding model changed.
	ollama.dimension.Store(5)
	_, err = e.run(t, "ingest", "--file", writeFrames(t, frameOne))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding dimension mismatch")
	assert.Contains(t, err.Error(), "bifrost reembed")

	out, err := e.run(t, "reembed", "--batch-size", "1", "--retry-delay", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "dimension 5")

	_, err = e.run(t, "ingest", "--file", writeFrames(t, frameOne))
	require.NoError(t, err)
}

func TestReembed_InvalidFlags(t *testing.T) {
	e := newEnv(t, "")
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"reembed", "--batch-size", "0"}, want: "batch-size"},
		{args: []string{"reembed", "--report-interval", "0"}, want: "report-interval"},
		{args: []string{"reembed", "--max-retries", "0"}, want: "max-retries"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := e.run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
