package bifrost

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/ai/mock"
	"github.com/poiesic/bifrost/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrame = `{"frame": 1, "detections": [
	{"label": "person", "bbox": {"x": 1, "y": 2, "width": 3, "height": 4}, "confidence": 0.9, "utc": "2025-03-01T10:00:00Z"}
]}`

func newTestDatabase(t *testing.T, provider *mock.MockProvider) *Database {
	t.Helper()
	db, err := NewDatabase("", WithInMemory(), WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		// Verify components are initialized
		assert.NotNil(t, db.Index())
		assert.NotNil(t, db.CheckpointRepository())
		assert.NotNil(t, db.Provider())
		assert.NotNil(t, db.backend)
		assert.NotNil(t, db.logger)
	})

	t.Run("openai provider", func(t *testing.T) {
		cfg := ai.NewConfig(ai.WithProvider(ai.ProviderOpenAI))
		db, err := NewDatabase("", WithInMemory(), WithAIConfig(cfg))
		require.NoError(t, err)
		defer db.Close()
		assert.NotNil(t, db.Provider().Embedder())
	})

	t.Run("invalid ai config", func(t *testing.T) {
		cfg := ai.NewConfig(ai.WithProvider("bedrock"))
		db, err := NewDatabase("", WithInMemory(), WithAIConfig(cfg))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// Try to create a database at a file path instead of directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		err := os.WriteFile(tmpFile, []byte("test"), 0644)
		require.NoError(t, err)

		db, err := NewDatabase(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}

func TestDatabase_Close(t *testing.T) {
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockGenerator("ok"))
	db, err := NewDatabase(t.TempDir(), WithProvider(provider))
	require.NoError(t, err)

	assert.NoError(t, db.Close())
	assert.True(t, provider.Closed())
}

func TestDatabase_FactoryMethods(t *testing.T) {
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), mock.NewMockGenerator("A person was seen."))
	db := newTestDatabase(t, provider)
	ctx := context.Background()

	pipeline, err := db.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Close()

	result, err := pipeline.Ingest(ctx, []byte(testFrame))
	require.NoError(t, err)
	assert.Len(t, result.Stored, 1)

	retriever, err := db.NewRetriever()
	require.NoError(t, err)
	resp, err := retriever.Answer(ctx, "who was there?")
	require.NoError(t, err)
	assert.Contains(t, resp.Context, "label=person")
	assert.Equal(t, "A person was seen.", resp.Answer)

	reembedder, err := db.NewReembedder(nil, io.Discard)
	require.NoError(t, err)
	require.NoError(t, reembedder.RunAll(ctx))
}

func TestDatabase_CheckEmbeddingDimension(t *testing.T) {
	ctx := context.Background()

	t.Run("missing collection passes", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		db := newTestDatabase(t, mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator("")))
		require.NoError(t, db.CheckEmbeddingDimension(ctx, "bifrost_data"))
		assert.Equal(t, 0, embedder.CallCount(), "no probe without a collection")
	})

	t.Run("matching dimension passes", func(t *testing.T) {
		db := newTestDatabase(t, mock.NewMockProviderWithServices(mock.NewMockEmbedderWithDimension(16), mock.NewMockGenerator("")))
		addDetection(t, db, 16)
		assert.NoError(t, db.CheckEmbeddingDimension(ctx, "bifrost_data"))
	})

	t.Run("mismatch is reported", func(t *testing.T) {
		db := newTestDatabase(t, mock.NewMockProviderWithServices(mock.NewMockEmbedderWithDimension(8), mock.NewMockGenerator("")))
		addDetection(t, db, 16)

		err := db.CheckEmbeddingDimension(ctx, "bifrost_data")
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrDimensionMismatch))
		assert.Contains(t, err.Error(), "bifrost reembed")

		// Re-embedding with the configured model resolves it.
		reembedder, err := db.NewReembedder(nil, io.Discard)
		require.NoError(t, err)
		require.NoError(t, reembedder.Run(ctx, "bifrost_data"))
		assert.NoError(t, db.CheckEmbeddingDimension(ctx, "bifrost_data"))
	})

	t.Run("probe failure", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, core.ErrEmbeddingUnavailable
		}
		db := newTestDatabase(t, mock.NewMockProviderWithServices(embedder, mock.NewMockGenerator("")))
		addDetection(t, db, 16)

		err := db.CheckEmbeddingDimension(ctx, "bifrost_data")
		assert.True(t, errors.Is(err, core.ErrEmbeddingUnavailable))
	})
}

// addDetection stores one detection with a dim-length embedding.
func addDetection(t *testing.T, db *Database, dim int) {
	t.Helper()
	normalized, err := core.Normalize(&core.Detection{
		Label:      "car",
		BBox:       core.BBox{X: 5, Y: 6, Width: 7, Height: 8},
		Confidence: 0.5,
		UTC:        "2025-03-01T11:00:00Z",
	}, "2")
	require.NoError(t, err)

	vector := make([]float32, dim)
	vector[0] = 1
	_, err = db.Index().Add(context.Background(), "bifrost_data", &core.Entry{
		Embedding: vector,
		Metadata:  normalized.Metadata,
		Document:  normalized.Document,
	})
	require.NoError(t, err)
}
