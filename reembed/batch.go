package reembed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/retry"
	"github.com/poiesic/bifrost/storage"
)

// BatchProcessor re-embeds one batch of entries.
type BatchProcessor struct {
	index          storage.VectorIndex
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(index storage.VectorIndex, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &BatchProcessor{
		index:          index,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the entries' detection text and stores the new vectors.
// It returns the dimension of the new embeddings.
func (bp *BatchProcessor) Process(ctx context.Context, collection string, entries []*core.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		text, err := EmbeddingText(entry)
		if err != nil {
			return 0, fmt.Errorf("entry %s: %w", entry.ID, err)
		}
		texts[i] = text
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := retry.WithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(entries) {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(entries), len(embeddings))
	}

	dimension := len(embeddings[0])
	updated := make([]*core.Entry, len(entries))
	for i, entry := range entries {
		if len(embeddings[i]) != dimension || dimension == 0 {
			return 0, fmt.Errorf("%w: %w: entry %s got %d values, batch has %d",
				core.ErrEmbeddingUnavailable, core.ErrDimensionMismatch, entry.ID, len(embeddings[i]), dimension)
		}
		copied := *entry
		copied.Embedding = core.NormalizeVector(embeddings[i])
		updated[i] = &copied
	}

	if err := bp.index.ReplaceEmbeddings(ctx, collection, updated, dimension); err != nil {
		return 0, fmt.Errorf("failed to update entries: %w", err)
	}

	return dimension, nil
}

// EmbeddingText rebuilds the text an entry was embedded from. The stored
// detection document is preferred; entries without one fall back to their
// metadata.
func EmbeddingText(entry *core.Entry) (string, error) {
	var detection core.Detection
	if entry.Document != "" {
		if err := json.Unmarshal([]byte(entry.Document), &detection); err == nil && detection.Label != "" {
			return core.EmbeddingText(&detection), nil
		}
	}

	bbox, err := core.DecodeBBox(entry.Metadata.BBox)
	if err != nil {
		return "", err
	}
	detection = core.Detection{
		Label:      entry.Metadata.Label,
		BBox:       bbox,
		Confidence: entry.Metadata.Confidence,
		UTC:        entry.Metadata.UTC,
	}
	return core.EmbeddingText(&detection), nil
}
