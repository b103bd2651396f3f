package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/retry"
	"github.com/poiesic/bifrost/storage"
	"golang.org/x/time/rate"
)

// embeddingProcessor normalizes a detection, embeds its text and stores
// the result in the aggregate collection and optional mirror.
type embeddingProcessor struct {
	index       storage.VectorIndex
	embedder    ai.Embedder
	collection  string
	mirror      string
	callTimeout time.Duration
	maxAttempts int
	baseDelay   time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a processor bound to the pipeline settings.
func newEmbeddingProcessor(p *Pipeline) (*embeddingProcessor, error) {
	if p.index == nil {
		return nil, ErrIndexRequired
	}
	if p.embedder == nil {
		return nil, ErrEmbedderRequired
	}
	logger := p.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		index:       p.index,
		embedder:    p.embedder,
		collection:  p.collection,
		mirror:      p.mirror,
		callTimeout: p.callTimeout,
		maxAttempts: p.maxAttempts,
		baseDelay:   p.baseDelay,
		limiter:     p.limiter,
		logger:      logger.With("processor", "embeddings"),
	}, nil
}

func (ep *embeddingProcessor) process(ctx context.Context, frame core.FrameID, raw json.RawMessage) (*core.Entry, error) {
	detection, err := core.DecodeDetection(raw)
	if err != nil {
		return nil, err
	}

	normalized, err := core.Normalize(detection, frame)
	if err != nil {
		return nil, err
	}

	vector, err := ep.embed(ctx, normalized.Text)
	if err != nil {
		return nil, err
	}

	entry := &core.Entry{
		Embedding: core.NormalizeVector(vector),
		Metadata:  normalized.Metadata,
		Document:  normalized.Document,
	}

	stored, err := ep.store(ctx, ep.collection, entry)
	if err != nil {
		return nil, err
	}
	ep.logger.Debug("stored detection", "frame", frame.String(), "id", stored.ID, "label", stored.Metadata.Label)

	if ep.mirror != "" {
		mirrored := *entry
		mirrored.ID = stored.ID
		if _, err := ep.store(ctx, ep.mirror, &mirrored); err != nil {
			// The aggregate copy is what retrieval reads, so a mirror failure
			// does not skip the detection.
			ep.logger.Warn("error mirroring detection", "collection", ep.mirror, "id", stored.ID, "kind", errorKind(err), "err", err)
		}
	}

	return stored, nil
}

// embed calls the embedder under the per-call timeout and retry budget.
func (ep *embeddingProcessor) embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := retry.WithBackoffIf(ctx, func() error {
		if ep.limiter != nil {
			if err := ep.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		callCtx, cancel := ep.callContext(ctx)
		defer cancel()

		v, err := ep.embedder.EmbedText(callCtx, text)
		if err != nil {
			if errors.Is(err, core.ErrEmbeddingUnavailable) {
				return err
			}
			return fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
		}
		if len(v) == 0 {
			return fmt.Errorf("%w: empty embedding", core.ErrEmbeddingUnavailable)
		}
		vector = v
		return nil
	}, ep.maxAttempts, ep.baseDelay, transient)
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// store adds an entry under the per-call timeout and retry budget.
func (ep *embeddingProcessor) store(ctx context.Context, collection string, entry *core.Entry) (*core.Entry, error) {
	var stored *core.Entry
	err := retry.WithBackoffIf(ctx, func() error {
		callCtx, cancel := ep.callContext(ctx)
		defer cancel()

		added, err := ep.index.Add(callCtx, collection, entry)
		if err != nil {
			return err
		}
		stored = added
		return nil
	}, ep.maxAttempts, ep.baseDelay, transient)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (ep *embeddingProcessor) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ep.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ep.callTimeout)
}
