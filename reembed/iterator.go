package reembed

import (
	"context"

	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
)

const (
	// DefaultBatchSize is the default number of entries fetched per batch
	DefaultBatchSize = 100
)

// EntryIterator pages through a collection in insertion order.
type EntryIterator struct {
	index     storage.VectorIndex
	batchSize int
}

// NewEntryIterator creates an iterator reading batchSize entries at a time.
func NewEntryIterator(index storage.VectorIndex, batchSize int) *EntryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &EntryIterator{
		index:     index,
		batchSize: batchSize,
	}
}

// ForEach calls fn with successive batches of entries whose Seq is greater
// than afterSeq. Iteration stops at the first error from fn or the index.
func (it *EntryIterator) ForEach(ctx context.Context, collection string, afterSeq uint64, fn func([]*core.Entry) error) error {
	for {
		// Check context before each batch
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.index.Scan(ctx, collection, afterSeq, it.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		afterSeq = batch[len(batch)-1].Seq
		if len(batch) < it.batchSize {
			return nil
		}
	}
}
