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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
)

// JobName identifies reembed checkpoints.
const JobName = "reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of entries to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for a batch's embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of stored detections.
type Reembedder struct {
	index       storage.VectorIndex
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *EntryIterator
	logger      *slog.Logger
}

// NewReembedder creates a new reembedder.
// checkpoints may be nil, in which case every run starts from the beginning.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(index storage.VectorIndex, checkpoints storage.CheckpointRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		index:       index,
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(index, embedder, config.MaxRetries, config.RetryDelay),
		iterator:    NewEntryIterator(index, config.BatchSize),
		logger:      slog.Default().With("component", "reembed"),
	}, nil
}

// Run re-embeds every entry of collection, resuming from a saved checkpoint
// when one exists. The checkpoint is removed once the collection is done.
func (r *Reembedder) Run(ctx context.Context, collection string) error {
	total, err := r.index.Count(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No entries found in collection %q (0 entries)\n", collection)
		return nil
	}

	afterSeq, done, err := r.resumePoint(ctx, collection)
	if err != nil {
		return err
	}
	if afterSeq > 0 {
		fmt.Fprintf(r.progress, "Resuming %q after entry %d (%d of %d already done)\n",
			collection, afterSeq, done, total)
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d entries in %q (batch size: %d)\n",
		total, collection, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, collection, total, r.config.ReportInterval)
	tracker.Start(done)

	processed := 0
	dimension := 0
	err = r.iterator.ForEach(ctx, collection, afterSeq, func(entries []*core.Entry) error {
		dim, err := r.processor.Process(ctx, collection, entries)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		dimension = dim
		processed += len(entries)
		tracker.Increment(len(entries))

		last := entries[len(entries)-1].Seq
		if err := r.saveCheckpoint(ctx, collection, last); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()
	if err := r.clearCheckpoint(ctx, collection); err != nil {
		r.logger.Warn("error removing checkpoint", "collection", collection, "err", err)
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding of %q complete. Processed %d entries in %v (%.1f entries/sec), dimension %d\n",
		collection, processed, elapsed.Round(time.Second), float64(processed)/max(elapsed.Seconds(), 1e-9), dimension)

	return nil
}

// RunAll re-embeds every collection in the index. A failing collection does
// not stop the others; all failures are returned together.
func (r *Reembedder) RunAll(ctx context.Context) error {
	collections, err := r.index.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	var errs []error
	for _, col := range collections {
		if err := r.Run(ctx, col.Name); err != nil {
			r.logger.Error("error reembedding collection", "collection", col.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", col.Name, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// resumePoint returns the last processed Seq and how many entries precede it.
func (r *Reembedder) resumePoint(ctx context.Context, collection string) (uint64, int, error) {
	if r.checkpoints == nil {
		return 0, 0, nil
	}
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, JobName, collection)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil || checkpoint.LastSeq == 0 {
		return 0, 0, nil
	}

	done := 0
	err = r.iterator.ForEach(ctx, collection, 0, func(entries []*core.Entry) error {
		for _, entry := range entries {
			if entry.Seq > checkpoint.LastSeq {
				return errStopCounting
			}
			done++
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopCounting) {
		return 0, 0, fmt.Errorf("failed to read collection: %w", err)
	}
	return checkpoint.LastSeq, done, nil
}

var errStopCounting = errors.New("stop counting")

func (r *Reembedder) saveCheckpoint(ctx context.Context, collection string, lastSeq uint64) error {
	if r.checkpoints == nil {
		return nil
	}
	return r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		Job:        JobName,
		Collection: collection,
		LastSeq:    lastSeq,
	})
}

func (r *Reembedder) clearCheckpoint(ctx context.Context, collection string) error {
	if r.checkpoints == nil {
		return nil
	}
	return r.checkpoints.DeleteCheckpoint(ctx, JobName, collection)
}
