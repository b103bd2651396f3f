package storage

import (
	"context"

	"github.com/poiesic/bifrost/core"
)

// VectorIndex stores embedded detections in named collections and answers
// nearest-neighbour and metadata queries over them.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Add appends a single entry to a collection atomically.
	// The collection is created on first write and its dimension fixed to
	// len(entry.Embedding). An entry with a different length fails with
	// core.ErrDimensionMismatch. An empty ID is replaced with a random UUID.
	// Seq and InsertedAt are always assigned by the index.
	Add(ctx context.Context, collection string, entry *core.Entry) (*core.Entry, error)

	// Query returns up to topN entries closest to vector by cosine distance,
	// nearest first. Entries at equal distance keep insertion order.
	// A missing collection yields no results.
	Query(ctx context.Context, collection string, vector []float32, topN int) ([]*core.QueryResult, error)

	// GetAll returns every entry in a collection in insertion order.
	GetAll(ctx context.Context, collection string) ([]*core.Entry, error)

	// Get returns one entry by ID.
	// Returns ErrNotFound if the entry doesn't exist.
	Get(ctx context.Context, collection, id string) (*core.Entry, error)

	// Filter scans the whole collection and returns, in insertion order,
	// every entry whose metadata equals each predicate value.
	// An empty predicate matches everything.
	Filter(ctx context.Context, collection string, predicate map[string]string) ([]*core.Entry, error)

	// Scan returns up to limit entries with Seq greater than afterSeq in
	// insertion order. It is the paging primitive for maintenance jobs.
	Scan(ctx context.Context, collection string, afterSeq uint64, limit int) ([]*core.Entry, error)

	// ListCollections returns every collection ordered by name.
	ListCollections(ctx context.Context) ([]*core.Collection, error)

	// GetCollection returns a collection descriptor.
	// Returns ErrNotFound if the collection doesn't exist.
	GetCollection(ctx context.Context, name string) (*core.Collection, error)

	// Count returns the number of entries in a collection; 0 when missing.
	Count(ctx context.Context, collection string) (int, error)

	// ReplaceEmbeddings overwrites the embeddings of existing entries and
	// sets the collection dimension. Entries are matched by ID.
	// Returns ErrNotFound if any entry doesn't exist.
	ReplaceEmbeddings(ctx context.Context, collection string, entries []*core.Entry, dimension int) error

	// Close releases resources held by the index.
	Close() error
}

// CheckpointRepository persists progress markers for resumable jobs.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, stamping UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a job and collection.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, job, collection string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes a checkpoint. Missing checkpoints are ignored.
	DeleteCheckpoint(ctx context.Context, job, collection string) error
}
