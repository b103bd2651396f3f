package ingestion

import "errors"

var (
	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCollectionRequired is returned when the aggregate collection name is empty.
	ErrCollectionRequired = errors.New("collection name required")

	// ErrQueueFull is returned by Enqueue when the pending queue is at capacity.
	ErrQueueFull = errors.New("ingestion queue full")

	// ErrPipelineClosed is returned by Enqueue after Close.
	ErrPipelineClosed = errors.New("ingestion pipeline closed")
)
