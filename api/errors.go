package api

import "errors"

var (
	// ErrIndexRequired is returned when no vector index is provided.
	ErrIndexRequired = errors.New("vector index is required")

	// ErrAnswererRequired is returned when no retriever is provided.
	ErrAnswererRequired = errors.New("answerer is required")

	// ErrLifecycleRequired is returned when no subscriber controller is provided.
	ErrLifecycleRequired = errors.New("subscriber lifecycle is required")

	// ErrNoDocuments is reported when the aggregate collection is missing or empty.
	ErrNoDocuments = errors.New("No documents found")
)
