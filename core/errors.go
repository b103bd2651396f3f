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

package core

import "errors"

// Error kinds. Every failure that crosses a pipeline stage is wrapped with
// exactly one of these so callers can branch with errors.Is.
var (
	// ErrValidation indicates a malformed frame or detection.
	ErrValidation = errors.New("validation error")

	// ErrEmbeddingUnavailable indicates the embedding service failed or
	// returned an unusable result.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrGenerationUnavailable indicates the chat-completion service failed.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrTransport indicates a publish/subscribe connect or subscribe failure.
	ErrTransport = errors.New("transport error")

	// ErrIndex indicates a vector index failure.
	ErrIndex = errors.New("index error")
)

// Detection validation causes
var (
	// ErrMissingLabel indicates the label field is absent or empty.
	ErrMissingLabel = errors.New("label is required")

	// ErrMissingBBox indicates the bbox field or one of its coordinates is absent.
	ErrMissingBBox = errors.New("bbox with x, y, width and height is required")

	// ErrMissingConfidence indicates the confidence field is absent.
	ErrMissingConfidence = errors.New("confidence is required")

	// ErrInvalidConfidence indicates a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrMissingUTC indicates the utc field is absent or empty.
	ErrMissingUTC = errors.New("utc is required")

	// ErrMalformedFrame indicates a payload that is not a frame message.
	ErrMalformedFrame = errors.New("malformed frame message")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the dimension fixed for its collection.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
