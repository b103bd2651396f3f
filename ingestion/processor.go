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

package ingestion

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
)

// processor is an internal interface for handling one detection of a frame.
type processor interface {
	// process validates, embeds and stores a single raw detection.
	// The returned entry is the one written to the aggregate collection.
	process(ctx context.Context, frame core.FrameID, raw json.RawMessage) (*core.Entry, error)
}

// errorKind names the error class of a failed step for log output.
func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation):
		return "validation"
	case errors.Is(err, core.ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, core.ErrIndex):
		return "index"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}

// transient reports whether a failed step may succeed when attempted again.
// Validation failures and index errors caused by the entry itself are final.
func transient(err error) bool {
	switch {
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrDimensionMismatch),
		errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, storage.ErrInvalidQuery),
		errors.Is(err, storage.ErrInvalidCollection),
		errors.Is(err, storage.ErrStorageClosed),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, core.ErrEmbeddingUnavailable), errors.Is(err, core.ErrIndex):
		return true
	default:
		return false
	}
}
