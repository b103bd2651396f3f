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


package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{
		backend: backend,
	}
}

// SaveCheckpoint persists a checkpoint for a job and collection.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error {
	checkpoint.UpdatedAt = time.Now().UTC()
	value, err := storage.MarshalCheckpoint(checkpoint)
	if err != nil {
		return err
	}
	err = r.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeCheckpointKey(checkpoint.Job, checkpoint.Collection), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndex, err)
	}
	return nil
}

// LoadCheckpoint retrieves the checkpoint for a job and collection.
// Returns nil, nil if no checkpoint exists.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, job, collection string) (*core.Checkpoint, error) {
	var checkpoint *core.Checkpoint
	err := r.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(job, collection))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			checkpoint, unmarshalErr = storage.UnmarshalCheckpoint(val)
			return unmarshalErr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIndex, err)
	}
	return checkpoint, nil
}

// DeleteCheckpoint removes the checkpoint for a job and collection.
func (r *CheckpointRepository) DeleteCheckpoint(ctx context.Context, job, collection string) error {
	err := r.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeCheckpointKey(job, collection))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndex, err)
	}
	return nil
}
