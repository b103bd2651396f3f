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


// Package storage provides the storage abstraction layer for bifrost.
//
// This package defines the vector index and checkpoint interfaces that
// decouple the ingestion and retrieval pipelines from the storage engine.
//
// # Architecture
//
//   - VectorIndex: named collections of embedded detections with
//     similarity queries, full-scan metadata filtering and paging
//   - CheckpointRepository: progress markers for resumable maintenance jobs
//
// Failures returned by implementations are wrapped with core.ErrIndex so
// pipelines can classify them; lookups of absent records additionally
// match ErrNotFound.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	index, err := badger.NewIndex(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer index.Close()
//
// Use in tests with in-memory storage:
//
//	index, backend, err := badger.NewMemoryIndex()
//
// # Serialization
//
// Entries, collections and checkpoints are stored as JSON documents; see
// MarshalEntry and friends.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
