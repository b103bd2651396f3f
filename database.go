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

// Package bifrost wires the vector index, the AI provider and the
// pipelines built on them.
package bifrost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/ai/ollama"
	"github.com/poiesic/bifrost/ai/openai"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/ingestion"
	"github.com/poiesic/bifrost/reembed"
	"github.com/poiesic/bifrost/retrieval"
	"github.com/poiesic/bifrost/storage"
	"github.com/poiesic/bifrost/storage/badger"
)

// dimensionProbe is embedded to learn the configured model's vector length.
const dimensionProbe = "Label: probe, BBox: {}, Confidence: 0, UTC: probe"

type Database struct {
	backend        *badger.Backend
	index          *badger.Index
	checkpointRepo storage.CheckpointRepository
	provider       ai.AIProvider
	logger         *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig sets the embedding and chat service configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an existing provider instead of building one from the
// AI config. The database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithInMemory keeps the index in memory; the path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the vector index at filePath and creates the AI provider.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	index, err := badger.NewIndex(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	checkpointRepo := badger.NewCheckpointRepository(backend)

	provider := options.provider
	if provider == nil {
		provider, err = newProvider(options.aiConfig)
		if err != nil {
			index.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:        backend,
		index:          index,
		checkpointRepo: checkpointRepo,
		provider:       provider,
		logger:         options.logger.With("component", "database"),
	}, nil
}

func newProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if cfg == nil {
		cfg = ai.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(cfg)
	default:
		return ollama.NewProvider(cfg)
	}
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.index.Close(); err != nil {
		db.logger.Error("error closing vector index", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) Index() storage.VectorIndex {
	return db.index
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpointRepo
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(db.index, db.provider.Embedder(), opts...)
}

func (db *Database) NewRetriever(opts ...retrieval.Option) (*retrieval.Retriever, error) {
	return retrieval.NewRetriever(db.index, db.provider, opts...)
}

// NewReembedder creates a re-embedding job that checkpoints into this database.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.index, db.checkpointRepo, db.provider.Embedder(), config, progress)
}

// CheckEmbeddingDimension verifies that the configured embedding model
// produces vectors of the dimension already fixed for collection. A missing
// collection passes. A mismatch returns core.ErrDimensionMismatch; the stored
// entries must be re-embedded before the collection can be used.
func (db *Database) CheckEmbeddingDimension(ctx context.Context, collection string) error {
	col, err := db.index.GetCollection(ctx, collection)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	vector, err := db.provider.Embedder().EmbedText(ctx, dimensionProbe)
	if err != nil {
		return fmt.Errorf("probing embedding dimension: %w", err)
	}
	if len(vector) != col.Dimension {
		return fmt.Errorf("%w: collection %q stores %d-dimensional embeddings but the embedding model returns %d; run `bifrost reembed %s`",
			core.ErrDimensionMismatch, collection, col.Dimension, len(vector), collection)
	}

	db.logger.Debug("embedding dimension verified", "collection", collection, "dimension", col.Dimension)
	return nil
}
