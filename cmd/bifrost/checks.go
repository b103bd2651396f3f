package main

import (
	"context"
	"fmt"

	"github.com/poiesic/bifrost"
	"github.com/poiesic/bifrost/config"
)

// checkDimensions refuses to start when stored embeddings do not match the
// configured embedding model.
func checkDimensions(ctx context.Context, db *bifrost.Database, cfg *config.AppConfig) error {
	collections := []string{cfg.Ingestion.Collection}
	if mirror := cfg.Ingestion.Mirror(); mirror != "" {
		collections = append(collections, mirror)
	}
	for _, name := range collections {
		if err := db.CheckEmbeddingDimension(ctx, name); err != nil {
			return fmt.Errorf("embedding check failed: %w", err)
		}
	}
	return nil
}
