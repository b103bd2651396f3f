package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/bifrost/reembed"
	"github.com/urfave/cli/v2"
)

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:      "reembed",
		Usage:     "Re-embed stored detections with the configured embedding model",
		ArgsUsage: "[collection...]",
		Description: "Re-embeds the named collections, or every collection when none is given. " +
			"Progress is checkpointed per batch, so an interrupted run resumes where it stopped.",
		Action: reembedAction,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of entries to process in each batch",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N entries",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts for a batch's embedding call",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
	}
}

func reembedAction(c *cli.Context) error {
	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out := c.App.ErrWriter
	reembedder, err := db.NewReembedder(reembedConfig, out)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Database: %s\n", cfg.Storage.DataDir)
	fmt.Fprintf(out, "Embedding host: %s\n", cfg.AISettings().EmbeddingHost)
	fmt.Fprintf(out, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(out)

	if c.Args().Len() == 0 {
		if err := reembedder.RunAll(c.Context); err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		return nil
	}

	var errs []error
	for _, name := range c.Args().Slice() {
		if err := reembedder.Run(c.Context, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
