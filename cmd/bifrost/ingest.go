package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/poiesic/bifrost/ingestion"
	"github.com/poiesic/bifrost/subscriber"
	"github.com/urfave/cli/v2"
)

// maxFrameSize bounds one line of a frame file.
const maxFrameSize = 1 << 20

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:   "ingest",
		Usage:  "Subscribe to the camera topic and store detections until interrupted",
		Action: ingestAction,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read newline-delimited frame messages from a file instead of MQTT (- for stdin)",
			},
		}, mqttFlags()...),
	}
}

func ingestAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	subscriber.InstallPahoLogger(slog.Default())

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := checkDimensions(ctx, db, cfg); err != nil {
		return err
	}

	pipeline, err := db.NewIngestionPipeline(cfg.IngestionOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Close()

	if path := c.String("file"); path != "" {
		var r io.Reader = c.App.Reader
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		return ingestFrames(ctx, pipeline, r, c.App.Writer)
	}

	transport, err := subscriber.NewMQTTTransport(cfg.MQTTSettings())
	if err != nil {
		return fmt.Errorf("failed to create MQTT transport: %w", err)
	}
	controller, err := subscriber.NewController(transport, pipeline)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}

	if _, err := controller.Start(ctx); err != nil {
		return err
	}
	slog.Info("ingesting", "broker", cfg.MQTTSettings().BrokerURL(), "topic", cfg.MQTT.Topic,
		"collection", pipeline.Collection())

	<-ctx.Done()
	controller.Stop()
	slog.Info("ingestion totals", "stats", pipeline.Stats())
	return nil
}

// ingestFrames stores one frame message per non-blank line of r. Malformed
// lines are reported and skipped.
func ingestFrames(ctx context.Context, pipeline *ingestion.Pipeline, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	line := 0
	for scanner.Scan() {
		line++
		payload := scanner.Bytes()
		if len(payload) == 0 {
			continue
		}
		result, err := pipeline.Ingest(ctx, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(w, "line %d: %v\n", line, err)
			continue
		}
		fmt.Fprintf(w, "frame %s: stored %d, skipped %d\n", result.Frame, len(result.Stored), len(result.Skipped))
	}
	return scanner.Err()
}
