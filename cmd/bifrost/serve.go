package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/bifrost/api"
	"github.com/poiesic/bifrost/subscriber"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API; the MQTT subscriber is started through /mqtt/start",
		Action: serveAction,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "HTTP listen address",
				EnvVars: []string{"BIFROST_ADDR"},
			},
			&cli.BoolFlag{
				Name:    "autostart",
				Usage:   "Start the MQTT subscriber immediately",
				EnvVars: []string{"BIFROST_AUTOSTART"},
			},
		}, mqttFlags()...),
	}
}

func serveAction(c *cli.Context) error {
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

	retriever, err := db.NewRetriever(cfg.RetrievalOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	transport, err := subscriber.NewMQTTTransport(cfg.MQTTSettings())
	if err != nil {
		return fmt.Errorf("failed to create MQTT transport: %w", err)
	}
	controller, err := subscriber.NewController(transport, pipeline)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	defer controller.Stop()

	server, err := api.NewServer(db.Index(), retriever, controller,
		api.WithCollection(cfg.Ingestion.Collection),
		api.WithCORSOrigins(cfg.HTTP.CORSOrigins),
		api.WithStats(pipeline),
		api.WithLifecycleContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	httpServer := server.NewHTTPServer(cfg.HTTP.Addr, seconds(cfg.HTTP.ReadTimeoutSecs), seconds(cfg.HTTP.WriteTimeoutSecs))

	if c.Bool("autostart") {
		status, err := controller.Start(ctx)
		if err != nil {
			// The subscriber can still be started later through the API.
			slog.Error("error starting subscriber", "err", err)
		} else {
			slog.Info("subscriber", "status", status)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http api listening", "addr", cfg.HTTP.Addr, "collection", cfg.Ingestion.Collection)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		controller.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("ingestion totals", "stats", pipeline.Stats())
	return nil
}
