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

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/bifrost"
	"github.com/poiesic/bifrost/config"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "bifrost",
		Usage: "Question answering over camera object detections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"BIFROST_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "bifrost.yaml",
				EnvVars: []string{"BIFROST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				EnvVars: []string{"BIFROST_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "provider",
				Usage:   "AI service protocol (ollama, openai)",
				EnvVars: []string{"BIFROST_AI_PROVIDER"},
			},
			&cli.StringFlag{
				Name:    "ai-host",
				Usage:   "Embedding and chat service host URL",
				EnvVars: []string{"BIFROST_AI_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"BIFROST_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "chat-model",
				Usage:   "Chat model name",
				EnvVars: []string{"BIFROST_CHAT_MODEL"},
			},
			&cli.StringFlag{
				Name:    "ai-token",
				Usage:   "Bearer token for OpenAI-compatible services",
				EnvVars: []string{"BIFROST_AI_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "collection",
				Usage:   "Aggregate collection name",
				EnvVars: []string{"BIFROST_COLLECTION"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			askCommand(),
			reembedCommand(),
			collectionsCommand(),
			configCommand(),
		},
	}
}

func mqttFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mqtt-host",
			Usage:   "MQTT broker host",
			EnvVars: []string{"BIFROST_MQTT_HOST"},
		},
		&cli.IntFlag{
			Name:    "mqtt-port",
			Usage:   "MQTT broker port",
			EnvVars: []string{"BIFROST_MQTT_PORT"},
		},
		&cli.StringFlag{
			Name:    "mqtt-topic",
			Usage:   "Topic carrying detection frames",
			EnvVars: []string{"BIFROST_MQTT_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "mqtt-username",
			Usage:   "MQTT username",
			EnvVars: []string{"BIFROST_MQTT_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "mqtt-password",
			Usage:   "MQTT password",
			EnvVars: []string{"BIFROST_MQTT_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "mqtt-client-id",
			Usage:   "MQTT client identifier",
			EnvVars: []string{"BIFROST_MQTT_CLIENT_ID"},
		},
	}
}

// loadConfig reads the configuration file and applies any flag or
// environment overrides on top of it.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	overrideString(c, "data-dir", &cfg.Storage.DataDir)
	overrideString(c, "provider", &cfg.AI.Provider)
	if c.IsSet("ai-host") {
		cfg.AI.EmbeddingHost = c.String("ai-host")
		cfg.AI.ChatHost = c.String("ai-host")
	}
	overrideString(c, "embedding-model", &cfg.AI.EmbeddingModel)
	overrideString(c, "chat-model", &cfg.AI.ChatModel)
	overrideString(c, "ai-token", &cfg.AI.Token)
	overrideString(c, "collection", &cfg.Ingestion.Collection)

	overrideString(c, "mqtt-host", &cfg.MQTT.Host)
	if c.IsSet("mqtt-port") {
		cfg.MQTT.Port = c.Int("mqtt-port")
	}
	overrideString(c, "mqtt-topic", &cfg.MQTT.Topic)
	overrideString(c, "mqtt-username", &cfg.MQTT.Username)
	overrideString(c, "mqtt-password", &cfg.MQTT.Password)
	overrideString(c, "mqtt-client-id", &cfg.MQTT.ClientID)

	if c.IsSet("addr") {
		cfg.HTTP.Addr = c.String("addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func overrideString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func openDatabase(cfg *config.AppConfig) (*bifrost.Database, error) {
	opts := []bifrost.DatabaseOption{bifrost.WithAIConfig(cfg.AISettings())}
	if cfg.Storage.InMemory {
		opts = append(opts, bifrost.WithInMemory())
	}
	db, err := bifrost.NewDatabase(cfg.Storage.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
