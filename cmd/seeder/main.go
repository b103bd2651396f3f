package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poiesic/bifrost"
	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/subscriber"
)

var labels = []string{
	"person", "person", "person", "car", "car", "truck", "bicycle",
	"dog", "cat", "bird", "backpack", "umbrella", "bench", "motorcycle",
}

var (
	seedFileName = flag.String("src", "", "file of newline-delimited frame messages")
	frameCount   = flag.Int("frames", 50, "number of synthetic frames when -src is not given")
	seed         = flag.Uint64("seed", 1, "random seed for synthetic frames")
	interval     = flag.Duration("interval", 0, "delay between frames")
	direct       = flag.Bool("direct", false, "store frames in the local database instead of publishing them")
	dbPath       = flag.String("db", "./bifrost_data", "database directory used with -direct")
	aiHost       = flag.String("ai-host", "http://localhost:11434", "embedding service host used with -direct")
	model        = flag.String("model", "phi3", "embedding model used with -direct")
	mqttHost     = flag.String("mqtt-host", "", "MQTT broker host")
	mqttPort     = flag.Int("mqtt-port", 0, "MQTT broker port")
	mqttTopic    = flag.String("mqtt-topic", "", "topic to publish frames to")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// linesFromFile returns an iterator over the non-blank lines in a file.
func linesFromFile(filename string) (iter.Seq[[]byte], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func([]byte) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if !yield(append([]byte(nil), line...)) {
				return
			}
		}
	}, nil
}

type frame struct {
	Frame      int              `json:"frame"`
	Detections []core.Detection `json:"detections"`
}

// syntheticFrames returns an iterator over count generated frame messages,
// one second apart starting at start. The same seed yields the same frames.
func syntheticFrames(count int, seed uint64, start time.Time) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		for i := range count {
			utc := start.Add(time.Duration(i) * time.Second).UTC().Format(time.RFC3339)
			f := frame{Frame: i + 1}
			for range rng.IntN(4) + 1 {
				f.Detections = append(f.Detections, core.Detection{
					Label: labels[rng.IntN(len(labels))],
					BBox: core.BBox{
						X:      float64(rng.IntN(1200)),
						Y:      float64(rng.IntN(640)),
						Width:  float64(rng.IntN(300) + 20),
						Height: float64(rng.IntN(300) + 20),
					},
					Confidence: float64(rng.IntN(600)+400) / 1000,
					UTC:        utc,
				})
			}
			payload, _ := json.Marshal(f)
			if !yield(payload) {
				return
			}
		}
	}
}

// sink receives frame payloads.
type sink func(ctx context.Context, payload []byte) error

// sendAll hands every payload of source to send, pausing between frames.
func sendAll(ctx context.Context, send sink, source iter.Seq[[]byte], pause time.Duration) (int, error) {
	sent := 0
	for payload := range source {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := send(ctx, payload); err != nil {
			return sent, err
		}
		sent++
		if pause > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return sent, nil
}

func publisher(ctx context.Context) (sink, func(), error) {
	cfg := subscriber.DefaultMQTTConfig()
	cfg.ClientID = "bifrost_seeder"
	if *mqttHost != "" {
		cfg.Host = *mqttHost
	}
	if *mqttPort != 0 {
		cfg.Port = *mqttPort
	}
	if *mqttTopic != "" {
		cfg.Topic = *mqttTopic
	}

	subscriber.InstallPahoLogger(slog.Default())
	transport, err := subscriber.NewMQTTTransport(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := transport.Connect(ctx); err != nil {
		return nil, nil, err
	}
	slog.Info("publishing", "broker", cfg.BrokerURL(), "topic", cfg.Topic)
	return transport.Publish, transport.Disconnect, nil
}

func ingester() (sink, func(), error) {
	db, err := bifrost.NewDatabase(*dbPath, bifrost.WithAIConfig(ai.NewConfig(ai.WithHost(*aiHost), ai.WithModel(*model))))
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	send := func(ctx context.Context, payload []byte) error {
		result, err := pipeline.Ingest(ctx, payload)
		if err != nil {
			slog.Warn("frame rejected", "err", err)
			return nil
		}
		slog.Info("frame stored", "frame", result.Frame.String(),
			"stored", len(result.Stored), "skipped", len(result.Skipped))
		return nil
	}
	closeFn := func() {
		pipeline.Close()
		db.Close()
	}
	return send, closeFn, nil
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Determine source of seed data
	var source iter.Seq[[]byte]
	if *seedFileName != "" {
		var err error
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = syntheticFrames(*frameCount, *seed, time.Now())
	}

	var (
		send    sink
		closeFn func()
		err     error
	)
	if *direct {
		send, closeFn, err = ingester()
	} else {
		send, closeFn, err = publisher(ctx)
	}
	if err != nil {
		panic(err)
	}
	defer closeFn()

	sent, err := sendAll(ctx, send, source, *interval)
	if err != nil {
		slog.Error("seeding stopped", "sent", sent, "err", err)
		os.Exit(1)
	}
	fmt.Printf("sent %d frames\n", sent)
}
