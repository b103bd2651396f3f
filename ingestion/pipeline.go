package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
	"golang.org/x/time/rate"
)

// Pipeline defaults.
const (
	DefaultCollection  = "bifrost_data"
	DefaultQueueSize   = 256
	DefaultPoolSize    = 1
	DefaultCallTimeout = 30 * time.Second
	DefaultMaxAttempts = 1
	DefaultBaseDelay   = 500 * time.Millisecond

	releaseTimeout = 5 * time.Second
)

// Pipeline orchestrates the ingestion of frame messages.
// Messages queued with Enqueue are processed in arrival order when the pool
// size is 1; larger pools trade ordering for throughput.
type Pipeline struct {
	index    storage.VectorIndex
	embedder ai.Embedder

	collection  string
	mirror      string
	poolSize    int
	queueSize   int
	callTimeout time.Duration
	maxAttempts int
	baseDelay   time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger

	pool  *ants.Pool
	proc  processor
	queue chan []byte
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	received  atomic.Int64
	rejected  atomic.Int64
	dropped   atomic.Int64
	malformed atomic.Int64
	processed atomic.Int64
	stored    atomic.Int64
	skipped   atomic.Int64
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of workers processing queued messages.
// Default is 1, which keeps messages in arrival order.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithQueueSize sets the capacity of the pending message queue.
// Default is DefaultQueueSize.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("queue size must be positive, got %d", size)
		}
		p.queueSize = size
		return nil
	}
}

// WithCollection sets the aggregate collection every detection is written to.
func WithCollection(name string) Option {
	return func(p *Pipeline) error {
		p.collection = name
		return nil
	}
}

// WithMirrorCollection sets a per-device collection that receives a copy of
// every stored detection. An empty name disables mirroring.
func WithMirrorCollection(name string) Option {
	return func(p *Pipeline) error {
		p.mirror = name
		return nil
	}
}

// WithCallTimeout bounds each embedding and index call.
// Zero disables the per-call bound.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("call timeout must not be negative, got %s", d)
		}
		p.callTimeout = d
		return nil
	}
}

// WithRetry sets how many attempts a transient embedding or index failure
// gets, and the base delay of the exponential backoff between them.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts < 1 {
			return fmt.Errorf("max attempts must be positive, got %d", maxAttempts)
		}
		p.maxAttempts = maxAttempts
		p.baseDelay = baseDelay
		return nil
	}
}

// WithRateLimit caps embedding calls to perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Pipeline) error {
		if perSecond <= 0 {
			p.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// antsLoggerAdapter adapts slog.Logger to the ants.Logger interface.
type antsLoggerAdapter struct {
	logger *slog.Logger
}

var _ ants.Logger = (*antsLoggerAdapter)(nil)

func (al *antsLoggerAdapter) Printf(format string, args ...any) {
	al.logger.Warn(fmt.Sprintf(format, args...))
}

// NewPipeline creates a new ingestion pipeline and starts its dispatcher.
func NewPipeline(index storage.VectorIndex, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		index:       index,
		embedder:    embedder,
		collection:  DefaultCollection,
		poolSize:    DefaultPoolSize,
		queueSize:   DefaultQueueSize,
		callTimeout: DefaultCallTimeout,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.collection == "" {
		return nil, ErrCollectionRequired
	}
	p.logger = p.logger.With("component", "ingestion-pipeline")

	// Create the processor after options are applied so it gets the final config
	proc, err := newEmbeddingProcessor(p)
	if err != nil {
		return nil, err
	}
	p.proc = proc

	pool, err := ants.NewPool(p.poolSize,
		ants.WithLogger(&antsLoggerAdapter{logger: p.logger}),
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("panic while ingesting frame", "panic", v)
		}),
	)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	p.queue = make(chan []byte, p.queueSize)
	p.done = make(chan struct{})
	p.ctx, p.cancel = context.WithCancel(context.Background())

	go p.dispatch()

	return p, nil
}

// SkippedDetection records a detection that was not stored.
type SkippedDetection struct {
	// Index is the position of the detection within its frame.
	Index int
	Err   error
}

// Result is the outcome of ingesting one frame message.
type Result struct {
	Frame   core.FrameID
	Stored  []*core.Entry
	Skipped []SkippedDetection
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Received  int64 `json:"received"`
	Rejected  int64 `json:"rejected"`
	Dropped   int64 `json:"dropped"`
	Malformed int64 `json:"malformed"`
	Processed int64 `json:"processed"`
	Stored    int64 `json:"stored"`
	Skipped   int64 `json:"skipped"`
	Pending   int   `json:"pending"`
}

// Enqueue queues a raw payload for asynchronous ingestion without blocking.
// It returns ErrQueueFull when the queue is at capacity and
// ErrPipelineClosed after Close. The pipeline owns payload afterwards.
func (p *Pipeline) Enqueue(payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPipelineClosed
	}

	select {
	case p.queue <- payload:
		p.received.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

// dispatch feeds queued payloads to the worker pool until the queue closes.
func (p *Pipeline) dispatch() {
	defer close(p.done)

	for payload := range p.queue {
		if p.ctx.Err() != nil {
			p.dropped.Add(1)
			continue
		}
		// Submit blocks while every worker is busy.
		err := p.pool.Submit(func() {
			if _, err := p.Ingest(p.ctx, payload); err != nil && !errors.Is(err, core.ErrValidation) {
				p.logger.Error("error ingesting frame", "err", err)
			}
		})
		if err != nil {
			p.dropped.Add(1)
			p.logger.Error("error submitting frame to worker pool", "err", err)
		}
	}
}

// Ingest runs one frame message through the pipeline synchronously.
// A malformed payload returns an error wrapping core.ErrValidation. Failed
// detections are reported in Result.Skipped and do not fail the call; only
// cancellation of ctx stops processing of the remaining detections.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte) (Result, error) {
	msg, err := core.ParseFrame(payload)
	if err != nil {
		p.malformed.Add(1)
		p.logger.Warn("dropping malformed frame message", "kind", errorKind(err), "err", err)
		return Result{}, err
	}

	result := Result{Frame: msg.Frame}
	p.logger.Debug("processing frame", "frame", msg.Frame.String(), "detections", len(msg.Detections))

	for i, raw := range msg.Detections {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry, err := p.proc.process(ctx, msg.Frame, raw)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedDetection{Index: i, Err: err})
			p.skipped.Add(1)
			p.logger.Warn("skipping detection",
				"frame", msg.Frame.String(), "index", i, "kind", errorKind(err), "err", err)
			continue
		}
		result.Stored = append(result.Stored, entry)
		p.stored.Add(1)
	}

	p.processed.Add(1)
	p.logger.Info("processed frame",
		"frame", msg.Frame.String(), "stored", len(result.Stored), "skipped", len(result.Skipped))

	return result, nil
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:  p.received.Load(),
		Rejected:  p.rejected.Load(),
		Dropped:   p.dropped.Load(),
		Malformed: p.malformed.Load(),
		Processed: p.processed.Load(),
		Stored:    p.stored.Load(),
		Skipped:   p.skipped.Load(),
		Pending:   len(p.queue),
	}
}

// Collection returns the aggregate collection name.
func (p *Pipeline) Collection() string {
	return p.collection
}

// Close stops accepting messages, cancels in-flight work, drops anything
// still queued and releases the worker pool. It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cancel()
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	if err := p.pool.ReleaseTimeout(releaseTimeout); err != nil {
		p.logger.Warn("worker pool did not stop in time", "err", err)
		return err
	}
	return nil
}
