package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/core"
	"github.com/poiesic/bifrost/storage"
)

// Retriever defaults.
const (
	DefaultCollection  = "bifrost_data"
	DefaultTopN        = 100
	DefaultMaxWords    = 80
	DefaultCallTimeout = 30 * time.Second
)

// Response is the outcome of a question.
type Response struct {
	Context string `json:"context"`
	Answer  string `json:"answer"`
}

// Retriever answers questions from the detections stored in one collection.
type Retriever struct {
	index       storage.VectorIndex
	embedder    ai.Embedder
	generator   ai.AnswerGenerator
	collection  string
	topN        int
	maxWords    int
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithCollection sets the collection questions are answered from.
func WithCollection(name string) Option {
	return func(r *Retriever) error {
		if name == "" {
			return errors.New("collection name required")
		}
		r.collection = name
		return nil
	}
}

// WithTopN sets how many nearest detections are placed in the context.
func WithTopN(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("top n must be positive, got %d", n)
		}
		r.topN = n
		return nil
	}
}

// WithMaxWords sets the answer length stated in the prompt.
func WithMaxWords(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("max words must be positive, got %d", n)
		}
		r.maxWords = n
		return nil
	}
}

// WithCallTimeout bounds each embedding, query and generation call.
// Zero disables the per-call bound.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Retriever) error {
		if d < 0 {
			return fmt.Errorf("call timeout must not be negative, got %s", d)
		}
		r.callTimeout = d
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(index storage.VectorIndex, provider ai.AIProvider, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	r := &Retriever{
		index:       index,
		embedder:    provider.Embedder(),
		generator:   provider.AnswerGenerator(),
		collection:  DefaultCollection,
		topN:        DefaultTopN,
		maxWords:    DefaultMaxWords,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")

	return r, nil
}

// Answer answers a question from the nearest stored detections.
func (r *Retriever) Answer(ctx context.Context, question string) (*Response, error) {
	return r.AnswerWithMonitor(ctx, question, nil)
}

// AnswerWithMonitor answers a question, reporting each stage to monitor.
//
// Embedding, query and generation failures are logged and rendered into the
// Response. The returned error is non-nil only when ctx ends before an
// answer is produced.
func (r *Retriever) AnswerWithMonitor(ctx context.Context, question string, monitor Monitor) (*Response, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(question)

	resp := &Response{}
	finish := func() (*Response, error) {
		monitor.Finish(resp)
		return resp, ctx.Err()
	}

	// 1. Embed the question
	vector, err := r.embed(ctx, question)
	if err != nil {
		r.logger.Error("error generating embedding for question", "err", err)
		resp.Context = EmbeddingFailed
		return finish()
	}
	monitor.AfterEmbedding(vector)

	// 2. Query the nearest detections
	results, err := r.query(ctx, vector)
	if err != nil {
		r.logger.Error("error querying vector index", "collection", r.collection, "err", err)
		resp.Context = fmt.Sprintf(queryFailedFormat, err)
		return finish()
	}
	monitor.AfterQuery(results)

	entries := make([]*core.Entry, len(results))
	for i, result := range results {
		entries[i] = result.Entry
	}
	resp.Context = FormatContext(entries, NoRelevantData)
	r.logger.Debug("built context", "detections", len(entries))

	// 3. Generate the answer
	answer, err := r.generate(ctx, question, resp.Context)
	switch {
	case err != nil:
		r.logger.Error("error generating answer", "err", err)
		resp.Answer = fmt.Sprintf(generateFailedFormat, err)
	case strings.TrimSpace(answer) == "":
		resp.Answer = NoResponse
	default:
		resp.Answer = answer
	}

	return finish()
}

// QueryMetadata lists every detection whose metadata matches predicate
// exactly, in insertion order, using the context line format.
func (r *Retriever) QueryMetadata(ctx context.Context, predicate map[string]string) (string, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	entries, err := r.index.Filter(callCtx, r.collection, predicate)
	if err != nil {
		r.logger.Error("error filtering by metadata", "collection", r.collection, "err", err)
		return fmt.Sprintf(metadataFailedFormat, err), ctx.Err()
	}
	r.logger.Debug("filtered by metadata", "predicate", predicate, "matches", len(entries))
	return FormatContext(entries, NoMatchingMetadata), nil
}

func (r *Retriever) embed(ctx context.Context, question string) ([]float32, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	vector, err := r.embedder.EmbedText(callCtx, question)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", core.ErrEmbeddingUnavailable)
	}
	return vector, nil
}

func (r *Retriever) query(ctx context.Context, vector []float32) ([]*core.QueryResult, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	return r.index.Query(callCtx, r.collection, vector, r.topN)
}

func (r *Retriever) generate(ctx context.Context, question, contextText string) (string, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	return r.generator.Generate(callCtx, SystemPrompt, UserPrompt(contextText, question, r.maxWords))
}

func (r *Retriever) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.callTimeout)
}
