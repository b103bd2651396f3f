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

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/poiesic/bifrost/ingestion"
	"github.com/poiesic/bifrost/retrieval"
	"github.com/poiesic/bifrost/storage"
	"github.com/poiesic/bifrost/subscriber"
)

// Answerer answers questions from stored detections.
type Answerer interface {
	Answer(ctx context.Context, question string) (*retrieval.Response, error)
	QueryMetadata(ctx context.Context, predicate map[string]string) (string, error)
}

// Lifecycle starts and stops the subscriber.
type Lifecycle interface {
	Start(ctx context.Context) (subscriber.Status, error)
	Stop() subscriber.Status
	Running() bool
}

// StatsSource reports ingestion counters.
type StatsSource interface {
	Stats() ingestion.Stats
}

// Server holds the HTTP API dependencies.
type Server struct {
	index        storage.VectorIndex
	answerer     Answerer
	lifecycle    Lifecycle
	stats        StatsSource
	collection   string
	corsOrigins  []string
	lifecycleCtx context.Context
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCollection sets the aggregate collection served by /collection and
// the stats route. Default is ingestion.DefaultCollection.
func WithCollection(name string) Option {
	return func(s *Server) error {
		if name != "" {
			s.collection = name
		}
		return nil
	}
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
// Default is every origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) error {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
		return nil
	}
}

// WithStats exposes ingestion counters on /ingestion/stats.
func WithStats(stats StatsSource) Option {
	return func(s *Server) error {
		s.stats = stats
		return nil
	}
}

// WithLifecycleContext sets the context the subscriber is started with.
// The subscriber outlives the start request, so it must not use the
// request context. Default is context.Background().
func WithLifecycleContext(ctx context.Context) Option {
	return func(s *Server) error {
		if ctx != nil {
			s.lifecycleCtx = ctx
		}
		return nil
	}
}

// NewServer creates the API server.
func NewServer(index storage.VectorIndex, answerer Answerer, lifecycle Lifecycle, opts ...Option) (*Server, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if answerer == nil {
		return nil, ErrAnswererRequired
	}
	if lifecycle == nil {
		return nil, ErrLifecycleRequired
	}

	s := &Server{
		index:        index,
		answerer:     answerer,
		lifecycle:    lifecycle,
		collection:   ingestion.DefaultCollection,
		corsOrigins:  []string{"*"},
		lifecycleCtx: context.Background(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "http-api")
	return s, nil
}

// Handler returns the router for every API route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Get("/collection", s.handleCollection)
	r.Route("/collections", func(r chi.Router) {
		r.Get("/", s.handleCollections)
		r.Get("/{label}/stats", s.handleLabelStats)
	})

	r.Route("/mqtt", func(r chi.Router) {
		r.Post("/start", s.handleMQTTStart)
		r.Post("/stop", s.handleMQTTStop)
		r.Get("/status", s.handleMQTTStatus)
	})

	r.Post("/query", s.handleQuery)
	r.Post("/query/metadata", s.handleQueryMetadata)

	r.Get("/ingestion/stats", s.handleIngestionStats)

	return r
}

// NewHTTPServer wraps Handler in an http.Server listening on addr.
func (s *Server) NewHTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}
