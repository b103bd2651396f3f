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

package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/bifrost/core"
)

// Handler receives the raw payload of one transport message.
type Handler func(payload []byte)

// Transport is a publish/subscribe connection bound to one topic.
type Transport interface {
	// Connect opens the connection to the broker.
	Connect(ctx context.Context) error
	// Subscribe delivers every message on the topic to handler until Disconnect.
	Subscribe(ctx context.Context, handler Handler) error
	// Disconnect closes the connection. It is a no-op when not connected.
	Disconnect()
}

// Sink accepts payloads for processing without blocking.
type Sink interface {
	Enqueue(payload []byte) error
}

// State is the lifecycle state of a Controller.
type State int

const (
	// StateStopped means no broker connection is held.
	StateStopped State = iota
	// StateStarting means a connect and subscribe is in progress.
	StateStarting
	// StateRunning means payloads are being delivered to the sink.
	StateRunning
	// StateStopping means the connection is being closed.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the outcome of a Start or Stop request.
type Status string

const (
	// StatusStarted is returned when Start connected and subscribed.
	StatusStarted Status = "started"
	// StatusAlreadyRunning is returned when Start found the controller running.
	StatusAlreadyRunning Status = "already running"
	// StatusStopped is returned when Stop closed a running subscription.
	StatusStopped Status = "stopped"
	// StatusNotRunning is returned when Stop found nothing to stop.
	StatusNotRunning Status = "not running"
)

// Controller drives a Transport through its lifecycle. Every transition
// happens under one mutex, so concurrent Start calls connect at most once.
type Controller struct {
	transport Transport
	sink      Sink
	logger    *slog.Logger

	mu    sync.Mutex
	state State

	delivered atomic.Int64
	dropped   atomic.Int64
}

// Option configures a Controller.
type Option func(*Controller) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewController creates a stopped controller.
func NewController(transport Transport, sink Sink, opts ...Option) (*Controller, error) {
	if transport == nil {
		return nil, ErrTransportRequired
	}
	if sink == nil {
		return nil, ErrSinkRequired
	}

	c := &Controller{
		transport: transport,
		sink:      sink,
		logger:    slog.Default(),
		state:     StateStopped,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "mqtt-subscriber")
	return c, nil
}

// Start connects and subscribes the transport. It returns
// StatusAlreadyRunning without side effects when already running. A
// transport failure leaves the controller stopped and wraps core.ErrTransport.
func (c *Controller) Start(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return StatusAlreadyRunning, nil
	}

	c.state = StateStarting
	if err := c.transport.Connect(ctx); err != nil {
		c.state = StateStopped
		c.logger.Error("error connecting transport", "err", err)
		return "", fmt.Errorf("%w: connect: %w", core.ErrTransport, err)
	}
	if err := c.transport.Subscribe(ctx, c.handle); err != nil {
		c.transport.Disconnect()
		c.state = StateStopped
		c.logger.Error("error subscribing", "err", err)
		return "", fmt.Errorf("%w: subscribe: %w", core.ErrTransport, err)
	}

	c.state = StateRunning
	c.logger.Info("subscriber started")
	return StatusStarted, nil
}

// Stop disconnects the transport when running.
// Messages already handed to the sink are not cancelled.
func (c *Controller) Stop() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return StatusNotRunning
	}

	c.state = StateStopping
	c.transport.Disconnect()
	c.state = StateStopped
	c.logger.Info("subscriber stopped",
		"delivered", c.delivered.Load(), "dropped", c.dropped.Load())
	return StatusStopped
}

// Running reports whether the controller is subscribed.
func (c *Controller) Running() bool {
	return c.State() == StateRunning
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// handle forwards a payload to the sink. Rejected payloads are logged and
// dropped; the transport never blocks on a slow pipeline.
func (c *Controller) handle(payload []byte) {
	if err := c.sink.Enqueue(payload); err != nil {
		c.dropped.Add(1)
		c.logger.Warn("dropping message", "bytes", len(payload), "err", err)
		return
	}
	c.delivered.Add(1)
}
