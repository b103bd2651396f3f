package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte

	// ConnectTimeout bounds connect, subscribe and publish round trips.
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	AutoReconnect  bool
}

// DefaultMQTTConfig returns the settings of the camera deployment.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Host:           "192.168.1.124",
		Port:           1883,
		ClientID:       "bifrost_mqtt_subscriber",
		Username:       "publish",
		Password:       "publish",
		Topic:          "pi5/camera/1",
		QoS:            0,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      60 * time.Second,
		AutoReconnect:  true,
	}
}

// Validate checks that the configuration is complete.
func (c MQTTConfig) Validate() error {
	if c.Host == "" {
		return errors.New("mqtt config: Host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("mqtt config: Port %d out of range", c.Port)
	}
	if c.Topic == "" {
		return errors.New("mqtt config: Topic is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt config: QoS %d is not 0, 1 or 2", c.QoS)
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("mqtt config: ConnectTimeout must be positive")
	}
	return nil
}

// BrokerURL returns the tcp:// URL of the broker.
func (c MQTTConfig) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MQTTTransport is a Transport backed by the Eclipse Paho client.
// A fresh client is created on every Connect.
type MQTTTransport struct {
	config MQTTConfig
	logger *slog.Logger

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu      sync.Mutex
	client  mqtt.Client
	handler Handler
}

var _ Transport = (*MQTTTransport)(nil)

// MQTTOption configures an MQTTTransport.
type MQTTOption func(*MQTTTransport)

// WithMQTTLogger sets a custom logger.
func WithMQTTLogger(logger *slog.Logger) MQTTOption {
	return func(t *MQTTTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewMQTTTransport validates cfg and returns a disconnected transport.
func NewMQTTTransport(cfg MQTTConfig, opts ...MQTTOption) (*MQTTTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &MQTTTransport{config: cfg, logger: slog.Default(), newClient: mqtt.NewClient}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "mqtt-transport", "broker", cfg.BrokerURL())
	return t, nil
}

func (t *MQTTTransport) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(t.config.BrokerURL()).
		SetClientID(t.config.ClientID).
		SetUsername(t.config.Username).
		SetPassword(t.config.Password).
		SetConnectTimeout(t.config.ConnectTimeout).
		SetAutoReconnect(t.config.AutoReconnect).
		SetCleanSession(true).
		SetOrderMatters(true)
	if t.config.KeepAlive > 0 {
		opts.SetKeepAlive(t.config.KeepAlive)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		t.logger.Info("connected to broker")
		t.resubscribe(client)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.logger.Warn("connection to broker lost", "err", err)
	})
	return opts
}

// Connect opens a new broker connection.
func (t *MQTTTransport) Connect(ctx context.Context) error {
	client := t.newClient(t.clientOptions())
	if err := waitToken(ctx, client.Connect(), t.config.ConnectTimeout); err != nil {
		// Stop the pending attempt so it cannot complete in the background.
		client.Disconnect(0)
		return fmt.Errorf("connect to %s: %w", t.config.BrokerURL(), err)
	}

	t.mu.Lock()
	t.client = client
	t.handler = nil
	t.mu.Unlock()
	return nil
}

// Subscribe subscribes to the configured topic. After an automatic
// reconnect the subscription is restored with the same handler.
func (t *MQTTTransport) Subscribe(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	if err := t.subscribe(ctx, client, handler); err != nil {
		return err
	}

	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
	t.logger.Info("subscribed", "topic", t.config.Topic, "qos", t.config.QoS)
	return nil
}

func (t *MQTTTransport) subscribe(ctx context.Context, client mqtt.Client, handler Handler) error {
	token := client.Subscribe(t.config.Topic, t.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if err := waitToken(ctx, token, t.config.ConnectTimeout); err != nil {
		return fmt.Errorf("subscribe to %s: %w", t.config.Topic, err)
	}
	return nil
}

// resubscribe restores the subscription of a reconnected client.
// The first connect has no handler yet and is skipped, as is any client
// that is no longer the current one.
func (t *MQTTTransport) resubscribe(client mqtt.Client) {
	t.mu.Lock()
	handler := t.handler
	current := t.client == client
	t.mu.Unlock()
	if handler == nil || !current {
		return
	}
	if err := t.subscribe(context.Background(), client, handler); err != nil {
		t.logger.Error("error restoring subscription", "err", err)
	}
}

// Publish sends payload to the configured topic.
func (t *MQTTTransport) Publish(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Publish(t.config.Topic, t.config.QoS, false, payload)
	if err := waitToken(ctx, token, t.config.ConnectTimeout); err != nil {
		return fmt.Errorf("publish to %s: %w", t.config.Topic, err)
	}
	return nil
}

// Disconnect closes the broker connection, waiting briefly for in-flight work.
func (t *MQTTTransport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.handler = nil
	t.mu.Unlock()

	if client == nil {
		return
	}
	client.Disconnect(250)
	t.logger.Info("disconnected from broker")
}

// waitToken waits for a paho token to complete, the context to end or the
// timeout to pass, whichever comes first.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}

// pahoLoggerAdapter adapts slog.Logger to the paho mqtt.Logger interface.
type pahoLoggerAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

var _ mqtt.Logger = (*pahoLoggerAdapter)(nil)

func (pl *pahoLoggerAdapter) Println(v ...any) {
	pl.logger.Log(context.Background(), pl.level, fmt.Sprint(v...))
}

func (pl *pahoLoggerAdapter) Printf(format string, v ...any) {
	pl.logger.Log(context.Background(), pl.level, fmt.Sprintf(format, v...))
}

// InstallPahoLogger routes the paho client's package-level error and
// warning output to logger.
func InstallPahoLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "paho")
	mqtt.CRITICAL = &pahoLoggerAdapter{logger: logger, level: slog.LevelError}
	mqtt.ERROR = &pahoLoggerAdapter{logger: logger, level: slog.LevelError}
	mqtt.WARN = &pahoLoggerAdapter{logger: logger, level: slog.LevelWarn}
}
