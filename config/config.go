// Package config loads the bifrost application configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/bifrost/ai"
	"github.com/poiesic/bifrost/ingestion"
	"github.com/poiesic/bifrost/retrieval"
	"github.com/poiesic/bifrost/subscriber"
	"gopkg.in/yaml.v3"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	ClientID           string `yaml:"client_id"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Topic              string `yaml:"topic"`
	QoS                int    `yaml:"qos"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_secs"`
	KeepAliveSecs      int    `yaml:"keep_alive_secs"`
	AutoReconnect      *bool  `yaml:"auto_reconnect,omitempty"`
}

// AIConfig selects the embedding and chat services.
type AIConfig struct {
	Provider       string `yaml:"provider"`
	EmbeddingHost  string `yaml:"embedding_host"`
	ChatHost       string `yaml:"chat_host"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	Token          string `yaml:"token"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr             string   `yaml:"addr"`
	CORSOrigins      []string `yaml:"cors_origins"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs"`
}

// StorageConfig locates the vector index.
type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	InMemory bool   `yaml:"in_memory"`
}

// MirrorDisabled as mirror_collection turns per-device mirroring off.
const MirrorDisabled = "none"

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	Collection       string  `yaml:"collection"`
	MirrorCollection string  `yaml:"mirror_collection"`
	QueueSize        int     `yaml:"queue_size"`
	PoolSize         int     `yaml:"pool_size"`
	CallTimeoutSecs  int     `yaml:"call_timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts"`
	RetryBaseDelayMS int     `yaml:"retry_base_delay_ms"`
	RateLimit        float64 `yaml:"rate_limit"`
	RateBurst        int     `yaml:"rate_burst"`
}

// RetrievalConfig tunes question answering.
type RetrievalConfig struct {
	TopN            int `yaml:"top_n"`
	MaxWords        int `yaml:"max_words"`
	CallTimeoutSecs int `yaml:"call_timeout_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	AI        AIConfig        `yaml:"ai"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// Load reads a config from path. An empty path or a missing file yields
// the defaults. Values absent from the file keep their defaults.
func Load(path string) (*AppConfig, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the configuration of the camera deployment.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	mqttDefaults := subscriber.DefaultMQTTConfig()
	m := &cfg.MQTT
	if m.Host == "" {
		m.Host = mqttDefaults.Host
	}
	if m.Port == 0 {
		m.Port = mqttDefaults.Port
	}
	if m.ClientID == "" {
		m.ClientID = mqttDefaults.ClientID
	}
	if m.Username == "" {
		m.Username = mqttDefaults.Username
	}
	if m.Password == "" {
		m.Password = mqttDefaults.Password
	}
	if m.Topic == "" {
		m.Topic = mqttDefaults.Topic
	}
	if m.ConnectTimeoutSecs == 0 {
		m.ConnectTimeoutSecs = int(mqttDefaults.ConnectTimeout / time.Second)
	}
	if m.KeepAliveSecs == 0 {
		m.KeepAliveSecs = int(mqttDefaults.KeepAlive / time.Second)
	}
	if m.AutoReconnect == nil {
		reconnect := mqttDefaults.AutoReconnect
		m.AutoReconnect = &reconnect
	}

	aiDefaults := ai.DefaultConfig()
	a := &cfg.AI
	if a.Provider == "" {
		a.Provider = aiDefaults.Provider
	}
	if a.EmbeddingHost == "" {
		a.EmbeddingHost = aiDefaults.EmbeddingHost
	}
	if a.ChatHost == "" {
		a.ChatHost = aiDefaults.ChatHost
	}
	if a.EmbeddingModel == "" {
		a.EmbeddingModel = aiDefaults.EmbeddingModel
	}
	if a.ChatModel == "" {
		a.ChatModel = aiDefaults.ChatModel
	}
	if a.Token == "" {
		a.Token = aiDefaults.Token
	}
	if a.TimeoutSecs == 0 {
		a.TimeoutSecs = int(aiDefaults.Timeout / time.Second)
	}

	h := &cfg.HTTP
	if h.Addr == "" {
		h.Addr = ":5001"
	}
	if len(h.CORSOrigins) == 0 {
		h.CORSOrigins = []string{"*"}
	}
	if h.ReadTimeoutSecs == 0 {
		h.ReadTimeoutSecs = 30
	}
	if h.WriteTimeoutSecs == 0 {
		h.WriteTimeoutSecs = 120
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./bifrost_data"
	}

	in := &cfg.Ingestion
	if in.Collection == "" {
		in.Collection = "bifrost_data"
	}
	if in.MirrorCollection == "" {
		in.MirrorCollection = "pi5_camera_1"
	}
	if in.QueueSize == 0 {
		in.QueueSize = 256
	}
	if in.PoolSize == 0 {
		in.PoolSize = 1
	}
	if in.CallTimeoutSecs == 0 {
		in.CallTimeoutSecs = 30
	}
	if in.MaxAttempts == 0 {
		in.MaxAttempts = 1
	}
	if in.RetryBaseDelayMS == 0 {
		in.RetryBaseDelayMS = 500
	}
	if in.RateBurst == 0 {
		in.RateBurst = 1
	}

	r := &cfg.Retrieval
	if r.TopN == 0 {
		r.TopN = 100
	}
	if r.MaxWords == 0 {
		r.MaxWords = 80
	}
	if r.CallTimeoutSecs == 0 {
		r.CallTimeoutSecs = 30
	}
}

// Validate checks that the configuration is usable.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := c.MQTTSettings().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.AISettings().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http config: addr is required"))
	}
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage config: data_dir is required"))
	}
	if c.Ingestion.Collection == "" {
		errs = append(errs, errors.New("ingestion config: collection is required"))
	}
	if c.Ingestion.Collection == c.Ingestion.Mirror() {
		errs = append(errs, errors.New("ingestion config: mirror_collection must differ from collection"))
	}
	if c.Ingestion.QueueSize < 1 {
		errs = append(errs, errors.New("ingestion config: queue_size must be positive"))
	}
	if c.Ingestion.PoolSize < 1 {
		errs = append(errs, errors.New("ingestion config: pool_size must be positive"))
	}
	if c.Ingestion.MaxAttempts < 1 {
		errs = append(errs, errors.New("ingestion config: max_attempts must be positive"))
	}
	if c.Ingestion.RateLimit < 0 {
		errs = append(errs, errors.New("ingestion config: rate_limit must not be negative"))
	}
	if c.Retrieval.TopN < 1 {
		errs = append(errs, errors.New("retrieval config: top_n must be positive"))
	}
	if c.Retrieval.MaxWords < 1 {
		errs = append(errs, errors.New("retrieval config: max_words must be positive"))
	}
	return errors.Join(errs...)
}

// MQTTSettings converts the MQTT section to a transport configuration.
func (c *AppConfig) MQTTSettings() subscriber.MQTTConfig {
	m := c.MQTT
	reconnect := true
	if m.AutoReconnect != nil {
		reconnect = *m.AutoReconnect
	}
	qos := byte(0)
	if m.QoS > 0 {
		qos = byte(min(m.QoS, 255))
	}
	return subscriber.MQTTConfig{
		Host:           m.Host,
		Port:           m.Port,
		ClientID:       m.ClientID,
		Username:       m.Username,
		Password:       m.Password,
		Topic:          m.Topic,
		QoS:            qos,
		ConnectTimeout: seconds(m.ConnectTimeoutSecs),
		KeepAlive:      seconds(m.KeepAliveSecs),
		AutoReconnect:  reconnect,
	}
}

// AISettings converts the AI section to an ai.Config.
func (c *AppConfig) AISettings() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.AI.Provider),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithChatHost(c.AI.ChatHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithChatModel(c.AI.ChatModel),
		ai.WithToken(c.AI.Token),
		ai.WithTimeout(seconds(c.AI.TimeoutSecs)),
	)
}

// Mirror returns the mirror collection name, or empty when mirroring is off.
func (c IngestionConfig) Mirror() string {
	if c.MirrorCollection == MirrorDisabled {
		return ""
	}
	return c.MirrorCollection
}

// IngestionOptions converts the ingestion section to pipeline options.
func (c *AppConfig) IngestionOptions() []ingestion.Option {
	in := c.Ingestion
	opts := []ingestion.Option{
		ingestion.WithCollection(in.Collection),
		ingestion.WithQueueSize(in.QueueSize),
		ingestion.WithPoolSize(in.PoolSize),
		ingestion.WithCallTimeout(seconds(in.CallTimeoutSecs)),
		ingestion.WithRetry(in.MaxAttempts, time.Duration(in.RetryBaseDelayMS)*time.Millisecond),
	}
	if mirror := in.Mirror(); mirror != "" {
		opts = append(opts, ingestion.WithMirrorCollection(mirror))
	}
	if in.RateLimit > 0 {
		opts = append(opts, ingestion.WithRateLimit(in.RateLimit, in.RateBurst))
	}
	return opts
}

// RetrievalOptions converts the retrieval section to retriever options.
// Questions are answered from the aggregate ingestion collection.
func (c *AppConfig) RetrievalOptions() []retrieval.Option {
	return []retrieval.Option{
		retrieval.WithCollection(c.Ingestion.Collection),
		retrieval.WithTopN(c.Retrieval.TopN),
		retrieval.WithMaxWords(c.Retrieval.MaxWords),
		retrieval.WithCallTimeout(seconds(c.Retrieval.CallTimeoutSecs)),
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
