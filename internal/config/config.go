// Package config defines all configuration for the repricing engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via REPRICER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Store   StoreConfig   `mapstructure:"store"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Server  ServerConfig  `mapstructure:"server"`
	Reset   ResetConfig   `mapstructure:"reset"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// QueueConfig holds the SQS ingestion settings for Amazon offer-change
// notifications. VisibilityTimeout should be at least 2× the p99 per-event
// latency so redeliveries only happen on real failures.
type QueueConfig struct {
	URL               string        `mapstructure:"url"`
	DLQURL            string        `mapstructure:"dlq_url"`
	Region            string        `mapstructure:"region"`
	MaxMessages       int32         `mapstructure:"max_messages"`
	WaitSeconds       int32         `mapstructure:"wait_seconds"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// StoreConfig holds the Redis connection settings. Password is overridable
// via REPRICER_STORE_PASSWORD.
type StoreConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	PoolSize  int           `mapstructure:"pool_size"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
	PriceTTL  time.Duration `mapstructure:"price_ttl"`
}

// EngineConfig tunes the repricing pipeline.
//
//   - Workers: number of shard workers; events for the same
//     (asin, seller, sku) always land on the same shard.
//   - QueueDepth: per-shard channel capacity.
//   - EventTimeout: end-to-end budget for one event.
type EngineConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueDepth   int           `mapstructure:"queue_depth"`
	EventTimeout time.Duration `mapstructure:"event_timeout"`
}

// ServerConfig controls the webhook/management HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ResetConfig controls the hourly price-reset scheduler.
type ResetConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	SweepWorkers int  `mapstructure:"sweep_workers"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: REPRICER_STORE_PASSWORD, REPRICER_QUEUE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("REPRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if u := os.Getenv("REPRICER_QUEUE_URL"); u != "" {
		cfg.Queue.URL = u
	}
	if u := os.Getenv("REPRICER_QUEUE_DLQ_URL"); u != "" {
		cfg.Queue.DLQURL = u
	}
	if p := os.Getenv("REPRICER_STORE_PASSWORD"); p != "" {
		cfg.Store.Password = p
	}
	if a := os.Getenv("REPRICER_STORE_ADDR"); a != "" {
		cfg.Store.Addr = a
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.region", "us-east-1")
	v.SetDefault("queue.max_messages", 10)
	v.SetDefault("queue.wait_seconds", 20)
	v.SetDefault("queue.visibility_timeout", 5*time.Minute)
	v.SetDefault("queue.max_retries", 3)

	v.SetDefault("store.addr", "localhost:6379")
	v.SetDefault("store.pool_size", 20)
	v.SetDefault("store.op_timeout", time.Second)
	v.SetDefault("store.price_ttl", 2*time.Hour)

	v.SetDefault("engine.workers", 50)
	v.SetDefault("engine.queue_depth", 2)
	v.SetDefault("engine.event_timeout", 5*time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("reset.enabled", true)
	v.SetDefault("reset.sweep_workers", 8)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Store.Addr == "" {
		return fmt.Errorf("store.addr is required (set REPRICER_STORE_ADDR)")
	}
	if c.Queue.MaxMessages < 1 || c.Queue.MaxMessages > 10 {
		return fmt.Errorf("queue.max_messages must be 1..10 (SQS batch limit)")
	}
	if c.Queue.WaitSeconds < 0 || c.Queue.WaitSeconds > 20 {
		return fmt.Errorf("queue.wait_seconds must be 0..20")
	}
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("queue.max_retries must be >= 1")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be > 0")
	}
	if c.Engine.QueueDepth <= 0 {
		return fmt.Errorf("engine.queue_depth must be > 0")
	}
	if c.Engine.EventTimeout <= 0 {
		return fmt.Errorf("engine.event_timeout must be > 0")
	}
	if c.Store.OpTimeout <= 0 || c.Store.OpTimeout > c.Engine.EventTimeout {
		return fmt.Errorf("store.op_timeout must be > 0 and <= engine.event_timeout")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Reset.Enabled && c.Reset.SweepWorkers <= 0 {
		return fmt.Errorf("reset.sweep_workers must be > 0 when reset is enabled")
	}
	return nil
}
