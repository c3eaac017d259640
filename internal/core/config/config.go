package config

import (
	"time"

	"github.com/vietddude/kvguard/internal/kv"
	"github.com/vietddude/kvguard/internal/kv/endpoint"
	"github.com/vietddude/kvguard/internal/kv/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StoreConfig holds settings for the key-value store client.
type StoreConfig struct {
	Endpoints         []EndpointConfig `yaml:"endpoints"`
	Password          string           `yaml:"password"`
	TLS               bool             `yaml:"tls"`
	ConnectTimeout    time.Duration    `yaml:"connect_timeout"`
	OperationTimeout  time.Duration    `yaml:"operation_timeout"`
	KeepAliveInterval time.Duration    `yaml:"keepalive_interval"`
	Retry             RetryConfig      `yaml:"retry"`
}

// EndpointConfig holds one candidate store endpoint.
type EndpointConfig struct {
	Address  string `yaml:"address"`
	Priority int    `yaml:"priority"`
	TLS      bool   `yaml:"tls"`
}

// RetryConfig holds the retry policy for store operations.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"`
	Deadline    time.Duration `yaml:"deadline"`
}

// ClientConfig converts the store section into a kv.Config.
func (s StoreConfig) ClientConfig() kv.Config {
	seeds := make([]endpoint.Seed, 0, len(s.Endpoints))
	for _, e := range s.Endpoints {
		seeds = append(seeds, endpoint.Seed{
			Address:  e.Address,
			Priority: e.Priority,
			TLS:      e.TLS,
		})
	}

	return kv.Config{
		Endpoints:         seeds,
		Password:          s.Password,
		TLS:               s.TLS,
		ConnectTimeout:    s.ConnectTimeout,
		OperationTimeout:  s.OperationTimeout,
		KeepAliveInterval: s.KeepAliveInterval,
		Retry: retry.Policy{
			MaxAttempts: s.Retry.MaxAttempts,
			BaseDelay:   s.Retry.BaseDelay,
			MaxDelay:    s.Retry.MaxDelay,
			Jitter:      s.Retry.Jitter,
			Deadline:    s.Retry.Deadline,
		},
	}
}
