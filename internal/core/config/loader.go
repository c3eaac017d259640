package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.ConnectTimeout == 0 {
		cfg.Store.ConnectTimeout = 5 * time.Second
	}
	if cfg.Store.OperationTimeout == 0 {
		cfg.Store.OperationTimeout = 3 * time.Second
	}
	if cfg.Store.Retry.MaxAttempts == 0 {
		cfg.Store.Retry.MaxAttempts = 5
	}
	if cfg.Store.Retry.BaseDelay == 0 {
		cfg.Store.Retry.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Store.Retry.MaxDelay == 0 {
		cfg.Store.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Store.Retry.Jitter == 0 {
		cfg.Store.Retry.Jitter = 0.2
	}

	if len(cfg.Store.Endpoints) == 0 {
		return nil, fmt.Errorf("no store endpoints configured")
	}

	return &cfg, nil
}
