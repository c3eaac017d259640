package config

import (
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad_EnvSubstitution(t *testing.T) {
	os.Setenv("TEST_STORE_PASSWORD", "s3cret")
	defer os.Unsetenv("TEST_STORE_PASSWORD")

	path := writeTempConfig(t, `
store:
  password: ${TEST_STORE_PASSWORD}
  endpoints:
    - address: localhost:6379
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Password != "s3cret" {
		t.Errorf("Expected password s3cret, got %s", cfg.Store.Password)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTempConfig(t, `
store:
  endpoints:
    - address: localhost:6379
    - address: replica:6380
      priority: 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Store.Retry.MaxAttempts != 5 {
		t.Errorf("Expected default max_attempts 5, got %d", cfg.Store.Retry.MaxAttempts)
	}

	cc := cfg.Store.ClientConfig()
	if len(cc.Endpoints) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(cc.Endpoints))
	}
	if cc.Endpoints[1].Priority != 1 {
		t.Errorf("Expected priority 1 on second endpoint, got %d", cc.Endpoints[1].Priority)
	}
}

func TestLoad_NoEndpoints(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9000
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing endpoints, got nil")
	}
}
