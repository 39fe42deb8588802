package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("TAGBRIDGE_CONFIG")
	defer os.Setenv("TAGBRIDGE_CONFIG", originalEnv)

	os.Setenv("TAGBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingReaderHost verifies validation rejects a config with no
// reader target.
func TestRun_MissingReaderHost(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
reader:
  host: ""
  port: 8160
  antenna: 1
  power: 10

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "tagbridge-test"
  qos: 1
  topic_prefix: "tagbridge"

bridge:
  reader_id: "reader-01"

eventlog:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("TAGBRIDGE_CONFIG")
	defer os.Setenv("TAGBRIDGE_CONFIG", originalEnv)
	os.Setenv("TAGBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when reader.host is empty")
	}
}

func TestGetConfigPath(t *testing.T) {
	originalEnv := os.Getenv("TAGBRIDGE_CONFIG")
	defer os.Setenv("TAGBRIDGE_CONFIG", originalEnv)

	os.Unsetenv("TAGBRIDGE_CONFIG")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	os.Setenv("TAGBRIDGE_CONFIG", "/etc/tagbridge/config.yaml")
	if got := getConfigPath(); got != "/etc/tagbridge/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}
