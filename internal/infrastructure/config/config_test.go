package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
reader:
  host: "192.168.1.50"
  port: 8160
  antenna: 2
  power: 20
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "tagbridge-test"
  qos: 1
  topic_prefix: "warehouse/rfid"
bridge:
  reader_id: "dock-door-3"
  throttle_interval_ms: 250
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Reader.Host != "192.168.1.50" {
		t.Errorf("Reader.Host = %q, want %q", cfg.Reader.Host, "192.168.1.50")
	}
	if cfg.Reader.Antenna != 2 {
		t.Errorf("Reader.Antenna = %d, want 2", cfg.Reader.Antenna)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.TopicPrefix != "warehouse/rfid" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "warehouse/rfid")
	}
	if cfg.Bridge.ReaderID != "dock-door-3" {
		t.Errorf("Bridge.ReaderID = %q, want %q", cfg.Bridge.ReaderID, "dock-door-3")
	}
	if cfg.GetThrottleInterval() != 250*time.Millisecond {
		t.Errorf("GetThrottleInterval() = %v, want 250ms", cfg.GetThrottleInterval())
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
reader:
  host: "10.0.0.2"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Reader.Port != 8160 {
		t.Errorf("Reader.Port default = %d, want 8160", cfg.Reader.Port)
	}
	if cfg.Reader.Antenna != 1 {
		t.Errorf("Reader.Antenna default = %d, want 1", cfg.Reader.Antenna)
	}
	if cfg.Reader.Power != 10 {
		t.Errorf("Reader.Power default = %d, want 10", cfg.Reader.Power)
	}
	if cfg.MQTT.TopicPrefix != "tagbridge" {
		t.Errorf("MQTT.TopicPrefix default = %q, want %q", cfg.MQTT.TopicPrefix, "tagbridge")
	}
	if cfg.Bridge.Reconnect.InitialDelay != 5 {
		t.Errorf("Bridge.Reconnect.InitialDelay default = %d, want 5", cfg.Bridge.Reconnect.InitialDelay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingReaderHostFails(t *testing.T) {
	content := `
mqtt:
  broker:
    host: "localhost"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for empty reader.host, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
reader:
  host: "from-file"
`
	t.Setenv("TAGBRIDGE_READER_HOST", "from-env")
	t.Setenv("TAGBRIDGE_READER_PORT", "9000")
	t.Setenv("TAGBRIDGE_MQTT_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Reader.Host != "from-env" {
		t.Errorf("Reader.Host = %q, want env override %q", cfg.Reader.Host, "from-env")
	}
	if cfg.Reader.Port != 9000 {
		t.Errorf("Reader.Port = %d, want env override 9000", cfg.Reader.Port)
	}
	if cfg.MQTT.Auth.Password != "hunter2" {
		t.Errorf("MQTT.Auth.Password not overridden from environment")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Reader.Host = "10.0.0.2"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing reader host",
			mutate:  func(c *Config) { c.Reader.Host = "" },
			wantErr: true,
		},
		{
			name:    "reader port out of range",
			mutate:  func(c *Config) { c.Reader.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "antenna out of range",
			mutate:  func(c *Config) { c.Reader.Antenna = 5 },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "wildcard in topic prefix",
			mutate:  func(c *Config) { c.MQTT.TopicPrefix = "tagbridge/#" },
			wantErr: true,
		},
		{
			name:    "negative throttle interval",
			mutate:  func(c *Config) { c.Bridge.ThrottleIntervalMS = -1 },
			wantErr: true,
		},
		{
			name:    "zero reconnect delay busy-loops",
			mutate:  func(c *Config) { c.Bridge.Reconnect.InitialDelay = 0 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name: "influxdb enabled with url and token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Token = "secret"
			},
			wantErr: false,
		},
		{
			name: "eventlog enabled without path",
			mutate: func(c *Config) {
				c.EventLog.Enabled = true
				c.EventLog.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
