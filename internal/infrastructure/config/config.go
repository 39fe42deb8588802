package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the tag bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Reader   ReaderConfig   `yaml:"reader"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	EventLog EventLogConfig `yaml:"eventlog"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ReaderConfig contains UHF reader connection and RF settings.
type ReaderConfig struct {
	// Host is the reader's IP address or hostname.
	Host string `yaml:"host"`

	// Port is the reader's TCP command port.
	Port int `yaml:"port"`

	// Antenna is the antenna number to enable for inventory (1-4).
	Antenna int `yaml:"antenna"`

	// Power is the transmit power in dBm applied to every antenna port.
	Power int `yaml:"power"`

	// ConnectTimeout is the maximum time to wait for the TCP connection (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// ReadTimeout is the idle timeout for individual socket reads (seconds).
	ReadTimeout int `yaml:"read_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// BridgeConfig contains orchestrator behaviour settings.
type BridgeConfig struct {
	// ReaderID identifies this reader in topics and payloads.
	ReaderID string `yaml:"reader_id"`

	// ThrottleIntervalMS is the minimum interval between tag publishes
	// (milliseconds). Zero disables throttling.
	ThrottleIntervalMS int `yaml:"throttle_interval_ms"`

	// DedupeEPCs suppresses repeat publishes of an EPC already seen since
	// startup (or the last clear command). Default false: the throttle
	// alone governs the publish rate.
	DedupeEPCs bool `yaml:"dedupe_epcs"`

	// StatusInterval is how often the retained status message is refreshed
	// even without a state transition (seconds).
	StatusInterval int `yaml:"status_interval"`

	// Reconnect controls the reader reconnect backoff.
	Reconnect ReaderReconnectConfig `yaml:"reconnect"`
}

// ReaderReconnectConfig contains reader reconnection backoff settings.
type ReaderReconnectConfig struct {
	// InitialDelay is the delay before the first reconnect attempt (seconds).
	InitialDelay int `yaml:"initial_delay"`

	// MaxDelay caps the backoff between attempts (seconds).
	MaxDelay int `yaml:"max_delay"`
}

// InfluxDBConfig contains telemetry sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// EventLogConfig contains the operational event log settings.
type EventLogConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TAGBRIDGE_SECTION_KEY
// For example: TAGBRIDGE_READER_HOST, TAGBRIDGE_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Reader defaults match the factory settings of the supported readers:
// command port 8160, antenna 1, 10 dBm transmit power.
func defaultConfig() *Config {
	return &Config{
		Reader: ReaderConfig{
			Port:           8160,
			Antenna:        1,
			Power:          10,
			ConnectTimeout: 10,
			ReadTimeout:    30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tagbridge",
			},
			QoS:         1,
			TopicPrefix: "tagbridge",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Bridge: BridgeConfig{
			ReaderID:           "reader-01",
			ThrottleIntervalMS: 500,
			StatusInterval:     30,
			Reconnect: ReaderReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     120,
			},
		},
		EventLog: EventLogConfig{
			Path:        "./data/tagbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TAGBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Reader
	if v := os.Getenv("TAGBRIDGE_READER_HOST"); v != "" {
		cfg.Reader.Host = v
	}
	if v := os.Getenv("TAGBRIDGE_READER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Reader.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("TAGBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TAGBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TAGBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TAGBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Event log
	if v := os.Getenv("TAGBRIDGE_EVENTLOG_PATH"); v != "" {
		cfg.EventLog.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Reader validation. The bridge refuses to start without a configured
	// target; a missing host would otherwise only surface as an endless
	// reconnect loop.
	if c.Reader.Host == "" {
		errs = append(errs, "reader.host is required (set TAGBRIDGE_READER_HOST environment variable)")
	}
	if c.Reader.Port < 1 || c.Reader.Port > 65535 {
		errs = append(errs, "reader.port must be between 1 and 65535")
	}
	const maxAntenna = 4
	if c.Reader.Antenna < 1 || c.Reader.Antenna > maxAntenna {
		errs = append(errs, "reader.antenna must be between 1 and 4")
	}
	if c.Reader.Power < 0 {
		errs = append(errs, "reader.power must not be negative")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcard characters")
	}

	// Bridge validation
	if c.Bridge.ReaderID == "" {
		errs = append(errs, "bridge.reader_id is required")
	}
	if c.Bridge.ThrottleIntervalMS < 0 {
		errs = append(errs, "bridge.throttle_interval_ms must not be negative")
	}
	if c.Bridge.Reconnect.InitialDelay < 1 {
		errs = append(errs, "bridge.reconnect.initial_delay must be at least 1 second")
	}

	// Event log validation
	if c.EventLog.Enabled && c.EventLog.Path == "" {
		errs = append(errs, "eventlog.path is required when eventlog is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set TAGBRIDGE_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the reader connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Reader.ConnectTimeout) * time.Second
}

// GetReadTimeout returns the reader read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Reader.ReadTimeout) * time.Second
}

// GetThrottleInterval returns the tag publish throttle window as a Duration.
func (c *Config) GetThrottleInterval() time.Duration {
	return time.Duration(c.Bridge.ThrottleIntervalMS) * time.Millisecond
}

// GetStatusInterval returns the periodic status refresh interval as a Duration.
func (c *Config) GetStatusInterval() time.Duration {
	return time.Duration(c.Bridge.StatusInterval) * time.Second
}
