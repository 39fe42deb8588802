// tagbridge - UHF RFID reader to MQTT bridge
//
// This is the main entry point for the tagbridge agent. The agent
// fronts a single TCP-attached UHF reader and republishes its tag
// observations to an MQTT broker, designed for:
//   - Unattended long-running operation (weeks between restarts)
//   - Fail-soft behaviour: either side may drop and come back
//   - A small, stable MQTT contract as its only outward surface
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rfsense/tagbridge/internal/bridge"
	"github.com/rfsense/tagbridge/internal/infrastructure/config"
	"github.com/rfsense/tagbridge/internal/infrastructure/eventlog"
	"github.com/rfsense/tagbridge/internal/infrastructure/influxdb"
	"github.com/rfsense/tagbridge/internal/infrastructure/logging"
	"github.com/rfsense/tagbridge/internal/infrastructure/mqtt"
	"github.com/rfsense/tagbridge/internal/reader"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting tagbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the operational event log (optional)
	var events *eventlog.Store
	if cfg.EventLog.Enabled {
		events, err = eventlog.Open(cfg.EventLog)
		if err != nil {
			return fmt.Errorf("opening event log: %w", err)
		}
		defer func() {
			log.Info("closing event log")
			if closeErr := events.Close(); closeErr != nil {
				log.Error("error closing event log", "error", closeErr)
			}
		}()
		log.Info("event log opened", "path", events.Path())
	} else {
		log.Info("event log disabled")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the reader client. No connection yet: the bridge owns the
	// reader lifecycle, including reconnects.
	readerClient := reader.New(reader.Config{
		Host:           cfg.Reader.Host,
		Port:           cfg.Reader.Port,
		Antenna:        cfg.Reader.Antenna,
		Power:          cfg.Reader.Power,
		ConnectTimeout: cfg.GetConnectTimeout(),
		ReadTimeout:    cfg.GetReadTimeout(),
	})
	readerClient.SetLogger(log.With("component", "reader"))

	// Assemble and start the bridge
	b, err := newBridge(cfg, mqttClient, readerClient, events, influxClient)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	b.SetLogger(log.With("component", "bridge"))

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	// Verify infrastructure is healthy before declaring ready
	if err := healthCheck(ctx, mqttClient, events, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"reader", fmt.Sprintf("%s:%d", cfg.Reader.Host, cfg.Reader.Port),
		"topic_prefix", cfg.MQTT.TopicPrefix,
	)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Bridge (closes reader, publishes final status, disconnects MQTT)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (idempotent after bridge shutdown)
	// 4. Event log

	log.Info("tagbridge stopped")
	return nil
}

// newBridge wires the bridge's optional dependencies, keeping the nil
// checks out of run. A nil *eventlog.Store or *influxdb.Client must not
// become a non-nil interface value.
func newBridge(cfg *config.Config, mqttClient *mqtt.Client, readerClient *reader.Client, events *eventlog.Store, influxClient *influxdb.Client) (*bridge.Bridge, error) {
	opts := bridge.Options{
		Config: cfg,
		MQTT:   mqttClient,
		Reader: readerClient,
	}
	if events != nil {
		opts.Events = events
	}
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	return bridge.New(opts)
}

// getConfigPath returns the configuration file path.
// Uses TAGBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TAGBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: MQTT client to check
//   - events: Event log to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, events *eventlog.Store, influxClient *influxdb.Client) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if events != nil {
		if err := events.HealthCheck(ctx); err != nil {
			return fmt.Errorf("eventlog: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Reader health is the bridge's business: it may legitimately be
	// down at startup and recovered later by the reconnect loop.

	return nil
}
