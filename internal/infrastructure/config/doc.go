// Package config provides configuration loading for the tag bridge.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by TAGBRIDGE_* environment variables. The loaded
// Config is treated as an immutable snapshot: the bridge never reloads it
// at runtime, and a reader restart picks up the same settings.
//
// # Sections
//
//   - reader:   UHF reader address, antenna and transmit power
//   - mqtt:     broker address, credentials, QoS, topic prefix
//   - bridge:   reader identity, tag throttle window, reconnect backoff
//   - influxdb: optional telemetry sink
//   - eventlog: optional SQLite operational event log
//   - logging:  level, format, destination
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err) // startup is the only place config errors are fatal
//	}
package config
