// Package influxdb provides time-series telemetry for the tag bridge.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched metric writes
//   - Async error handling via callback
//   - Health monitoring
//
// # What Gets Written
//
// Aggregate bridge behaviour only: cumulative throughput counters
// (reads, publishes, suppressions, drops) and connectivity gauges for
// the reader and broker sessions. Individual tag reads are never
// written; tag data flows over MQTT and nowhere else.
//
// # Write Behaviour
//
// Writes are non-blocking: points are batched in memory and flushed
// on a timer (cfg.FlushInterval) or when the batch fills
// (cfg.BatchSize). Failed writes surface through the SetOnError
// callback. If InfluxDB is down, telemetry is lost without affecting
// the tag path.
//
// # Configuration
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  token: "${TAGBRIDGE_INFLUXDB_TOKEN}"
//	  org: "tagbridge"
//	  bucket: "telemetry"
//	  batch_size: 100
//	  flush_interval: 10
//
// The client is optional: when disabled in config, Connect returns
// ErrDisabled and the bridge runs without telemetry.
package influxdb
