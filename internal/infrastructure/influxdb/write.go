package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// BridgeStats is a snapshot of bridge throughput counters.
//
// Counters are cumulative since process start. Rate calculations
// (reads/sec etc.) are left to the query side.
type BridgeStats struct {
	TagsRead       uint64
	TagsPublished  uint64
	TagsSuppressed uint64
	TagsDropped    uint64
	TagsDuplicate  uint64
	ReaderRestarts uint64
}

// WriteBridgeStats writes a throughput counter snapshot to InfluxDB.
//
// This is the primary telemetry method, called periodically by the
// bridge's status reporter. The write is non-blocking; data is batched
// and sent asynchronously.
//
// Parameters:
//   - readerID: Logical reader identifier (e.g., "dock-door-3")
//   - stats: Cumulative counter snapshot
func (c *Client) WriteBridgeStats(readerID string, stats BridgeStats) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_stats",
		map[string]string{
			"reader_id": readerID,
		},
		// #nosec G115 -- counters never approach int64 max
		map[string]interface{}{
			"tags_read":       int64(stats.TagsRead),
			"tags_published":  int64(stats.TagsPublished),
			"tags_suppressed": int64(stats.TagsSuppressed),
			"tags_dropped":    int64(stats.TagsDropped),
			"tags_duplicate":  int64(stats.TagsDuplicate),
			"reader_restarts": int64(stats.ReaderRestarts),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionState writes reader and broker connectivity gauges.
//
// Recorded on every bridge state transition, so downtime windows are
// visible with transition-level resolution.
//
// Parameters:
//   - readerID: Logical reader identifier
//   - readerConnected: Whether the TCP session to the reader is up
//   - brokerConnected: Whether the MQTT session is up
func (c *Client) WriteConnectionState(readerID string, readerConnected, brokerConnected bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bridge_connectivity",
		map[string]string{
			"reader_id": readerID,
		},
		map[string]interface{}{
			"reader_connected": boolToInt(readerConnected),
			"broker_connected": boolToInt(brokerConnected),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// boolToInt converts a bool to 0/1 for gauge fields.
func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
