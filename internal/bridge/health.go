package bridge

import (
	"time"

	"github.com/rfsense/tagbridge/internal/infrastructure/influxdb"
)

// defaultStatusInterval is used when the configured interval is unset.
const defaultStatusInterval = 30 * time.Second

// statusLoop periodically refreshes the retained status message and
// flushes telemetry. Transitions publish immediately; this loop only
// keeps the retained copy fresh and the counters flowing.
func (b *Bridge) statusLoop() {
	defer b.wg.Done()

	interval := b.cfg.GetStatusInterval()
	if interval <= 0 {
		interval = defaultStatusInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.refreshStatus()
			b.writeTelemetry()
		}
	}
}

// refreshStatus republishes the retained status even without a
// transition, so the timestamp shows subscribers the bridge is alive.
func (b *Bridge) refreshStatus() {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.state == StateIdle || b.state == StateStopping {
		return
	}

	// Drop the comparison baseline so the publish is not deduplicated.
	b.lastStatus = nil
	reason := ""
	if b.state == StateDegraded {
		reason = "degraded"
	}
	b.publishStatusLocked(reason)
}

// writeTelemetry sends the counter snapshot and connectivity gauges to
// the telemetry sink, if one is configured.
func (b *Bridge) writeTelemetry() {
	if b.telemetry == nil {
		return
	}

	readerID := b.cfg.Bridge.ReaderID

	b.telemetry.WriteBridgeStats(readerID, influxdb.BridgeStats{
		TagsRead:       b.tagsRead.Load(),
		TagsPublished:  b.tagsPublished.Load(),
		TagsSuppressed: b.tagsSuppressed.Load(),
		TagsDropped:    b.tagsDropped.Load(),
		TagsDuplicate:  b.tagsDuplicate.Load(),
		ReaderRestarts: b.readerRestarts.Load(),
	})
	b.telemetry.WriteConnectionState(readerID, b.reader.IsConnected(), b.mqtt.IsConnected())
}
