// Package eventlog persists operational events to SQLite.
//
// The event log answers "what did the bridge do and when" after the
// fact: state machine transitions, inbound commands, reader restarts,
// startup and shutdown. It is an operational audit trail, not a tag
// database. Tag reads are never written here; they flow to MQTT (and
// optionally to InfluxDB as aggregate counters).
//
// # Storage
//
// A single SQLite file with WAL mode enabled. The schema is applied on
// every Open and is idempotent. Write volume is low (a handful of rows
// per reconnect cycle), so the single-writer constraint of SQLite is
// never a bottleneck.
//
// # Configuration
//
//	eventlog:
//	  enabled: true
//	  path: "./data/tagbridge.db"
//	  wal_mode: true
//	  busy_timeout: 5
//
// The store is optional: when disabled in config, the bridge runs
// without it and skips all Record calls.
//
// # Usage
//
//	store, err := eventlog.Open(cfg.EventLog)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	store.Record(ctx, &eventlog.Event{
//	    Kind:     eventlog.KindStateTransition,
//	    ReaderID: "dock-door-3",
//	    Detail:   map[string]any{"from": "starting", "to": "running"},
//	})
package eventlog
