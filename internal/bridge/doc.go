// Package bridge connects a UHF RFID reader to an MQTT broker.
//
// The bridge owns the combined state machine and all policy the two
// adapters deliberately leave out:
//   - Idle → Starting → Running ⇄ Degraded → Stopping transitions,
//     driven by reader and broker connectivity
//   - The tag publish path: optional EPC de-duplication, then a
//     throttle window, then publish to <prefix>/tags/<antenna>
//   - The reader reconnect loop with growing backoff (the reader
//     client itself never reconnects; the broker client does, via the
//     underlying MQTT library)
//   - The inbound command surface on <prefix>/cmd/+ with acks
//   - Retained status and settings messages, plus periodic telemetry
//
// # Status Contract
//
// Every connectivity transition produces exactly one retained publish
// on <prefix>/status. A subscriber therefore sees the current truth on
// subscribe and a single message per change afterwards. The same topic
// carries the LWT, so an unclean bridge death reads as state "offline".
//
// # Tag Semantics
//
// Tags are fire-and-forget. A tag observed while the broker is down,
// or inside the throttle window, is counted and discarded; nothing is
// buffered or retried. Consumers that need a complete read history
// must sit on the reader side, not behind this bridge.
package bridge
