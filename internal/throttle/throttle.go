// Package throttle provides a rate limiter for high-frequency callbacks.
//
// A UHF reader in inventory mode can report the same tag many times per
// second. Wrapping the tag-read path in a Limiter bounds the downstream
// MQTT publish rate without blocking the reader's delivery goroutine:
// calls inside the window are suppressed, not queued.
//
// The limiter uses the monotonic clock (time.Since over a fixed base), so
// wall-clock adjustments cannot reopen or extend a window. The window
// check-and-update is a single atomic compare-and-swap, which keeps the
// hot path lock-free even when events are delivered from more than one
// goroutine.
package throttle

import (
	"sync/atomic"
	"time"
)

// Limiter enforces a minimum interval between successive invocations.
//
// The first invocation after construction always executes. An interval of
// zero (or negative) disables throttling entirely.
//
// Thread Safety: safe for concurrent use; Allow is lock-free.
type Limiter struct {
	interval time.Duration
	base     time.Time

	// last holds the monotonic nanoseconds (since base) of the last
	// invocation that was allowed. Zero means no invocation yet.
	last atomic.Int64
}

// New creates a Limiter with the given minimum interval between calls.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		base:     time.Now(),
	}
}

// Allow reports whether a call may execute now, recording the invocation
// timestamp if it may. Concurrent callers race on a single compare-and-swap,
// so at most one of them wins any given window.
func (l *Limiter) Allow() bool {
	if l.interval <= 0 {
		return true
	}

	// Offset by 1ns so a call in the very instant of construction still
	// records a non-zero "last" value.
	now := time.Since(l.base).Nanoseconds() + 1

	for {
		last := l.last.Load()
		if last != 0 && now-last < l.interval.Nanoseconds() {
			return false
		}
		if l.last.CompareAndSwap(last, now) {
			return true
		}
		// Lost the race; re-read and re-check the window.
	}
}

// Invoke executes fn if the window permits, otherwise drops the call.
// Returns true if fn was executed.
func (l *Limiter) Invoke(fn func()) bool {
	if !l.Allow() {
		return false
	}
	fn()
	return true
}

// Interval returns the configured minimum interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
