package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rfsense/tagbridge/internal/infrastructure/config"
	"github.com/rfsense/tagbridge/internal/infrastructure/eventlog"
	"github.com/rfsense/tagbridge/internal/infrastructure/influxdb"
	"github.com/rfsense/tagbridge/internal/infrastructure/mqtt"
	"github.com/rfsense/tagbridge/internal/reader"
	"github.com/rfsense/tagbridge/internal/throttle"
)

// Bridge operation constants.
const (
	// commandTimeout bounds reader commands triggered over MQTT.
	commandTimeout = 10 * time.Second

	// restartTimeout bounds the close-and-reopen cycle of a restart command.
	restartTimeout = 30 * time.Second

	// recordTimeout bounds event log writes.
	recordTimeout = 2 * time.Second

	// backoffMultiplier grows the reader reconnect delay between attempts.
	backoffMultiplier = 1.5
)

// State is a bridge state machine state.
type State string

const (
	// StateIdle is the state before Start.
	StateIdle State = "idle"

	// StateStarting is the state during Start.
	StateStarting State = "starting"

	// StateRunning means both the reader and the broker are connected.
	StateRunning State = "running"

	// StateDegraded means one side is down; the bridge keeps operating
	// on the side that is up and works to restore the other.
	StateDegraded State = "degraded"

	// StateStopping is the state during Stop.
	StateStopping State = "stopping"

	// StateOffline is published as the final retained status on clean
	// shutdown, and by the broker's LWT on a crash.
	StateOffline State = "offline"
)

// MQTTClient is the broker-side interface the bridge drives.
// Satisfied by *mqtt.Client; mocked in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	Close() error
}

// EventRecorder persists operational events.
// Satisfied by *eventlog.Store. Optional: a nil recorder disables logging.
type EventRecorder interface {
	Record(ctx context.Context, ev *eventlog.Event) error
}

// TelemetryWriter receives periodic bridge telemetry.
// Satisfied by *influxdb.Client. Optional: nil disables telemetry.
type TelemetryWriter interface {
	WriteBridgeStats(readerID string, stats influxdb.BridgeStats)
	WriteConnectionState(readerID string, readerConnected, brokerConnected bool)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds dependencies for creating a bridge.
type Options struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// MQTT is the broker client (required).
	MQTT MQTTClient

	// Reader is the UHF reader client (required). The bridge owns its
	// lifecycle: Open on Start, reconnect with backoff on loss, Close
	// on Stop.
	Reader reader.Reader

	// Events is the optional operational event log.
	Events EventRecorder

	// Telemetry is the optional telemetry sink.
	Telemetry TelemetryWriter

	// Logger is optional structured logging.
	Logger Logger
}

// Bridge connects a UHF reader to an MQTT broker.
//
// It owns the combined state machine (Idle, Starting, Running, Degraded,
// Stopping), the tag publish path with throttling and optional EPC
// de-duplication, the reader reconnect policy, and the inbound command
// surface.
//
// Thread Safety: all methods are safe for concurrent use. A single
// mutex serialises state transitions and status publishing; the tag
// path only touches atomics and the throttle's compare-and-swap.
type Bridge struct {
	cfg       *config.Config
	mqtt      MQTTClient
	reader    reader.Reader
	events    EventRecorder
	telemetry TelemetryWriter
	limiter   *throttle.Limiter

	// stateMu guards state, lastStatus and every status publish, so a
	// transition maps to exactly one publish.
	stateMu    sync.Mutex
	state      State
	lastStatus *StatusMessage

	// seenMu guards the EPC de-duplication set.
	seenMu   sync.Mutex
	seenEPCs map[string]struct{}

	// reconnectCh wakes the reconnect loop. Buffered: a signal while a
	// reconnect cycle runs is coalesced, not queued.
	reconnectCh chan struct{}

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for the hot tag path)
	tagsRead       atomic.Uint64
	tagsPublished  atomic.Uint64
	tagsSuppressed atomic.Uint64
	tagsDropped    atomic.Uint64
	tagsDuplicate  atomic.Uint64
	readerRestarts atomic.Uint64
}

// Stats holds bridge counters since startup.
type Stats struct {
	TagsRead       uint64
	TagsPublished  uint64
	TagsSuppressed uint64 // Throttled inside the publish window
	TagsDropped    uint64 // Broker down or publish failed
	TagsDuplicate  uint64 // Suppressed by the seen-EPC set
	ReaderRestarts uint64
	State          State
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Reader == nil {
		return nil, fmt.Errorf("reader client is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Bridge{
		cfg:         opts.Config,
		mqtt:        opts.MQTT,
		reader:      opts.Reader,
		events:      opts.Events,
		telemetry:   opts.Telemetry,
		limiter:     throttle.New(opts.Config.GetThrottleInterval()),
		state:       StateIdle,
		seenEPCs:    make(map[string]struct{}),
		reconnectCh: make(chan struct{}, 1),
		done:        make(chan struct{}),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
		logger:      opts.Logger,
	}, nil
}

// Start begins bridge operation.
//
// It wires the reader and broker callbacks, subscribes to the command
// topics, publishes the retained settings snapshot, and opens the
// reader session. A reader that cannot be reached does not fail Start:
// the bridge comes up Degraded and the reconnect loop keeps trying.
//
// Returns:
//   - error: ErrAlreadyStarted, or a broker subscription failure
func (b *Bridge) Start(ctx context.Context) error {
	b.stateMu.Lock()
	if b.state != StateIdle {
		b.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	b.state = StateStarting
	b.publishStatusLocked("starting")
	b.stateMu.Unlock()

	b.reader.SetOnTagRead(b.handleTagRead)
	b.reader.SetOnStatus(b.handleReaderStatus)
	b.mqtt.SetOnConnect(b.handleBrokerConnect)
	b.mqtt.SetOnDisconnect(b.handleBrokerDisconnect)

	prefix := b.cfg.MQTT.TopicPrefix
	qos := byte(b.cfg.MQTT.QoS) // #nosec G115 -- qos validated by config (0-2)
	if err := b.mqtt.Subscribe(CommandSubscribeTopic(prefix), qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", CommandSubscribeTopic(prefix))

	b.publishSettings()
	b.recordEvent(eventlog.KindStartup, map[string]any{
		"reader_host": b.cfg.Reader.Host,
		"reader_port": b.cfg.Reader.Port,
	})

	if err := b.reader.Open(ctx); err != nil {
		// Not fatal: come up Degraded and let the reconnect loop work.
		b.logWarn("reader unavailable at startup", "error", err)
		b.transition("reader unreachable")
		b.requestReconnect()
	} else {
		b.transition("")
	}

	b.wg.Add(2)
	go b.reconnectLoop()
	go b.statusLoop()

	b.logInfo("bridge started",
		"reader_id", b.cfg.Bridge.ReaderID,
		"topic_prefix", prefix,
		"throttle", b.limiter.Interval().String())

	return nil
}

// Stop gracefully shuts down the bridge.
//
// It publishes a final retained "offline" status so subscribers can
// tell a clean shutdown from a crash (which leaves the LWT instead),
// closes the reader session, and disconnects from the broker.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stateMu.Lock()
		b.state = StateStopping
		b.publishStatusLocked("shutdown")
		b.stateMu.Unlock()

		b.ctxCancel()
		close(b.done)
		b.wg.Wait()

		if err := b.reader.Close(); err != nil {
			b.logError("reader close failed", err)
		}

		b.recordEvent(eventlog.KindShutdown, nil)

		// Final retained status, replacing the "stopping" one.
		final := StatusMessage{
			State:     StateOffline,
			Reason:    "shutdown",
			Timestamp: time.Now().UTC(),
		}
		if payload, err := json.Marshal(final); err == nil {
			//nolint:errcheck // Best-effort during shutdown
			b.mqtt.Publish(StatusTopic(b.cfg.MQTT.TopicPrefix), payload, 1, true)
		}

		if err := b.mqtt.Close(); err != nil {
			b.logError("broker close failed", err)
		}

		b.logInfo("bridge stopped")
	})
}

// State returns the current state machine state.
func (b *Bridge) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// Stats returns current bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		TagsRead:       b.tagsRead.Load(),
		TagsPublished:  b.tagsPublished.Load(),
		TagsSuppressed: b.tagsSuppressed.Load(),
		TagsDropped:    b.tagsDropped.Load(),
		TagsDuplicate:  b.tagsDuplicate.Load(),
		ReaderRestarts: b.readerRestarts.Load(),
		State:          b.State(),
	}
}

// handleTagRead is the tag publish path: dedupe, throttle, publish.
// Runs on the reader's dispatch goroutine; it must never block.
func (b *Bridge) handleTagRead(ev reader.TagReadEvent) {
	b.tagsRead.Add(1)

	if b.cfg.Bridge.DedupeEPCs && b.alreadySeen(ev.EPC) {
		b.tagsDuplicate.Add(1)
		return
	}

	if !b.limiter.Allow() {
		b.tagsSuppressed.Add(1)
		return
	}

	if !b.mqtt.IsConnected() {
		// No buffering: a tag seen while the broker is down is gone.
		b.tagsDropped.Add(1)
		b.logDebug("tag dropped, broker disconnected", "epc", ev.EPC)
		return
	}

	msg := NewTagMessage(b.cfg.Bridge.ReaderID, ev)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshal tag message failed", err)
		return
	}

	topic := TagTopic(b.cfg.MQTT.TopicPrefix, ev.Antenna)
	qos := byte(b.cfg.MQTT.QoS) // #nosec G115 -- qos validated by config (0-2)
	if err := b.mqtt.Publish(topic, payload, qos, false); err != nil {
		b.tagsDropped.Add(1)
		b.logDebug("tag publish failed", "epc", ev.EPC, "error", err)
		return
	}

	b.tagsPublished.Add(1)
}

// alreadySeen records an EPC in the seen set, reporting whether it was
// there before.
func (b *Bridge) alreadySeen(epc string) bool {
	b.seenMu.Lock()
	defer b.seenMu.Unlock()
	if _, ok := b.seenEPCs[epc]; ok {
		return true
	}
	b.seenEPCs[epc] = struct{}{}
	return false
}

// handleReaderStatus reacts to reader connect/disconnect transitions.
// May run on the reader's receive goroutine, so it only signals the
// reconnect loop rather than touching the reader's lifecycle itself.
func (b *Bridge) handleReaderStatus(ev reader.StatusEvent) {
	if ev.Connected {
		b.logInfo("reader connected")
		b.recordEvent(eventlog.KindStateTransition, map[string]any{
			"reader_connected": true,
		})
		b.transition("")
		return
	}

	b.logWarn("reader disconnected", "reason", ev.Reason)
	b.recordEvent(eventlog.KindStateTransition, map[string]any{
		"reader_connected": false,
		"reason":           ev.Reason,
	})
	b.transition(ev.Reason)
	b.requestReconnect()
}

// handleBrokerConnect runs on every broker (re)connect. The retained
// messages may have been replaced by the LWT, so both are republished.
func (b *Bridge) handleBrokerConnect() {
	b.logInfo("broker connected")
	b.recordEvent(eventlog.KindStateTransition, map[string]any{
		"broker_connected": true,
	})
	b.publishSettings()

	b.stateMu.Lock()
	// Force a publish even if the computed status is unchanged: the
	// retained copy on the broker may be stale.
	b.lastStatus = nil
	b.stateMu.Unlock()
	b.transition("")
}

// handleBrokerDisconnect runs when the broker connection drops. The
// paho client reconnects on its own; nothing to publish while down.
func (b *Bridge) handleBrokerDisconnect(err error) {
	b.logWarn("broker disconnected", "error", err)
	b.transition("broker disconnected")
}

// transition recomputes the state from current connectivity and
// publishes the retained status if anything changed.
func (b *Bridge) transition(reason string) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.state == StateIdle || b.state == StateStopping {
		return
	}

	if b.reader.IsConnected() && b.mqtt.IsConnected() {
		b.state = StateRunning
		reason = ""
	} else {
		b.state = StateDegraded
	}

	b.publishStatusLocked(reason)
}

// publishStatusLocked publishes the retained status message if it
// differs from the last one published. Caller must hold stateMu.
func (b *Bridge) publishStatusLocked(reason string) {
	status := StatusMessage{
		ReaderConnected: b.reader.IsConnected(),
		BrokerConnected: b.mqtt.IsConnected(),
		State:           b.state,
		Inventorying:    b.reader.Stats().Inventorying,
		Reason:          reason,
		Timestamp:       time.Now().UTC(),
	}

	if b.lastStatus != nil && status.equivalent(*b.lastStatus) {
		return
	}

	payload, err := json.Marshal(status)
	if err != nil {
		b.logError("marshal status failed", err)
		return
	}

	if err := b.mqtt.Publish(StatusTopic(b.cfg.MQTT.TopicPrefix), payload, 1, true); err != nil {
		// Leave lastStatus unset so the next opportunity republishes.
		b.lastStatus = nil
		b.logDebug("status publish failed", "error", err)
		return
	}

	b.lastStatus = &status
	b.logDebug("status published",
		"state", status.State,
		"reader_connected", status.ReaderConnected,
		"broker_connected", status.BrokerConnected)
}

// publishSettings publishes the retained settings snapshot.
func (b *Bridge) publishSettings() {
	msg := SettingsMessage{
		ReaderID:           b.cfg.Bridge.ReaderID,
		ReaderHost:         b.cfg.Reader.Host,
		ReaderPort:         b.cfg.Reader.Port,
		Antenna:            b.cfg.Reader.Antenna,
		Power:              b.cfg.Reader.Power,
		ThrottleIntervalMS: b.cfg.Bridge.ThrottleIntervalMS,
		DedupeEPCs:         b.cfg.Bridge.DedupeEPCs,
		Timestamp:          time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("marshal settings failed", err)
		return
	}

	if err := b.mqtt.Publish(SettingsTopic(b.cfg.MQTT.TopicPrefix), payload, 1, true); err != nil {
		b.logDebug("settings publish failed", "error", err)
	}
}

// requestReconnect wakes the reconnect loop. Non-blocking: a pending
// signal is enough, attempts are not queued.
func (b *Bridge) requestReconnect() {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.reconnectCh <- struct{}{}:
	default:
	}
}

// reconnectLoop reopens the reader session after a loss.
// The delay between attempts grows by backoffMultiplier up to the
// configured maximum, and resets on every new disconnect signal.
func (b *Bridge) reconnectLoop() {
	defer b.wg.Done()

	initial := time.Duration(b.cfg.Bridge.Reconnect.InitialDelay) * time.Second
	maxDelay := time.Duration(b.cfg.Bridge.Reconnect.MaxDelay) * time.Second
	if initial <= 0 {
		initial = time.Second
	}
	if maxDelay < initial {
		maxDelay = initial
	}

	for {
		select {
		case <-b.done:
			return
		case <-b.reconnectCh:
		}

		delay := initial
		for {
			select {
			case <-b.done:
				return
			case <-time.After(delay):
			}

			if b.reader.IsConnected() {
				break // Restored elsewhere (restart command)
			}

			b.logInfo("attempting reader reconnect", "delay", delay.String())
			if err := b.reader.Open(b.ctx); err != nil {
				b.logWarn("reader reconnect failed", "error", err)
				delay = time.Duration(float64(delay) * backoffMultiplier)
				if delay > maxDelay {
					delay = maxDelay
				}
				continue
			}

			b.recordEvent(eventlog.KindReaderRestart, map[string]any{
				"trigger": "reconnect",
			})
			break
		}
	}
}

// handleCommand routes inbound command messages.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			// Tolerate junk payloads; the topic alone names the command.
			b.logDebug("unparseable command payload", "topic", topic)
		}
	}

	name := commandName(topic)
	b.logInfo("received command", "command", name, "id", cmd.ID)

	if b.State() != StateRunning && b.State() != StateDegraded && b.State() != StateStarting {
		b.publishAck(cmd, name, false, ErrNotRunning.Error())
		return ErrNotRunning
	}

	switch name {
	case "restart":
		b.handleRestartCommand(cmd)
	case "inventory":
		b.handleInventoryCommand(cmd)
	case "clear":
		b.handleClearCommand(cmd)
	default:
		b.publishAck(cmd, name, false, "unknown command")
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	return nil
}

// handleRestartCommand closes and reopens the reader session.
func (b *Bridge) handleRestartCommand(cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(b.ctx, restartTimeout)
	defer cancel()

	b.recordEvent(eventlog.KindCommand, map[string]any{"command": "restart"})

	if err := b.reader.Restart(ctx); err != nil {
		b.logError("reader restart failed", err)
		b.publishAck(cmd, "restart", false, err.Error())
		// The session is down; let the reconnect loop recover it.
		b.requestReconnect()
		return
	}

	b.readerRestarts.Add(1)
	b.recordEvent(eventlog.KindReaderRestart, map[string]any{"trigger": "command"})
	b.publishAck(cmd, "restart", true, "")
}

// handleInventoryCommand starts or stops the inventory round.
func (b *Bridge) handleInventoryCommand(cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	b.recordEvent(eventlog.KindCommand, map[string]any{
		"command": "inventory",
		"action":  cmd.Action,
	})

	var err error
	switch cmd.Action {
	case "start":
		err = b.reader.StartInventory(ctx)
	case "stop":
		err = b.reader.StopInventory(ctx)
	default:
		b.publishAck(cmd, "inventory", false,
			fmt.Sprintf("action must be start or stop, got %q", cmd.Action))
		return
	}

	if err != nil {
		b.logError("inventory command failed", err)
		b.publishAck(cmd, "inventory", false, err.Error())
		return
	}

	b.publishAck(cmd, "inventory", true, "")

	// The play state is part of the retained status.
	b.stateMu.Lock()
	b.publishStatusLocked("")
	b.stateMu.Unlock()
}

// handleClearCommand resets the seen-EPC set.
func (b *Bridge) handleClearCommand(cmd CommandMessage) {
	b.seenMu.Lock()
	cleared := len(b.seenEPCs)
	b.seenEPCs = make(map[string]struct{})
	b.seenMu.Unlock()

	b.recordEvent(eventlog.KindCommand, map[string]any{
		"command": "clear",
		"cleared": cleared,
	})
	b.logInfo("seen-EPC set cleared", "count", cleared)
	b.publishAck(cmd, "clear", true, "")
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, command string, success bool, message string) {
	ack := NewAckMessage(cmd, command, success, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("marshal ack failed", err)
		return
	}

	if err := b.mqtt.Publish(AckTopic(b.cfg.MQTT.TopicPrefix), payload, 1, false); err != nil {
		b.logDebug("ack publish failed", "error", err)
	}
}

// recordEvent writes an operational event to the event log, if one is
// configured. Uses its own context: events during shutdown still need
// recording after the bridge context is cancelled.
func (b *Bridge) recordEvent(kind string, detail map[string]any) {
	if b.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	ev := &eventlog.Event{
		Kind:     kind,
		ReaderID: b.cfg.Bridge.ReaderID,
		Detail:   detail,
	}
	if err := b.events.Record(ctx, ev); err != nil {
		b.logDebug("event record failed", "kind", kind, "error", err)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
