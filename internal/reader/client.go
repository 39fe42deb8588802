package reader

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and sizes for reader communication.
const (
	// defaultConnectTimeout is the maximum time to wait for the TCP dial.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the timeout for individual read operations.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// commandTimeout is the maximum time to wait for a command response.
	commandTimeout = 5 * time.Second

	// eventQueueSize is the buffer size for the tag event dispatch queue.
	eventQueueSize = 100
)

// Config holds reader connection configuration.
type Config struct {
	// Host is the reader's IP address or hostname.
	Host string

	// Port is the reader's TCP command port.
	Port int

	// Antenna is the 1-based antenna number to enable for inventory.
	Antenna int

	// Power is the transmit power in dBm applied to all antennas.
	Power int

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations.
	// Default: 30 seconds.
	ReadTimeout time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	TagsRx       uint64
	FramesTx     uint64
	TagsDropped  uint64 // Tag events dropped due to full dispatch queue
	ErrorsTotal  uint64
	Restarts     uint64 // Completed Restart calls
	LastActivity time.Time
	Connected    bool
	Inventorying bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Reader interface for testability.
// This allows mocking the reader client in tests.
type Reader interface {
	Open(ctx context.Context) error
	Close() error
	Restart(ctx context.Context) error
	StartInventory(ctx context.Context) error
	StopInventory(ctx context.Context) error
	SetOnTagRead(callback func(TagReadEvent))
	SetOnStatus(callback func(StatusEvent))
	IsConnected() bool
	Stats() Stats
}

// Ensure Client implements Reader.
var _ Reader = (*Client)(nil)

// Client owns the TCP session to a UHF reader.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Tag callbacks are invoked in order from a single dispatch goroutine.
//
// Connection lifecycle:
//   - The client never reconnects on its own. A lost session surfaces as
//     a StatusEvent with Connected=false and the receive loop exits; the
//     owner decides when to call Open again.
type Client struct {
	cfg Config

	// lifeMu serialises Open/Close/Restart.
	lifeMu sync.Mutex

	// Connection state
	connMu    sync.RWMutex
	conn      net.Conn
	connected bool

	// Session coordination, recreated on every Open.
	done *closeOnce
	wg   sync.WaitGroup

	// cmdMu serialises command round-trips (single frame in flight).
	cmdMu  sync.Mutex
	respCh chan Frame

	// inventorying tracks whether an inventory round is running.
	inventorying atomic.Bool

	// Event callbacks
	onTagRead  func(TagReadEvent)
	onStatus   func(StatusEvent)
	callbackMu sync.RWMutex

	// Tag event dispatch queue (bounded, single worker preserves order)
	eventQueue chan TagReadEvent

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	tagsRx       atomic.Uint64
	framesTx     atomic.Uint64
	tagsDropped  atomic.Uint64
	errorsTotal  atomic.Uint64
	restarts     atomic.Uint64
	lastActivity atomic.Int64 // Unix timestamp
}

// New creates a client for the given reader. No connection is made
// until Open is called.
func New(cfg Config) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	return &Client{cfg: cfg}
}

// Open establishes the TCP session and prepares the reader.
//
// After dialling it runs the setup sequence so the reader is in a known
// state regardless of what the previous session left behind:
//  1. Stop any running inventory
//  2. Silence the beeper
//  3. Apply transmit power to all antennas
//  4. Start a continuous inventory on the configured antenna
//
// On success the client is Connected, tag notifications flow to the
// registered callback, and a StatusEvent{Connected:true} is emitted.
//
// Parameters:
//   - ctx: Context for cancellation of the dial and setup sequence
//
// Returns:
//   - error: ErrReaderUnreachable if the dial fails, ErrCommandFailed
//     if the reader rejects a setup command
func (c *Client) Open(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.IsConnected() {
		return nil
	}

	address := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrReaderUnreachable, address, err)
	}

	// Fresh session state
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.done = newCloseOnce()
	c.respCh = make(chan Frame, 1)
	c.eventQueue = make(chan TagReadEvent, eventQueueSize)
	c.lastActivity.Store(time.Now().Unix())

	// Receive loop must run before the setup sequence so command
	// responses can be routed back.
	c.wg.Add(2)
	go c.receiveLoop()
	go c.dispatchWorker()

	if err := c.setupSequence(ctx); err != nil {
		c.teardown()
		return err
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.emitStatus(StatusEvent{Connected: true, Timestamp: time.Now()})
	c.logInfo("reader session established", "address", address, "antenna", c.cfg.Antenna, "power", c.cfg.Power)

	return nil
}

// setupSequence puts the reader into the configured operating state.
func (c *Client) setupSequence(ctx context.Context) error {
	steps := []struct {
		name  string
		frame []byte
		typ   byte
	}{
		{"stop inventory", NewStopInventoryFrame(), MsgStopInventory},
		{"disable beeper", NewSetBeeperFrame(BeeperOff, 0), MsgSetBeeper},
		{"set power", NewSetPowerFrame(byte(c.cfg.Power)), MsgSetPower}, // #nosec G115 -- power validated by config (0-33 dBm range)
		{"start inventory", NewStartInventoryFrame(AntennaMask(c.cfg.Antenna)), MsgStartInventory},
	}

	for _, step := range steps {
		if err := c.sendCommand(ctx, step.frame, step.typ); err != nil {
			return fmt.Errorf("setup %s: %w", step.name, err)
		}
	}

	c.inventorying.Store(true)
	return nil
}

// teardown closes the session after a failed Open.
func (c *Client) teardown() {
	if c.done != nil {
		c.done.Close()
	}
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.connMu.Unlock()
	c.wg.Wait()
}

// Close gracefully closes the session.
//
// It stops the receive loop and dispatch worker, closes the socket, and
// emits StatusEvent{Connected:false} if the session was up. Safe to call
// multiple times and on a client that was never opened.
//
// Returns:
//   - error: nil (closing is best-effort)
func (c *Client) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.closeLocked("closed")
}

// closeLocked closes the session. Caller must hold lifeMu.
func (c *Client) closeLocked(reason string) error {
	if c.done == nil {
		return nil // Never opened
	}

	c.done.Close()

	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.inventorying.Store(false)

	if wasConnected {
		c.emitStatus(StatusEvent{Connected: false, Reason: reason, Timestamp: time.Now()})
		c.logInfo("reader session closed")
	}
	return nil
}

// Restart closes the session and opens a fresh one.
//
// The full setup sequence runs again, so the reader comes back in the
// configured state regardless of what it was doing.
//
// Parameters:
//   - ctx: Context for cancellation of the reopen
//
// Returns:
//   - error: If the reopen fails (the session stays closed)
func (c *Client) Restart(ctx context.Context) error {
	if err := c.Close(); err != nil {
		return err
	}
	if err := c.Open(ctx); err != nil {
		return err
	}
	c.restarts.Add(1)
	return nil
}

// StartInventory starts a continuous inventory round on the configured antenna.
func (c *Client) StartInventory(ctx context.Context) error {
	frame := NewStartInventoryFrame(AntennaMask(c.cfg.Antenna))
	if err := c.sendCommand(ctx, frame, MsgStartInventory); err != nil {
		return err
	}
	c.inventorying.Store(true)
	return nil
}

// StopInventory stops the current inventory round. The session stays up;
// tag notifications simply stop arriving until StartInventory.
func (c *Client) StopInventory(ctx context.Context) error {
	if err := c.sendCommand(ctx, NewStopInventoryFrame(), MsgStopInventory); err != nil {
		return err
	}
	c.inventorying.Store(false)
	return nil
}

// sendCommand writes a command frame and waits for the matching response.
// Only one command is in flight at a time.
func (c *Client) sendCommand(ctx context.Context, frame []byte, wantType byte) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	// Drain a stale response from a previously timed-out command.
	select {
	case <-c.respCh:
	default:
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrCommandFailed, err)
	}

	if _, err := conn.Write(frame); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrCommandFailed, err)
	}
	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	select {
	case resp := <-c.respCh:
		if resp.Type != wantType {
			c.errorsTotal.Add(1)
			return fmt.Errorf("%w: unexpected response type 0x%02X (want 0x%02X)",
				ErrCommandFailed, resp.Type, wantType)
		}
		if len(resp.Payload) < 1 || resp.Payload[0] != StatusOK {
			c.errorsTotal.Add(1)
			return fmt.Errorf("%w: reader returned status 0x%02X",
				ErrCommandFailed, respStatus(resp.Payload))
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCommandFailed, ctx.Err())
	case <-c.done.Done():
		return ErrNotConnected
	case <-time.After(commandTimeout):
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: no response within %v", ErrCommandFailed, commandTimeout)
	}
}

// respStatus extracts the status byte from a response payload.
func respStatus(payload []byte) byte {
	if len(payload) == 0 {
		return 0xFF
	}
	return payload[0]
}

// receiveLoop continuously reads frames from the reader.
// On a fatal error it emits a disconnect status and exits; it never
// reconnects on its own.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	header := make([]byte, 4)

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		frame, err := c.readFrame(header)
		if err != nil {
			if c.handleReadError(err) {
				return // Fatal, session over
			}
			continue // Recoverable, retry
		}

		c.handleFrame(frame)
	}
}

// readFrame reads a single frame from the connection.
// Returns ErrProtocolDesync for unrecoverable framing errors.
func (c *Client) readFrame(header []byte) (Frame, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return Frame{}, ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return Frame{}, fmt.Errorf("set deadline: %w", err)
	}

	// Read header(1) + type(1) + length(2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return Frame{}, fmt.Errorf("read header: %w", err)
	}

	if header[0] != frameHeader {
		// The stream is not aligned on a frame boundary. There is no safe
		// way to resynchronise without risking misparsed frames.
		c.errorsTotal.Add(1)
		return Frame{}, fmt.Errorf("%w: bad header byte 0x%02X", ErrProtocolDesync, header[0])
	}

	payloadLen := int(binary.BigEndian.Uint16(header[2:4]))
	if payloadLen > maxPayloadLen {
		c.errorsTotal.Add(1)
		return Frame{}, fmt.Errorf("%w: declared payload %d exceeds %d",
			ErrProtocolDesync, payloadLen, maxPayloadLen)
	}

	// Read payload + checksum
	rest := make([]byte, payloadLen+1)
	if _, err := io.ReadFull(conn, rest); err != nil {
		return Frame{}, fmt.Errorf("read body: %w", err)
	}

	raw := make([]byte, 0, len(header)+len(rest))
	raw = append(raw, header...)
	raw = append(raw, rest...)

	frame, err := ParseFrame(raw)
	if err != nil {
		// Framing was consistent but the checksum failed: likely line
		// noise on a single frame. Count it and keep reading.
		c.errorsTotal.Add(1)
		c.logError("frame validation failed", err)
		return Frame{}, errRecoverableFrame
	}

	return frame, nil
}

// errRecoverableFrame marks a single bad frame that does not end the session.
var errRecoverableFrame = errors.New("reader: recoverable frame error")

// handleReadError processes a read error and returns true if the loop should stop.
func (c *Client) handleReadError(err error) bool {
	if errors.Is(err, errRecoverableFrame) {
		return false
	}

	if c.isClosed() {
		return true // Clean shutdown
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false // Idle link, keep waiting
	}

	reason := "read failed"
	if errors.Is(err, ErrProtocolDesync) {
		reason = "protocol desync"
	}

	c.logError(reason, err)
	c.errorsTotal.Add(1)
	c.handleDisconnect(fmt.Sprintf("%s: %v", reason, err))
	return true
}

// handleFrame routes a received frame: command responses to the pending
// command, notifications to the dispatch queue.
func (c *Client) handleFrame(frame Frame) {
	c.lastActivity.Store(time.Now().Unix())

	if !frame.IsNotification() {
		select {
		case c.respCh <- frame:
		default:
			// No command waiting; stale response, drop it.
			c.logDebug("unsolicited command response dropped", "type", frame.Type)
		}
		return
	}

	switch frame.Type {
	case MsgTagNotify:
		c.handleTagNotify(frame)
	case MsgInventoryOver:
		c.inventorying.Store(false)
		c.logDebug("inventory round ended")
	default:
		c.logDebug("unknown notification frame", "type", frame.Type)
	}
}

// handleTagNotify parses and queues a tag observation.
func (c *Client) handleTagNotify(frame Frame) {
	event, err := ParseTagNotify(frame.Payload)
	if err != nil {
		c.logError("parse tag notify failed", err)
		c.errorsTotal.Add(1)
		return
	}

	c.tagsRx.Add(1)

	c.callbackMu.RLock()
	hasCallback := c.onTagRead != nil
	c.callbackMu.RUnlock()

	if hasCallback {
		// Queue for the dispatch worker (non-blocking with drop on overflow)
		select {
		case c.eventQueue <- event:
		default:
			// Queue full, drop event to prevent memory exhaustion
			c.logError("event queue full, dropping tag read", nil)
			c.tagsDropped.Add(1)
			c.errorsTotal.Add(1)
		}
	}
}

// dispatchWorker delivers queued tag events to the callback.
// A single worker preserves the order tags were observed in.
func (c *Client) dispatchWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainEventQueue()
			return
		case event := <-c.eventQueue:
			c.callbackMu.RLock()
			callback := c.onTagRead
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("tag callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(event)
				}()
			}
		}
	}
}

// drainEventQueue discards any remaining queued events during shutdown.
func (c *Client) drainEventQueue() {
	for {
		select {
		case <-c.eventQueue:
		default:
			return
		}
	}
}

// handleDisconnect handles mid-session connection loss.
func (c *Client) handleDisconnect(reason string) {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.inventorying.Store(false)

	if wasConnected {
		c.emitStatus(StatusEvent{Connected: false, Reason: reason, Timestamp: time.Now()})
	}
}

// emitStatus delivers a status event to the registered callback.
// Panics in the callback are recovered and logged.
func (c *Client) emitStatus(event StatusEvent) {
	c.callbackMu.RLock()
	callback := c.onStatus
	c.callbackMu.RUnlock()

	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("status callback panic", fmt.Errorf("%v", r))
		}
	}()
	callback(event)
}

// isClosed returns true if the session has been closed.
func (c *Client) isClosed() bool {
	if c.done == nil {
		return true
	}
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// SetOnTagRead sets the callback for tag observations.
//
// The callback is invoked from a single dispatch goroutine, in the
// order tags were received. Panics are recovered and logged.
func (c *Client) SetOnTagRead(callback func(TagReadEvent)) {
	c.callbackMu.Lock()
	c.onTagRead = callback
	c.callbackMu.Unlock()
}

// SetOnStatus sets the callback for connection state transitions.
//
// Exactly one event is delivered per transition. The callback may run
// on the receive loop goroutine, so it must not call Open, Close or
// Restart; signal another goroutine instead.
func (c *Client) SetOnStatus(callback func(StatusEvent)) {
	c.callbackMu.Lock()
	c.onStatus = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if the session is established and usable.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		TagsRx:       c.tagsRx.Load(),
		FramesTx:     c.framesTx.Load(),
		TagsDropped:  c.tagsDropped.Load(),
		ErrorsTotal:  c.errorsTotal.Load(),
		Restarts:     c.restarts.Load(),
		LastActivity: time.Unix(c.lastActivity.Load(), 0),
		Connected:    c.IsConnected(),
		Inventorying: c.inventorying.Load(),
	}
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
