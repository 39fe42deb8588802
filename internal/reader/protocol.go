package reader

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Wire protocol frame types.
//
// The reader speaks a framed binary protocol over TCP. Command frames
// (0x01-0x0F) are sent by the bridge and answered by the reader with a
// frame of the same type carrying a status byte. Notification frames
// (0x10+) are pushed by the reader unsolicited during an inventory round.
const (
	// MsgStopInventory stops the current inventory round.
	// Command payload: empty. Response payload: status(1).
	MsgStopInventory byte = 0x01

	// MsgStartInventory starts a continuous inventory round.
	// Command payload: antenna_mask(1) + mode(1). Response payload: status(1).
	MsgStartInventory byte = 0x02

	// MsgSetPower configures per-antenna transmit power.
	// Command payload: repeated (antenna(1) + power_dbm(1)) pairs.
	// Response payload: status(1).
	MsgSetPower byte = 0x03

	// MsgSetBeeper configures the reader's buzzer.
	// Command payload: mode(1) + interval(1). Response payload: status(1).
	MsgSetBeeper byte = 0x04

	// MsgTagNotify carries one tag observation.
	// Payload: antenna(1) + rssi(1, signed dBm) + epc_len(1) + epc bytes.
	MsgTagNotify byte = 0x10

	// MsgInventoryOver signals the end of an inventory round.
	// Payload: reason(1).
	MsgInventoryOver byte = 0x11
)

// Inventory modes for MsgStartInventory.
const (
	// InventoryModeContinuous keeps the round running until MsgStopInventory.
	InventoryModeContinuous byte = 0x01
)

// Beeper modes for MsgSetBeeper.
const (
	// BeeperOff silences the buzzer.
	BeeperOff byte = 0x00
)

// Command response status codes.
const (
	// StatusOK indicates the reader accepted the command.
	StatusOK byte = 0x00
)

// Frame size constraints.
const (
	// frameHeader is the fixed first byte of every frame.
	frameHeader byte = 0x5A

	// frameOverhead is header(1) + type(1) + length(2) + checksum(1).
	frameOverhead = 5

	// maxPayloadLen bounds the declared payload length. Anything larger
	// means the stream is desynchronised, not a legitimate frame.
	maxPayloadLen = 512
)

// Frame represents a single protocol frame.
//
// A frame is the basic unit of communication with the reader. It
// carries either a command (bridge to reader), a command response
// (reader to bridge), or an unsolicited notification.
type Frame struct {
	// Type is the frame type (MsgStopInventory, MsgTagNotify, ...).
	Type byte

	// Payload contains the type-specific body (may be empty).
	Payload []byte

	// Timestamp records when the frame was received or created.
	Timestamp time.Time
}

// IsNotification returns true for unsolicited reader-to-bridge frames.
func (f Frame) IsNotification() bool {
	return f.Type >= MsgTagNotify
}

// String returns a human-readable representation of the frame.
func (f Frame) String() string {
	typeStr := "UNKNOWN"
	switch f.Type {
	case MsgStopInventory:
		typeStr = "STOP_INVENTORY"
	case MsgStartInventory:
		typeStr = "START_INVENTORY"
	case MsgSetPower:
		typeStr = "SET_POWER"
	case MsgSetBeeper:
		typeStr = "SET_BEEPER"
	case MsgTagNotify:
		typeStr = "TAG_NOTIFY"
	case MsgInventoryOver:
		typeStr = "INVENTORY_OVER"
	}
	return fmt.Sprintf("Frame{Type:%s, Payload:%X}", typeStr, f.Payload)
}

// EncodeFrame wraps a payload in the reader wire format.
//
// Format:
//
//	Byte 0:   Header (0x5A)
//	Byte 1:   Frame type
//	Byte 2-3: Payload length (big-endian)
//	Byte 4+:  Payload
//	Last:     Checksum (XOR of type, length and payload bytes)
//
// Parameters:
//   - frameType: Frame type (e.g., MsgStartInventory)
//   - payload: Frame payload (may be nil)
//
// Returns:
//   - []byte: Complete frame ready to send over the socket
func EncodeFrame(frameType byte, payload []byte) []byte {
	buf := make([]byte, frameOverhead+len(payload))

	buf[0] = frameHeader
	buf[1] = frameType
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload))) //nolint:gosec // bounded by small frame sizes
	copy(buf[4:], payload)
	buf[len(buf)-1] = checksum(buf[1 : len(buf)-1])

	return buf
}

// ParseFrame parses a complete raw frame from the socket.
//
// Parameters:
//   - data: Raw bytes, exactly one frame (header through checksum)
//
// Returns:
//   - Frame: Parsed frame with timestamp set to now
//   - error: ErrInvalidFrame if framing or checksum validation fails
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < frameOverhead {
		return Frame{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)",
			ErrInvalidFrame, len(data), frameOverhead)
	}
	if data[0] != frameHeader {
		return Frame{}, fmt.Errorf("%w: bad header byte 0x%02X", ErrInvalidFrame, data[0])
	}

	declaredLen := binary.BigEndian.Uint16(data[2:4])
	if int(declaredLen) != len(data)-frameOverhead {
		return Frame{}, fmt.Errorf("%w: length mismatch (declared %d, have %d)",
			ErrInvalidFrame, declaredLen, len(data)-frameOverhead)
	}

	want := checksum(data[1 : len(data)-1])
	if got := data[len(data)-1]; got != want {
		return Frame{}, fmt.Errorf("%w: checksum mismatch (got 0x%02X, want 0x%02X)",
			ErrInvalidFrame, got, want)
	}

	var payload []byte
	if declaredLen > 0 {
		payload = make([]byte, declaredLen)
		copy(payload, data[4:len(data)-1])
	}

	return Frame{
		Type:      data[1],
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}

// checksum computes the XOR checksum over the given bytes.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}

// NewStopInventoryFrame builds a stop-inventory command frame.
func NewStopInventoryFrame() []byte {
	return EncodeFrame(MsgStopInventory, nil)
}

// NewStartInventoryFrame builds a start-inventory command frame.
//
// Parameters:
//   - antennaMask: Bitmask of enabled antennas (bit 0 = antenna 1)
func NewStartInventoryFrame(antennaMask byte) []byte {
	return EncodeFrame(MsgStartInventory, []byte{antennaMask, InventoryModeContinuous})
}

// NewSetPowerFrame builds a set-power command frame.
//
// The same power level is applied to all four antennas, matching how
// the reader is deployed (a single dock-door power profile).
//
// Parameters:
//   - powerDBM: Transmit power in dBm (0-33 for typical modules)
func NewSetPowerFrame(powerDBM byte) []byte {
	payload := make([]byte, 0, 8)
	for antenna := byte(1); antenna <= 4; antenna++ {
		payload = append(payload, antenna, powerDBM)
	}
	return EncodeFrame(MsgSetPower, payload)
}

// NewSetBeeperFrame builds a set-beeper command frame.
//
// Parameters:
//   - mode: Beeper mode (BeeperOff to silence)
//   - interval: Beep interval for periodic modes (0 for off)
func NewSetBeeperFrame(mode, interval byte) []byte {
	return EncodeFrame(MsgSetBeeper, []byte{mode, interval})
}

// AntennaMask converts a 1-based antenna number to its enable bitmask.
func AntennaMask(antenna int) byte {
	if antenna < 1 || antenna > 8 {
		return 0
	}
	return 1 << (antenna - 1)
}

// ParseTagNotify parses a MsgTagNotify payload into a TagReadEvent.
//
// Payload format:
//
//	Byte 0:  Antenna number (1-based)
//	Byte 1:  RSSI (signed dBm)
//	Byte 2:  EPC length in bytes
//	Byte 3+: EPC bytes
//
// Parameters:
//   - payload: MsgTagNotify frame payload
//
// Returns:
//   - TagReadEvent: Parsed event with uppercase hex EPC
//   - error: ErrInvalidFrame if the payload is malformed
func ParseTagNotify(payload []byte) (TagReadEvent, error) {
	if len(payload) < 4 { //nolint:mnd // antenna(1) + rssi(1) + epc_len(1) + at least one EPC byte
		return TagReadEvent{}, fmt.Errorf("%w: tag notify too short (%d bytes)",
			ErrInvalidFrame, len(payload))
	}

	epcLen := int(payload[2])
	if epcLen == 0 || len(payload) != 3+epcLen {
		return TagReadEvent{}, fmt.Errorf("%w: tag notify EPC length mismatch (declared %d, have %d)",
			ErrInvalidFrame, epcLen, len(payload)-3)
	}

	return TagReadEvent{
		EPC:       fmt.Sprintf("%X", payload[3:3+epcLen]),
		Antenna:   int(payload[0]),
		RSSI:      int(int8(payload[1])),
		Timestamp: time.Now(),
	}, nil
}
