package reader

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFrame_Layout(t *testing.T) {
	frame := EncodeFrame(MsgStartInventory, []byte{0x01, 0x01})

	if len(frame) != frameOverhead+2 {
		t.Fatalf("frame length = %d, want %d", len(frame), frameOverhead+2)
	}
	if frame[0] != frameHeader {
		t.Errorf("header byte = 0x%02X, want 0x%02X", frame[0], frameHeader)
	}
	if frame[1] != MsgStartInventory {
		t.Errorf("type byte = 0x%02X, want 0x%02X", frame[1], MsgStartInventory)
	}
	if frame[2] != 0x00 || frame[3] != 0x02 {
		t.Errorf("length bytes = %02X%02X, want 0002", frame[2], frame[3])
	}
	if !bytes.Equal(frame[4:6], []byte{0x01, 0x01}) {
		t.Errorf("payload = %X, want 0101", frame[4:6])
	}

	want := checksum(frame[1 : len(frame)-1])
	if frame[len(frame)-1] != want {
		t.Errorf("checksum = 0x%02X, want 0x%02X", frame[len(frame)-1], want)
	}
}

func TestEncodeParseRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		typ     byte
		payload []byte
	}{
		{name: "empty payload", typ: MsgStopInventory, payload: nil},
		{name: "start inventory", typ: MsgStartInventory, payload: []byte{0x01, InventoryModeContinuous}},
		{name: "tag notify", typ: MsgTagNotify, payload: []byte{0x01, 0xBA, 0x02, 0xE2, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := EncodeFrame(tt.typ, tt.payload)
			frame, err := ParseFrame(raw)
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}
			if frame.Type != tt.typ {
				t.Errorf("Type = 0x%02X, want 0x%02X", frame.Type, tt.typ)
			}
			if !bytes.Equal(frame.Payload, tt.payload) {
				t.Errorf("Payload = %X, want %X", frame.Payload, tt.payload)
			}
			if frame.Timestamp.IsZero() {
				t.Error("Timestamp should be set")
			}
		})
	}
}

func TestParseFrame_Invalid(t *testing.T) {
	valid := EncodeFrame(MsgStopInventory, []byte{StatusOK})

	badHeader := append([]byte{}, valid...)
	badHeader[0] = 0x00

	badChecksum := append([]byte{}, valid...)
	badChecksum[len(badChecksum)-1] ^= 0xFF

	badLength := append([]byte{}, valid...)
	badLength[3] = 0x09

	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: []byte{0x5A, 0x01}},
		{name: "bad header byte", data: badHeader},
		{name: "checksum mismatch", data: badChecksum},
		{name: "length mismatch", data: badLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.data)
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("ParseFrame() error = %v, want ErrInvalidFrame", err)
			}
		})
	}
}

func TestFrame_IsNotification(t *testing.T) {
	if (Frame{Type: MsgStopInventory}).IsNotification() {
		t.Error("command frame classified as notification")
	}
	if !(Frame{Type: MsgTagNotify}).IsNotification() {
		t.Error("tag notify not classified as notification")
	}
	if !(Frame{Type: MsgInventoryOver}).IsNotification() {
		t.Error("inventory over not classified as notification")
	}
}

func TestCommandBuilders(t *testing.T) {
	t.Run("stop inventory", func(t *testing.T) {
		frame, err := ParseFrame(NewStopInventoryFrame())
		if err != nil {
			t.Fatalf("ParseFrame() error = %v", err)
		}
		if frame.Type != MsgStopInventory {
			t.Errorf("Type = 0x%02X, want MsgStopInventory", frame.Type)
		}
		if len(frame.Payload) != 0 {
			t.Errorf("Payload = %X, want empty", frame.Payload)
		}
	})

	t.Run("start inventory", func(t *testing.T) {
		frame, err := ParseFrame(NewStartInventoryFrame(AntennaMask(2)))
		if err != nil {
			t.Fatalf("ParseFrame() error = %v", err)
		}
		if frame.Type != MsgStartInventory {
			t.Errorf("Type = 0x%02X, want MsgStartInventory", frame.Type)
		}
		if !bytes.Equal(frame.Payload, []byte{0x02, InventoryModeContinuous}) {
			t.Errorf("Payload = %X, want 0201", frame.Payload)
		}
	})

	t.Run("set power applies all antennas", func(t *testing.T) {
		frame, err := ParseFrame(NewSetPowerFrame(20))
		if err != nil {
			t.Fatalf("ParseFrame() error = %v", err)
		}
		want := []byte{1, 20, 2, 20, 3, 20, 4, 20}
		if !bytes.Equal(frame.Payload, want) {
			t.Errorf("Payload = %X, want %X", frame.Payload, want)
		}
	})

	t.Run("set beeper off", func(t *testing.T) {
		frame, err := ParseFrame(NewSetBeeperFrame(BeeperOff, 0))
		if err != nil {
			t.Fatalf("ParseFrame() error = %v", err)
		}
		if !bytes.Equal(frame.Payload, []byte{0x00, 0x00}) {
			t.Errorf("Payload = %X, want 0000", frame.Payload)
		}
	})
}

func TestAntennaMask(t *testing.T) {
	tests := []struct {
		antenna int
		want    byte
	}{
		{antenna: 1, want: 0x01},
		{antenna: 2, want: 0x02},
		{antenna: 3, want: 0x04},
		{antenna: 4, want: 0x08},
		{antenna: 0, want: 0x00},
		{antenna: 9, want: 0x00},
	}

	for _, tt := range tests {
		if got := AntennaMask(tt.antenna); got != tt.want {
			t.Errorf("AntennaMask(%d) = 0x%02X, want 0x%02X", tt.antenna, got, tt.want)
		}
	}
}

func TestParseTagNotify(t *testing.T) {
	// antenna 2, RSSI -70 dBm, 6-byte EPC
	payload := []byte{0x02, 0xBA, 0x06, 0xE2, 0x00, 0x00, 0x17, 0x22, 0x01}

	event, err := ParseTagNotify(payload)
	if err != nil {
		t.Fatalf("ParseTagNotify() error = %v", err)
	}

	if event.EPC != "E20000172201" {
		t.Errorf("EPC = %q, want %q", event.EPC, "E20000172201")
	}
	if event.Antenna != 2 {
		t.Errorf("Antenna = %d, want 2", event.Antenna)
	}
	if event.RSSI != -70 {
		t.Errorf("RSSI = %d, want -70", event.RSSI)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestParseTagNotify_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "too short", payload: []byte{0x01, 0xBA}},
		{name: "zero epc length", payload: []byte{0x01, 0xBA, 0x00, 0xE2}},
		{name: "epc length mismatch", payload: []byte{0x01, 0xBA, 0x06, 0xE2, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTagNotify(tt.payload)
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("ParseTagNotify() error = %v, want ErrInvalidFrame", err)
			}
		})
	}
}
