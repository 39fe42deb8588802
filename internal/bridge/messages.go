package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rfsense/tagbridge/internal/reader"
)

// MQTT message types and topic layout for the bridge.
//
// All topics live under the configured prefix:
//
//	<prefix>/status          retained bridge status (also the LWT topic)
//	<prefix>/settings        retained reader settings snapshot
//	<prefix>/tags/<antenna>  tag observations (not retained)
//	<prefix>/cmd/restart     inbound: restart the reader session
//	<prefix>/cmd/inventory   inbound: {"action":"start"|"stop"}
//	<prefix>/cmd/clear       inbound: reset the seen-EPC set
//	<prefix>/ack             command acknowledgments

// TagMessage is published for each tag observation that passes the
// throttle. Topic: <prefix>/tags/<antenna>, QoS from config, not retained.
type TagMessage struct {
	// EPC is the tag's EPC as uppercase hex.
	EPC string `json:"epc"`

	// RSSI is the received signal strength in dBm (negative).
	RSSI int `json:"rssi"`

	// Antenna is the 1-based antenna the tag was seen on.
	Antenna int `json:"antenna"`

	// Timestamp is when the reader observed the tag (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// ReaderID identifies the reader this bridge fronts.
	ReaderID string `json:"reader_id"`
}

// NewTagMessage builds a TagMessage from a reader event.
func NewTagMessage(readerID string, ev reader.TagReadEvent) TagMessage {
	return TagMessage{
		EPC:       ev.EPC,
		RSSI:      ev.RSSI,
		Antenna:   ev.Antenna,
		Timestamp: ev.Timestamp.UTC(),
		ReaderID:  readerID,
	}
}

// StatusMessage is the retained bridge status.
// Topic: <prefix>/status, QoS 1, retained.
//
// The broker's LWT for this bridge publishes the same shape with
// state "offline" and reason "unexpected_disconnect".
type StatusMessage struct {
	ReaderConnected bool `json:"reader_connected"`
	BrokerConnected bool `json:"broker_connected"`

	// State is the bridge state machine state.
	State State `json:"state"`

	// Inventorying reports whether an inventory round is running.
	Inventorying bool `json:"inventorying"`

	// Reason explains the last transition (empty when healthy).
	Reason string `json:"reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// equivalent reports whether two status messages describe the same
// condition, ignoring timestamps. Used to publish exactly one status
// per transition.
func (m StatusMessage) equivalent(other StatusMessage) bool {
	return m.ReaderConnected == other.ReaderConnected &&
		m.BrokerConnected == other.BrokerConnected &&
		m.State == other.State &&
		m.Inventorying == other.Inventorying &&
		m.Reason == other.Reason
}

// SettingsMessage is the retained reader configuration snapshot, so a
// new subscriber learns how the bridge is set up without asking.
// Topic: <prefix>/settings, QoS 1, retained.
type SettingsMessage struct {
	ReaderID           string    `json:"reader_id"`
	ReaderHost         string    `json:"reader_host"`
	ReaderPort         int       `json:"reader_port"`
	Antenna            int       `json:"antenna"`
	Power              int       `json:"power"`
	ThrottleIntervalMS int       `json:"throttle_interval_ms"`
	DedupeEPCs         bool      `json:"dedupe_epcs"`
	Timestamp          time.Time `json:"timestamp"`
}

// CommandMessage is the inbound payload on <prefix>/cmd/* topics.
// The payload may be empty; an ID is only needed when the sender wants
// to correlate the ack.
type CommandMessage struct {
	// ID correlates the acknowledgment with this command.
	ID string `json:"id,omitempty"`

	// Action is the sub-action for commands that take one
	// (inventory: "start" or "stop").
	Action string `json:"action,omitempty"`
}

// AckMessage acknowledges an inbound command.
// Topic: <prefix>/ack, QoS 1, not retained.
type AckMessage struct {
	// CommandID echoes the command's ID, or a generated one if the
	// command carried none.
	CommandID string `json:"command_id"`

	// Command names the command being acknowledged (restart, inventory, clear).
	Command string `json:"command"`

	Success bool `json:"success"`

	// Message explains a failure (empty on success).
	Message string `json:"message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ackIDLength is the number of uuid characters kept for generated ack IDs.
const ackIDLength = 8

// NewAckMessage builds an acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, command string, success bool, message string) AckMessage {
	id := cmd.ID
	if id == "" {
		id = "cmd-" + uuid.NewString()[:ackIDLength]
	}
	return AckMessage{
		CommandID: id,
		Command:   command,
		Success:   success,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Topic helpers

// StatusTopic returns the retained status topic.
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// SettingsTopic returns the retained settings topic.
func SettingsTopic(prefix string) string {
	return prefix + "/settings"
}

// TagTopic returns the tag observation topic for an antenna.
// Example: warehouse/rfid/tags/1
func TagTopic(prefix string, antenna int) string {
	return fmt.Sprintf("%s/tags/%d", prefix, antenna)
}

// AckTopic returns the command acknowledgment topic.
func AckTopic(prefix string) string {
	return prefix + "/ack"
}

// RestartCommandTopic returns the reader restart command topic.
func RestartCommandTopic(prefix string) string {
	return prefix + "/cmd/restart"
}

// InventoryCommandTopic returns the inventory start/stop command topic.
func InventoryCommandTopic(prefix string) string {
	return prefix + "/cmd/inventory"
}

// ClearCommandTopic returns the seen-EPC clear command topic.
func ClearCommandTopic(prefix string) string {
	return prefix + "/cmd/clear"
}

// CommandSubscribeTopic returns the subscription pattern covering all
// command topics. Example: warehouse/rfid/cmd/+
func CommandSubscribeTopic(prefix string) string {
	return prefix + "/cmd/+"
}

// commandName extracts the command from a cmd topic.
// Example: warehouse/rfid/cmd/restart → restart
func commandName(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}
