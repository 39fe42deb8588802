// Package reader provides the TCP client for a UHF RFID reader.
//
// This package manages:
//   - The TCP session to the reader's command port
//   - The framed binary wire protocol (commands and notifications)
//   - Reader setup on connect (power, antenna, beeper, inventory)
//   - Ordered delivery of tag observations to a callback
//
// # Protocol
//
// Every frame is: header 0x5A, type byte, big-endian payload length,
// payload, XOR checksum. Commands (stop/start inventory, set power,
// set beeper) are answered synchronously with a status byte; tag
// observations and inventory-over markers arrive unsolicited while an
// inventory round runs. See protocol.go for the frame catalogue.
//
// # Connection Ownership
//
// The client deliberately does not reconnect. A lost session emits one
// StatusEvent{Connected:false} and the receive loop exits; whoever owns
// the client decides when and how often to call Open again. This keeps
// retry policy, backoff and logging in one place instead of two layers
// fighting over the socket.
//
// # Usage
//
//	client := reader.New(reader.Config{
//	    Host:    "192.168.1.50",
//	    Port:    8160,
//	    Antenna: 1,
//	    Power:   10,
//	})
//	client.SetOnTagRead(func(ev reader.TagReadEvent) {
//	    log.Printf("tag %s on antenna %d (%d dBm)", ev.EPC, ev.Antenna, ev.RSSI)
//	})
//	client.SetOnStatus(func(ev reader.StatusEvent) {
//	    log.Printf("reader connected=%v (%s)", ev.Connected, ev.Reason)
//	})
//	if err := client.Open(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
package reader
