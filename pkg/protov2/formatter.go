// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(f.msgType)

	var flags string
	if f.AckRequested() {
		flags = " ack-req"
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) seq=%d len=%d%s\n", timestamp, msgType, f.msgType, f.seq, len(f.payload), flags)
	result += FormatPayload(f)

	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case TypeStatus:
		return "STATUS"
	case TypeTime:
		return "TIME"
	case TypeCall:
		return "CALL"
	case TypeNotify:
		return "NOTIFY"
	case TypePing:
		return "PING"
	case TypeAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats a frame's payload according to its message type
func FormatPayload(f *Frame) string {
	switch f.msgType {
	case TypeStatus:
		status, err := ParseStatus(f)
		if err != nil {
			return fmt.Sprintf("  (invalid: %v)\n", err)
		}
		return fmt.Sprintf("  status=%s\n", formatStatus(status))

	case TypeTime:
		t, err := ParseTime(f)
		if err != nil {
			return fmt.Sprintf("  (invalid: %v)\n", err)
		}
		return fmt.Sprintf("  time=%s\n", t.Format("2006-01-02 15:04:05"))

	case TypeCall, TypeNotify:
		text, _ := Text(f)
		return fmt.Sprintf("  text=%q\n", text)

	case TypePing:
		return ""

	case TypeAck:
		ack, err := ParseAck(f)
		if err != nil {
			return fmt.Sprintf("  (invalid: %v)\n", err)
		}
		return fmt.Sprintf("  ack=%s seq=%d result=%s\n", FormatMessageType(ack.Type), ack.Seq, FormatAckResult(ack.Result))
	}

	return fmt.Sprintf("  payload=%s\n", FormatHex(f.payload))
}

// FormatAckResult returns the name of an ACK result code
func FormatAckResult(result uint8) string {
	switch result {
	case AckResultOK:
		return "OK"
	case AckResultInvalid:
		return "INVALID"
	case AckResultUnsupported:
		return "UNSUPPORTED"
	default:
		return fmt.Sprintf("0x%02X", result)
	}
}

func formatStatus(status uint8) string {
	switch status {
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("0x%02X", status)
	}
}

// FormatHex formats bytes as space-separated hex
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
