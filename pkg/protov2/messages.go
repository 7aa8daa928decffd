// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Frame builder functions create Frames ready for encoding.
// Sequence numbers are assigned by the caller and wrap at 256.

func ackFlag(ackReq bool) uint8 {
	if ackReq {
		return FlagAckReq
	}
	return 0
}

// NewStatusFrame creates a STATUS frame (0x01).
// Status values: StatusConnected (0x01), StatusDisconnected (0x02).
func NewStatusFrame(seq, status uint8, ackReq bool) *Frame {
	return NewFrame(TypeStatus, ackFlag(ackReq), seq, []byte{status})
}

// NewTimeFrame creates a TIME frame (0x02) from the wall-clock fields of t.
func NewTimeFrame(seq uint8, t time.Time, ackReq bool) *Frame {
	year := t.Year()
	payload := []byte{
		byte(year & 0xFF),
		byte(year >> 8),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
	return NewFrame(TypeTime, ackFlag(ackReq), seq, payload)
}

// NewCallFrame creates a CALL frame (0x03) carrying the caller name.
// Text longer than MaxPayloadSize bytes is cut on a rune boundary.
func NewCallFrame(seq uint8, text string, ackReq bool) *Frame {
	return NewFrame(TypeCall, ackFlag(ackReq), seq, TruncateText(text, MaxPayloadSize))
}

// NewNotifyFrame creates a NOTIFY frame (0x04) carrying notification text.
// Text longer than MaxPayloadSize bytes is cut on a rune boundary.
func NewNotifyFrame(seq uint8, text string, ackReq bool) *Frame {
	return NewFrame(TypeNotify, ackFlag(ackReq), seq, TruncateText(text, MaxPayloadSize))
}

// NewPingFrame creates a PING frame (0x05) with an empty payload.
func NewPingFrame(seq uint8, ackReq bool) *Frame {
	return NewFrame(TypePing, ackFlag(ackReq), seq, nil)
}

// NewAckFrame creates an ACK frame (0x10) answering the frame identified
// by ackType and ackSeq.
func NewAckFrame(seq, ackType, ackSeq, result uint8) *Frame {
	return NewFrame(TypeAck, 0, seq, []byte{ackType, ackSeq, result})
}

// TruncateText returns at most max bytes of s without splitting a UTF-8 sequence.
func TruncateText(s string, max int) []byte {
	b := []byte(s)
	if len(b) <= max {
		return b
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}

// Ack is a decoded ACK payload
type Ack struct {
	Type   uint8
	Seq    uint8
	Result uint8
}

// OK reports whether the receiver accepted the acknowledged frame
func (a Ack) OK() bool {
	return a.Result == AckResultOK
}

// ParseAck decodes the payload of an ACK frame
func ParseAck(f *Frame) (Ack, error) {
	if f.msgType != TypeAck {
		return Ack{}, fmt.Errorf("%w: 0x%02X is not ACK", ErrWrongType, f.msgType)
	}
	if len(f.payload) != AckPayloadSize {
		return Ack{}, fmt.Errorf("%w: ACK has %d bytes (want %d)", ErrPayloadLength, len(f.payload), AckPayloadSize)
	}
	return Ack{Type: f.payload[0], Seq: f.payload[1], Result: f.payload[2]}, nil
}

// ParseStatus decodes the payload of a STATUS frame
func ParseStatus(f *Frame) (uint8, error) {
	if f.msgType != TypeStatus {
		return 0, fmt.Errorf("%w: 0x%02X is not STATUS", ErrWrongType, f.msgType)
	}
	if len(f.payload) != StatusPayloadSize {
		return 0, fmt.Errorf("%w: STATUS has %d bytes (want %d)", ErrPayloadLength, len(f.payload), StatusPayloadSize)
	}
	status := f.payload[0]
	if status != StatusConnected && status != StatusDisconnected {
		return 0, fmt.Errorf("%w: status 0x%02X", ErrInvalidValue, status)
	}
	return status, nil
}

// ParseTime decodes the payload of a TIME frame. The returned time carries
// the sender's wall-clock fields in UTC.
func ParseTime(f *Frame) (time.Time, error) {
	if f.msgType != TypeTime {
		return time.Time{}, fmt.Errorf("%w: 0x%02X is not TIME", ErrWrongType, f.msgType)
	}
	p := f.payload
	if len(p) != TimePayloadSize {
		return time.Time{}, fmt.Errorf("%w: TIME has %d bytes (want %d)", ErrPayloadLength, len(p), TimePayloadSize)
	}

	year := int(p[0]) | int(p[1])<<8
	month, day, hour, minute, second := int(p[2]), int(p[3]), int(p[4]), int(p[5]), int(p[6])
	switch {
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("%w: month %d", ErrInvalidValue, month)
	case day < 1 || day > 31:
		return time.Time{}, fmt.Errorf("%w: day %d", ErrInvalidValue, day)
	case hour > 23:
		return time.Time{}, fmt.Errorf("%w: hour %d", ErrInvalidValue, hour)
	case minute > 59:
		return time.Time{}, fmt.Errorf("%w: minute %d", ErrInvalidValue, minute)
	case second > 59:
		return time.Time{}, fmt.Errorf("%w: second %d", ErrInvalidValue, second)
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// Text returns the payload of a CALL or NOTIFY frame as a string
func Text(f *Frame) (string, error) {
	if f.msgType != TypeCall && f.msgType != TypeNotify {
		return "", fmt.Errorf("%w: 0x%02X carries no text", ErrWrongType, f.msgType)
	}
	return string(f.payload), nil
}
