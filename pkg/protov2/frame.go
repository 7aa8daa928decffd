// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import "time"

// Frame represents a v2 protocol frame. Frames are immutable once built.
type Frame struct {
	version   uint8
	msgType   uint8
	flags     uint8
	seq       uint8
	payload   []byte
	crc       uint16
	timestamp time.Time
}

// NewFrame builds a frame for transmission. Payloads longer than
// MaxPayloadSize are truncated.
func NewFrame(msgType, flags, seq uint8, payload []byte) *Frame {
	if len(payload) > MaxPayloadSize {
		payload = payload[:MaxPayloadSize]
	}
	f := &Frame{
		version:   Version,
		msgType:   msgType,
		flags:     flags,
		seq:       seq,
		payload:   append([]byte(nil), payload...),
		timestamp: time.Now(),
	}
	f.crc = CalculateCRC(f.header())
	return f
}

// header returns VER..PAYLOAD, the range covered by the CRC
func (f *Frame) header() []byte {
	body := make([]byte, 0, HeaderSize+len(f.payload)+CRCSize)
	body = append(body, f.version, f.msgType, f.flags, f.seq, uint8(len(f.payload)))
	return append(body, f.payload...)
}

// Version returns the frame's protocol version
func (f *Frame) Version() uint8 {
	return f.version
}

// Type returns the frame's message type
func (f *Frame) Type() uint8 {
	return f.msgType
}

// Flags returns the frame's flag byte
func (f *Frame) Flags() uint8 {
	return f.flags
}

// Seq returns the frame's sequence number
func (f *Frame) Seq() uint8 {
	return f.seq
}

// Length returns the payload length
func (f *Frame) Length() uint8 {
	return uint8(len(f.payload))
}

// Payload returns a copy of the payload bytes
func (f *Frame) Payload() []byte {
	return append([]byte(nil), f.payload...)
}

// CRC returns the frame's CRC value
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns when the frame was built or decoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// AckRequested reports whether the sender asked for an ACK
func (f *Frame) AckRequested() bool {
	return f.flags&FlagAckReq != 0
}
