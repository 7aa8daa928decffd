// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import (
	"fmt"
	"time"
)

// Decoder implements the v2 stream decoder state machine.
//
// Malformed input never puts the decoder in an unrecoverable state: every
// error is reported for the frame it concerns and the decoder resynchronizes
// on the next start byte.
type Decoder struct {
	inFrame   bool
	escaping  bool
	buffer    []byte
	rawBuffer []byte // Raw bytes of the current or last frame, including framing
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		buffer:    make([]byte, 0, MaxBodySize),
		rawBuffer: make([]byte, 0, MaxBodySize*2),
	}
}

// Reset drops any partial frame and returns the decoder to out-of-frame
func (d *Decoder) Reset() {
	d.inFrame = false
	d.escaping = false
	d.buffer = d.buffer[:0]
	d.rawBuffer = d.rawBuffer[:0]
}

// InFrame reports whether the decoder is between a start byte and an end byte
func (d *Decoder) InFrame() bool {
	return d.inFrame
}

// GetRawBytes returns the raw bytes of the current or most recent frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error wrapping one of the Err* rejection reasons when a frame is discarded.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if !d.inFrame {
		if b == StartByte {
			d.inFrame = true
			d.escaping = false
			d.buffer = d.buffer[:0]
			d.rawBuffer = append(d.rawBuffer[:0], b)
		}
		return nil, nil
	}

	d.rawBuffer = append(d.rawBuffer, b)

	if d.escaping {
		d.escaping = false
		return nil, d.appendByte(b ^ EscXor)
	}

	switch b {
	case EscByte:
		d.escaping = true
		return nil, nil

	case StartByte:
		// Resync: a new frame starts before the previous one ended
		d.buffer = d.buffer[:0]
		d.rawBuffer = append(d.rawBuffer[:0], b)
		return nil, nil

	case EndByte:
		frame, err := parseBody(d.buffer)
		d.inFrame = false
		d.buffer = d.buffer[:0]
		return frame, err
	}

	return nil, d.appendByte(b)
}

func (d *Decoder) appendByte(b byte) error {
	d.buffer = append(d.buffer, b)
	if len(d.buffer) > MaxBodySize {
		n := len(d.buffer)
		d.inFrame = false
		d.escaping = false
		d.buffer = d.buffer[:0]
		return fmt.Errorf("%w: %d bytes without end marker", ErrFrameTooLarge, n)
	}
	return nil
}

// Feed decodes a chunk of bytes, calling onFrame for each valid frame and
// onBad for each rejected one. Either callback may be nil.
func (d *Decoder) Feed(data []byte, onFrame func(*Frame), onBad func(error)) {
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			if onBad != nil {
				onBad(err)
			}
			continue
		}
		if frame != nil && onFrame != nil {
			onFrame(frame)
		}
	}
}

// DecodeFrame decodes exactly one complete wire frame (SOF..EOF).
func DecodeFrame(wire []byte) (*Frame, error) {
	if len(wire) < 2 || wire[0] != StartByte || wire[len(wire)-1] != EndByte {
		return nil, fmt.Errorf("missing frame markers")
	}
	body, err := UnstuffBytes(wire[1 : len(wire)-1])
	if err != nil {
		return nil, err
	}
	return parseBody(body)
}

// parseBody validates an unescaped VER..CRC body and builds a Frame
func parseBody(body []byte) (*Frame, error) {
	if len(body) < MinBodySize {
		return nil, fmt.Errorf("%w: %d bytes (min %d)", ErrTooShort, len(body), MinBodySize)
	}

	if body[0] != Version {
		return nil, fmt.Errorf("%w: 0x%02X (want 0x%02X)", ErrBadVersion, body[0], Version)
	}

	length := int(body[4])
	if len(body) != HeaderSize+length+CRCSize {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, length, len(body)-HeaderSize-CRCSize)
	}

	crcOffset := len(body) - CRCSize
	received := uint16(body[crcOffset])<<8 | uint16(body[crcOffset+1])
	calculated := CalculateCRC(body[:crcOffset])
	if received != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, received)
	}

	return &Frame{
		version:   body[0],
		msgType:   body[1],
		flags:     body[2],
		seq:       body[3],
		payload:   append([]byte(nil), body[HeaderSize:crcOffset]...),
		crc:       received,
		timestamp: time.Now(),
	}, nil
}
