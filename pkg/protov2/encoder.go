// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import "fmt"

// Encode creates a complete wire-formatted frame.
// Payloads longer than MaxPayloadSize are silently truncated.
func Encode(msgType, flags, seq uint8, payload []byte) []byte {
	return EncodeFrame(NewFrame(msgType, flags, seq, payload))
}

// EncodeFrame encodes a Frame to wire format, including framing and byte stuffing.
func EncodeFrame(f *Frame) []byte {
	data := f.header()

	// Append CRC (big-endian)
	data = append(data, byte(f.crc>>8), byte(f.crc&0xFF))

	stuffed := stuffBytes(data)

	wire := make([]byte, 0, len(stuffed)+2)
	wire = append(wire, StartByte)
	wire = append(wire, stuffed...)
	wire = append(wire, EndByte)

	return wire
}

// stuffBytes applies byte stuffing to escape special bytes.
// Special bytes (START, END, ESC) are replaced with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
