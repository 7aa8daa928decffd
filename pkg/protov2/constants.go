// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package protov2 implements the retrolink v2 wire protocol.
//
// A v2 frame is a byte-stuffed, CRC-protected unit bounded by SOF/EOF markers:
//
//	SOF | escaped(VER TYPE FLAGS SEQ LEN PAYLOAD CRC16) | EOF
//
// This package provides frame encoding, an incremental stream decoder,
// payload builders and parsers for each message type, validation, and
// human-readable formatting.
package protov2

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Version is the only protocol version accepted by the decoder.
const Version = 0x02

// Frame size limits
const (
	HeaderSize     = 5 // VER TYPE FLAGS SEQ LEN
	CRCSize        = 2
	MinBodySize    = HeaderSize + CRCSize
	MaxPayloadSize = 64
	MaxBodySize    = 256 // accumulation cap for the stream decoder
)

// Message types
const (
	TypeStatus = 0x01
	TypeTime   = 0x02
	TypeCall   = 0x03
	TypeNotify = 0x04
	TypePing   = 0x05
	TypeAck    = 0x10
)

// Frame flags
const (
	FlagAckReq = 0x01
)

// STATUS payload values
const (
	StatusConnected    = 0x01
	StatusDisconnected = 0x02
)

// ACK result codes
const (
	AckResultOK          = 0x00
	AckResultInvalid     = 0x01
	AckResultUnsupported = 0x02
)

// Payload sizes
const (
	TimePayloadSize   = 7
	AckPayloadSize    = 3
	StatusPayloadSize = 1
)
