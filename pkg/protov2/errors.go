// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import "errors"

// Frame rejection reasons. Decoder errors wrap one of these.
var (
	ErrTooShort       = errors.New("frame too short")
	ErrBadVersion     = errors.New("bad version")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrCRCMismatch    = errors.New("CRC mismatch")
	ErrFrameTooLarge  = errors.New("frame too large")
)

// Payload parse errors
var (
	ErrPayloadLength = errors.New("unexpected payload length")
	ErrInvalidValue  = errors.New("invalid payload value")
	ErrWrongType     = errors.New("wrong message type")
)
