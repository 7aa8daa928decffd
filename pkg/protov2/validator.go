// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidValue
	AnomalyInvalidText
	AnomalyUnknownType
	AnomalyOversizePayload
)

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a decoded frame's payload against its message type.
// Returns a slice of validation errors (empty if the frame is valid)
func ValidateFrame(f *Frame) []ValidationError {
	errs := []ValidationError{}

	if len(f.payload) > MaxPayloadSize {
		errs = append(errs, ValidationError{
			Type:    AnomalyOversizePayload,
			Message: fmt.Sprintf("payload of %d bytes exceeds %d", len(f.payload), MaxPayloadSize),
			Details: map[string]interface{}{"length": len(f.payload), "max": MaxPayloadSize},
		})
	}

	switch f.msgType {
	case TypeStatus:
		if _, err := ParseStatus(f); err != nil {
			errs = append(errs, payloadError("STATUS", err))
		}
	case TypeTime:
		if _, err := ParseTime(f); err != nil {
			errs = append(errs, payloadError("TIME", err))
		}
	case TypeAck:
		if _, err := ParseAck(f); err != nil {
			errs = append(errs, payloadError("ACK", err))
		}
	case TypeCall, TypeNotify:
		if !utf8.Valid(f.payload) {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidText,
				Message: fmt.Sprintf("%s text is not valid UTF-8", FormatMessageType(f.msgType)),
				Details: map[string]interface{}{"length": len(f.payload)},
			})
		}
	case TypePing:
		if len(f.payload) != 0 {
			errs = append(errs, ValidationError{
				Type:    AnomalyLengthMismatch,
				Message: "PING payload should be empty",
				Details: map[string]interface{}{"length": len(f.payload), "expected": 0},
			})
		}
	default:
		errs = append(errs, ValidationError{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("unknown message type 0x%02X", f.msgType),
			Details: map[string]interface{}{"type": f.msgType},
		})
	}

	return errs
}

func payloadError(name string, err error) ValidationError {
	anomaly := AnomalyInvalidValue
	if errors.Is(err, ErrPayloadLength) {
		anomaly = AnomalyLengthMismatch
	}
	return ValidationError{
		Type:    anomaly,
		Message: fmt.Sprintf("%s payload: %v", name, err),
		Details: map[string]interface{}{"error": err.Error()},
	}
}
