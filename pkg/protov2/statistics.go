// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protov2

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames    uint64
	ValidFrames    uint64
	CRCErrors      uint64
	ShortFrames    uint64
	VersionErrors  uint64
	LengthErrors   uint64
	OversizeFrames uint64
	DecodeErrors   uint64 // rejections not matching a known reason
	Anomalies      uint64
	AcksRequested  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a frame or its decode error
func (s *Statistics) Update(frame *Frame, decodeErr error, validationErrors []ValidationError) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrCRCMismatch):
			s.CRCErrors++
		case errors.Is(decodeErr, ErrTooShort):
			s.ShortFrames++
		case errors.Is(decodeErr, ErrBadVersion):
			s.VersionErrors++
		case errors.Is(decodeErr, ErrLengthMismatch):
			s.LengthErrors++
		case errors.Is(decodeErr, ErrFrameTooLarge):
			s.OversizeFrames++
		default:
			s.DecodeErrors++
		}
		return
	}

	if frame != nil && frame.AckRequested() {
		s.AcksRequested++
	}

	if len(validationErrors) > 0 {
		s.Anomalies++
	} else {
		s.ValidFrames++
	}
}

// Errors returns the number of rejected frames
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.ShortFrames + s.VersionErrors + s.LengthErrors + s.OversizeFrames + s.DecodeErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()+s.Anomalies) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, percent(s.CRCErrors))
	}
	if s.ShortFrames > 0 {
		result += fmt.Sprintf("Short Frames:    %8d (%.1f%%)\n", s.ShortFrames, percent(s.ShortFrames))
	}
	if s.VersionErrors > 0 {
		result += fmt.Sprintf("Bad Version:     %8d (%.1f%%)\n", s.VersionErrors, percent(s.VersionErrors))
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Mismatch: %8d (%.1f%%)\n", s.LengthErrors, percent(s.LengthErrors))
	}
	if s.OversizeFrames > 0 {
		result += fmt.Sprintf("Oversize:        %8d (%.1f%%)\n", s.OversizeFrames, percent(s.OversizeFrames))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, percent(s.DecodeErrors))
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d (%.1f%%)\n", s.Anomalies, percent(s.Anomalies))
	}
	if s.AcksRequested > 0 {
		result += fmt.Sprintf("ACKs Requested:  %8d\n", s.AcksRequested)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
