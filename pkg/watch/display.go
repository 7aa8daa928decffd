// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watch

import "fmt"

// Mode is a display mode. Values match the firmware's mode numbers.
type Mode int

const (
	ModeStartup   Mode = 0
	ModeClock     Mode = 1
	ModeEmergency Mode = 2
	ModeMessage   Mode = 3
	ModeIdle      Mode = 11
)

func (m Mode) String() string {
	switch m {
	case ModeStartup:
		return "STARTUP"
	case ModeClock:
		return "CLOCK"
	case ModeEmergency:
		return "EMERGENCY"
	case ModeMessage:
		return "MESSAGE"
	case ModeIdle:
		return "IDLE"
	default:
		return fmt.Sprintf("MODE(%d)", int(m))
	}
}

// MarshalText renders the mode by name in JSON
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// DisplayUpdate is one render request from the scheduler
type DisplayUpdate struct {
	Mode           Mode      `json:"mode"`
	Time           TimeState `json:"time"`
	ClockStyle     byte      `json:"clock_style"`
	Indicator      bool      `json:"indicator"`
	NormalCount    int       `json:"normal_count"`
	EmergencyCount int       `json:"emergency_count"`
	Entry          *Entry    `json:"entry,omitempty"` // EMERGENCY and MESSAGE only
}

// RenderFunc consumes display updates
type RenderFunc func(DisplayUpdate)
