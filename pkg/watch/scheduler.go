// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watch

import (
	"time"

	"github.com/Thermoquad/retrolink/pkg/legacy"
)

// Display cadence
const (
	StartupDuration          = 2 * time.Second
	ClockDisplayInterval     = 60 * time.Second
	ClockDisplayBudget       = 300 * time.Second // CLOCK falls back to IDLE after this
	EmergencyDisplayInterval = 5 * time.Second
	MessageDisplayInterval   = 3 * time.Second
	IdleDisplayInterval      = 60 * time.Second
	EmergencyEntryDelay      = 2 * time.Second
)

// Scheduler decides what the display shows and when. All times are
// offsets from device power-on.
//
// A Scheduler is not safe for concurrent use; Device serializes access.
type Scheduler struct {
	mode         Mode
	prevDisplay  time.Duration
	nextInterval time.Duration
	modeEntered  time.Duration
	lastClock    time.Duration

	clockStyle byte
	indicator  bool
	time       TimeState

	normal    *MessageRing
	emergency *MessageRing
}

// NewScheduler creates a scheduler in STARTUP at time now
func NewScheduler(normal, emergency *MessageRing, now time.Duration) *Scheduler {
	return &Scheduler{
		mode:        ModeStartup,
		prevDisplay: now,
		modeEntered: now,
		lastClock:   now,
		clockStyle:  legacy.ClockStyleMix,
		indicator:   true,
		time:        NewTimeState(),
		normal:      normal,
		emergency:   emergency,
	}
}

// Mode returns the current display mode
func (s *Scheduler) Mode() Mode {
	return s.mode
}

// Time returns a copy of the clock
func (s *Scheduler) Time() TimeState {
	return s.time
}

// ClockStyle returns the clock face selector
func (s *Scheduler) ClockStyle() byte {
	return s.clockStyle
}

// Indicator reports whether the activity indicator is shown
func (s *Scheduler) Indicator() bool {
	return s.indicator
}

// Tick advances the clock and runs one scheduling step
func (s *Scheduler) Tick(now time.Duration) (DisplayUpdate, bool) {
	if s.time.Advance(now, s.lastClock) {
		s.lastClock = now
	}
	return s.Step(now)
}

// Step evaluates the current mode at time now. It returns the update to
// render, if any, and re-arms the next evaluation.
func (s *Scheduler) Step(now time.Duration) (DisplayUpdate, bool) {
	if now-s.prevDisplay <= s.nextInterval {
		return DisplayUpdate{}, false
	}

	update := s.snapshot()

	switch s.mode {
	case ModeStartup:
		if now-s.modeEntered >= StartupDuration {
			s.enter(ModeClock, now)
			s.arm(now, 0)
			return DisplayUpdate{}, false
		}
		s.arm(now, 0)
		return update, true

	case ModeClock:
		if now-s.modeEntered > ClockDisplayBudget {
			s.enter(ModeIdle, now)
		}
		s.arm(now, ClockDisplayInterval)
		return update, true

	case ModeEmergency:
		entry, ok := s.showNext(s.emergency)
		if !ok {
			s.enterMessage(now)
			s.arm(now, 0)
			return DisplayUpdate{}, false
		}
		update.Entry = &entry
		if !s.emergency.CurrentEnabled() {
			s.emergency.ResetDisplay()
			s.enterMessage(now)
		}
		s.arm(now, EmergencyDisplayInterval)
		return update, true

	case ModeMessage:
		entry, ok := s.showNext(s.normal)
		if !ok {
			s.enter(ModeClock, now)
			s.arm(now, 0)
			return DisplayUpdate{}, false
		}
		update.Entry = &entry
		if !s.normal.CurrentEnabled() {
			s.normal.ResetDisplay()
			s.enter(ModeClock, now)
		}
		s.arm(now, MessageDisplayInterval)
		return update, true

	case ModeIdle:
		s.arm(now, IdleDisplayInterval)
		return update, true
	}

	// Unknown mode: recover through the clock
	s.enter(ModeClock, now)
	s.arm(now, 0)
	return DisplayUpdate{}, false
}

// showNext finds the next enabled entry, reads it and moves past it
func (s *Scheduler) showNext(r *MessageRing) (Entry, bool) {
	if !r.FindNextMessage() {
		return Entry{}, false
	}
	entry, _ := r.Current()
	r.AdvanceDisplay()
	return entry, true
}

// RequestRefresh schedules an evaluation on the next tick
func (s *Scheduler) RequestRefresh(now time.Duration) {
	s.arm(now, 0)
}

// EnterEmergency switches to EMERGENCY from the first slot and evaluates
// after EmergencyEntryDelay
func (s *Scheduler) EnterEmergency(now time.Duration) {
	s.enter(ModeEmergency, now)
	s.emergency.ResetDisplay()
	s.arm(now, EmergencyEntryDelay)
}

// SetTime overwrites the clock and refreshes
func (s *Scheduler) SetTime(raw [6]byte, now time.Duration) {
	s.time.SetTime(raw)
	s.arm(now, 0)
}

// SetClockStyle changes the clock face and refreshes
func (s *Scheduler) SetClockStyle(style byte, now time.Duration) {
	s.clockStyle = style
	s.arm(now, 0)
}

// SetIndicator toggles the activity indicator and refreshes
func (s *Scheduler) SetIndicator(enabled bool, now time.Duration) {
	s.indicator = enabled
	s.arm(now, 0)
}

func (s *Scheduler) enterMessage(now time.Duration) {
	s.enter(ModeMessage, now)
	s.normal.ResetDisplay()
}

func (s *Scheduler) enter(mode Mode, now time.Duration) {
	s.mode = mode
	s.modeEntered = now
}

func (s *Scheduler) arm(now, interval time.Duration) {
	s.prevDisplay = now
	s.nextInterval = interval
}

func (s *Scheduler) snapshot() DisplayUpdate {
	return DisplayUpdate{
		Mode:           s.mode,
		Time:           s.time,
		ClockStyle:     s.clockStyle,
		Indicator:      s.indicator,
		NormalCount:    s.normal.CountMessages(),
		EmergencyCount: s.emergency.CountMessages(),
	}
}
