// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watch

import (
	"fmt"
	"time"
)

// TimeUpdateInterval is how much elapsed time advances the clock one minute
const TimeUpdateInterval = 60 * time.Second

var (
	weekdayNames = []string{"", "Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	amPmNames    = []string{"AM", "PM"}
)

// TimeState is the device's 12-hour wall clock. It is set by the companion
// and advanced by elapsed-interval ticks, not by a real-time clock.
// Days wrap at 30.
type TimeState struct {
	Month   byte `json:"month"`
	Day     byte `json:"day"`
	Weekday byte `json:"weekday"` // 1 Sunday .. 7 Saturday
	AmPm    byte `json:"am_pm"`   // 0 AM, 1 PM
	Hour    byte `json:"hour"`
	Minute  byte `json:"minute"`
	Second  byte `json:"second"`
}

// NewTimeState returns the power-on clock, 01/01 Sun 00:00 AM
func NewTimeState() TimeState {
	return TimeState{Month: 1, Day: 1, Weekday: 1}
}

// SetTime overwrites month, day, weekday, am/pm, hour and minute, and
// zeroes seconds. Values are not range checked.
func (t *TimeState) SetTime(raw [6]byte) {
	t.Month = raw[0]
	t.Day = raw[1]
	t.Weekday = raw[2]
	t.AmPm = raw[3]
	t.Hour = raw[4]
	t.Minute = raw[5]
	t.Second = 0
}

// Advance adds one minute if at least TimeUpdateInterval has elapsed since
// lastUpdate. It reports whether the clock moved.
func (t *TimeState) Advance(now, lastUpdate time.Duration) bool {
	if now-lastUpdate < TimeUpdateInterval {
		return false
	}

	t.Minute++
	if t.Minute < 60 {
		return true
	}
	t.Minute = 0
	t.Hour++
	if t.Hour <= 12 {
		return true
	}
	t.Hour = 1
	if t.AmPm == 0 {
		t.AmPm = 1
	} else {
		t.AmPm = 0
	}
	if t.AmPm == 0 {
		t.Weekday++
		if t.Weekday > 7 {
			t.Weekday = 1
		}
		t.Day++
		if t.Day > 30 {
			t.Day = 1
		}
	}
	return true
}

// WeekdayString returns the short weekday name, or "" when out of range
func (t TimeState) WeekdayString() string {
	if t.Weekday >= 1 && int(t.Weekday) < len(weekdayNames) {
		return weekdayNames[t.Weekday]
	}
	return ""
}

// AmPmString returns "AM" or "PM"
func (t TimeState) AmPmString() string {
	if int(t.AmPm) < len(amPmNames) {
		return amPmNames[t.AmPm]
	}
	return "AM"
}

// TimeString formats hour and minute as hh:mm
func (t TimeState) TimeString() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// DateString formats month and day as mm/dd
func (t TimeState) DateString() string {
	return fmt.Sprintf("%02d/%02d", t.Month, t.Day)
}

func (t TimeState) String() string {
	return fmt.Sprintf("%s %s %s %s", t.DateString(), t.WeekdayString(), t.TimeString(), t.AmPmString())
}
