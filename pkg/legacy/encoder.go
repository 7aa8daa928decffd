// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package legacy

import (
	"time"

	"github.com/Thermoquad/retrolink/pkg/protov2"
)

// transaction wraps a command byte and body between START and END
func transaction(cmd byte, body ...byte) []byte {
	wire := make([]byte, 0, len(body)+3)
	wire = append(wire, StartByte, cmd)
	wire = append(wire, body...)
	return append(wire, EndByte)
}

// EncodeReset builds a reset transaction for one message class
func EncodeReset(class SlotClass) []byte {
	return transaction(ResetCommand{Class: class}.Code())
}

// EncodeDelete builds a delete transaction for one message class
func EncodeDelete(class SlotClass) []byte {
	return transaction(DeleteCommand{Class: class}.Code())
}

// EncodeAddMessage builds an add-message transaction.
// Text is cut to MaxTextLength bytes on a rune boundary. The device ends
// text at the first byte >= 0xF0, so four-byte UTF-8 sequences are not shown.
// Callers should check the command with AddMessageCommand.Validate first.
func EncodeAddMessage(class SlotClass, id, icon byte, text string) []byte {
	cmd := AddMessageCommand{Class: class, ID: id, Icon: icon, Text: protov2.TruncateText(text, MaxTextLength)}
	return transaction(cmd.Code(), cmd.SlotBody()...)
}

// EncodeSetTime builds a set-time transaction from the wall-clock fields of t
func EncodeSetTime(t time.Time) []byte {
	return EncodeSetTimeFields(TimeFields(t))
}

// EncodeSetTimeFields builds a set-time transaction from raw fields
func EncodeSetTimeFields(cmd SetTimeCommand) []byte {
	f := cmd.Fields()
	return transaction(CmdSetTime, f[:]...)
}

// TimeFields converts a wall-clock time to the device's 12-hour fields.
// Weekday 1 is Sunday.
func TimeFields(t time.Time) SetTimeCommand {
	hour := t.Hour()
	var ampm byte
	if hour >= 12 {
		ampm = 1
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return SetTimeCommand{
		Month:   byte(t.Month()),
		Day:     byte(t.Day()),
		Weekday: byte(t.Weekday()) + 1,
		AmPm:    ampm,
		Hour:    byte(hour),
		Minute:  byte(t.Minute()),
	}
}

// EncodeSetClockStyle builds a set-clock-style transaction
func EncodeSetClockStyle(style byte) []byte {
	return transaction(CmdSetClockStyle, style)
}

// EncodeSetIndicator builds a set-indicator transaction
func EncodeSetIndicator(enabled bool) []byte {
	var v byte
	if enabled {
		v = IndicatorEnable
	}
	return transaction(CmdSetIndicator, v)
}

// EncodeControl builds a ping, awake, sleep or reboot transaction
func EncodeControl(cmd byte) []byte {
	return transaction(cmd)
}
