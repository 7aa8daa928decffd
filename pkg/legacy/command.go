// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package legacy

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/retrolink/pkg/protov2"
)

// ErrEndInBody marks an add-message header byte that would end the transaction
var ErrEndInBody = errors.New("END byte in message body")

// SlotClass selects which message buffer a command targets
type SlotClass int

const (
	ClassNormal SlotClass = iota
	ClassEmergency
	ClassUser
)

func (c SlotClass) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassEmergency:
		return "emergency"
	case ClassUser:
		return "user"
	default:
		return "unknown"
	}
}

// Command is a finalized v1 command. The concrete types below form a closed set.
type Command interface {
	// Code returns the command byte that produced the command
	Code() byte
}

// ResetCommand clears every slot of one message class
type ResetCommand struct {
	Class SlotClass
}

func (c ResetCommand) Code() byte {
	switch c.Class {
	case ClassEmergency:
		return CmdResetEmergency
	case ClassUser:
		return CmdResetUser
	default:
		return CmdResetNormal
	}
}

// AddMessageCommand adds one entry to a message buffer
type AddMessageCommand struct {
	Class SlotClass
	ID    byte
	Icon  byte
	Text  []byte
}

func (c AddMessageCommand) Code() byte {
	switch c.Class {
	case ClassEmergency:
		return CmdAddEmergency
	case ClassUser:
		return CmdAddUser
	default:
		return CmdAddNormal
	}
}

// SlotBody returns the bytes stored from SlotMgmtOffset onward:
// management byte, id, icon, and up to MaxTextLength text bytes.
// Text is cut on a rune boundary.
func (c AddMessageCommand) SlotBody() []byte {
	text := protov2.TruncateText(string(c.Text), MaxTextLength)
	body := make([]byte, 0, 3+len(text))
	body = append(body, ManagementByte, c.ID, c.Icon)
	return append(body, text...)
}

// Validate reports an ID or icon equal to EndByte. Bodies are not escaped,
// so such a byte would close the transaction before the text.
func (c AddMessageCommand) Validate() error {
	switch byte(EndByte) {
	case c.ID:
		return fmt.Errorf("%w: id 0x%02X", ErrEndInBody, c.ID)
	case c.Icon:
		return fmt.Errorf("%w: icon 0x%02X", ErrEndInBody, c.Icon)
	}
	return nil
}

// DeleteCommand asks the device to delete entries of one class
type DeleteCommand struct {
	Class SlotClass
}

func (c DeleteCommand) Code() byte {
	switch c.Class {
	case ClassEmergency:
		return CmdDeleteEmergency
	case ClassUser:
		return CmdDeleteUser
	default:
		return CmdDeleteNormal
	}
}

// SetTimeCommand carries the six raw time fields. Ranges are not checked.
type SetTimeCommand struct {
	Month   byte
	Day     byte
	Weekday byte // 1..7
	AmPm    byte // 0 AM, 1 PM
	Hour    byte // 1..12
	Minute  byte
}

func (c SetTimeCommand) Code() byte { return CmdSetTime }

// Fields returns the command as its six wire bytes
func (c SetTimeCommand) Fields() [TimeFieldCount]byte {
	return [TimeFieldCount]byte{c.Month, c.Day, c.Weekday, c.AmPm, c.Hour, c.Minute}
}

// SetClockStyleCommand selects the clock face
type SetClockStyleCommand struct {
	Style byte
}

func (c SetClockStyleCommand) Code() byte { return CmdSetClockStyle }

// SetIndicatorCommand toggles the activity indicator
type SetIndicatorCommand struct {
	Enabled bool
}

func (c SetIndicatorCommand) Code() byte { return CmdSetIndicator }

// ControlCommand is ping, awake, sleep or reboot. The device takes no action.
type ControlCommand struct {
	Command byte
}

func (c ControlCommand) Code() byte { return c.Command }
