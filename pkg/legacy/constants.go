// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package legacy implements the v1 transaction protocol used by the watch
// product line.
//
// A transaction is START, a command byte, a command-specific body, and END.
// Bodies are not escaped and carry no checksum. The Parser reconstructs
// commands one byte at a time; the Encode* functions build transactions
// for the sending side.
package legacy

// Transaction framing bytes
const (
	StartByte    = 0xFC
	EndByte      = 0xFD
	ReservedByte = 0xFF // ignored everywhere except inside message bodies
)

// Command bytes
const (
	CmdNone = 0x00

	CmdResetEmergency = 0x05
	CmdResetNormal    = 0x02
	CmdResetUser      = 0x03

	CmdAddEmergency = 0x11
	CmdAddNormal    = 0x12
	CmdAddUser      = 0x13

	CmdDeleteEmergency = 0x21
	CmdDeleteNormal    = 0x22
	CmdDeleteUser      = 0x23

	CmdSetTime                = 0x31
	CmdRequestMovementHistory = 0x32
	CmdSetClockStyle          = 0x33
	CmdSetIndicator           = 0x34

	CmdPing   = 0x51
	CmdAwake  = 0x52
	CmdSleep  = 0x53
	CmdReboot = 0x54
)

// Clock styles
const (
	ClockStyleAnalog = 0x01
	ClockStyleDigit  = 0x02
	ClockStyleMix    = 0x03
)

// IndicatorEnable is the SET_INDICATOR value that turns the indicator on
const IndicatorEnable = 0x01

// Message slot geometry shared with the device ring buffers
const (
	NormalSlotCount    = 7
	EmergencySlotCount = 3
	SlotSize           = 19
	TimeFieldCount     = 6

	SlotFlagOffset = 0
	SlotMgmtOffset = 2
	SlotIDOffset   = 3
	SlotIconOffset = 4
	SlotTextOffset = 5

	// MaxTextLength leaves the last slot byte as a terminator
	MaxTextLength = SlotSize - 1 - SlotTextOffset
)

// ManagementByte leads every add-message body
const ManagementByte = 0xF0

// TextTerminator is the lowest byte value that ends message text
const TextTerminator = 0xF0
