// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package legacy

import "fmt"

// FormatCommandName returns the human-readable name for a command byte
func FormatCommandName(cmd byte) string {
	switch cmd {
	case CmdNone:
		return "NONE"
	case CmdResetEmergency:
		return "RESET_EMERGENCY_OBJ"
	case CmdResetNormal:
		return "RESET_NORMAL_OBJ"
	case CmdResetUser:
		return "RESET_USER_MESSAGE"
	case CmdAddEmergency:
		return "ADD_EMERGENCY_OBJ"
	case CmdAddNormal:
		return "ADD_NORMAL_OBJ"
	case CmdAddUser:
		return "ADD_USER_MESSAGE"
	case CmdDeleteEmergency:
		return "DELETE_EMERGENCY_OBJ"
	case CmdDeleteNormal:
		return "DELETE_NORMAL_OBJ"
	case CmdDeleteUser:
		return "DELETE_USER_MESSAGE"
	case CmdSetTime:
		return "SET_TIME"
	case CmdRequestMovementHistory:
		return "REQUEST_MOVEMENT_HISTORY"
	case CmdSetClockStyle:
		return "SET_CLOCK_STYLE"
	case CmdSetIndicator:
		return "SET_INDICATOR"
	case CmdPing:
		return "PING"
	case CmdAwake:
		return "AWAKE"
	case CmdSleep:
		return "SLEEP"
	case CmdReboot:
		return "REBOOT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", cmd)
	}
}

// FormatClockStyle returns the name of a clock style
func FormatClockStyle(style byte) string {
	switch style {
	case ClockStyleAnalog:
		return "ANALOG"
	case ClockStyleDigit:
		return "DIGIT"
	case ClockStyleMix:
		return "MIX"
	default:
		return fmt.Sprintf("0x%02X", style)
	}
}

// FormatCommand formats a command into a single human-readable line
func FormatCommand(cmd Command) string {
	name := FormatCommandName(cmd.Code())

	switch c := cmd.(type) {
	case AddMessageCommand:
		return fmt.Sprintf("%s id=%d icon=%d text=%q", name, c.ID, c.Icon, string(c.Text))
	case SetTimeCommand:
		ampm := "AM"
		if c.AmPm != 0 {
			ampm = "PM"
		}
		return fmt.Sprintf("%s %02d/%02d weekday=%d %02d:%02d %s", name, c.Month, c.Day, c.Weekday, c.Hour, c.Minute, ampm)
	case SetClockStyleCommand:
		return fmt.Sprintf("%s style=%s", name, FormatClockStyle(c.Style))
	case SetIndicatorCommand:
		return fmt.Sprintf("%s enabled=%t", name, c.Enabled)
	default:
		return name
	}
}
