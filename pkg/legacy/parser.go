// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package legacy

// State is a transaction parser state
type State int

const (
	StateIdle State = iota
	StateWaitCommand
	StateWaitMessage
	StateWaitTime
	StateWaitID
	StateWaitComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitCommand:
		return "WAIT_COMMAND"
	case StateWaitMessage:
		return "WAIT_MESSAGE"
	case StateWaitTime:
		return "WAIT_TIME"
	case StateWaitID:
		return "WAIT_ID"
	case StateWaitComplete:
		return "WAIT_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Parser reconstructs v1 commands from a byte stream.
// Use one Parser per connection; it is not safe for concurrent use.
type Parser struct {
	state   State
	command byte

	// Message bytes are stored at their final slot offsets
	scratch [SlotSize]byte
	cursor  int

	timeFields [TimeFieldCount]byte
	timeIndex  int
}

// NewParser creates a parser in the idle state
func NewParser() *Parser {
	return &Parser{}
}

// Reset drops any partial transaction
func (p *Parser) Reset() {
	*p = Parser{}
}

// State returns the current parser state
func (p *Parser) State() State {
	return p.state
}

// ParseByte processes a single byte. It returns a command when one is
// finalized, and ended=true when the byte closed a transaction.
func (p *Parser) ParseByte(b byte) (cmd Command, ended bool) {
	if b == ReservedByte && p.state != StateWaitMessage {
		return nil, false
	}

	switch p.state {
	case StateIdle:
		if b == StartByte {
			p.state = StateWaitCommand
		}
		return nil, false

	case StateWaitCommand:
		return p.parseCommand(b), false

	case StateWaitMessage:
		return p.parseMessage(b)

	case StateWaitTime:
		return p.parseTime(b)

	case StateWaitID:
		p.state = StateWaitComplete
		if p.command == CmdSetIndicator {
			return SetIndicatorCommand{Enabled: b == IndicatorEnable}, false
		}
		return SetClockStyleCommand{Style: b}, false

	case StateWaitComplete:
		if b == EndByte {
			p.state = StateIdle
			return nil, true
		}
		return nil, false
	}

	p.Reset()
	return nil, false
}

// Feed parses a chunk of bytes, calling fn for every finalized command
func (p *Parser) Feed(data []byte, fn func(Command)) {
	for _, b := range data {
		if cmd, _ := p.ParseByte(b); cmd != nil && fn != nil {
			fn(cmd)
		}
	}
}

func (p *Parser) parseCommand(b byte) Command {
	p.command = b

	switch b {
	case CmdResetEmergency, CmdResetNormal, CmdResetUser:
		p.state = StateWaitComplete
		return ResetCommand{Class: classOf(b)}

	case CmdAddEmergency, CmdAddNormal, CmdAddUser:
		p.scratch = [SlotSize]byte{}
		p.cursor = SlotMgmtOffset
		p.state = StateWaitMessage
		return nil

	case CmdDeleteEmergency, CmdDeleteNormal, CmdDeleteUser:
		p.state = StateWaitComplete
		return DeleteCommand{Class: classOf(b)}

	case CmdSetTime:
		p.timeFields = [TimeFieldCount]byte{}
		p.timeIndex = 0
		p.state = StateWaitTime
		return nil

	case CmdSetClockStyle, CmdSetIndicator:
		p.state = StateWaitID
		return nil

	case CmdPing, CmdAwake, CmdSleep, CmdReboot:
		p.state = StateWaitComplete
		return ControlCommand{Command: b}
	}

	p.state = StateIdle
	return nil
}

func (p *Parser) parseMessage(b byte) (Command, bool) {
	if b == EndByte {
		p.state = StateIdle
		return p.finishMessage(), true
	}

	// User messages have no slot on the device; skip the body
	if p.command == CmdAddUser {
		p.state = StateWaitComplete
		return nil, false
	}

	if p.cursor < SlotSize-1 {
		p.scratch[p.cursor] = b
		p.cursor++
		return nil, false
	}

	// Capacity reached: the byte is dropped and the rest of the body ignored
	p.state = StateIdle
	return p.finishMessage(), false
}

func (p *Parser) finishMessage() Command {
	if p.command == CmdAddUser || p.cursor <= SlotIconOffset {
		return nil
	}

	end := p.cursor
	text := p.scratch[SlotTextOffset:end]
	for i, c := range text {
		if c == 0x00 || c >= TextTerminator {
			text = text[:i]
			break
		}
	}

	return AddMessageCommand{
		Class: classOf(p.command),
		ID:    p.scratch[SlotIDOffset],
		Icon:  p.scratch[SlotIconOffset],
		Text:  append([]byte{}, text...),
	}
}

func (p *Parser) parseTime(b byte) (Command, bool) {
	if p.timeIndex < TimeFieldCount {
		p.timeFields[p.timeIndex] = b
		p.timeIndex++
		return nil, false
	}

	f := p.timeFields
	cmd := SetTimeCommand{Month: f[0], Day: f[1], Weekday: f[2], AmPm: f[3], Hour: f[4], Minute: f[5]}
	if b == EndByte {
		p.state = StateIdle
		return cmd, true
	}
	p.state = StateWaitComplete
	return cmd, false
}

func classOf(cmd byte) SlotClass {
	switch cmd {
	case CmdResetEmergency, CmdAddEmergency, CmdDeleteEmergency:
		return ClassEmergency
	case CmdResetUser, CmdAddUser, CmdDeleteUser:
		return ClassUser
	default:
		return ClassNormal
	}
}
