// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package legacy

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"
)

// parseAll feeds data through a fresh parser and collects commands
func parseAll(data []byte) ([]Command, *Parser) {
	p := NewParser()
	var cmds []Command
	p.Feed(data, func(c Command) { cmds = append(cmds, c) })
	return cmds, p
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ============================================================
// Parser Tests
// ============================================================

func TestParser_Commands(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want []Command
	}{
		{
			name: "add normal",
			wire: EncodeAddMessage(ClassNormal, 7, 3, "Hello"),
			want: []Command{AddMessageCommand{Class: ClassNormal, ID: 7, Icon: 3, Text: []byte("Hello")}},
		},
		{
			name: "add emergency",
			wire: EncodeAddMessage(ClassEmergency, 1, 2, "Mom"),
			want: []Command{AddMessageCommand{Class: ClassEmergency, ID: 1, Icon: 2, Text: []byte("Mom")}},
		},
		{
			name: "add with empty text",
			wire: EncodeAddMessage(ClassNormal, 4, 5, ""),
			want: []Command{AddMessageCommand{Class: ClassNormal, ID: 4, Icon: 5, Text: []byte{}}},
		},
		{
			name: "text ends at null",
			wire: []byte{StartByte, CmdAddNormal, ManagementByte, 1, 2, 'H', 'i', 0x00, 'x', EndByte},
			want: []Command{AddMessageCommand{Class: ClassNormal, ID: 1, Icon: 2, Text: []byte("Hi")}},
		},
		{
			name: "text ends at high byte",
			wire: []byte{StartByte, CmdAddNormal, ManagementByte, 1, 2, 'H', 'i', 0xF1, 'x', EndByte},
			want: []Command{AddMessageCommand{Class: ClassNormal, ID: 1, Icon: 2, Text: []byte("Hi")}},
		},
		{
			name: "reserved byte kept in message body",
			wire: []byte{StartByte, CmdAddNormal, ManagementByte, 1, 2, 'o', 'k', ReservedByte, 'x', EndByte},
			want: []Command{AddMessageCommand{Class: ClassNormal, ID: 1, Icon: 2, Text: []byte("ok")}},
		},
		{
			name: "body without id and icon",
			wire: []byte{StartByte, CmdAddNormal, ManagementByte, 1, EndByte},
			want: nil,
		},
		{
			name: "add user message is discarded",
			wire: []byte{StartByte, CmdAddUser, ManagementByte, 1, 2, 'a', EndByte},
			want: nil,
		},
		{
			name: "reset emergency",
			wire: EncodeReset(ClassEmergency),
			want: []Command{ResetCommand{Class: ClassEmergency}},
		},
		{
			name: "reset normal with trailing noise",
			wire: []byte{StartByte, CmdResetNormal, 0xAA, 0xBB, EndByte},
			want: []Command{ResetCommand{Class: ClassNormal}},
		},
		{
			name: "delete user",
			wire: EncodeDelete(ClassUser),
			want: []Command{DeleteCommand{Class: ClassUser}},
		},
		{
			name: "set time",
			wire: EncodeSetTimeFields(SetTimeCommand{Month: 12, Day: 25, Weekday: 4, AmPm: 1, Hour: 11, Minute: 59}),
			want: []Command{SetTimeCommand{Month: 12, Day: 25, Weekday: 4, AmPm: 1, Hour: 11, Minute: 59}},
		},
		{
			name: "set time skips reserved bytes",
			wire: []byte{StartByte, CmdSetTime, 1, ReservedByte, 2, 3, 4, 5, 6, EndByte},
			want: []Command{SetTimeCommand{Month: 1, Day: 2, Weekday: 3, AmPm: 4, Hour: 5, Minute: 6}},
		},
		{
			name: "clock style",
			wire: EncodeSetClockStyle(ClockStyleDigit),
			want: []Command{SetClockStyleCommand{Style: ClockStyleDigit}},
		},
		{
			name: "indicator on",
			wire: EncodeSetIndicator(true),
			want: []Command{SetIndicatorCommand{Enabled: true}},
		},
		{
			name: "indicator off",
			wire: EncodeSetIndicator(false),
			want: []Command{SetIndicatorCommand{Enabled: false}},
		},
		{
			name: "ping",
			wire: EncodeControl(CmdPing),
			want: []Command{ControlCommand{Command: CmdPing}},
		},
		{
			name: "unrecognized command",
			wire: []byte{StartByte, CmdRequestMovementHistory, EndByte},
			want: nil,
		},
		{
			name: "noise outside transactions",
			wire: concat([]byte{0x00, EndByte, 0x41}, EncodeSetClockStyle(ClockStyleAnalog), []byte{0x99}),
			want: []Command{SetClockStyleCommand{Style: ClockStyleAnalog}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, p := parseAll(tt.wire)
			if !reflect.DeepEqual(cmds, tt.want) {
				t.Errorf("commands = %#v, want %#v", cmds, tt.want)
			}
			if p.State() != StateIdle {
				t.Errorf("State() = %v, want IDLE", p.State())
			}
		})
	}
}

func TestParser_MessageCapacity(t *testing.T) {
	wire := []byte{StartByte, CmdAddEmergency, ManagementByte, 1, 2}
	wire = append(wire, []byte("ABCDEFGHIJKLMNOPQRST")...)
	wire = append(wire, EndByte)
	wire = append(wire, EncodeSetClockStyle(ClockStyleMix)...)

	cmds, p := parseAll(wire)
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	add, ok := cmds[0].(AddMessageCommand)
	if !ok {
		t.Fatalf("first command = %T, want AddMessageCommand", cmds[0])
	}
	if string(add.Text) != "ABCDEFGHIJKLM" {
		t.Errorf("Text = %q, want %q", add.Text, "ABCDEFGHIJKLM")
	}
	if len(add.Text) != MaxTextLength {
		t.Errorf("len(Text) = %d, want %d", len(add.Text), MaxTextLength)
	}
	if _, ok := cmds[1].(SetClockStyleCommand); !ok {
		t.Errorf("second command = %T, want SetClockStyleCommand", cmds[1])
	}
	if p.State() != StateIdle {
		t.Errorf("State() = %v, want IDLE", p.State())
	}
}

func TestParser_ResetFinalizesBeforeEnd(t *testing.T) {
	p := NewParser()

	if cmd, _ := p.ParseByte(StartByte); cmd != nil {
		t.Fatalf("START produced %v", cmd)
	}
	cmd, ended := p.ParseByte(CmdResetEmergency)
	if cmd != (ResetCommand{Class: ClassEmergency}) || ended {
		t.Errorf("ParseByte(reset) = %v, %v", cmd, ended)
	}
	if p.State() != StateWaitComplete {
		t.Errorf("State() = %v, want WAIT_COMPLETE", p.State())
	}
	if _, ended := p.ParseByte(EndByte); !ended {
		t.Error("END should close the transaction")
	}
}

func TestParser_TimeSeventhByte(t *testing.T) {
	p := NewParser()
	for _, b := range []byte{StartByte, CmdSetTime, 1, 2, 3, 0, 4, 5} {
		if cmd, _ := p.ParseByte(b); cmd != nil {
			t.Fatalf("early command %v", cmd)
		}
	}

	cmd, ended := p.ParseByte(0x00)
	if _, ok := cmd.(SetTimeCommand); !ok || ended {
		t.Fatalf("seventh byte = %v, %v; want SetTimeCommand, false", cmd, ended)
	}
	if p.State() != StateWaitComplete {
		t.Errorf("State() = %v, want WAIT_COMPLETE", p.State())
	}
	if _, ended := p.ParseByte(EndByte); !ended {
		t.Error("END should close the transaction")
	}
}

func TestParser_Reset(t *testing.T) {
	p := NewParser()
	for _, b := range []byte{StartByte, CmdAddNormal, ManagementByte, 1} {
		p.ParseByte(b)
	}
	if p.State() != StateWaitMessage {
		t.Fatalf("State() = %v, want WAIT_MESSAGE", p.State())
	}

	p.Reset()
	if p.State() != StateIdle {
		t.Errorf("State() after Reset = %v, want IDLE", p.State())
	}

	var cmds []Command
	p.Feed(EncodeAddMessage(ClassNormal, 9, 9, "new"), func(c Command) { cmds = append(cmds, c) })
	if len(cmds) != 1 || string(cmds[0].(AddMessageCommand).Text) != "new" {
		t.Errorf("commands after Reset = %v", cmds)
	}
}

func TestParser_RandomBytesNeverPanic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := NewParser()
	data := make([]byte, 4096)
	rng.Read(data)

	p.Feed(data, func(c Command) {
		if add, ok := c.(AddMessageCommand); ok && len(add.Text) > MaxTextLength {
			t.Fatalf("text of %d bytes exceeds slot", len(add.Text))
		}
	})
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeAddMessage_Layout(t *testing.T) {
	got := EncodeAddMessage(ClassNormal, 0x10, 0x20, "Hi")
	want := []byte{StartByte, CmdAddNormal, ManagementByte, 0x10, 0x20, 'H', 'i', EndByte}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeAddMessage() = % X, want % X", got, want)
	}
}

func TestEncodeAddMessage_Truncates(t *testing.T) {
	got := EncodeAddMessage(ClassNormal, 1, 1, strings.Repeat("é", 10))
	// 6 two-byte runes fit in 13 bytes
	text := got[5 : len(got)-1]
	if len(text) != 12 {
		t.Errorf("text length = %d, want 12", len(text))
	}
}

func TestAddMessageCommand_SlotBodyRuneBoundary(t *testing.T) {
	cmd := AddMessageCommand{ID: 1, Icon: 2, Text: []byte("aaaaaaaaaaaaé")}
	got := cmd.SlotBody()
	want := append([]byte{ManagementByte, 1, 2}, "aaaaaaaaaaaa"...)
	if !bytes.Equal(got, want) {
		t.Errorf("SlotBody() = % X, want % X", got, want)
	}
}

func TestAddMessageCommand_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     AddMessageCommand
		wantErr bool
	}{
		{"plain", AddMessageCommand{ID: 1, Icon: 2}, false},
		{"start byte id", AddMessageCommand{ID: StartByte, Icon: 2}, false},
		{"end byte id", AddMessageCommand{ID: EndByte, Icon: 2}, true},
		{"end byte icon", AddMessageCommand{ID: 1, Icon: EndByte}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEndInBody) {
				t.Errorf("Validate() error = %v, want ErrEndInBody", err)
			}
		})
	}
}

func TestTimeFields(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
		want SetTimeCommand
	}{
		{
			name: "afternoon",
			time: time.Date(2025, time.March, 14, 15, 9, 0, 0, time.UTC), // Friday
			want: SetTimeCommand{Month: 3, Day: 14, Weekday: 6, AmPm: 1, Hour: 3, Minute: 9},
		},
		{
			name: "midnight",
			time: time.Date(2025, time.March, 16, 0, 30, 0, 0, time.UTC), // Sunday
			want: SetTimeCommand{Month: 3, Day: 16, Weekday: 1, AmPm: 0, Hour: 12, Minute: 30},
		},
		{
			name: "noon",
			time: time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC), // Saturday
			want: SetTimeCommand{Month: 3, Day: 15, Weekday: 7, AmPm: 1, Hour: 12, Minute: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeFields(tt.time); got != tt.want {
				t.Errorf("TimeFields() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{ResetCommand{Class: ClassNormal}, "RESET_NORMAL_OBJ"},
		{AddMessageCommand{Class: ClassEmergency, ID: 1, Icon: 2, Text: []byte("Mom")}, `ADD_EMERGENCY_OBJ id=1 icon=2 text="Mom"`},
		{SetTimeCommand{Month: 3, Day: 14, Weekday: 6, AmPm: 1, Hour: 3, Minute: 9}, "SET_TIME 03/14 weekday=6 03:09 PM"},
		{SetClockStyleCommand{Style: ClockStyleMix}, "SET_CLOCK_STYLE style=MIX"},
		{SetIndicatorCommand{Enabled: true}, "SET_INDICATOR enabled=true"},
		{ControlCommand{Command: CmdReboot}, "REBOOT"},
	}

	for _, tt := range tests {
		if got := FormatCommand(tt.cmd); got != tt.want {
			t.Errorf("FormatCommand(%#v) = %q, want %q", tt.cmd, got, tt.want)
		}
	}

	if got := FormatCommandName(0x77); got != "UNKNOWN(0x77)" {
		t.Errorf("FormatCommandName(0x77) = %q", got)
	}
}
