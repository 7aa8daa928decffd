// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package companion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/Thermoquad/retrolink/pkg/legacy"
)

// Runner executes send scripts. One command per line, shell-style quoting,
// '#' starts a comment:
//
//	status connected
//	ack notify "Lunch at noon"
//	call Alice
//	time now
//	sleep 500ms
//	legacy add emergency 1 2 "Mom"
//	legacy time 2025-03-14T15:09:00Z
//	legacy style digit
//	legacy indicator off
//	legacy reset normal
//
// A leading "ack" waits for the device's ACK before continuing.
type Runner struct {
	Sender *Sender
	Now    func() time.Time
	Logger *zap.Logger
}

// NewRunner creates a runner using the wall clock
func NewRunner(s *Sender) *Runner {
	return &Runner{Sender: s, Now: time.Now, Logger: zap.NewNop()}
}

// Run executes every line of r, stopping at the first error
func (r *Runner) Run(ctx context.Context, script io.Reader) error {
	scanner := bufio.NewScanner(script)
	line := 0
	for scanner.Scan() {
		line++
		if err := r.RunLine(ctx, scanner.Text()); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return scanner.Err()
}

// RunLine executes one script line
func (r *Runner) RunLine(ctx context.Context, text string) error {
	fields, err := shlex.Split(text)
	if err != nil {
		return fmt.Errorf("parse %q: %w", text, err)
	}
	return r.RunFields(ctx, fields)
}

// RunFields executes one already tokenized command
func (r *Runner) RunFields(ctx context.Context, fields []string) error {
	if len(fields) == 0 {
		return nil
	}

	wait := false
	if fields[0] == "ack" {
		wait = true
		fields = fields[1:]
		if len(fields) == 0 {
			return fmt.Errorf("ack needs a command")
		}
	}

	r.Logger.Debug("script", zap.Strings("fields", fields), zap.Bool("ack", wait))

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "sleep":
		d, err := time.ParseDuration(arg(args, 0))
		if err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}

	case "legacy":
		if wait {
			return fmt.Errorf("legacy transactions are not acknowledged")
		}
		wire, err := r.legacyTransaction(args)
		if err != nil {
			return err
		}
		return r.Sender.WriteLegacy(ctx, wire)
	}

	m, err := r.message(cmd, args)
	if err != nil {
		return err
	}
	if wait {
		_, err = r.Sender.Request(ctx, m)
		return err
	}
	_, err = r.Sender.Send(ctx, m)
	return err
}

func (r *Runner) message(cmd string, args []string) (Message, error) {
	switch cmd {
	case "status":
		switch arg(args, 0) {
		case "connected":
			return StatusMessage(true), nil
		case "disconnected":
			return StatusMessage(false), nil
		}
		return Message{}, fmt.Errorf("status: want connected or disconnected")
	case "time":
		t, err := r.parseTime(args)
		if err != nil {
			return Message{}, err
		}
		return TimeMessage(t), nil
	case "call":
		return CallMessage(strings.Join(args, " ")), nil
	case "notify":
		return NotifyMessage(strings.Join(args, " ")), nil
	case "ping":
		return PingMessage(), nil
	}
	return Message{}, fmt.Errorf("unknown command %q", cmd)
}

func (r *Runner) legacyTransaction(args []string) ([]byte, error) {
	switch arg(args, 0) {
	case "add":
		if len(args) < 5 {
			return nil, fmt.Errorf("legacy add: want CLASS ID ICON TEXT")
		}
		class, err := ParseClass(args[1])
		if err != nil {
			return nil, err
		}
		id, err := parseByte(args[2])
		if err != nil {
			return nil, fmt.Errorf("legacy add id: %w", err)
		}
		icon, err := parseByte(args[3])
		if err != nil {
			return nil, fmt.Errorf("legacy add icon: %w", err)
		}
		if err := (legacy.AddMessageCommand{Class: class, ID: id, Icon: icon}).Validate(); err != nil {
			return nil, fmt.Errorf("legacy add: %w", err)
		}
		return legacy.EncodeAddMessage(class, id, icon, strings.Join(args[4:], " ")), nil

	case "time":
		t, err := r.parseTime(args[1:])
		if err != nil {
			return nil, err
		}
		return legacy.EncodeSetTime(t), nil

	case "style":
		style, err := ParseClockStyle(arg(args, 1))
		if err != nil {
			return nil, err
		}
		return legacy.EncodeSetClockStyle(style), nil

	case "indicator":
		switch arg(args, 1) {
		case "on":
			return legacy.EncodeSetIndicator(true), nil
		case "off":
			return legacy.EncodeSetIndicator(false), nil
		}
		return nil, fmt.Errorf("legacy indicator: want on or off")

	case "reset", "delete":
		class, err := ParseClass(arg(args, 1))
		if err != nil {
			return nil, err
		}
		if args[0] == "reset" {
			return legacy.EncodeReset(class), nil
		}
		return legacy.EncodeDelete(class), nil

	case "ping":
		return legacy.EncodeControl(legacy.CmdPing), nil
	case "awake":
		return legacy.EncodeControl(legacy.CmdAwake), nil
	case "sleep":
		return legacy.EncodeControl(legacy.CmdSleep), nil
	case "reboot":
		return legacy.EncodeControl(legacy.CmdReboot), nil
	}
	return nil, fmt.Errorf("unknown legacy command %q", arg(args, 0))
}

func (r *Runner) parseTime(args []string) (time.Time, error) {
	switch v := arg(args, 0); v {
	case "", "now":
		return r.Now(), nil
	default:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("time: %w", err)
		}
		return t, nil
	}
}

// ParseClass converts normal, emergency or user to a slot class
func ParseClass(s string) (legacy.SlotClass, error) {
	switch s {
	case "normal":
		return legacy.ClassNormal, nil
	case "emergency":
		return legacy.ClassEmergency, nil
	case "user":
		return legacy.ClassUser, nil
	}
	return 0, fmt.Errorf("unknown message class %q", s)
}

// ParseClockStyle converts analog, digit or mix to a clock style byte
func ParseClockStyle(s string) (byte, error) {
	switch s {
	case "analog":
		return legacy.ClockStyleAnalog, nil
	case "digit":
		return legacy.ClockStyleDigit, nil
	case "mix":
		return legacy.ClockStyleMix, nil
	}
	return 0, fmt.Errorf("unknown clock style %q", s)
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	return byte(v), err
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
