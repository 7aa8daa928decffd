// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package watch models the receiving device: message ring buffers, the
// interval-driven clock, and the display scheduler, fed by either the v1
// transaction parser or the v2 stream decoder.
package watch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/retrolink/pkg/legacy"
	"github.com/Thermoquad/retrolink/pkg/protov2"
)

// Icons used for messages that arrive over protocol v2
const (
	IconCall   = 0x01
	IconNotify = 0x02
)

// Protocol selects how link bytes are interpreted
type Protocol int

const (
	ProtocolLegacy Protocol = iota
	ProtocolV2
)

func (p Protocol) String() string {
	if p == ProtocolV2 {
		return "v2"
	}
	return "legacy"
}

// ParseProtocol converts "legacy" or "v2" to a Protocol
func ParseProtocol(s string) (Protocol, error) {
	switch s {
	case "legacy", "v1":
		return ProtocolLegacy, nil
	case "v2":
		return ProtocolV2, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q (want legacy or v2)", s)
	}
}

// Option configures a Device
type Option func(*Device)

// WithProtocol selects the link protocol. The default is ProtocolLegacy.
func WithProtocol(p Protocol) Option {
	return func(d *Device) { d.protocol = p }
}

// WithLogger sets the device logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Device) { d.logger = logger }
}

// WithObserver installs instrumentation hooks
func WithObserver(o Observer) Option {
	return func(d *Device) { d.observer = o }
}

// WithRenderer sets the render callback. It runs outside the device lock.
func WithRenderer(fn RenderFunc) Option {
	return func(d *Device) { d.render = fn }
}

// WithResponseWriter sets where v2 ACK frames are written
func WithResponseWriter(w io.Writer) Option {
	return func(d *Device) { d.responses = w }
}

// WithClock replaces the uptime source, used by tests and replays
func WithClock(now func() time.Duration) Option {
	return func(d *Device) { d.now = now }
}

// Snapshot is a point-in-time copy of device state
type Snapshot struct {
	Protocol      string         `json:"protocol"`
	Uptime        time.Duration  `json:"uptime_ns"`
	Mode          Mode           `json:"mode"`
	Time          TimeState      `json:"time"`
	ClockStyle    byte           `json:"clock_style"`
	Indicator     bool           `json:"indicator"`
	LinkConnected bool           `json:"link_connected"`
	Normal        []Entry        `json:"normal"`
	Emergency     []Entry        `json:"emergency"`
	LastUpdate    *DisplayUpdate `json:"last_update,omitempty"`
}

// Device is a simulated watch. Link bytes go in through Write; Tick or Run
// drives the display. One mutex guards all state, so ingestion and ticking
// may run on different goroutines.
type Device struct {
	mu sync.Mutex

	protocol      Protocol
	parser        *legacy.Parser
	decoder       *protov2.Decoder
	normal        *MessageRing
	emergency     *MessageRing
	scheduler     *Scheduler
	linkConnected bool
	lastUpdate    *DisplayUpdate
	txSeq         uint8

	now       func() time.Duration
	render    RenderFunc
	responses io.Writer
	logger    *zap.Logger
	observer  Observer
}

// NewDevice creates a powered-on device in STARTUP mode
func NewDevice(opts ...Option) *Device {
	start := time.Now()
	d := &Device{
		parser:    legacy.NewParser(),
		decoder:   protov2.NewDecoder(),
		normal:    NewNormalRing(),
		emergency: NewEmergencyRing(),
		now:       func() time.Duration { return time.Since(start) },
		logger:    zap.NewNop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.scheduler = NewScheduler(d.normal, d.emergency, d.now())
	return d
}

// Protocol returns the link protocol
func (d *Device) Protocol() Protocol {
	return d.protocol
}

// Write feeds link bytes to the parser or decoder. It never fails on
// malformed input; only a failing response writer returns an error.
func (d *Device) Write(p []byte) (int, error) {
	var responses [][]byte

	d.mu.Lock()
	now := d.now()
	if d.protocol == ProtocolV2 {
		d.decoder.Feed(p,
			func(f *protov2.Frame) {
				if ack := d.handleFrameLocked(f, now); ack != nil {
					responses = append(responses, protov2.EncodeFrame(ack))
				}
			},
			func(err error) {
				d.observer.FrameRejected(err)
				d.logger.Debug("frame rejected", zap.Error(err))
			})
	} else {
		d.parser.Feed(p, func(cmd legacy.Command) {
			d.applyLocked(cmd, now)
		})
	}
	d.mu.Unlock()

	if d.responses != nil {
		for _, r := range responses {
			if _, err := d.responses.Write(r); err != nil {
				return len(p), fmt.Errorf("write ACK: %w", err)
			}
		}
	}
	return len(p), nil
}

// Apply executes one legacy command
func (d *Device) Apply(cmd legacy.Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.applyLocked(cmd, d.now())
}

// HandleFrame executes one v2 frame and returns the ACK to send, if any
func (d *Device) HandleFrame(f *protov2.Frame) *protov2.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handleFrameLocked(f, d.now())
}

// ResetLink drops partial link state, e.g. after a reconnect
func (d *Device) ResetLink() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parser.Reset()
	d.decoder.Reset()
}

// Tick runs one scheduler step and renders its update, if any
func (d *Device) Tick() {
	d.mu.Lock()
	update, ok := d.scheduler.Tick(d.now())
	if ok {
		u := update
		d.lastUpdate = &u
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	d.observer.Rendered(update.Mode)
	if d.render != nil {
		d.render(update)
	}
}

// Run ticks the device every interval until ctx is done
func (d *Device) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Snapshot copies the current device state
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := Snapshot{
		Protocol:      d.protocol.String(),
		Uptime:        d.now(),
		Mode:          d.scheduler.Mode(),
		Time:          d.scheduler.Time(),
		ClockStyle:    d.scheduler.ClockStyle(),
		Indicator:     d.scheduler.Indicator(),
		LinkConnected: d.linkConnected,
		Normal:        d.normal.Entries(),
		Emergency:     d.emergency.Entries(),
	}
	if d.lastUpdate != nil {
		u := *d.lastUpdate
		snap.LastUpdate = &u
	}
	return snap
}

func (d *Device) applyLocked(cmd legacy.Command, now time.Duration) {
	name := legacy.FormatCommandName(cmd.Code())
	d.logger.Debug("command", zap.String("command", legacy.FormatCommand(cmd)))

	switch c := cmd.(type) {
	case legacy.AddMessageCommand:
		if len(c.Text) == 0 {
			d.logger.Debug("ignoring message without text", zap.String("command", name))
			return
		}
		switch c.Class {
		case legacy.ClassEmergency:
			d.emergency.AddMessage(c.SlotBody())
			d.scheduler.EnterEmergency(now)
		case legacy.ClassNormal:
			d.normal.AddMessage(c.SlotBody())
			d.scheduler.RequestRefresh(now)
		default:
			return
		}

	case legacy.ResetCommand:
		switch c.Class {
		case legacy.ClassEmergency:
			d.emergency.Init()
		case legacy.ClassNormal:
			d.normal.Init()
		}

	case legacy.SetTimeCommand:
		d.scheduler.SetTime(c.Fields(), now)

	case legacy.SetClockStyleCommand:
		d.scheduler.SetClockStyle(c.Style, now)

	case legacy.SetIndicatorCommand:
		d.scheduler.SetIndicator(c.Enabled, now)

	case legacy.DeleteCommand, legacy.ControlCommand:
		// Accepted, no effect on the display
	}

	d.observer.CommandApplied(name)
}

func (d *Device) handleFrameLocked(f *protov2.Frame, now time.Duration) *protov2.Frame {
	d.observer.FrameDecoded(f.Type())
	d.logger.Debug("frame",
		zap.String("type", protov2.FormatMessageType(f.Type())),
		zap.Uint8("seq", f.Seq()),
		zap.Int("len", int(f.Length())),
	)

	result := d.dispatchLocked(f, now)

	if !f.AckRequested() || f.Type() == protov2.TypeAck {
		return nil
	}
	ack := protov2.NewAckFrame(d.txSeq, f.Type(), f.Seq(), result)
	d.txSeq++
	d.observer.AckSent(result)
	return ack
}

func (d *Device) dispatchLocked(f *protov2.Frame, now time.Duration) uint8 {
	if errs := protov2.ValidateFrame(f); len(errs) > 0 {
		for _, e := range errs {
			if e.Type == protov2.AnomalyUnknownType {
				return protov2.AckResultUnsupported
			}
		}
		d.logger.Warn("invalid frame payload",
			zap.String("type", protov2.FormatMessageType(f.Type())),
			zap.String("error", errs[0].Message),
		)
		return protov2.AckResultInvalid
	}

	switch f.Type() {
	case protov2.TypeStatus:
		status, _ := protov2.ParseStatus(f)
		d.linkConnected = status == protov2.StatusConnected

	case protov2.TypeTime:
		t, _ := protov2.ParseTime(f)
		d.applyLocked(legacy.TimeFields(t), now)

	case protov2.TypeCall:
		d.applyLocked(legacy.AddMessageCommand{
			Class: legacy.ClassEmergency,
			ID:    f.Seq(),
			Icon:  IconCall,
			Text:  f.Payload(),
		}, now)

	case protov2.TypeNotify:
		d.applyLocked(legacy.AddMessageCommand{
			Class: legacy.ClassNormal,
			ID:    f.Seq(),
			Icon:  IconNotify,
			Text:  f.Payload(),
		}, now)
	}

	return protov2.AckResultOK
}
