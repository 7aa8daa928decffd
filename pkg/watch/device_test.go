// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/retrolink/pkg/legacy"
	"github.com/Thermoquad/retrolink/pkg/protov2"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

type recordingObserver struct {
	mu       sync.Mutex
	frames   []uint8
	rejected []error
	acks     []uint8
	commands []string
	renders  []Mode
}

func (o *recordingObserver) FrameDecoded(t uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, t)
}

func (o *recordingObserver) FrameRejected(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, err)
}

func (o *recordingObserver) AckSent(result uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acks = append(o.acks, result)
}

func (o *recordingObserver) CommandApplied(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, name)
}

func (o *recordingObserver) Rendered(m Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.renders = append(o.renders, m)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("link down") }

func newTestDevice(t *testing.T, protocol Protocol, opts ...Option) (*Device, *fakeClock, *bytes.Buffer, *recordingObserver) {
	t.Helper()
	clock := &fakeClock{}
	responses := &bytes.Buffer{}
	obs := &recordingObserver{}
	all := []Option{
		WithProtocol(protocol),
		WithClock(clock.Now),
		WithResponseWriter(responses),
		WithObserver(obs),
	}
	return NewDevice(append(all, opts...)...), clock, responses, obs
}

// decodeAcks decodes every ACK frame written to the response buffer
func decodeAcks(t *testing.T, buf *bytes.Buffer) []protov2.Ack {
	t.Helper()
	var acks []protov2.Ack
	protov2.NewDecoder().Feed(buf.Bytes(), func(f *protov2.Frame) {
		ack, err := protov2.ParseAck(f)
		require.NoError(t, err)
		acks = append(acks, ack)
	}, func(err error) {
		t.Fatalf("bad ACK frame: %v", err)
	})
	return acks
}

func TestParseProtocol(t *testing.T) {
	p, err := ParseProtocol("v2")
	require.NoError(t, err)
	assert.Equal(t, ProtocolV2, p)

	p, err = ParseProtocol("legacy")
	require.NoError(t, err)
	assert.Equal(t, ProtocolLegacy, p)

	_, err = ParseProtocol("v3")
	assert.Error(t, err)
}

func TestDevice_LegacyStream(t *testing.T) {
	d, _, _, obs := newTestDevice(t, ProtocolLegacy)

	var stream []byte
	stream = append(stream, legacy.EncodeSetTimeFields(legacy.SetTimeCommand{Month: 3, Day: 14, Weekday: 6, AmPm: 1, Hour: 3, Minute: 9})...)
	stream = append(stream, legacy.EncodeAddMessage(legacy.ClassNormal, 1, 2, "lunch")...)
	stream = append(stream, legacy.EncodeAddMessage(legacy.ClassEmergency, 3, 4, "Mom")...)
	stream = append(stream, legacy.EncodeSetClockStyle(legacy.ClockStyleDigit)...)

	n, err := d.Write(stream)
	require.NoError(t, err)
	assert.Equal(t, len(stream), n)

	snap := d.Snapshot()
	assert.Equal(t, ModeEmergency, snap.Mode)
	assert.Equal(t, "03/14 Fri 03:09 PM", snap.Time.String())
	assert.Equal(t, byte(legacy.ClockStyleDigit), snap.ClockStyle)
	assert.Equal(t, []Entry{{Slot: 0, ID: 1, Icon: 2, Text: "lunch"}}, snap.Normal)
	assert.Equal(t, []Entry{{Slot: 0, ID: 3, Icon: 4, Text: "Mom"}}, snap.Emergency)
	assert.Equal(t, []string{"SET_TIME", "ADD_NORMAL_OBJ", "ADD_EMERGENCY_OBJ", "SET_CLOCK_STYLE"}, obs.commands)
}

func TestDevice_LegacyStreamSplitAcrossWrites(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolLegacy)

	wire := legacy.EncodeAddMessage(legacy.ClassNormal, 1, 2, "split")
	for _, b := range wire {
		_, err := d.Write([]byte{b})
		require.NoError(t, err)
	}

	assert.Len(t, d.Snapshot().Normal, 1)
}

func TestDevice_LegacyEndByteInHeaderDropsMessage(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolLegacy)

	cmd := legacy.AddMessageCommand{Class: legacy.ClassNormal, ID: legacy.EndByte, Icon: 1}
	require.ErrorIs(t, cmd.Validate(), legacy.ErrEndInBody)

	_, _ = d.Write(legacy.EncodeAddMessage(legacy.ClassNormal, legacy.EndByte, 1, "hello"))
	assert.Empty(t, d.Snapshot().Normal)
}

func TestDevice_LegacyReset(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolLegacy)

	_, _ = d.Write(legacy.EncodeAddMessage(legacy.ClassNormal, 1, 2, "a"))
	_, _ = d.Write(legacy.EncodeAddMessage(legacy.ClassEmergency, 1, 2, "b"))
	_, _ = d.Write(legacy.EncodeReset(legacy.ClassNormal))

	snap := d.Snapshot()
	assert.Empty(t, snap.Normal)
	assert.Len(t, snap.Emergency, 1)

	_, _ = d.Write(legacy.EncodeReset(legacy.ClassEmergency))
	assert.Empty(t, d.Snapshot().Emergency)
}

func TestDevice_EmptyTextIgnored(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolLegacy)

	d.Apply(legacy.AddMessageCommand{Class: legacy.ClassEmergency, ID: 1, Icon: 1})

	snap := d.Snapshot()
	assert.Empty(t, snap.Emergency)
	assert.Equal(t, ModeStartup, snap.Mode)
}

func TestDevice_V2NotifyWithAck(t *testing.T) {
	d, _, responses, obs := newTestDevice(t, ProtocolV2)

	_, err := d.Write(protov2.EncodeFrame(protov2.NewNotifyFrame(42, "meeting at 3", true)))
	require.NoError(t, err)

	acks := decodeAcks(t, responses)
	require.Len(t, acks, 1)
	assert.Equal(t, protov2.Ack{Type: protov2.TypeNotify, Seq: 42, Result: protov2.AckResultOK}, acks[0])

	snap := d.Snapshot()
	assert.Equal(t, []Entry{{Slot: 0, ID: 42, Icon: IconNotify, Text: "meeting at 3"}}, snap.Normal)
	assert.Equal(t, []uint8{protov2.TypeNotify}, obs.frames)
	assert.Equal(t, []uint8{protov2.AckResultOK}, obs.acks)
}

func TestDevice_V2NotifyTruncatedOnRuneBoundary(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolV2)

	// the two-byte rune straddles the 13-byte slot limit
	_, err := d.Write(protov2.EncodeFrame(protov2.NewNotifyFrame(5, "aaaaaaaaaaaaé", false)))
	require.NoError(t, err)

	snap := d.Snapshot()
	require.Len(t, snap.Normal, 1)
	assert.Equal(t, "aaaaaaaaaaaa", snap.Normal[0].Text)
	assert.True(t, utf8.ValidString(snap.Normal[0].Text))
}

func TestDevice_V2CallEntersEmergency(t *testing.T) {
	d, _, responses, _ := newTestDevice(t, ProtocolV2)

	_, err := d.Write(protov2.EncodeFrame(protov2.NewCallFrame(1, "Alice", false)))
	require.NoError(t, err)

	assert.Zero(t, responses.Len())
	snap := d.Snapshot()
	assert.Equal(t, ModeEmergency, snap.Mode)
	require.Len(t, snap.Emergency, 1)
	assert.Equal(t, "Alice", snap.Emergency[0].Text)
	assert.Equal(t, byte(IconCall), snap.Emergency[0].Icon)
}

func TestDevice_V2Time(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolV2)

	ts := time.Date(2025, time.March, 14, 15, 9, 26, 0, time.UTC)
	_, err := d.Write(protov2.EncodeFrame(protov2.NewTimeFrame(1, ts, false)))
	require.NoError(t, err)

	assert.Equal(t, "03/14 Fri 03:09 PM", d.Snapshot().Time.String())
}

func TestDevice_V2AckResults(t *testing.T) {
	tests := []struct {
		name  string
		frame *protov2.Frame
		want  uint8
	}{
		{"ping", protov2.NewPingFrame(3, true), protov2.AckResultOK},
		{"bad time", protov2.NewFrame(protov2.TypeTime, protov2.FlagAckReq, 4, []byte{0xE9, 0x07, 13, 1, 0, 0, 0}), protov2.AckResultInvalid},
		{"unknown type", protov2.NewFrame(0x42, protov2.FlagAckReq, 5, nil), protov2.AckResultUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, responses, _ := newTestDevice(t, ProtocolV2)
			_, err := d.Write(protov2.EncodeFrame(tt.frame))
			require.NoError(t, err)

			acks := decodeAcks(t, responses)
			require.Len(t, acks, 1)
			assert.Equal(t, tt.frame.Type(), acks[0].Type)
			assert.Equal(t, tt.frame.Seq(), acks[0].Seq)
			assert.Equal(t, tt.want, acks[0].Result)
		})
	}
}

func TestDevice_V2AckSequenceAdvances(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolV2)

	first := d.HandleFrame(protov2.NewPingFrame(10, true))
	second := d.HandleFrame(protov2.NewPingFrame(11, true))
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Seq()+1, second.Seq())

	assert.Nil(t, d.HandleFrame(protov2.NewAckFrame(0, protov2.TypePing, 1, protov2.AckResultOK)))
}

func TestDevice_V2Status(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolV2)

	d.HandleFrame(protov2.NewStatusFrame(0, protov2.StatusConnected, true))
	assert.True(t, d.Snapshot().LinkConnected)

	d.HandleFrame(protov2.NewStatusFrame(1, protov2.StatusDisconnected, true))
	assert.False(t, d.Snapshot().LinkConnected)
}

func TestDevice_V2RejectedFrames(t *testing.T) {
	d, _, responses, obs := newTestDevice(t, ProtocolV2)

	wire := protov2.EncodeFrame(protov2.NewNotifyFrame(1, "x", true))
	wire[6] = 'y' // payload byte, CRC no longer matches

	_, err := d.Write(wire)
	require.NoError(t, err)
	assert.Zero(t, responses.Len())
	require.Len(t, obs.rejected, 1)
	assert.ErrorIs(t, obs.rejected[0], protov2.ErrCRCMismatch)
}

func TestDevice_ResponseWriterError(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolV2, WithResponseWriter(failingWriter{}))

	_, err := d.Write(protov2.EncodeFrame(protov2.NewPingFrame(1, true)))
	assert.Error(t, err)
}

func TestDevice_TickRenders(t *testing.T) {
	var rendered []DisplayUpdate
	d, clock, _, obs := newTestDevice(t, ProtocolLegacy, WithRenderer(func(u DisplayUpdate) {
		rendered = append(rendered, u)
	}))

	d.Tick()
	assert.Empty(t, rendered)

	clock.Advance(100 * time.Millisecond)
	d.Tick()
	require.Len(t, rendered, 1)
	assert.Equal(t, ModeStartup, rendered[0].Mode)
	assert.Equal(t, []Mode{ModeStartup}, obs.renders)

	snap := d.Snapshot()
	require.NotNil(t, snap.LastUpdate)
	assert.Equal(t, ModeStartup, snap.LastUpdate.Mode)
}

func TestDevice_ResetLink(t *testing.T) {
	d, _, _, _ := newTestDevice(t, ProtocolLegacy)

	wire := legacy.EncodeAddMessage(legacy.ClassNormal, 1, 2, "dropped")
	_, _ = d.Write(wire[:5])
	d.ResetLink()
	_, _ = d.Write(wire[5:])

	assert.Empty(t, d.Snapshot().Normal)
}

func TestDevice_Run(t *testing.T) {
	ticks := make(chan struct{}, 16)
	d := NewDevice(WithRenderer(func(DisplayUpdate) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 10*time.Millisecond) }()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("no render within 2s")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
