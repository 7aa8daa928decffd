// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package companion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/retrolink/pkg/legacy"
	"github.com/Thermoquad/retrolink/pkg/protov2"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

// ackingWriter answers every frame that requests an ACK
type ackingWriter struct {
	sender *Sender
	result uint8
	frames []*protov2.Frame
}

func (w *ackingWriter) Write(p []byte) (int, error) {
	protov2.NewDecoder().Feed(p, func(f *protov2.Frame) {
		w.frames = append(w.frames, f)
		if f.AckRequested() {
			w.sender.HandleFrame(protov2.NewAckFrame(0, f.Type(), f.Seq(), w.result))
		}
	}, nil)
	return len(p), nil
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func decodeFrames(t *testing.T, data []byte) []*protov2.Frame {
	t.Helper()
	var frames []*protov2.Frame
	protov2.NewDecoder().Feed(data, func(f *protov2.Frame) {
		frames = append(frames, f)
	}, func(err error) {
		t.Fatalf("bad frame: %v", err)
	})
	return frames
}

func unlimited() SenderOption {
	return WithRateLimit(rate.Inf, 1)
}

func TestSender_SendAssignsSequence(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(&buf, unlimited())

	for i := 0; i < 3; i++ {
		seq, err := s.Send(context.Background(), PingMessage())
		require.NoError(t, err)
		assert.Equal(t, uint8(i), seq)
	}

	frames := decodeFrames(t, buf.Bytes())
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint8(i), f.Seq())
		assert.False(t, f.AckRequested())
	}
}

func TestSender_SequenceWraps(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(&buf, unlimited())
	s.seq = 255

	seq, err := s.Send(context.Background(), PingMessage())
	require.NoError(t, err)
	assert.Equal(t, uint8(255), seq)

	seq, err = s.Send(context.Background(), PingMessage())
	require.NoError(t, err)
	assert.Equal(t, uint8(0), seq)
}

func TestSender_RequestAcked(t *testing.T) {
	w := &ackingWriter{result: protov2.AckResultOK}
	s := NewSender(w, unlimited())
	w.sender = s

	ack, err := s.Request(context.Background(), NotifyMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint8(protov2.TypeNotify), ack.Type)

	require.Len(t, w.frames, 1)
	assert.True(t, w.frames[0].AckRequested())
	assert.Empty(t, s.pending)
}

func TestSender_RequestNegativeAck(t *testing.T) {
	w := &ackingWriter{result: protov2.AckResultInvalid}
	s := NewSender(w, unlimited())
	w.sender = s

	_, err := s.Request(context.Background(), PingMessage())
	assert.ErrorIs(t, err, ErrNegativeAck)
}

func TestSender_RequestTimeout(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(&buf, unlimited(), WithAckTimeout(20*time.Millisecond))

	_, err := s.Request(context.Background(), StatusMessage(true))
	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.Empty(t, s.pending)
}

func TestSender_RequestCanceled(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(&buf, unlimited(), WithAckTimeout(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Request(ctx, PingMessage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSender_WriteError(t *testing.T) {
	s := NewSender(writerFunc(func([]byte) (int, error) {
		return 0, errors.New("broken pipe")
	}), unlimited())

	_, err := s.Request(context.Background(), PingMessage())
	assert.Error(t, err)
	assert.Empty(t, s.pending)
}

func TestSender_HandleFrame(t *testing.T) {
	s := NewSender(&bytes.Buffer{}, unlimited())

	assert.False(t, s.HandleFrame(protov2.NewPingFrame(1, false)))
	assert.False(t, s.HandleFrame(protov2.NewAckFrame(1, protov2.TypePing, 9, protov2.AckResultOK)))
	assert.False(t, s.HandleFrame(protov2.NewFrame(protov2.TypeAck, 0, 1, []byte{1})))
}

func TestSender_ReadLoop(t *testing.T) {
	s := NewSender(&bytes.Buffer{}, unlimited())

	var stream []byte
	stream = append(stream, protov2.EncodeFrame(protov2.NewAckFrame(0, protov2.TypePing, 3, 0))...)
	stream = append(stream, protov2.EncodeFrame(protov2.NewNotifyFrame(4, "from device", false))...)

	var got []*protov2.Frame
	err := s.ReadLoop(context.Background(), bytes.NewReader(stream), func(f *protov2.Frame) {
		got = append(got, f)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint8(protov2.TypeAck), got[0].Type())
	assert.Equal(t, uint8(protov2.TypeNotify), got[1].Type())
}

func TestSender_SyncTime(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(&buf, unlimited())
	fixed := time.Date(2025, time.June, 1, 8, 30, 0, 0, time.UTC)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	require.NoError(t, s.SyncTime(ctx, 10*time.Millisecond, func() time.Time { return fixed }))

	frames := decodeFrames(t, buf.Bytes())
	require.NotEmpty(t, frames)
	got, err := protov2.ParseTime(frames[0])
	require.NoError(t, err)
	assert.True(t, got.Equal(fixed))
}

func TestSender_AgainstDevice(t *testing.T) {
	var s *Sender
	decoder := protov2.NewDecoder()
	device := watch.NewDevice(
		watch.WithProtocol(watch.ProtocolV2),
		watch.WithResponseWriter(writerFunc(func(p []byte) (int, error) {
			decoder.Feed(p, func(f *protov2.Frame) { s.HandleFrame(f) }, nil)
			return len(p), nil
		})),
	)
	s = NewSender(device, unlimited())

	ctx := context.Background()
	_, err := s.Request(ctx, StatusMessage(true))
	require.NoError(t, err)
	_, err = s.Request(ctx, CallMessage("Alice"))
	require.NoError(t, err)
	_, err = s.Request(ctx, NotifyMessage("Standup in 5"))
	require.NoError(t, err)

	snap := device.Snapshot()
	assert.True(t, snap.LinkConnected)
	assert.Equal(t, watch.ModeEmergency, snap.Mode)
	require.Len(t, snap.Emergency, 1)
	assert.Equal(t, "Alice", snap.Emergency[0].Text)
	require.Len(t, snap.Normal, 1)
	assert.Equal(t, "Standup in 5", snap.Normal[0].Text)
}

// ============================================================
// Script Tests
// ============================================================

func newTestRunner(w *bytes.Buffer) *Runner {
	r := NewRunner(NewSender(w, unlimited()))
	r.Now = func() time.Time { return time.Date(2025, time.March, 14, 15, 9, 0, 0, time.UTC) }
	return r
}

func TestRunner_V2Script(t *testing.T) {
	var buf bytes.Buffer
	script := `
# connect and greet
status connected
time now
call "Alice Smith"
notify Lunch at noon
ping
sleep 1ms
status disconnected
`
	require.NoError(t, newTestRunner(&buf).Run(context.Background(), strings.NewReader(script)))

	frames := decodeFrames(t, buf.Bytes())
	var types []uint8
	for _, f := range frames {
		types = append(types, f.Type())
	}
	assert.Equal(t, []uint8{
		protov2.TypeStatus, protov2.TypeTime, protov2.TypeCall,
		protov2.TypeNotify, protov2.TypePing, protov2.TypeStatus,
	}, types)
	assert.Equal(t, "Alice Smith", string(frames[2].Payload()))
	assert.Equal(t, "Lunch at noon", string(frames[3].Payload()))
	assert.Equal(t, []byte{protov2.StatusDisconnected}, frames[5].Payload())
}

func TestRunner_LegacyScript(t *testing.T) {
	var buf bytes.Buffer
	script := `legacy add emergency 1 0x02 "Mom"
legacy time now
legacy style digit
legacy indicator off
legacy reset normal
legacy ping`
	require.NoError(t, newTestRunner(&buf).Run(context.Background(), strings.NewReader(script)))

	var cmds []legacy.Command
	legacy.NewParser().Feed(buf.Bytes(), func(c legacy.Command) { cmds = append(cmds, c) })

	assert.Equal(t, []legacy.Command{
		legacy.AddMessageCommand{Class: legacy.ClassEmergency, ID: 1, Icon: 2, Text: []byte("Mom")},
		legacy.SetTimeCommand{Month: 3, Day: 14, Weekday: 6, AmPm: 1, Hour: 3, Minute: 9},
		legacy.SetClockStyleCommand{Style: legacy.ClockStyleDigit},
		legacy.SetIndicatorCommand{Enabled: false},
		legacy.ResetCommand{Class: legacy.ClassNormal},
		legacy.ControlCommand{Command: legacy.CmdPing},
	}, cmds)
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"unknown command", "ping\nexplode", "line 2"},
		{"bad status", "status maybe", "connected or disconnected"},
		{"bad class", "legacy reset everything", "unknown message class"},
		{"bad style", "legacy style fancy", "unknown clock style"},
		{"short add", "legacy add normal 1", "CLASS ID ICON TEXT"},
		{"end byte id", "legacy add normal 0xFD 1 hello", "END byte"},
		{"acked legacy", "ack legacy ping", "not acknowledged"},
		{"bad time", "time yesterday", "time:"},
		{"unterminated quote", `notify "oops`, "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := newTestRunner(&buf).Run(context.Background(), strings.NewReader(tt.script))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunner_AckPrefix(t *testing.T) {
	w := &ackingWriter{result: protov2.AckResultOK}
	s := NewSender(w, unlimited())
	w.sender = s

	require.NoError(t, NewRunner(s).RunLine(context.Background(), `ack notify "hi"`))
	require.Len(t, w.frames, 1)
	assert.True(t, w.frames[0].AckRequested())
}
