// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package companion implements the phone side of the link: sequenced v2
// sends with ACK tracking, paced writes, and legacy v1 transactions.
package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/retrolink/pkg/protov2"
)

// Defaults
const (
	DefaultAckTimeout   = 3 * time.Second
	DefaultRate         = rate.Limit(20) // writes/sec
	DefaultBurst        = 4
	DefaultTimeInterval = 5 * time.Second
)

var (
	ErrAckTimeout  = errors.New("ACK timeout")
	ErrNegativeAck = errors.New("negative ACK")
)

// Message is a v2 message before a sequence number is assigned
type Message struct {
	Type    uint8
	Payload []byte
}

// StatusMessage reports the phone link state
func StatusMessage(connected bool) Message {
	status := uint8(protov2.StatusDisconnected)
	if connected {
		status = protov2.StatusConnected
	}
	return Message{Type: protov2.TypeStatus, Payload: []byte{status}}
}

// TimeMessage carries the wall-clock fields of t
func TimeMessage(t time.Time) Message {
	return Message{Type: protov2.TypeTime, Payload: protov2.NewTimeFrame(0, t, false).Payload()}
}

// CallMessage announces an incoming call
func CallMessage(caller string) Message {
	return Message{Type: protov2.TypeCall, Payload: protov2.TruncateText(caller, protov2.MaxPayloadSize)}
}

// NotifyMessage carries notification text
func NotifyMessage(text string) Message {
	return Message{Type: protov2.TypeNotify, Payload: protov2.TruncateText(text, protov2.MaxPayloadSize)}
}

// PingMessage is an empty keepalive
func PingMessage() Message {
	return Message{Type: protov2.TypePing}
}

type ackKey struct {
	msgType uint8
	seq     uint8
}

// SenderOption configures a Sender
type SenderOption func(*Sender)

// WithRateLimit paces writes to r per second with the given burst
func WithRateLimit(r rate.Limit, burst int) SenderOption {
	return func(s *Sender) { s.limiter = rate.NewLimiter(r, burst) }
}

// WithAckTimeout sets how long Request waits for an ACK
func WithAckTimeout(d time.Duration) SenderOption {
	return func(s *Sender) { s.ackTimeout = d }
}

// WithLogger sets the sender logger
func WithLogger(logger *zap.Logger) SenderOption {
	return func(s *Sender) { s.logger = logger }
}

// Sender writes v2 frames and legacy transactions to a link. It is safe
// for concurrent use.
type Sender struct {
	w          io.Writer
	limiter    *rate.Limiter
	ackTimeout time.Duration
	logger     *zap.Logger

	mu  sync.Mutex // serializes sequence assignment and writes
	seq uint8

	pendingMu sync.Mutex
	pending   map[ackKey]chan protov2.Ack
}

// NewSender creates a sender writing to w
func NewSender(w io.Writer, opts ...SenderOption) *Sender {
	s := &Sender{
		w:          w,
		limiter:    rate.NewLimiter(DefaultRate, DefaultBurst),
		ackTimeout: DefaultAckTimeout,
		logger:     zap.NewNop(),
		pending:    make(map[ackKey]chan protov2.Ack),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send transmits m without requesting an ACK and returns its sequence number
func (s *Sender) Send(ctx context.Context, m Message) (uint8, error) {
	return s.send(ctx, m, 0, nil)
}

// Request transmits m with FLAG_ACK_REQ and waits for the matching ACK
func (s *Sender) Request(ctx context.Context, m Message) (protov2.Ack, error) {
	ch := make(chan protov2.Ack, 1)
	seq, err := s.send(ctx, m, protov2.FlagAckReq, ch)
	if err != nil {
		return protov2.Ack{}, err
	}
	key := ackKey{msgType: m.Type, seq: seq}
	defer s.forget(key)

	timer := time.NewTimer(s.ackTimeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		if !ack.OK() {
			return ack, fmt.Errorf("%w: %s", ErrNegativeAck, protov2.FormatAckResult(ack.Result))
		}
		return ack, nil
	case <-timer.C:
		return protov2.Ack{}, fmt.Errorf("%w: %s seq=%d", ErrAckTimeout, protov2.FormatMessageType(m.Type), seq)
	case <-ctx.Done():
		return protov2.Ack{}, ctx.Err()
	}
}

func (s *Sender) send(ctx context.Context, m Message, flags uint8, ackCh chan protov2.Ack) (uint8, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq
	s.seq++

	if ackCh != nil {
		s.pendingMu.Lock()
		s.pending[ackKey{msgType: m.Type, seq: seq}] = ackCh
		s.pendingMu.Unlock()
	}

	wire := protov2.Encode(m.Type, flags, seq, m.Payload)
	if _, err := s.w.Write(wire); err != nil {
		if ackCh != nil {
			s.forget(ackKey{msgType: m.Type, seq: seq})
		}
		return seq, fmt.Errorf("write %s: %w", protov2.FormatMessageType(m.Type), err)
	}

	s.logger.Debug("sent",
		zap.String("type", protov2.FormatMessageType(m.Type)),
		zap.Uint8("seq", seq),
		zap.Bool("ack_req", flags&protov2.FlagAckReq != 0),
	)
	return seq, nil
}

func (s *Sender) forget(key ackKey) {
	s.pendingMu.Lock()
	delete(s.pending, key)
	s.pendingMu.Unlock()
}

// WriteLegacy sends one pre-encoded v1 transaction
func (s *Sender) WriteLegacy(ctx context.Context, wire []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(wire); err != nil {
		return fmt.Errorf("write legacy transaction: %w", err)
	}
	s.logger.Debug("sent legacy", zap.Int("bytes", len(wire)))
	return nil
}

// HandleFrame delivers an incoming ACK to its waiting Request. It reports
// whether the frame was consumed.
func (s *Sender) HandleFrame(f *protov2.Frame) bool {
	if f.Type() != protov2.TypeAck {
		return false
	}
	ack, err := protov2.ParseAck(f)
	if err != nil {
		s.logger.Warn("malformed ACK", zap.Error(err))
		return false
	}

	s.pendingMu.Lock()
	ch, ok := s.pending[ackKey{msgType: ack.Type, seq: ack.Seq}]
	s.pendingMu.Unlock()
	if !ok {
		s.logger.Debug("unsolicited ACK", zap.Uint8("seq", ack.Seq))
		return false
	}

	select {
	case ch <- ack:
	default:
	}
	return true
}

// ReadLoop decodes frames from r until it fails or ctx is done. ACKs are
// routed to pending Requests; every other frame goes to onFrame if set.
func (s *Sender) ReadLoop(ctx context.Context, r io.Reader, onFrame func(*protov2.Frame)) error {
	decoder := protov2.NewDecoder()
	buf := make([]byte, 256)

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n], func(f *protov2.Frame) {
				if !s.HandleFrame(f) && onFrame != nil {
					onFrame(f)
				}
			}, func(err error) {
				s.logger.Debug("rejected incoming frame", zap.Error(err))
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// SyncTime sends TIME every interval until ctx is done. Send failures are
// logged and the loop continues.
func (s *Sender) SyncTime(ctx context.Context, interval time.Duration, now func() time.Time) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Send(ctx, TimeMessage(now())); err != nil && ctx.Err() == nil {
			s.logger.Warn("time sync failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
