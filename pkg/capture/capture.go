// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records link traffic to a CBOR sequence file and reads
// it back for replay. A capture is one Header followed by Records.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Capture file identification
const (
	Format  = "retrolink-capture"
	Version = 1
)

var ErrBadFormat = errors.New("not a retrolink capture")

// Direction is relative to the watch
type Direction uint8

const (
	DirectionIn  Direction = 0 // phone to watch
	DirectionOut Direction = 1 // watch to phone
)

func (d Direction) String() string {
	if d == DirectionOut {
		return "out"
	}
	return "in"
}

// Header opens every capture
type Header struct {
	Format   string    `cbor:"1,keyasint"`
	Version  uint      `cbor:"2,keyasint"`
	Protocol string    `cbor:"3,keyasint"`
	Session  string    `cbor:"4,keyasint,omitempty"`
	Started  time.Time `cbor:"5,keyasint"`
}

// Record is one chunk of link bytes
type Record struct {
	_         struct{}      `cbor:",toarray"`
	Offset    time.Duration // since Header.Started
	Direction Direction
	Data      []byte
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor options: %v", err))
	}
	return em
}()

// Writer appends records to a capture. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	started time.Time
	now     func() time.Time
	count   int
}

// NewWriter writes h to w and returns a Writer for the records that follow.
// Format and Version are filled in; a zero Started is set to now.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	h.Format = Format
	h.Version = Version
	if h.Started.IsZero() {
		h.Started = time.Now()
	}

	enc := encMode.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Writer{enc: enc, started: h.Started, now: time.Now}, nil
}

// Write records data travelling in direction dir
func (w *Writer) Write(dir Direction, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := Record{
		Offset:    w.now().Sub(w.started),
		Direction: dir,
		Data:      append([]byte(nil), data...),
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Tap returns an io.Writer that records every write as dir before
// forwarding it to next. A nil next only records.
func (w *Writer) Tap(dir Direction, next io.Writer) io.Writer {
	return &tap{w: w, dir: dir, next: next}
}

type tap struct {
	w    *Writer
	dir  Direction
	next io.Writer
}

func (t *tap) Write(p []byte) (int, error) {
	if err := t.w.Write(t.dir, p); err != nil {
		return 0, err
	}
	if t.next == nil {
		return len(p), nil
	}
	return t.next.Write(p)
}

// Reader iterates the records of a capture
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the capture header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)

	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if h.Format != Format {
		return nil, fmt.Errorf("%w: format %q", ErrBadFormat, h.Format)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read capture record: %w", err)
	}
	return rec, nil
}

// Replay writes every inbound record to dst. With speed > 0 the recorded
// timing is reproduced, scaled by speed; otherwise records are written
// back to back. It returns the number of records replayed.
func Replay(ctx context.Context, r *Reader, dst io.Writer, speed float64) (int, error) {
	start := time.Now()
	n := 0

	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if rec.Direction != DirectionIn {
			continue
		}

		if speed > 0 {
			due := start.Add(time.Duration(float64(rec.Offset) / speed))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return n, ctx.Err()
				}
			}
		} else if ctx.Err() != nil {
			return n, ctx.Err()
		}

		if _, err := dst.Write(rec.Data); err != nil {
			return n, fmt.Errorf("replay record %d: %w", n, err)
		}
		n++
	}
}
