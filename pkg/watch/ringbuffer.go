// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watch

import "github.com/Thermoquad/retrolink/pkg/legacy"

// Cursor is a slot index that always lies in [0, capacity)
type Cursor struct {
	pos      int
	capacity int
}

func newCursor(capacity int) Cursor {
	return Cursor{capacity: capacity}
}

// Pos returns the slot index
func (c Cursor) Pos() int {
	return c.pos
}

// Advance moves to the next slot, wrapping at capacity
func (c *Cursor) Advance() {
	c.pos = (c.pos + 1) % c.capacity
}

// Seek moves to slot i. Out-of-range values land on slot 0.
func (c *Cursor) Seek(i int) {
	if i < 0 || i >= c.capacity {
		i = 0
	}
	c.pos = i
}

// Reset moves to slot 0
func (c *Cursor) Reset() {
	c.pos = 0
}

// Entry is the decoded content of an enabled slot
type Entry struct {
	Slot int    `json:"slot"`
	ID   byte   `json:"id"`
	Icon byte   `json:"icon"`
	Text string `json:"text"`
}

// MessageRing is a fixed-capacity circular log of message slots with
// independent write and display cursors. Writes overwrite the oldest slot
// once the ring laps.
type MessageRing struct {
	slots    [][]byte
	slotSize int
	write    Cursor
	display  Cursor
}

// NewMessageRing creates a ring of count slots of slotSize bytes each
func NewMessageRing(count, slotSize int) *MessageRing {
	r := &MessageRing{
		slots:    make([][]byte, count),
		slotSize: slotSize,
		write:    newCursor(count),
		display:  newCursor(count),
	}
	for i := range r.slots {
		r.slots[i] = make([]byte, slotSize)
	}
	return r
}

// NewNormalRing creates the 7-slot normal message ring
func NewNormalRing() *MessageRing {
	return NewMessageRing(legacy.NormalSlotCount, legacy.SlotSize)
}

// NewEmergencyRing creates the 3-slot emergency message ring
func NewEmergencyRing() *MessageRing {
	return NewMessageRing(legacy.EmergencySlotCount, legacy.SlotSize)
}

// Init zeroes every slot and both cursors
func (r *MessageRing) Init() {
	for _, slot := range r.slots {
		clear(slot)
	}
	r.write.Reset()
	r.display.Reset()
}

// Capacity returns the number of slots
func (r *MessageRing) Capacity() int {
	return len(r.slots)
}

// WritePos returns the write cursor
func (r *MessageRing) WritePos() int {
	return r.write.Pos()
}

// DisplayPos returns the display cursor
func (r *MessageRing) DisplayPos() int {
	return r.display.Pos()
}

// AddMessage stores body (management byte, id, icon, text) in the slot at
// the write cursor, marks it enabled and advances the write cursor.
// Bodies longer than the slot are cut so the last byte stays zero.
func (r *MessageRing) AddMessage(body []byte) {
	slot := r.slots[r.write.Pos()]
	clear(slot)
	slot[legacy.SlotFlagOffset] = 0x01
	copy(slot[legacy.SlotMgmtOffset:r.slotSize-1], body)
	r.write.Advance()
}

// FindNextMessage moves the display cursor to the first enabled slot at or
// after it, wrapping once. Returns false if no slot is enabled.
func (r *MessageRing) FindNextMessage() bool {
	start := r.display.Pos()
	for i := 0; i < len(r.slots); i++ {
		pos := (start + i) % len(r.slots)
		if r.enabled(pos) {
			r.display.Seek(pos)
			return true
		}
	}
	return false
}

// AdvanceDisplay moves the display cursor forward one slot
func (r *MessageRing) AdvanceDisplay() {
	r.display.Advance()
}

// ResetDisplay rewinds the display cursor without touching contents
func (r *MessageRing) ResetDisplay() {
	r.display.Reset()
}

// CurrentEnabled reports whether the slot under the display cursor is enabled
func (r *MessageRing) CurrentEnabled() bool {
	return r.enabled(r.display.Pos())
}

// Current returns the entry under the display cursor
func (r *MessageRing) Current() (Entry, bool) {
	pos := r.display.Pos()
	if !r.enabled(pos) {
		return Entry{}, false
	}
	return r.entry(pos), true
}

// CountMessages returns the number of enabled slots
func (r *MessageRing) CountMessages() int {
	n := 0
	for i := range r.slots {
		if r.enabled(i) {
			n++
		}
	}
	return n
}

// Entries returns every enabled slot in slot order
func (r *MessageRing) Entries() []Entry {
	entries := []Entry{}
	for i := range r.slots {
		if r.enabled(i) {
			entries = append(entries, r.entry(i))
		}
	}
	return entries
}

func (r *MessageRing) enabled(pos int) bool {
	return r.slots[pos][legacy.SlotFlagOffset] != 0x00
}

func (r *MessageRing) entry(pos int) Entry {
	slot := r.slots[pos]
	text := slot[legacy.SlotTextOffset : r.slotSize-1]
	for i, c := range text {
		if c == 0x00 || c >= legacy.TextTerminator {
			text = text[:i]
			break
		}
	}
	return Entry{
		Slot: pos,
		ID:   slot[legacy.SlotIDOffset],
		Icon: slot[legacy.SlotIconOffset],
		Text: string(text),
	}
}
