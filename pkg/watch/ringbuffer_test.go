// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/retrolink/pkg/legacy"
)

func body(id byte, text string) []byte {
	return legacy.AddMessageCommand{ID: id, Icon: 9, Text: []byte(text)}.SlotBody()
}

func TestCursor_StaysInRange(t *testing.T) {
	c := newCursor(3)
	for i := 0; i < 7; i++ {
		c.Advance()
	}
	assert.Equal(t, 1, c.Pos())

	c.Seek(10)
	assert.Equal(t, 0, c.Pos())
	c.Seek(-1)
	assert.Equal(t, 0, c.Pos())
	c.Seek(2)
	assert.Equal(t, 2, c.Pos())
}

func TestMessageRing_Wraparound(t *testing.T) {
	r := NewEmergencyRing()
	for i := 0; i <= r.Capacity(); i++ {
		r.AddMessage(body(byte(i), fmt.Sprintf("m%d", i)))
	}

	assert.Equal(t, r.Capacity(), r.CountMessages())
	assert.Equal(t, 1, r.WritePos())

	var texts []string
	for _, e := range r.Entries() {
		texts = append(texts, e.Text)
	}
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, texts)
}

func TestMessageRing_Init(t *testing.T) {
	r := NewNormalRing()
	r.AddMessage(body(1, "hello"))
	r.AdvanceDisplay()

	r.Init()
	assert.Equal(t, 0, r.CountMessages())
	assert.Equal(t, 0, r.WritePos())
	assert.Equal(t, 0, r.DisplayPos())
	assert.False(t, r.FindNextMessage())
}

func TestMessageRing_FindNextWraps(t *testing.T) {
	r := NewNormalRing()
	r.AddMessage(body(1, "only"))
	for i := 0; i < 4; i++ {
		r.AdvanceDisplay()
	}

	require.True(t, r.FindNextMessage())
	assert.Equal(t, 0, r.DisplayPos())

	entry, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, Entry{Slot: 0, ID: 1, Icon: 9, Text: "only"}, entry)
}

func TestMessageRing_SlotLayout(t *testing.T) {
	r := NewNormalRing()
	r.AddMessage(body(5, strings.Repeat("x", 20)))

	slot := r.slots[0]
	assert.Equal(t, byte(0x01), slot[legacy.SlotFlagOffset])
	assert.Equal(t, byte(legacy.ManagementByte), slot[legacy.SlotMgmtOffset])
	assert.Equal(t, byte(5), slot[legacy.SlotIDOffset])
	assert.Equal(t, byte(0), slot[legacy.SlotSize-1])

	entry, _ := r.Current()
	assert.Len(t, entry.Text, legacy.MaxTextLength)
}

func TestMessageRing_OverwriteClearsOldText(t *testing.T) {
	r := NewMessageRing(1, legacy.SlotSize)
	r.AddMessage(body(1, "a long message"))
	r.AddMessage(body(2, "hi"))

	entry, ok := r.Current()
	require.True(t, ok)
	assert.Equal(t, "hi", entry.Text)
	assert.Equal(t, byte(2), entry.ID)
}

func TestMessageRing_AdvanceToDisabled(t *testing.T) {
	r := NewNormalRing()
	r.AddMessage(body(1, "one"))
	r.AddMessage(body(2, "two"))

	require.True(t, r.FindNextMessage())
	r.AdvanceDisplay()
	assert.True(t, r.CurrentEnabled())
	r.AdvanceDisplay()
	assert.False(t, r.CurrentEnabled())

	r.ResetDisplay()
	assert.Equal(t, 0, r.DisplayPos())
	assert.Equal(t, 2, r.CountMessages())
}
