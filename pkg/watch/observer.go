// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package watch

// Observer receives device events for instrumentation
type Observer interface {
	FrameDecoded(msgType uint8)
	FrameRejected(err error)
	AckSent(result uint8)
	CommandApplied(name string)
	Rendered(mode Mode)
}

type nopObserver struct{}

func (nopObserver) FrameDecoded(uint8)    {}
func (nopObserver) FrameRejected(error)   {}
func (nopObserver) AckSent(uint8)         {}
func (nopObserver) CommandApplied(string) {}
func (nopObserver) Rendered(Mode)         {}
