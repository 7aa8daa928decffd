// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/retrolink/pkg/capture"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

// openCapture creates a capture file when path is set. The returned close
// function is always safe to call.
func openCapture(path string, protocol watch.Protocol, session string) (*capture.Writer, func() error, error) {
	if path == "" {
		return nil, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create capture: %w", err)
	}

	w, err := capture.NewWriter(f, capture.Header{
		Protocol: protocol.String(),
		Session:  session,
		Started:  time.Now(),
	})
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return w, f.Close, nil
}

// linkProtocol returns the configured link protocol
func linkProtocol() watch.Protocol {
	// Validated in loadConfig
	p, _ := watch.ParseProtocol(cfg.Simulator.Protocol)
	return p
}

func newSessionID() string {
	return uuid.NewString()
}
