// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Retrolink - retro smartwatch link tools
//
// Simulates the watch firmware and drives it from the phone side over
// serial, WebSocket or TCP links.

package main

import (
	"os"

	"github.com/Thermoquad/retrolink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
