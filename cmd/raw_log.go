// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/retrolink/pkg/capture"
	"github.com/Thermoquad/retrolink/pkg/legacy"
	"github.com/Thermoquad/retrolink/pkg/protov2"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded link traffic in human-readable format",
	Long: `Continuously decode and display link traffic as it arrives.

With --protocol v2 (default) each frame is shown with timestamp, message
type, sequence number and decoded payload; rejected frames are reported with
their reason. With --protocol legacy each completed v1 command is shown.

--capture FILE additionally records every received byte for later replay.

Supports serial, WebSocket and TCP connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().String("protocol", "v2", "Link protocol (v2, legacy)")
	rawLogCmd.Flags().String("capture", "", "Record received bytes to this capture file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial, WebSocket or TCP)
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	protocol := linkProtocol()
	rec, closeCapture, err := openCapture(cfg.Simulator.Capture, protocol, newSessionID())
	if err != nil {
		return err
	}
	defer closeCapture()

	fmt.Printf("Retrolink - Raw Link Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Protocol: %s\n", protocol)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	handle := rawLogV2()
	if protocol == watch.ProtocolLegacy {
		handle = rawLogLegacy()
	}

	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A closed link will not come back
			if isClosed(err) {
				logger.Info("connection closed")
				return nil
			}
			logger.Warn("read error", zap.Error(err))
			continue
		}

		if rec != nil {
			if err := rec.Write(capture.DirectionIn, buf[:n]); err != nil {
				return err
			}
		}
		handle(buf[:n])
	}
}

func rawLogV2() func([]byte) {
	decoder := protov2.NewDecoder()
	return func(data []byte) {
		decoder.Feed(data,
			func(f *protov2.Frame) {
				fmt.Print(protov2.FormatFrame(f))
			},
			func(err error) {
				fmt.Printf("[ERROR] %v\n", err)
			})
	}
}

func rawLogLegacy() func([]byte) {
	parser := legacy.NewParser()
	return func(data []byte) {
		parser.Feed(data, func(c legacy.Command) {
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), legacy.FormatCommand(c))
		})
	}
}
