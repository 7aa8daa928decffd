// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/retrolink/pkg/legacy"
	"github.com/Thermoquad/retrolink/pkg/protov2"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port, WebSocket or TCP link and waits for
any valid v2 frame (passing version, length and CRC checks). Invalid bytes
are ignored. With --protocol legacy it waits for a complete v1 command.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().String("protocol", "v2", "Link protocol (v2, legacy)")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial, WebSocket or TCP)
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	protocol := linkProtocol()

	fmt.Printf("Retrolink - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid %s traffic...\n\n", protocol)

	decoder := protov2.NewDecoder()
	parser := legacy.NewParser()
	buf := make([]byte, 128)

	// Channels for reception
	frameChan := make(chan *protov2.Frame, 1)
	commandChan := make(chan legacy.Command, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		rejected := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				if protocol == watch.ProtocolLegacy {
					if c, _ := parser.ParseByte(buf[i]); c != nil {
						commandChan <- c
						return
					}
					continue
				}

				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					// Ignore decode errors, just count rejected frames
					rejected++
					continue
				}
				if frame != nil {
					if rejected > 0 {
						fmt.Printf("(rejected %d frames before sync)\n", rejected)
					}
					frameChan <- frame
					return
				}
			}
		}
	}()

	// Wait for a frame or timeout
	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", protov2.FormatMessageType(frame.Type()), frame.Type())
		fmt.Printf("  Seq: %d\n", frame.Seq())
		fmt.Printf("  Length: %d bytes\n", frame.Length())
		fmt.Printf("  CRC: 0x%04X\n", frame.CRC())
		os.Exit(0)

	case c := <-commandChan:
		fmt.Printf("SUCCESS: Received valid command\n")
		fmt.Printf("  %s\n", legacy.FormatCommand(c))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
