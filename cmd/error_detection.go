// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/retrolink/pkg/protov2"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track v2 frame errors, malformed payloads and anomalies with statistics.

This command validates each frame and detects:
  - Rejected frames by reason (CRC, bad version, length mismatch, too short,
    oversize)
  - Payload anomalies (TIME out of range, bad STATUS value, invalid UTF-8
    text, non-empty PING, unknown message types)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames
too. ACK frames are always shown.

Legacy v1 transactions carry no checksum, so this command is v2 only; use
raw_log --protocol legacy to watch v1 traffic.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mREJECTED:\033[0m %v\n\n", timestamp, err)
}

// printAck prints an ACK frame with its result
func printAck(frame *protov2.Frame) {
	timestamp := frame.Timestamp().Format("15:04:05.000")
	ack, err := protov2.ParseAck(frame)
	if err != nil {
		return
	}
	color := "1;32"
	if !ack.OK() {
		color = "1;33"
	}
	fmt.Printf("[%s] \033[%smACK:\033[0m %s seq=%d result=%s\n\n", timestamp, color,
		protov2.FormatMessageType(ack.Type), ack.Seq, protov2.FormatAckResult(ack.Result))
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(frame *protov2.Frame, errors []protov2.ValidationError) {
	timestamp := frame.Timestamp().Format("15:04:05.000")
	msgType := protov2.FormatMessageType(frame.Type())

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X) seq=%d\n", timestamp, msgType, frame.Type(), frame.Seq())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case protov2.AnomalyLengthMismatch, protov2.AnomalyOversizePayload:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    Payload: %d bytes\n", frame.Length())

		case protov2.AnomalyInvalidValue:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    Payload: %s\n", protov2.FormatHex(frame.Payload()))

		case protov2.AnomalyInvalidText:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    Bytes: %s\n", protov2.FormatHex(frame.Payload()))

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn Connection, connInfo string) error {
	decoder := protov2.NewDecoder()
	synchronized := false
	rejectedBeforeSync := 0

	// Create TUI program
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	// Link reader goroutine
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if isClosed(err) {
					p.Send(linkClosedMsg{err: err})
					return
				}
				logger.Debug("read error", zap.Error(err))
				continue
			}

			// Process bytes
			decoder.Feed(buf[:n],
				func(frame *protov2.Frame) {
					if !synchronized {
						// First frame! We're now synchronized
						synchronized = true
						p.Send(syncMsg{rejected: rejectedBeforeSync})
					}
					p.Send(linkDataMsg{
						frame:            frame,
						validationErrors: protov2.ValidateFrame(frame),
					})
				},
				func(decodeErr error) {
					if synchronized {
						// We're synced, this is a real error
						p.Send(linkDataMsg{decodeErr: decodeErr})
					} else {
						rejectedBeforeSync++
					}
				})
		}
	}()

	// Run TUI
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}

	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("Retrolink - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := protov2.NewDecoder()
	stats := protov2.NewStatistics()

	// Sync tracking - ignore rejections until first valid frame
	synchronized := false
	rejectedBeforeSync := 0

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking link reads
	linkBuf := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if isClosed(err) {
					readErr <- err
					return
				}
				logger.Debug("read error", zap.Error(err))
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			linkBuf <- data
		}
	}()

	onFrame := func(frame *protov2.Frame) {
		if !synchronized {
			// First frame! We're now synchronized
			synchronized = true
			if rejectedBeforeSync > 0 {
				fmt.Printf("[SYNC] Synchronized after %d rejected frames\n\n", rejectedBeforeSync)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		}

		validationErrors := protov2.ValidateFrame(frame)
		stats.Update(frame, nil, validationErrors)

		// Print frame or error based on mode
		if len(validationErrors) > 0 {
			printValidationErrors(frame, validationErrors)
		} else if frame.Type() == protov2.TypeAck {
			printAck(frame)
		} else if showAll {
			fmt.Print(protov2.FormatFrame(frame))
		}
	}

	onBad := func(decodeErr error) {
		if synchronized {
			stats.Update(nil, decodeErr, nil)
			printDecodeError(decodeErr)
		} else {
			rejectedBeforeSync++
		}
	}

	for {
		select {
		case data := <-linkBuf:
			decoder.Feed(data, onFrame, onBad)

		case err := <-readErr:
			fmt.Printf("\nConnection closed: %v\n\n", err)
			fmt.Print(stats.String())
			return nil

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
