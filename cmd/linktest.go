// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/retrolink/pkg/protov2"
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test raw link connection stability",
	Long: `Test the link connection without sending any protocol data.

This command connects and just waits, logging any data received or errors
encountered. Received bytes are also run through the v2 decoder so the
summary shows how much of the traffic was well-formed. With --keepalive a
PING frame is sent every interval to keep idle bridges from dropping the link.

Useful for debugging Bluetooth serial dropouts or bridge connection stability.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runLinkTest,
}

var (
	linkTestDuration  int
	linkTestKeepalive time.Duration
)

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
	linkTestCmd.Flags().DurationVar(&linkTestKeepalive, "keepalive", 0, "Send a v2 PING at this interval (0 disables)")
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial, WebSocket or TCP)
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Link Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	// Start a goroutine to read from the connection
	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
		}
	}()

	decoder := protov2.NewDecoder()
	frames, rejected := 0, 0
	var pingSeq uint8

	var keepalive <-chan time.Time
	if linkTestKeepalive > 0 {
		ticker := time.NewTicker(linkTestKeepalive)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	// Run for the specified duration
	started := time.Now()
	endTime := started.Add(time.Duration(linkTestDuration) * time.Second)
	bytesReceived := 0
	chunksReceived := 0

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			bytesReceived += len(data)
			chunksReceived++
			fmt.Printf("[%s] Received %d bytes: %x\n",
				time.Now().Format("15:04:05.000"), len(data), data)
			decoder.Feed(data,
				func(*protov2.Frame) { frames++ },
				func(error) { rejected++ })

		case <-keepalive:
			if _, err := conn.Write(protov2.EncodeFrame(protov2.NewPingFrame(pingSeq, false))); err != nil {
				fmt.Printf("[%s] Keepalive failed: %v\n", time.Now().Format("15:04:05.000"), err)
			}
			pingSeq++

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			fmt.Printf("\n--- Test Results ---\n")
			fmt.Printf("Duration: %v\n", time.Since(started).Round(time.Millisecond))
			fmt.Printf("Chunks received: %d\n", chunksReceived)
			fmt.Printf("Bytes received: %d\n", bytesReceived)
			fmt.Printf("Frames: %d valid, %d rejected\n", frames, rejected)
			fmt.Printf("Result: FAILED (connection error)\n")
			os.Exit(1)

		case <-time.After(1 * time.Second):
			// Just a heartbeat to show the test is running
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %d seconds\n", linkTestDuration)
	fmt.Printf("Chunks received: %d\n", chunksReceived)
	fmt.Printf("Bytes received: %d\n", bytesReceived)
	fmt.Printf("Frames: %d valid, %d rejected\n", frames, rejected)
	fmt.Printf("Result: PASSED (connection stable)\n")

	return nil
}
