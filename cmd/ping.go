// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/retrolink/pkg/companion"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by sending acknowledged PING frames",
	Long: `Send v2 PING frames with the ACK request flag and wait for each ACK.

This command tests bidirectional traffic with a watch or simulator. Every
PING carries a new sequence number; the round trip is measured from the
write to the matching ACK.

This is useful for verifying:
  - The transport is established
  - The watch is decoding v2 frames (version, length, CRC)
  - ACKs make it back to the phone side

Exit codes:
  0 - All pings acknowledged
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	// Open connection (serial, WebSocket or TCP)
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Retrolink - Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	sender := companion.NewSender(conn,
		companion.WithAckTimeout(time.Duration(pingTimeout)*time.Second),
		companion.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go sender.ReadLoop(ctx, conn, nil)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		ack, err := sender.Request(ctx, companion.PingMessage())
		switch {
		case err == nil:
			fmt.Printf("ACK seq=%d, rtt=%v\n", ack.Seq, time.Since(startTime).Round(time.Millisecond))
			successCount++
		case errors.Is(err, companion.ErrAckTimeout):
			fmt.Printf("TIMEOUT (no ACK in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d ACKs received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
