// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/retrolink/pkg/capture"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

var (
	replayRealtime bool
	replaySpeed    float64
	replayTail     time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Replay a link capture into the watch simulator",
	Long: `Feed the phone-to-watch traffic of a capture file into a fresh simulated
watch and print every display render.

By default the replay runs on a virtual clock: the display is ticked every
--tick between records, so a capture of any length replays instantly and
deterministically. ACKs produced by the simulator are compared with the ones
recorded in the capture.

With --realtime the records are written at their recorded pace (scaled by
--speed) while the simulator ticks on the wall clock.

Examples:
  retrolink simulate --capture session.cap
  retrolink replay session.cap
  retrolink replay session.cap --tail 30s
  retrolink replay session.cap --realtime --speed 4`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Duration("tick", 100*time.Millisecond, "Display tick interval")
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Replay at the recorded pace")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Pace multiplier for --realtime")
	replayCmd.Flags().DurationVar(&replayTail, "tail", 0, "Keep ticking this long after the last record")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	h := r.Header()

	protocol, err := watch.ParseProtocol(h.Protocol)
	if err != nil {
		return fmt.Errorf("capture header: %w", err)
	}

	fmt.Printf("Capture: %s\n", args[0])
	fmt.Printf("Session: %s  Protocol: %s  Started: %s\n\n", h.Session, protocol, h.Started.Format(time.RFC3339))

	var device *watch.Device
	if replayRealtime {
		device, err = replayRealtimeMode(cmd.Context(), r, protocol)
	} else {
		device, err = replayVirtual(r, protocol)
	}
	if err != nil {
		return err
	}

	printSnapshot(device.Snapshot())
	return nil
}

// replayVirtual drives the device on a clock taken from the record offsets
func replayVirtual(r *capture.Reader, protocol watch.Protocol) (*watch.Device, error) {
	tick := cfg.Simulator.TickInterval
	var now time.Duration
	var produced, recorded bytes.Buffer

	device := watch.NewDevice(
		watch.WithProtocol(protocol),
		watch.WithLogger(logger.Named("watch")),
		watch.WithClock(func() time.Duration { return now }),
		watch.WithResponseWriter(&produced),
		watch.WithRenderer(func(u watch.DisplayUpdate) { printRender(now, u) }),
	)

	advance := func(to time.Duration) {
		for now+tick <= to {
			now += tick
			device.Tick()
		}
		now = to
	}

	in := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if rec.Direction == capture.DirectionOut {
			recorded.Write(rec.Data)
			continue
		}

		advance(rec.Offset)
		device.Write(rec.Data)
		in++
	}
	advance(now + replayTail)

	fmt.Printf("\nReplayed %d records over %s\n", in, now)
	if protocol == watch.ProtocolV2 {
		switch {
		case bytes.Equal(produced.Bytes(), recorded.Bytes()):
			fmt.Printf("ACKs: %d bytes, match capture\n", produced.Len())
		default:
			fmt.Printf("ACKs: %d bytes produced, %d bytes recorded (MISMATCH)\n", produced.Len(), recorded.Len())
		}
	}
	return device, nil
}

// replayRealtimeMode paces records on the wall clock
func replayRealtimeMode(ctx context.Context, r *capture.Reader, protocol watch.Protocol) (*watch.Device, error) {
	start := time.Now()
	device := watch.NewDevice(
		watch.WithProtocol(protocol),
		watch.WithLogger(logger.Named("watch")),
		watch.WithRenderer(func(u watch.DisplayUpdate) { printRender(time.Since(start), u) }),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go device.Run(ctx, cfg.Simulator.TickInterval)

	n, err := capture.Replay(ctx, r, device, replaySpeed)
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	if replayTail > 0 {
		select {
		case <-time.After(replayTail):
		case <-ctx.Done():
		}
	}

	fmt.Printf("\nReplayed %d records in %s\n", n, time.Since(start).Round(time.Millisecond))
	return device, nil
}

func printRender(at time.Duration, u watch.DisplayUpdate) {
	line := fmt.Sprintf("%10s  %-9s %s", at.Round(time.Millisecond), u.Mode, u.Time)
	if u.Entry != nil {
		line += fmt.Sprintf("  [%d] %q", u.Entry.Slot, u.Entry.Text)
	}
	fmt.Println(line)
}

func printSnapshot(s watch.Snapshot) {
	fmt.Println()
	fmt.Println("Final state:")
	fmt.Printf("  Mode:      %s\n", s.Mode)
	fmt.Printf("  Clock:     %s\n", s.Time)
	fmt.Printf("  Indicator: %t\n", s.Indicator)
	fmt.Printf("  Link:      %t\n", s.LinkConnected)
	for _, group := range []struct {
		name    string
		entries []watch.Entry
	}{
		{"Emergency", s.Emergency},
		{"Messages", s.Normal},
	} {
		fmt.Printf("  %s (%d):\n", group.name, len(group.entries))
		for _, e := range group.entries {
			fmt.Printf("    [%d] id=%d icon=%d %q\n", e.Slot, e.ID, e.Icon, e.Text)
		}
	}
}
