// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/retrolink/pkg/companion"
	"github.com/Thermoquad/retrolink/pkg/protov2"
)

var sendAck bool

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one v2 message to the watch",
	Long: `Send a single v2 message from the phone side.

  retrolink send status connected|disconnected
  retrolink send time [RFC3339]         (default: now)
  retrolink send call "Alice"
  retrolink send notify "Lunch at noon"
  retrolink send ping
  retrolink send script FILE

With --ack the frame requests an ACK and the command fails unless the watch
answers with result OK within the companion ack_timeout.

A script has one command per line using the same words, shell-style quoting
and '#' comments. Prefix a line with "ack" to wait for its ACK, use
"sleep 500ms" to pause, and "legacy ..." lines to send v1 transactions.`,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.PersistentFlags().BoolVar(&sendAck, "ack", false, "Request an ACK and wait for it")
	sendCmd.PersistentFlags().Float64("rate", 20, "Maximum frames per second")
	sendCmd.PersistentFlags().Duration("ack-timeout", 3*time.Second, "How long to wait for an ACK")

	for _, sub := range []struct {
		use, short string
		args       cobra.PositionalArgs
	}{
		{"status connected|disconnected", "Send the phone link status", cobra.ExactArgs(1)},
		{"time [RFC3339]", "Send the wall-clock time", cobra.MaximumNArgs(1)},
		{"call CALLER", "Announce an incoming call", cobra.MinimumNArgs(1)},
		{"notify TEXT", "Send a notification", cobra.MinimumNArgs(1)},
		{"ping", "Send a keepalive", cobra.NoArgs},
	} {
		sendCmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  sub.args,
			RunE:  runSendMessage,
		})
	}

	sendCmd.AddCommand(&cobra.Command{
		Use:   "script FILE",
		Short: "Run a send script",
		Args:  cobra.ExactArgs(1),
		RunE:  runSendScript,
	})
}

// newSender builds a companion sender from the configuration
func newSender(w io.Writer, opts ...companion.SenderOption) *companion.Sender {
	base := []companion.SenderOption{
		companion.WithRateLimit(rate.Limit(cfg.Companion.RateLimit), cfg.Companion.Burst),
		companion.WithAckTimeout(cfg.Companion.AckTimeout),
		companion.WithLogger(logger),
	}
	return companion.NewSender(w, append(base, opts...)...)
}

// withRunner connects, starts reading replies and hands a script runner to fn
func withRunner(ctx context.Context, fn func(ctx context.Context, r *companion.Runner) error) error {
	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Debug("connected", zap.String("connection", connInfo))

	sender := newSender(conn)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sender.ReadLoop(ctx, conn, func(f *protov2.Frame) {
		logger.Info("received", zap.String("frame", protov2.FormatPayload(f)),
			zap.String("type", protov2.FormatMessageType(f.Type())))
	})

	runner := companion.NewRunner(sender)
	runner.Logger = logger
	return fn(ctx, runner)
}

func runSendMessage(cmd *cobra.Command, args []string) error {
	fields := append([]string{cmd.Name()}, args...)
	if sendAck {
		fields = append([]string{"ack"}, fields...)
	}

	return withRunner(cmd.Context(), func(ctx context.Context, r *companion.Runner) error {
		if err := r.RunFields(ctx, fields); err != nil {
			return err
		}
		fmt.Printf("sent %s\n", cmd.Name())
		return nil
	})
}

func runSendScript(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return withRunner(cmd.Context(), func(ctx context.Context, r *companion.Runner) error {
		return r.Run(ctx, f)
	})
}
