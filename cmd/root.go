// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/retrolink/internal/config"
	"github.com/Thermoquad/retrolink/internal/logging"
)

var (
	cfgFile string

	// Effective configuration and logger, set before any command runs
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "retrolink",
	Short: "Retro smartwatch link tools and device simulator",
	Long: `Retrolink - tools for the retro smartwatch link protocols.

Simulates the watch firmware (message buffers, clock and display scheduler),
sends notifications and time from the phone side, and decodes or captures
link traffic for both the framed v2 protocol and the legacy v1 transactions.

Connection modes:
  Serial:    --port /dev/rfcomm0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  TCP:       --tcp host:8888

For WebSocket authentication, the password is read from the RETROLINK_PASSWORD
environment variable, or prompted interactively if not set.

Settings can also come from a YAML file (--config or ./retrolink.yaml) and
RETROLINK_* environment variables, e.g. RETROLINK_LINK_PORT.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./retrolink.yaml)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringP("port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().String("username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// TCP
	rootCmd.PersistentFlags().String("tcp", "", "TCP address of a link bridge or simulator (host:port)")

	// Logging
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	rootCmd.PersistentFlags().String("log-file", "", "Also log to this file (rotated)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logging.New(c.Logging)
	if err != nil {
		return err
	}

	cfg = c
	logger = l
	zap.ReplaceGlobals(l)
	return nil
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Sync() }()
	return rootCmd.ExecuteContext(ctx)
}

// tuiLogger writes only to the configured log file, keeping log lines off
// full-screen views
func tuiLogger() (*zap.Logger, error) {
	return logging.NewWithSink(cfg.Logging, zapcore.AddSync(io.Discard))
}
