// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/retrolink/pkg/capture"
	"github.com/Thermoquad/retrolink/pkg/companion"
	"github.com/Thermoquad/retrolink/pkg/protov2"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

var companionSyncTime bool

var companionCmd = &cobra.Command{
	Use:   "companion",
	Short: "Interactive TUI for driving a watch from the phone side",
	Long: `Drive a watch (or 'retrolink simulate') via an interactive terminal UI.

The left panel lists the messages for the selected protocol: STATUS, TIME,
CALL, NOTIFY and PING for v2, or the legacy v1 transactions. Type arguments
into the input field and press Enter to send. ctrl+a toggles waiting for the
watch's ACK (v2 only).

Features:
  - Real-time ACK tracking and link statistics
  - Periodic TIME sync (--sync, every companion.time_interval)
  - Event logging and optional traffic capture (--capture)
  - Automatic reconnection on connection loss

Supports serial, WebSocket and TCP connections.`,
	RunE: runCompanion,
}

func init() {
	rootCmd.AddCommand(companionCmd)
	companionCmd.Flags().String("protocol", "v2", "Link protocol (v2, legacy)")
	companionCmd.Flags().String("capture", "", "Record link traffic to this capture file")
	companionCmd.Flags().Float64("rate", 20, "Maximum frames per second")
	companionCmd.Flags().Duration("ack-timeout", 3*time.Second, "How long to wait for an ACK")
	companionCmd.Flags().BoolVar(&companionSyncTime, "sync", false, "Send TIME periodically (v2)")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	sender   *companion.Sender
	protocol watch.Protocol
	inbound  io.Writer // capture tap for watch-to-phone bytes, may be nil
	log      *zap.Logger
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// Write sends to the current connection
func (cm *connectionManager) Write(p []byte) (int, error) {
	conn := cm.getConn()
	if conn == nil {
		return 0, ErrConnectionClosed
	}
	return conn.Write(p)
}

func runCompanion(cmd *cobra.Command, args []string) error {
	protocol := linkProtocol()

	conn, connInfo, err := OpenConnection(cfg.Link)
	if err != nil {
		return err
	}

	log, err := tuiLogger()
	if err != nil {
		conn.Close()
		return err
	}

	rec, closeCapture, err := openCapture(cfg.Simulator.Capture, protocol, newSessionID())
	if err != nil {
		conn.Close()
		return err
	}
	defer closeCapture()

	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		protocol: protocol,
		log:      log,
	}

	// Captures are recorded from the watch's side of the link
	var out io.Writer = cm
	if rec != nil {
		out = rec.Tap(capture.DirectionIn, cm)
		cm.inbound = rec.Tap(capture.DirectionOut, io.Discard)
	}
	cm.sender = newSender(out, companion.WithLogger(log.Named("sender")))

	runner := companion.NewRunner(cm.sender)
	runner.Logger = log

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	m := initialCompanionModel(ctx, runner, protocol, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.readerLoop(ctx)
	go cm.announce(ctx)

	if companionSyncTime && protocol == watch.ProtocolV2 {
		go cm.sender.SyncTime(ctx, cfg.Companion.TimeInterval, time.Now)
	}

	_, err = p.Run()
	cancel()
	if c := cm.getConn(); c != nil {
		c.Close()
	}
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// announce tells a v2 watch that the phone link is up
func (cm *connectionManager) announce(ctx context.Context) {
	if cm.protocol != watch.ProtocolV2 {
		return
	}
	if _, err := cm.sender.Send(ctx, companion.StatusMessage(true)); err != nil {
		cm.p.Send(eventMsg{message: fmt.Sprintf("Failed to send STATUS: %v", err), isError: true})
		return
	}
	cm.p.Send(eventMsg{message: "Sent STATUS connected"})
}

// readerLoop reads from the connection with automatic reconnection
func (cm *connectionManager) readerLoop(ctx context.Context) {
	for {
		var r io.Reader = cm.getConn()
		if cm.inbound != nil {
			r = io.TeeReader(r, cm.inbound)
		}

		err := cm.sender.ReadLoop(ctx, r, func(f *protov2.Frame) {
			cm.p.Send(companionFrameMsg{frame: f})
		})
		if ctx.Err() != nil {
			return
		}

		cm.log.Warn("connection lost", zap.Error(err))
		cm.p.Send(connectionLostMsg{err: err})

		if !cm.reconnect(ctx) {
			return
		}
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if ctx was canceled during reconnection.
func (cm *connectionManager) reconnect(ctx context.Context) bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection(cfg.Link)
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.log.Info("reconnected", zap.String("connection", connInfo))
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			go cm.announce(ctx)
			return true
		}

		cm.log.Debug("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
