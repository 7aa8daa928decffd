// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/retrolink/internal/httpserver"
	"github.com/Thermoquad/retrolink/internal/metrics"
	"github.com/Thermoquad/retrolink/pkg/capture"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the watch firmware simulator",
	Long: `Simulate the watch: message buffers, clock and display scheduler.

The simulator listens on TCP (--listen, default :8888) and serves one phone
connection at a time. With --port, --url or --tcp it attaches to that link
instead. Received bytes are decoded as v2 frames or legacy v1 transactions
(--protocol); ACKs are written back for v2 frames that request them.

The display is ticked every --tick (default 100ms). Renders are shown in a
terminal LCD view (--renderer tui) or as log lines (--renderer log).

Optional extras:
  --http         status API (/healthz, /readyz, /api/display, /api/buffers)
                 and Prometheus metrics on --http-addr
  --capture FILE record all link traffic for 'retrolink replay'`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().String("listen", ":8888", "TCP listen address when no link is given")
	simulateCmd.Flags().String("protocol", "v2", "Link protocol (v2, legacy)")
	simulateCmd.Flags().Duration("tick", 100*time.Millisecond, "Display tick interval")
	simulateCmd.Flags().String("renderer", "tui", "Display renderer (tui, log)")
	simulateCmd.Flags().String("capture", "", "Record link traffic to this capture file")
	simulateCmd.Flags().Bool("http", false, "Serve the status API and metrics")
	simulateCmd.Flags().String("http-addr", ":8080", "Status API listen address")
}

// linkWriter forwards ACKs to the current link client, if any
type linkWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *linkWriter) Set(w io.Writer) {
	l.mu.Lock()
	l.w = w
	l.mu.Unlock()
}

func (l *linkWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return len(p), nil
	}
	return l.w.Write(p)
}

// countingWriter counts link bytes before handing them to the device
type countingWriter struct {
	w io.Writer
	m *metrics.DeviceMetrics
}

func (c countingWriter) Write(p []byte) (int, error) {
	c.m.BytesReceived.Add(float64(len(p)))
	return c.w.Write(p)
}

// simulator ties the device to its link, renderer and status server
type simulator struct {
	device  *watch.Device
	metrics *metrics.DeviceMetrics
	input   io.Writer
	out     *linkWriter
	program *tea.Program
	ready   atomic.Bool
	log     *zap.Logger
}

func runSimulate(cmd *cobra.Command, args []string) error {
	protocol := linkProtocol()
	tui := cfg.Simulator.Renderer == "tui"

	// Keep log lines off the LCD view; a log file still gets them
	log := logger
	if tui {
		l, err := tuiLogger()
		if err != nil {
			return err
		}
		log = l
	}

	rec, closeCapture, err := openCapture(cfg.Simulator.Capture, protocol, newSessionID())
	if err != nil {
		return err
	}
	defer closeCapture()

	reg := metrics.NewRegistry()
	sim := &simulator{
		metrics: metrics.NewDeviceMetrics(reg),
		out:     &linkWriter{},
		log:     log,
	}

	var responses io.Writer = sim.out
	if rec != nil {
		responses = rec.Tap(capture.DirectionOut, sim.out)
	}

	// The program is created below, before the device first ticks
	render := func(u watch.DisplayUpdate) { logRender(log, u) }
	if tui {
		render = func(u watch.DisplayUpdate) { sim.program.Send(renderMsg(u)) }
	}

	sim.device = watch.NewDevice(
		watch.WithProtocol(protocol),
		watch.WithLogger(log.Named("watch")),
		watch.WithObserver(sim.metrics),
		watch.WithRenderer(render),
		watch.WithResponseWriter(responses),
	)
	if tui {
		sim.program = tea.NewProgram(newDisplayModel(protocol.String(), sim.device.Snapshot), tea.WithAltScreen())
	}

	sim.input = countingWriter{w: sim.device, m: sim.metrics}
	if rec != nil {
		sim.input = countingWriter{w: rec.Tap(capture.DirectionIn, sim.device), m: sim.metrics}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sim.device.Run(ctx, cfg.Simulator.TickInterval)
	})

	if cfg.HTTP.Enabled {
		var handler http.Handler
		if cfg.Metrics.Enabled {
			handler = metrics.Handler(reg)
		}
		srv := httpserver.New(cfg.HTTP, sim.device, cfg.Metrics.Path, handler, sim.ready.Load, log)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return sim.serveLink(ctx)
	})

	if sim.program != nil {
		g.Go(func() error {
			_, err := sim.program.Run()
			cancel()
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			sim.program.Quit()
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveLink attaches to the configured link, or accepts TCP clients one at a
// time until ctx is done
func (s *simulator) serveLink(ctx context.Context) error {
	if HasLink(cfg.Link) {
		conn, connInfo, err := OpenConnection(cfg.Link)
		if err != nil {
			return err
		}
		s.ready.Store(true)
		s.runSession(ctx, conn, connInfo)
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Simulator.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Simulator.Listen, err)
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.ready.Store(true)
	s.log.Info("simulator listening", zap.String("addr", ln.Addr().String()))
	s.event(fmt.Sprintf("Listening on %s", ln.Addr()), false)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.runSession(ctx, conn, conn.RemoteAddr().String())
	}
}

// runSession feeds one link client to the device until it disconnects
func (s *simulator) runSession(ctx context.Context, conn Connection, remote string) {
	id := newSessionID()
	log := s.log.With(zap.String("session", id), zap.String("remote", remote))

	s.metrics.SessionStarted()
	defer s.metrics.SessionEnded()

	s.device.ResetLink()
	s.out.Set(conn)
	defer s.out.Set(nil)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	log.Info("link connected")
	s.event(fmt.Sprintf("Connected: %s (session %s)", remote, id[:8]), false)

	started := time.Now()
	n, err := io.Copy(s.input, conn)
	if err != nil && !isClosed(err) && ctx.Err() == nil {
		log.Warn("link error", zap.Error(err))
	}

	log.Info("link disconnected", zap.Int64("bytes", n), zap.Duration("duration", time.Since(started)))
	s.event(fmt.Sprintf("Disconnected: %s after %d bytes", remote, n), false)
}

func (s *simulator) event(message string, isError bool) {
	if s.program != nil {
		s.program.Send(eventMsg{message: message, isError: isError})
	}
}

// logRender prints one display update as a log line
func logRender(log *zap.Logger, u watch.DisplayUpdate) {
	fields := []zap.Field{
		zap.Stringer("mode", u.Mode),
		zap.String("time", u.Time.String()),
		zap.Int("normal", u.NormalCount),
		zap.Int("emergency", u.EmergencyCount),
	}
	if u.Entry != nil {
		fields = append(fields,
			zap.Int("slot", u.Entry.Slot),
			zap.Uint8("icon", u.Entry.Icon),
			zap.String("text", u.Entry.Text),
		)
	}
	log.Info("render", fields...)
}
