// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpserver serves the simulator's health, state and metrics
// routes.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/retrolink/internal/config"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

// StateSource provides the device state served under /api
type StateSource interface {
	Snapshot() watch.Snapshot
}

// Server wraps the gin engine and its http.Server
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// New registers the routes. metricsHandler may be nil; readyFn nil means
// always ready.
func New(cfg config.HTTPConfig, state StateSource, metricsPath string, metricsHandler http.Handler, readyFn func() bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if readyFn == nil || readyFn() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})

	api := r.Group("/api")
	api.GET("/display", func(c *gin.Context) {
		c.JSON(http.StatusOK, state.Snapshot())
	})
	api.GET("/buffers", func(c *gin.Context) {
		snap := state.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"normal":    snap.Normal,
			"emergency": snap.Emergency,
		})
	})

	if metricsHandler != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	return &Server{
		engine: r,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Handler returns the route handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is Start on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
