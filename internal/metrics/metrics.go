// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes simulator counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/retrolink/pkg/protov2"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

const namespace = "retrolink"

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DeviceMetrics counts device and link activity. It implements watch.Observer.
type DeviceMetrics struct {
	FramesDecoded   *prometheus.CounterVec // labels: type
	FramesRejected  *prometheus.CounterVec // labels: reason
	AcksSent        *prometheus.CounterVec // labels: result
	CommandsApplied *prometheus.CounterVec // labels: command
	Renders         *prometheus.CounterVec // labels: mode
	LinkSessions    prometheus.Counter
	LinkConnected   prometheus.Gauge
	BytesReceived   prometheus.Counter
}

var _ watch.Observer = (*DeviceMetrics)(nil)

// NewDeviceMetrics registers and returns the device metrics
func NewDeviceMetrics(reg prometheus.Registerer) *DeviceMetrics {
	m := &DeviceMetrics{
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "v2 frames that passed framing checks, by message type.",
		}, []string{"type"}),
		FramesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "v2 frames dropped by the decoder, by reason.",
		}, []string{"reason"}),
		AcksSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_sent_total",
			Help:      "ACK frames sent, by result.",
		}, []string{"result"}),
		CommandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_applied_total",
			Help:      "Firmware commands applied to the display state.",
		}, []string{"command"}),
		Renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Display renders, by scheduler mode.",
		}, []string{"mode"}),
		LinkSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_sessions_total",
			Help:      "Link connections accepted.",
		}),
		LinkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_connected",
			Help:      "1 while a link client is attached.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_bytes_received_total",
			Help:      "Bytes received from the link.",
		}),
	}
	reg.MustRegister(m.FramesDecoded, m.FramesRejected, m.AcksSent, m.CommandsApplied,
		m.Renders, m.LinkSessions, m.LinkConnected, m.BytesReceived)
	return m
}

func (m *DeviceMetrics) FrameDecoded(msgType uint8) {
	m.FramesDecoded.WithLabelValues(protov2.FormatMessageType(msgType)).Inc()
}

func (m *DeviceMetrics) FrameRejected(err error) {
	m.FramesRejected.WithLabelValues(RejectReason(err)).Inc()
}

func (m *DeviceMetrics) AckSent(result uint8) {
	m.AcksSent.WithLabelValues(protov2.FormatAckResult(result)).Inc()
}

func (m *DeviceMetrics) CommandApplied(name string) {
	m.CommandsApplied.WithLabelValues(name).Inc()
}

func (m *DeviceMetrics) Rendered(mode watch.Mode) {
	m.Renders.WithLabelValues(mode.String()).Inc()
}

// SessionStarted marks a link client as attached
func (m *DeviceMetrics) SessionStarted() {
	m.LinkSessions.Inc()
	m.LinkConnected.Set(1)
}

// SessionEnded marks the link client as gone
func (m *DeviceMetrics) SessionEnded() {
	m.LinkConnected.Set(0)
}

// RejectReason maps a decoder error to a metric label
func RejectReason(err error) string {
	switch {
	case errors.Is(err, protov2.ErrCRCMismatch):
		return "crc"
	case errors.Is(err, protov2.ErrTooShort):
		return "too_short"
	case errors.Is(err, protov2.ErrBadVersion):
		return "version"
	case errors.Is(err, protov2.ErrLengthMismatch):
		return "length"
	case errors.Is(err, protov2.ErrFrameTooLarge):
		return "too_large"
	default:
		return "other"
	}
}
