// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/retrolink/internal/config"
	"github.com/Thermoquad/retrolink/internal/metrics"
	"github.com/Thermoquad/retrolink/pkg/protov2"
	"github.com/Thermoquad/retrolink/pkg/watch"
)

func newTestServer(t *testing.T, ready func() bool) (*Server, *watch.Device) {
	t.Helper()
	d := watch.NewDevice(watch.WithProtocol(watch.ProtocolV2))
	reg := metrics.NewRegistry()
	metrics.NewDeviceMetrics(reg).SessionStarted()
	return New(config.HTTPConfig{Addr: "127.0.0.1:0"}, d, "/metrics", metrics.Handler(reg), ready, nil), d
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, s, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NotReady(t *testing.T) {
	s, _ := newTestServer(t, func() bool { return false })

	rec := get(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not-ready", rec.Body.String())
}

func TestServer_Display(t *testing.T) {
	s, d := newTestServer(t, nil)

	_, err := d.Write(protov2.EncodeFrame(protov2.NewStatusFrame(0, protov2.StatusConnected, false)))
	require.NoError(t, err)
	_, err = d.Write(protov2.EncodeFrame(protov2.NewCallFrame(1, "Alice", false)))
	require.NoError(t, err)

	rec := get(t, s, "/api/display")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Protocol      string `json:"protocol"`
		Mode          string `json:"mode"`
		LinkConnected bool   `json:"link_connected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v2", body.Protocol)
	assert.Equal(t, "EMERGENCY", body.Mode)
	assert.True(t, body.LinkConnected)
}

func TestServer_Buffers(t *testing.T) {
	s, d := newTestServer(t, nil)

	_, err := d.Write(protov2.EncodeFrame(protov2.NewNotifyFrame(4, "Lunch", false)))
	require.NoError(t, err)

	rec := get(t, s, "/api/buffers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Normal    []watch.Entry `json:"normal"`
		Emergency []watch.Entry `json:"emergency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Normal, 1)
	assert.Equal(t, "Lunch", body.Normal[0].Text)
	assert.Equal(t, byte(4), body.Normal[0].ID)
	assert.Empty(t, body.Emergency)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retrolink_link_sessions_total 1")
}

func TestServer_ServeShutdown(t *testing.T) {
	s, _ := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}
