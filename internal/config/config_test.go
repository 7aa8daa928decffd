// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retrolink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 115200, cfg.Link.Baud)
	assert.Equal(t, ":8888", cfg.Simulator.Listen)
	assert.Equal(t, "v2", cfg.Simulator.Protocol)
	assert.Equal(t, 100*time.Millisecond, cfg.Simulator.TickInterval)
	assert.Equal(t, "tui", cfg.Simulator.Renderer)
	assert.Equal(t, 20.0, cfg.Companion.RateLimit)
	assert.Equal(t, 4, cfg.Companion.Burst)
	assert.Equal(t, 3*time.Second, cfg.Companion.AckTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
simulator:
  protocol: legacy
  tick_interval: 250ms
companion:
  ack_timeout: 1s
logging:
  level: debug
  file:
    filename: /tmp/retrolink.log
http:
  enabled: true
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "legacy", cfg.Simulator.Protocol)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulator.TickInterval)
	assert.Equal(t, time.Second, cfg.Companion.AckTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/retrolink.log", cfg.Logging.File.Filename)
	assert.Equal(t, 50, cfg.Logging.File.MaxSizeMB)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, ":8888", cfg.Simulator.Listen)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("RETROLINK_SIMULATOR_PROTOCOL", "legacy")
	t.Setenv("RETROLINK_COMPANION_RATE_LIMIT", "5")
	t.Setenv("RETROLINK_LINK_PORT", "/dev/rfcomm0")

	cfg, err := Load(writeConfig(t, "simulator:\n  protocol: v2\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "legacy", cfg.Simulator.Protocol)
	assert.Equal(t, 5.0, cfg.Companion.RateLimit)
	assert.Equal(t, "/dev/rfcomm0", cfg.Link.Port)
}

func TestLoad_Flags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("protocol", "v2", "")
	flags.Duration("tick", 100*time.Millisecond, "")
	flags.String("listen", ":8888", "")
	require.NoError(t, flags.Parse([]string{"--protocol", "legacy", "--tick", "50ms"}))

	cfg, err := Load(writeConfig(t, "simulator:\n  protocol: v2\n  listen: :9000\n"), flags)
	require.NoError(t, err)

	assert.Equal(t, "legacy", cfg.Simulator.Protocol)
	assert.Equal(t, 50*time.Millisecond, cfg.Simulator.TickInterval)
	// Unset flags do not shadow the file
	assert.Equal(t, ":9000", cfg.Simulator.Listen)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		chdir(t, t.TempDir())
		t.Setenv("HOME", t.TempDir())
		cfg, err := Load("", nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"protocol", func(c *Config) { c.Simulator.Protocol = "v3" }, "simulator.protocol"},
		{"renderer", func(c *Config) { c.Simulator.Renderer = "lcd" }, "simulator.renderer"},
		{"tick", func(c *Config) { c.Simulator.TickInterval = 0 }, "simulator.tick_interval"},
		{"rate", func(c *Config) { c.Companion.RateLimit = -1 }, "companion.rate_limit"},
		{"burst", func(c *Config) { c.Companion.Burst = 0 }, "companion.burst"},
		{"ack timeout", func(c *Config) { c.Companion.AckTimeout = 0 }, "companion.ack_timeout"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDump_RoundTrip(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Simulator.Protocol = "legacy"

	var buf bytes.Buffer
	require.NoError(t, cfg.Dump(&buf))
	assert.Contains(t, buf.String(), "tick_interval: 100ms")

	var tree map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &tree))
	assert.Contains(t, tree, "companion")

	reloaded, err := Load(writeConfig(t, buf.String()), nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}
