// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads retrolink settings from defaults, an optional YAML
// file, RETROLINK_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/retrolink/pkg/watch"
)

// EnvPrefix is prepended to every environment override, e.g.
// RETROLINK_SIMULATOR_PROTOCOL=legacy
const EnvPrefix = "RETROLINK"

// LinkConfig selects the transport to the watch or companion
type LinkConfig struct {
	Port        string `mapstructure:"port"`
	Baud        int    `mapstructure:"baud"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
	TCP         string `mapstructure:"tcp"`
}

// SimulatorConfig configures the device simulator
type SimulatorConfig struct {
	Listen       string        `mapstructure:"listen"`
	Protocol     string        `mapstructure:"protocol"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Renderer     string        `mapstructure:"renderer"`
	Capture      string        `mapstructure:"capture"`
}

// CompanionConfig configures the phone-side sender
type CompanionConfig struct {
	RateLimit    float64       `mapstructure:"rate_limit"`
	Burst        int           `mapstructure:"burst"`
	AckTimeout   time.Duration `mapstructure:"ack_timeout"`
	TimeInterval time.Duration `mapstructure:"time_interval"`
}

// FileConfig is the rotated log file (lumberjack)
type FileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets log level, encoding and the optional file sink
type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	File   FileConfig `mapstructure:"file"`
}

// HTTPConfig configures the simulator status server
type HTTPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig configures the Prometheus route
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config is the top-level configuration
type Config struct {
	Link      LinkConfig      `mapstructure:"link"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Companion CompanionConfig `mapstructure:"companion"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"port":          "link.port",
	"baud":          "link.baud",
	"url":           "link.url",
	"username":      "link.username",
	"no-ssl-verify": "link.no_ssl_verify",
	"tcp":           "link.tcp",
	"listen":        "simulator.listen",
	"protocol":      "simulator.protocol",
	"tick":          "simulator.tick_interval",
	"renderer":      "simulator.renderer",
	"capture":       "simulator.capture",
	"rate":          "companion.rate_limit",
	"ack-timeout":   "companion.ack_timeout",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"log-file":      "logging.file.filename",
	"http":          "http.enabled",
	"http-addr":     "http.addr",
}

// Load reads configuration. An empty path searches ./retrolink.yaml and
// $HOME/.config/retrolink/retrolink.yaml and tolerates neither existing.
// Flags in flags that were set on the command line take precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("retrolink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/retrolink")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("link.port", "")
	v.SetDefault("link.baud", 115200)
	v.SetDefault("link.url", "")
	v.SetDefault("link.username", "")
	v.SetDefault("link.no_ssl_verify", false)
	v.SetDefault("link.tcp", "")

	v.SetDefault("simulator.listen", ":8888")
	v.SetDefault("simulator.protocol", "v2")
	v.SetDefault("simulator.tick_interval", "100ms")
	v.SetDefault("simulator.renderer", "tui")
	v.SetDefault("simulator.capture", "")

	v.SetDefault("companion.rate_limit", 20.0)
	v.SetDefault("companion.burst", 4)
	v.SetDefault("companion.ack_timeout", "3s")
	v.SetDefault("companion.time_interval", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.max_size", 50)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate rejects values the commands cannot run with
func (c *Config) Validate() error {
	var errs []error

	if _, err := watch.ParseProtocol(c.Simulator.Protocol); err != nil {
		errs = append(errs, fmt.Errorf("simulator.protocol: %w", err))
	}
	switch c.Simulator.Renderer {
	case "tui", "log":
	default:
		errs = append(errs, fmt.Errorf("simulator.renderer: unknown renderer %q (want tui or log)", c.Simulator.Renderer))
	}
	if c.Simulator.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("simulator.tick_interval: must be positive"))
	}

	if c.Companion.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("companion.rate_limit: must be positive"))
	}
	if c.Companion.Burst < 1 {
		errs = append(errs, fmt.Errorf("companion.burst: must be at least 1"))
	}
	if c.Companion.AckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("companion.ack_timeout: must be positive"))
	}
	if c.Companion.TimeInterval <= 0 {
		errs = append(errs, fmt.Errorf("companion.time_interval: must be positive"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q (want json or console)", c.Logging.Format))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path: must start with /"))
	}

	return errors.Join(errs...)
}

// Dump writes the configuration as YAML with the same keys Load reads
func (c *Config) Dump(w io.Writer) error {
	tree := map[string]any{
		"link": map[string]any{
			"port":          c.Link.Port,
			"baud":          c.Link.Baud,
			"url":           c.Link.URL,
			"username":      c.Link.Username,
			"no_ssl_verify": c.Link.NoSSLVerify,
			"tcp":           c.Link.TCP,
		},
		"simulator": map[string]any{
			"listen":        c.Simulator.Listen,
			"protocol":      c.Simulator.Protocol,
			"tick_interval": c.Simulator.TickInterval.String(),
			"renderer":      c.Simulator.Renderer,
			"capture":       c.Simulator.Capture,
		},
		"companion": map[string]any{
			"rate_limit":    c.Companion.RateLimit,
			"burst":         c.Companion.Burst,
			"ack_timeout":   c.Companion.AckTimeout.String(),
			"time_interval": c.Companion.TimeInterval.String(),
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"file": map[string]any{
				"filename":    c.Logging.File.Filename,
				"max_size":    c.Logging.File.MaxSizeMB,
				"max_backups": c.Logging.File.MaxBackups,
				"max_age":     c.Logging.File.MaxAgeDays,
				"compress":    c.Logging.File.Compress,
			},
		},
		"http": map[string]any{
			"enabled":       c.HTTP.Enabled,
			"addr":          c.HTTP.Addr,
			"read_timeout":  c.HTTP.ReadTimeout.String(),
			"write_timeout": c.HTTP.WriteTimeout.String(),
		},
		"metrics": map[string]any{
			"enabled": c.Metrics.Enabled,
			"path":    c.Metrics.Path,
		},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
