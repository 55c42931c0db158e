// Package config loads runtime configuration from YAML with sensible
// defaults for every field, so an absent or partial file still yields a
// usable configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can use human-readable
// values like "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds application configuration.
type Config struct {
	LogLevel     string `yaml:"log_level" default:"info"`
	OutputFormat string `yaml:"output_format" default:"table"` // table, json

	ScanTimeout      Duration `yaml:"scan_timeout"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`
	LivenessInterval Duration `yaml:"liveness_interval"`
	StaleAfter       Duration `yaml:"stale_after"`

	ConnectAttempts int    `yaml:"connect_attempts" default:"3"`
	WarnEntries     int    `yaml:"warn_entries" default:"50"`
	AutoPopulate    bool   `yaml:"auto_populate" default:"true"`
	DraftDir        string `yaml:"draft_dir" default:""`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	// Duration fields are not covered by default tags.
	cfg.ScanTimeout = Duration(10 * time.Second)
	cfg.ConnectTimeout = Duration(30 * time.Second)
	cfg.HeartbeatTimeout = Duration(90 * time.Second)
	cfg.LivenessInterval = Duration(60 * time.Second)
	cfg.StaleAfter = Duration(5 * time.Minute)

	return cfg
}

// Load reads configuration from path, layered over defaults. A missing
// file is not an error; defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work at runtime.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.OutputFormat != "table" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format %q: must be table or json", c.OutputFormat)
	}
	if c.ConnectAttempts < 1 {
		return fmt.Errorf("connect_attempts must be at least 1, got %d", c.ConnectAttempts)
	}
	return nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
