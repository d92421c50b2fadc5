package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/rcdrive/internal/control"
	"github.com/srg/rcdrive/internal/input"
	"github.com/srg/rcdrive/internal/remote"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	DeviceName   string `yaml:"device_name" default:"DaddyMobile"`
	ServiceUUID  string `yaml:"service_uuid" default:"00002137-0000-1000-8000-00805f9b34fb"`
	SteeringUUID string `yaml:"steering_uuid" default:"00006901-0000-1000-8000-00805f9b34fb"`
	ThrottleUUID string `yaml:"throttle_uuid" default:"00006902-0000-1000-8000-00805f9b34fb"`

	ScanWindow     time.Duration `yaml:"scan_window" default:"10s"`
	WriteInterval  time.Duration `yaml:"write_interval" default:"20ms"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	JournalSize    int           `yaml:"journal_size" default:"256"`

	Control control.Range `yaml:"control"`
	Input   input.Config  `yaml:"input"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := cfg.Decode(f); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// YAML renders the configuration.
func (c *Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.DeviceName == "" {
		errs = append(errs, errors.New("device_name must not be empty"))
	}
	for name, uuid := range map[string]string{
		"service_uuid":  c.ServiceUUID,
		"steering_uuid": c.SteeringUUID,
		"throttle_uuid": c.ThrottleUUID,
	} {
		if _, err := ble.Parse(uuid); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid UUID %q: %w", name, uuid, err))
		}
	}
	if c.ScanWindow <= 0 {
		errs = append(errs, fmt.Errorf("scan_window must be positive, got %s", c.ScanWindow))
	}
	if c.WriteInterval <= 0 {
		errs = append(errs, fmt.Errorf("write_interval must be positive, got %s", c.WriteInterval))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.JournalSize <= 0 {
		errs = append(errs, fmt.Errorf("journal_size must be positive, got %d", c.JournalSize))
	}
	if err := c.Control.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("control: %w", err))
	}
	if err := c.Input.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("input: %w", err))
	}
	return errors.Join(errs...)
}

// Identity returns the peripheral identity the client looks for.
func (c *Config) Identity() remote.Identity {
	return remote.Identity{
		Name:         c.DeviceName,
		ServiceUUID:  c.ServiceUUID,
		SteeringUUID: c.SteeringUUID,
		ThrottleUUID: c.ThrottleUUID,
	}
}

// NewLogger creates a configured logger instance
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
