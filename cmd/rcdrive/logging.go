package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/rcdrive/pkg/config"
)

// configureLogger creates a logger for cfg. --log-level takes precedence
// over the config file; an invalid flag value is an error.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		switch lvl {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = lvl
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", lvl)
		}
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// loadConfig reads --config and applies the flag overrides the command
// registered. Flags left at their defaults do not override the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.DeviceName, _ = flags.GetString("name")
	}
	if flags.Changed("scan-window") {
		cfg.ScanWindow, _ = flags.GetDuration("scan-window")
	}
	if flags.Changed("interval") {
		cfg.WriteInterval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("input") {
		cfg.Input.Kind, _ = flags.GetString("input")
	}
	if flags.Changed("joystick") {
		cfg.Input.JoystickPath, _ = flags.GetString("joystick")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}
