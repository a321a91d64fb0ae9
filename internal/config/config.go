package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all server configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr    string `env:"YAP_ADDR" envDefault:":5000"`
	DataDir string `env:"YAP_DATA_DIR" envDefault:"data"`

	// Presence sweeper
	SweepInterval time.Duration `env:"YAP_SWEEP_INTERVAL" envDefault:"5s"`
	IdleThreshold time.Duration `env:"YAP_IDLE_THRESHOLD" envDefault:"25s"`

	// Per-connection outbound queue depth
	SendBuffer int `env:"YAP_SEND_BUFFER" envDefault:"64"`

	// Monitoring
	SampleInterval time.Duration `env:"YAP_SAMPLE_INTERVAL" envDefault:"10s"`

	// Logging
	LogLevel string `env:"YAP_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from a .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
func Load() (*Config, error) {
	// The .env file is a development convenience; deployments set real
	// environment variables and run without one.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables only")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("YAP_ADDR is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("YAP_DATA_DIR is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("YAP_SWEEP_INTERVAL must be > 0, got %s", c.SweepInterval)
	}
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("YAP_IDLE_THRESHOLD must be > 0, got %s", c.IdleThreshold)
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("YAP_SEND_BUFFER must be > 0, got %d", c.SendBuffer)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("YAP_SAMPLE_INTERVAL must be > 0, got %s", c.SampleInterval)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("YAP_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured level name onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
