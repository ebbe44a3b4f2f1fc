// Package config loads server settings from the environment. Values are
// read once in main and handed to each component explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all tunable server settings.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string
	// RoomTTL is the age past which a game room is reaped, checked on
	// every incoming room-join request.
	RoomTTL time.Duration
	// OutboxSize is the per-session outbox buffer; a session that falls
	// this many frames behind starts losing broadcasts.
	OutboxSize int
	Logging    LoggingConfig
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string
	// Format is the log output format: "json" or "console".
	Format string
}

// Load reads configuration from the environment, falling back to
// defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: ":8000",
		RoomTTL:    30 * time.Minute,
		OutboxSize: 16,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}

	if v := os.Getenv("NUMDUEL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("NUMDUEL_ROOM_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing NUMDUEL_ROOM_TTL: %w", err)
		}
		cfg.RoomTTL = d
	}
	if v := os.Getenv("NUMDUEL_OUTBOX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("parsing NUMDUEL_OUTBOX_SIZE: %q is not a positive integer", v)
		}
		cfg.OutboxSize = n
	}
	if v := os.Getenv("NUMDUEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NUMDUEL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return cfg, nil
}
