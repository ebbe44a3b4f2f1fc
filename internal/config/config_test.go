package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, 30*time.Minute, cfg.RoomTTL)
	assert.Equal(t, 16, cfg.OutboxSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NUMDUEL_LISTEN_ADDR", ":9999")
	t.Setenv("NUMDUEL_ROOM_TTL", "5m")
	t.Setenv("NUMDUEL_OUTBOX_SIZE", "64")
	t.Setenv("NUMDUEL_LOG_LEVEL", "debug")
	t.Setenv("NUMDUEL_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.RoomTTL)
	assert.Equal(t, 64, cfg.OutboxSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("bad ttl", func(t *testing.T) {
		t.Setenv("NUMDUEL_ROOM_TTL", "soon")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("bad outbox size", func(t *testing.T) {
		t.Setenv("NUMDUEL_OUTBOX_SIZE", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}
