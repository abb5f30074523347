package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wooogler/swag/internal/idle"
	"github.com/wooogler/swag/internal/tracker"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "EVENTS_RATE_LIMIT", "EVENTS_RATE_WINDOW", "TRACKER_FLUSH_SIZE", "IDLE_THRESHOLD"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(120), cfg.EventsRateLimit)
	assert.Equal(t, time.Minute, cfg.EventsRateWindow)
	assert.Equal(t, tracker.DefaultConfig(), cfg.Tracker)
	assert.Equal(t, idle.DefaultConfig(), cfg.Idle)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("EVENTS_RATE_LIMIT", "5")
	t.Setenv("EVENTS_RATE_WINDOW", "30s")
	t.Setenv("TRACKER_FLUSH_SIZE", "25")
	t.Setenv("TRACKER_INACTIVITY_DELAY", "1500")
	t.Setenv("IDLE_THRESHOLD", "5m")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, int64(5), cfg.EventsRateLimit)
	assert.Equal(t, 30*time.Second, cfg.EventsRateWindow)
	assert.Equal(t, 25, cfg.Tracker.FlushSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Tracker.InactivityDelay)
	assert.Equal(t, 5*time.Minute, cfg.Idle.Threshold)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("EVENTS_RATE_LIMIT", "lots")
	t.Setenv("EVENTS_RATE_WINDOW", "soon")

	cfg := Load()
	assert.Equal(t, int64(120), cfg.EventsRateLimit)
	assert.Equal(t, time.Minute, cfg.EventsRateWindow)
}
