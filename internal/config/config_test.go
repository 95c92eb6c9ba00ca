package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "support-desk", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 30, cfg.App.RequestTimeoutSeconds)

	assert.Equal(t, 4, cfg.Sla.HighHours)
	assert.Equal(t, 8, cfg.Sla.MediumHours)
	assert.Equal(t, 24, cfg.Sla.LowHours)

	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, "support-inbox", cfg.Mailbox.Name)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SLA_HOURS_HIGH", "2")
	t.Setenv("SCHEDULER_ENABLED", "true")
	t.Setenv("SCHEDULER_INTERVAL_MINUTES", "15")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 2, cfg.Sla.HighHours)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadRejectsMalformedRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("SLA_HOURS_HIGH", "soon")
	t.Setenv("SCHEDULER_ENABLED", "yes please")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Sla.HighHours)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestAddr(t *testing.T) {
	app := AppConfig{Host: "127.0.0.1", Port: "8080"}
	assert.Equal(t, "127.0.0.1:8080", app.Addr())
}

func TestRequestTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, AppConfig{RequestTimeoutSeconds: 30}.RequestTimeout())
	assert.Equal(t, time.Duration(0), AppConfig{}.RequestTimeout())
}
