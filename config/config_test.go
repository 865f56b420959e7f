package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PRICING_API_URL", "")
	t.Setenv("PRICING_TIMEZONE", "")
	t.Setenv("PRICING_FETCH_TIMEOUT", "")
	t.Setenv("MANUAL_TRIGGER_RPM", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DefaultPricingAPIURL, cfg.PricingAPIURL)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 6, cfg.ManualTriggerRPM)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PRICING_API_URL", "http://prices.internal/weekly")
	t.Setenv("PRICING_TIMEZONE", "America/New_York")
	t.Setenv("PRICING_FETCH_TIMEOUT", "3")
	t.Setenv("SCHEDULER_AUTOSTART", "false")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://prices.internal/weekly", cfg.PricingAPIURL)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.False(t, cfg.AutoStart)
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Run("timezone", func(t *testing.T) {
		t.Setenv("PRICING_TIMEZONE", "Mars/Olympus_Mons")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("url", func(t *testing.T) {
		t.Setenv("PRICING_API_URL", "ftp://prices")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("X_TIMEOUT", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("X_TIMEOUT", time.Second))

	t.Setenv("X_TIMEOUT", "soon")
	assert.Equal(t, time.Second, getEnvDuration("X_TIMEOUT", time.Second))
}
