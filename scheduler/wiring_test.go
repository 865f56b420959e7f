package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapmetal_backend/config"
	"scrapmetal_backend/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		PricingAPIURL:    "https://prices.example.com/weekly",
		Timezone:         "America/New_York",
		FetchTimeout:     7 * time.Second,
		SnapshotFile:     filepath.Join(t.TempDir(), "snapshot.json"),
		ScheduleEnabled:  false,
		ManualTriggerRPM: 6,
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testConfig(t)
	publisher := &recordingPublisher{}

	s, err := NewFromConfig(cfg, publisher)
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	assert.Equal(t, 12*time.Second, s.cycleTimeout)
	assert.Equal(t, cfg.PricingAPIURL, s.endpoint)
	assert.Same(t, publisher, s.publisher)

	status := s.Status()
	assert.False(t, status.Enabled)
	assert.Equal(t, "America/New_York", status.TimezoneName)
	assert.Equal(t, cfg.PricingAPIURL, status.Endpoint)

	store, ok := s.store.(*services.FileSnapshotStore)
	require.True(t, ok)
	assert.Equal(t, cfg.SnapshotFile, store.Path())
}

func TestNewFromConfigWithoutSnapshotOrPublisher(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnapshotFile = ""

	s, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	assert.Nil(t, s.store)
	assert.Nil(t, s.publisher)
}
