package scheduler

import (
	"time"

	"scrapmetal_backend/config"
	"scrapmetal_backend/models"
	"scrapmetal_backend/services"
)

// cycleTimeoutMargin is added to the fetch timeout for normalize and persist
const cycleTimeoutMargin = 5 * time.Second

// CycleTimeoutFor bounds one full cycle for the configured fetch timeout
func CycleTimeoutFor(cfg *config.Config) time.Duration {
	return cfg.FetchTimeout + cycleTimeoutMargin
}

// NewFromConfig builds the production scheduler: HTTP fetcher, built-in
// fallback list and, when configured, the file snapshot store. publisher may be nil.
func NewFromConfig(cfg *config.Config, publisher CyclePublisher) (*PricingScheduler, error) {
	schedule := models.DefaultScheduleConfig()
	schedule.Enabled = cfg.ScheduleEnabled
	schedule.TimezoneName = cfg.Timezone

	opts := Options{
		Fetcher:      services.NewHTTPPriceFetcher(cfg.PricingAPIURL, cfg.FetchTimeout),
		Endpoint:     cfg.PricingAPIURL,
		Config:       &schedule,
		Fallback:     models.FallbackPrices,
		Publisher:    publisher,
		CycleTimeout: CycleTimeoutFor(cfg),
	}
	if cfg.SnapshotFile != "" {
		opts.Store = services.NewFileSnapshotStore(cfg.SnapshotFile)
	}
	return NewPricingScheduler(opts)
}
