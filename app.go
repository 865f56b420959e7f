package main

import (
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"scrapmetal_backend/config"
	"scrapmetal_backend/models"
	"scrapmetal_backend/scheduler"
	"scrapmetal_backend/services"
)

// application holds the wired pricing components
type application struct {
	cfg       *config.Config
	scheduler *scheduler.PricingScheduler
	stream    *services.PriceStream
}

// newApplication wires fetcher, snapshot store, stream and scheduler.
// withStream is false for one-shot commands.
func newApplication(cfg *config.Config, withStream bool) (*application, error) {
	app := &application{cfg: cfg}

	var publisher scheduler.CyclePublisher
	if withStream {
		// the stream reads the cache lazily, after the scheduler exists
		app.stream = services.NewPriceStream(func() []models.PriceRecord {
			if app.scheduler == nil {
				return nil
			}
			return app.scheduler.CachedPrices()
		})
		publisher = app.stream
	}

	pricing, err := scheduler.NewFromConfig(cfg, publisher)
	if err != nil {
		if app.stream != nil {
			app.stream.Shutdown()
		}
		return nil, errors.Wrap(err, "create pricing scheduler")
	}
	app.scheduler = pricing

	log.WithFields(log.Fields{
		"endpoint": cfg.PricingAPIURL,
		"timezone": cfg.Timezone,
		"snapshot": cfg.SnapshotFile,
	}).Info("Pricing components initialized")
	return app, nil
}

// close stops the scheduler then disconnects stream clients
func (a *application) close() {
	a.scheduler.Stop()
	if a.stream != nil {
		a.stream.Shutdown()
	}
}
