package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"

	"scrapmetal_backend/models"
	"scrapmetal_backend/services"
)

var (
	// ErrBusy is returned when a cycle is already running; triggers are not queued
	ErrBusy = errors.New("price refresh already in progress")
	// ErrFetchFailed means remote, cached and built-in data were all unavailable
	ErrFetchFailed = errors.New("no price data available")
	// ErrConfigInvalid rejects a schedule update without changing state
	ErrConfigInvalid = errors.New("invalid schedule configuration")
)

// DefaultCycleTimeout bounds a scheduled cycle on top of the HTTP client timeout
const DefaultCycleTimeout = 30 * time.Second

// PriceFetcher performs the single HTTP GET of a cycle
type PriceFetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// SnapshotStore persists scheduler state between restarts
type SnapshotStore interface {
	Save(snapshot *services.PricingSnapshot) error
	Load() (*services.PricingSnapshot, error)
}

// CyclePublisher is notified after every completed cycle
type CyclePublisher interface {
	PublishCycle(result models.CycleResult)
}

// Options wires a PricingScheduler. Fetcher is required.
type Options struct {
	Fetcher      PriceFetcher
	Endpoint     string
	Config       *models.ScheduleConfig
	Fallback     func(now time.Time) []models.PriceRecord
	Store        SnapshotStore
	Publisher    CyclePublisher
	CycleTimeout time.Duration
	Now          func() time.Time
}

// PricingScheduler keeps the national price cache fresh on a weekly schedule
type PricingScheduler struct {
	fetcher      PriceFetcher
	endpoint     string
	fallback     func(now time.Time) []models.PriceRecord
	store        SnapshotStore
	publisher    CyclePublisher
	cycleTimeout time.Duration
	now          func() time.Time

	// controlMu serializes Start, Stop and UpdateConfig
	controlMu sync.Mutex

	mu         sync.Mutex
	config     models.ScheduleConfig
	location   *time.Location
	cron       *gocron.Scheduler
	cache      []models.PriceRecord
	source     models.PriceSource
	stale      bool
	lastError  string
	isUpdating bool
}

// NewPricingScheduler creates a scheduler and restores the last snapshot if a store is set
func NewPricingScheduler(opts Options) (*PricingScheduler, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("pricing scheduler requires a fetcher")
	}

	cfg := models.DefaultScheduleConfig()
	if opts.Config != nil {
		cfg = opts.Config.Clone()
	}
	cfg.NextRun = nil

	loc, err := validateConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &PricingScheduler{
		fetcher:      opts.Fetcher,
		endpoint:     opts.Endpoint,
		fallback:     opts.Fallback,
		store:        opts.Store,
		publisher:    opts.Publisher,
		cycleTimeout: opts.CycleTimeout,
		now:          opts.Now,
		config:       cfg,
		location:     loc,
		cache:        []models.PriceRecord{},
	}
	if s.fallback == nil {
		s.fallback = models.FallbackPrices
	}
	if s.cycleTimeout <= 0 {
		s.cycleTimeout = DefaultCycleTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.restore()
	return s, nil
}

// restore loads cache and schedule from the snapshot store
func (s *PricingScheduler) restore() {
	if s.store == nil {
		return
	}

	snapshot, err := s.store.Load()
	if err != nil {
		if errors.Is(err, services.ErrSnapshotNotFound) {
			log.Debug("No pricing snapshot found, starting with empty cache")
		} else {
			log.WithError(err).Warn("Failed to load pricing snapshot")
		}
		return
	}

	prices := validPrices(snapshot.Prices)
	if len(prices) > 0 {
		s.cache = prices
		s.source = snapshot.Source
		s.stale = snapshot.Stale
	}

	restored := snapshot.Config.Clone()
	restored.NextRun = nil
	if loc, err := validateConfig(restored); err == nil {
		if overrides := scheduleOverrides(s.config, restored); len(overrides) > 0 {
			log.WithFields(overrides).Info("Pricing snapshot schedule overrides configured defaults")
		}
		s.config = restored
		s.location = loc
	} else {
		log.WithError(err).Warn("Ignoring invalid schedule in pricing snapshot")
		s.config.LastRun = restored.LastRun
	}

	log.WithFields(log.Fields{
		"prices":   len(s.cache),
		"source":   s.source,
		"stale":    s.stale,
		"last_run": s.config.LastRun,
	}).Info("Restored pricing snapshot")
}

// scheduleOverrides lists the configured schedule fields a snapshot replaces
func scheduleOverrides(configured, restored models.ScheduleConfig) log.Fields {
	fields := log.Fields{}
	if configured.Enabled != restored.Enabled {
		fields["enabled"] = restored.Enabled
	}
	if configured.TimezoneName != restored.TimezoneName {
		fields["timezone"] = restored.TimezoneName
	}
	if configured.TargetWeekday != restored.TargetWeekday ||
		configured.TargetHour != restored.TargetHour ||
		configured.TargetMinute != restored.TargetMinute {
		fields["schedule"] = restored.TargetWeekday.String() + " " + formatClock(restored.TargetHour, restored.TargetMinute)
	}
	return fields
}

// Start begins the once-per-minute schedule check. It is a no-op when already running.
func (s *PricingScheduler) Start() {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	s.start()
}

func (s *PricingScheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		log.Debug("Pricing scheduler already running")
		return
	}

	next := NextOccurrence(s.now(), s.config.TargetWeekday, s.config.TargetHour, s.config.TargetMinute, s.location)
	s.config.NextRun = &next

	cron := gocron.NewScheduler(s.location)
	cron.SingletonModeAll()
	if _, err := cron.Every(1).Minute().WaitForSchedule().Do(s.tick); err != nil {
		// only reachable with an invalid job definition
		log.WithError(err).Error("Failed to schedule pricing check")
		return
	}
	cron.StartAsync()
	s.cron = cron

	log.WithFields(log.Fields{
		"next_run": next.Format(time.RFC1123),
		"enabled":  s.config.Enabled,
	}).Info("Pricing scheduler started")
}

// Stop cancels the periodic check. A cycle already in flight runs to completion.
func (s *PricingScheduler) Stop() {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	s.stop()
}

func (s *PricingScheduler) stop() {
	s.mu.Lock()
	cron := s.cron
	s.cron = nil
	s.mu.Unlock()

	if cron == nil {
		return
	}
	// outside s.mu so a running tick can finish its cycle
	cron.Stop()
	log.Info("Pricing scheduler stopped")
}

// IsRunning returns whether the periodic check is active
func (s *PricingScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *PricingScheduler) tick() {
	s.checkAndRun(s.now())
}

// checkAndRun runs a scheduled cycle when now has reached nextRun
func (s *PricingScheduler) checkAndRun(now time.Time) bool {
	s.mu.Lock()
	due := s.config.Enabled && s.config.NextRun != nil && !now.Before(*s.config.NextRun)
	s.mu.Unlock()

	if !due {
		return false
	}

	log.Info("Executing scheduled price refresh")
	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	defer cancel()

	if _, err := s.runCycle(ctx, models.TriggerScheduled); err != nil {
		if errors.Is(err, ErrBusy) {
			log.Info("Scheduled price refresh skipped, a refresh is already running")
			return false
		}
		log.WithError(err).Error("Scheduled price refresh failed")
	}
	return true
}

// ForceUpdate runs one cycle now, regardless of schedule. Returns ErrBusy if a
// cycle is in progress.
func (s *PricingScheduler) ForceUpdate(ctx context.Context) (*models.CycleResult, error) {
	log.Info("Manual price refresh triggered")
	return s.runCycle(ctx, models.TriggerManual)
}

// TriggerManualScraping is the app-facing name for ForceUpdate
func (s *PricingScheduler) TriggerManualScraping(ctx context.Context) (*models.CycleResult, error) {
	return s.ForceUpdate(ctx)
}

// RunExternal runs one cycle on behalf of a host platform scheduler (cron
// endpoint, CLI) and shares the same single-flight guard.
func (s *PricingScheduler) RunExternal(ctx context.Context) (*models.CycleResult, error) {
	log.Info("External price refresh triggered")
	return s.runCycle(ctx, models.TriggerExternal)
}

func (s *PricingScheduler) runCycle(ctx context.Context, trigger models.CycleTrigger) (*models.CycleResult, error) {
	s.mu.Lock()
	if s.isUpdating {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.isUpdating = true
	previous := s.cache
	previousSource := s.source
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isUpdating = false
		s.mu.Unlock()
	}()

	started := s.now()
	acquired := s.acquire(ctx, previous, previousSource, started)
	completed := s.now()

	s.mu.Lock()
	next := NextOccurrence(completed, s.config.TargetWeekday, s.config.TargetHour, s.config.TargetMinute, s.location)
	s.config.NextRun = &next
	s.lastError = errorText(acquired.err)

	if len(acquired.prices) == 0 {
		s.mu.Unlock()
		return nil, errors.WithSecondaryError(ErrFetchFailed, acquired.err)
	}

	// wholesale replacement; previous slices are never mutated
	s.cache = acquired.prices
	s.source = acquired.source
	s.stale = acquired.stale
	s.config.LastRun = &completed
	snapshot := s.snapshotLocked(completed)
	s.mu.Unlock()

	result := models.CycleResult{
		Prices:       copyPrices(acquired.prices),
		Source:       acquired.source,
		Stale:        acquired.stale,
		UsedFallback: acquired.err != nil,
		FetchError:   errorText(acquired.err),
		Trigger:      trigger,
		CompletedAt:  completed,
		Duration:     completed.Sub(started).String(),
	}

	s.persist(snapshot)
	if s.publisher != nil {
		s.publisher.PublishCycle(result)
	}

	entry := log.WithFields(log.Fields{
		"trigger":  trigger,
		"prices":   len(result.Prices),
		"source":   result.Source,
		"stale":    result.Stale,
		"duration": result.Duration,
		"next_run": next.Format(time.RFC1123),
	})
	if result.UsedFallback {
		entry.WithError(acquired.err).Warn("Price refresh completed with fallback data")
	} else {
		entry.Info("Price refresh completed")
	}

	return &result, nil
}

type acquiredBatch struct {
	prices []models.PriceRecord
	source models.PriceSource
	stale  bool
	err    error
}

// acquire fetches and normalizes remote prices. On any failure it prefers the
// last known good batch, then the built-in fallback list.
func (s *PricingScheduler) acquire(ctx context.Context, previous []models.PriceRecord, previousSource models.PriceSource, now time.Time) acquiredBatch {
	body, err := s.fetcher.Fetch(ctx)
	if err == nil {
		var result *services.NormalizeResult
		result, err = services.NormalizePrices(body, now)
		if err == nil {
			if result.Skipped > 0 {
				log.WithField("skipped", result.Skipped).Warn("Dropped invalid price records")
			}
			return acquiredBatch{prices: result.Records, source: models.SourceRemote}
		}
	}

	if len(previous) > 0 {
		log.WithError(err).Warn("Price fetch failed, keeping cached prices")
		return acquiredBatch{prices: previous, source: previousSource, stale: true, err: err}
	}

	log.WithError(err).Warn("Price fetch failed, using built-in fallback prices")
	return acquiredBatch{prices: validPrices(s.fallback(now)), source: models.SourceFallback, err: err}
}

func (s *PricingScheduler) snapshotLocked(now time.Time) *services.PricingSnapshot {
	cfg := s.config.Clone()
	cfg.NextRun = nil
	return &services.PricingSnapshot{
		Config:  cfg,
		Prices:  copyPrices(s.cache),
		Source:  s.source,
		Stale:   s.stale,
		SavedAt: now,
	}
}

func (s *PricingScheduler) persist(snapshot *services.PricingSnapshot) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(snapshot); err != nil {
		log.WithError(err).Warn("Failed to save pricing snapshot")
	}
}

// Status returns a copy of the schedule plus cache details for display
func (s *PricingScheduler) Status() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.SchedulerStatus{
		ScheduleConfig: s.config.Clone(),
		Running:        s.cron != nil,
		IsUpdating:     s.isUpdating,
		CachedCount:    len(s.cache),
		Source:         s.source,
		Stale:          s.stale,
		LastError:      s.lastError,
		Endpoint:       s.endpoint,
	}
}

// CachedPrices returns a copy of the current batch; empty, never nil
func (s *PricingScheduler) CachedPrices() []models.PriceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPrices(s.cache)
}

// PriceForMetal looks up one record in the current batch
func (s *PricingScheduler) PriceForMetal(metalID string) (models.PriceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.cache {
		if p.MetalID == metalID {
			return p, true
		}
	}
	return models.PriceRecord{}, false
}

// UpdateConfig merges a sparse update. Invalid values return ErrConfigInvalid
// and leave the config untouched. A running timer is fully restarted.
func (s *PricingScheduler) UpdateConfig(update models.ScheduleConfigUpdate) (models.ScheduleConfig, error) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()

	s.mu.Lock()
	merged := s.config.Clone()
	if update.Enabled != nil {
		merged.Enabled = *update.Enabled
	}
	if update.TargetWeekday != nil {
		merged.TargetWeekday = *update.TargetWeekday
	}
	if update.TargetHour != nil {
		merged.TargetHour = *update.TargetHour
	}
	if update.TargetMinute != nil {
		merged.TargetMinute = *update.TargetMinute
	}
	if update.TimezoneName != nil {
		merged.TimezoneName = *update.TimezoneName
	}

	loc, err := validateConfig(merged)
	if err != nil {
		s.mu.Unlock()
		return models.ScheduleConfig{}, err
	}

	next := NextOccurrence(s.now(), merged.TargetWeekday, merged.TargetHour, merged.TargetMinute, loc)
	merged.NextRun = &next
	s.config = merged
	s.location = loc
	running := s.cron != nil
	snapshot := s.snapshotLocked(s.now())
	s.mu.Unlock()

	if running {
		s.stop()
		s.start()
	}
	s.persist(snapshot)

	log.WithFields(log.Fields{
		"enabled":  merged.Enabled,
		"weekday":  merged.TargetWeekday,
		"time":     formatClock(merged.TargetHour, merged.TargetMinute),
		"timezone": merged.TimezoneName,
		"reshaped": update.ChangesSchedule(),
		"next_run": next.Format(time.RFC1123),
	}).Info("Pricing schedule updated")

	return s.Status().ScheduleConfig, nil
}

func validPrices(prices []models.PriceRecord) []models.PriceRecord {
	out := make([]models.PriceRecord, 0, len(prices))
	for _, p := range prices {
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

func copyPrices(prices []models.PriceRecord) []models.PriceRecord {
	out := make([]models.PriceRecord, len(prices))
	copy(out, prices)
	return out
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatClock(hour, minute int) string {
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format("15:04")
}
