package models

import (
	"time"
)

// PriceSource tags where a batch of prices came from
type PriceSource string

const (
	SourceRemote   PriceSource = "remote"   // parsed from the pricing endpoint
	SourceFallback PriceSource = "fallback" // built-in default data
)

// CycleTrigger identifies what started a refresh cycle
type CycleTrigger string

const (
	TriggerScheduled CycleTrigger = "scheduled"
	TriggerManual    CycleTrigger = "manual"
	TriggerExternal  CycleTrigger = "external" // host platform cron
)

// PriceRecord is the canonical national price of one metal grade
type PriceRecord struct {
	MetalID       string      `json:"metal_id"`
	MetalName     string      `json:"metal_name"`
	Grade         string      `json:"grade"`
	NationalPrice float64     `json:"national_price"` // USD per pound
	Timestamp     time.Time   `json:"timestamp"`
	Source        PriceSource `json:"source"`
}

// Valid reports whether the record can be served to consumers
func (p PriceRecord) Valid() bool {
	return p.MetalID != "" && p.NationalPrice > 0
}

// ScheduleConfig holds the weekly refresh schedule
type ScheduleConfig struct {
	Enabled       bool         `json:"enabled"`
	LastRun       *time.Time   `json:"last_run"`
	NextRun       *time.Time   `json:"next_run"`
	TargetWeekday time.Weekday `json:"target_weekday"` // 0 = Sunday
	TargetHour    int          `json:"target_hour"`
	TargetMinute  int          `json:"target_minute"`
	TimezoneName  string       `json:"timezone"`
}

// DefaultScheduleConfig returns the Monday 23:59 Central schedule
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Enabled:       true,
		TargetWeekday: time.Monday,
		TargetHour:    23,
		TargetMinute:  59,
		TimezoneName:  "America/Chicago",
	}
}

// Clone returns a deep copy, timestamps included
func (c ScheduleConfig) Clone() ScheduleConfig {
	out := c
	if c.LastRun != nil {
		t := *c.LastRun
		out.LastRun = &t
	}
	if c.NextRun != nil {
		t := *c.NextRun
		out.NextRun = &t
	}
	return out
}

// ScheduleConfigUpdate is a sparse update; nil fields are left untouched
type ScheduleConfigUpdate struct {
	Enabled       *bool         `json:"enabled,omitempty"`
	TargetWeekday *time.Weekday `json:"target_weekday,omitempty"`
	TargetHour    *int          `json:"target_hour,omitempty"`
	TargetMinute  *int          `json:"target_minute,omitempty"`
	TimezoneName  *string       `json:"timezone,omitempty"`
}

// ChangesSchedule reports whether the update touches the trigger shape
func (u ScheduleConfigUpdate) ChangesSchedule() bool {
	return u.TargetWeekday != nil || u.TargetHour != nil || u.TargetMinute != nil || u.TimezoneName != nil
}

// SchedulerStatus is what the UI renders next to the price list
type SchedulerStatus struct {
	ScheduleConfig
	Running     bool        `json:"running"`
	IsUpdating  bool        `json:"is_updating"`
	CachedCount int         `json:"cached_count"`
	Source      PriceSource `json:"source,omitempty"`
	Stale       bool        `json:"stale"`
	LastError   string      `json:"last_error,omitempty"`
	Endpoint    string      `json:"endpoint"`
}

// CycleResult describes one completed fetch-normalize-cache cycle
type CycleResult struct {
	Prices       []PriceRecord `json:"prices"`
	Source       PriceSource   `json:"source"`
	Stale        bool          `json:"stale"`         // previous cache was kept
	UsedFallback bool          `json:"used_fallback"` // remote data was not used
	FetchError   string        `json:"fetch_error,omitempty"`
	Trigger      CycleTrigger  `json:"trigger"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     string        `json:"duration"`
}
