package scheduler

import (
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"

	"scrapmetal_backend/models"
)

// NextOccurrence returns the first instant strictly after now that falls on
// weekday at hour:minute:00 in loc. Days are added on the civil calendar, so
// daylight saving transitions keep the wall-clock time.
func NextOccurrence(now time.Time, weekday time.Weekday, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	days := (int(weekday) - int(local.Weekday()) + 7) % 7
	if days == 0 && !candidate.After(now) {
		days = 7
	}

	return time.Date(local.Year(), local.Month(), local.Day()+days, hour, minute, 0, 0, loc)
}

// NextRunAfter applies NextOccurrence to a schedule config
func NextRunAfter(cfg models.ScheduleConfig, now time.Time) (time.Time, error) {
	loc, err := validateConfig(cfg)
	if err != nil {
		return time.Time{}, err
	}
	return NextOccurrence(now, cfg.TargetWeekday, cfg.TargetHour, cfg.TargetMinute, loc), nil
}

// validateConfig checks the schedule shape and resolves its timezone
func validateConfig(cfg models.ScheduleConfig) (*time.Location, error) {
	if cfg.TargetWeekday < time.Sunday || cfg.TargetWeekday > time.Saturday {
		return nil, errors.Wrapf(ErrConfigInvalid, "target weekday %d out of range 0-6", cfg.TargetWeekday)
	}
	if cfg.TargetHour < 0 || cfg.TargetHour > 23 {
		return nil, errors.Wrapf(ErrConfigInvalid, "target hour %d out of range 0-23", cfg.TargetHour)
	}
	if cfg.TargetMinute < 0 || cfg.TargetMinute > 59 {
		return nil, errors.Wrapf(ErrConfigInvalid, "target minute %d out of range 0-59", cfg.TargetMinute)
	}
	if cfg.TimezoneName == "" {
		return nil, errors.Wrap(ErrConfigInvalid, "timezone is required")
	}
	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(ErrConfigInvalid, "unknown timezone %q", cfg.TimezoneName),
			"use an IANA name such as America/Chicago")
	}
	return loc, nil
}
