// Package scheduler owns the weekly national price refresh.
// It handles:
// - Computing the next weekly trigger in the configured civil timezone
// - A once-per-minute check driven by gocron
// - Single-flight fetch-normalize-cache cycles (scheduled, manual, external)
// - Fallback to the previous batch or the built-in price list
//
// The main scheduler is implemented in pricing_scheduler.go.
package scheduler
