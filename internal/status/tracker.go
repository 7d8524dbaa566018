package status

import (
	"log"
	"time"
)

// Tracker is the stateful wrapper around Derive: it owns the current
// status, the low-power hold timer behind the Charged promotion, and
// emits a log line (and a Transition) on every change, grounded on
// the teacher's PeriodicTask logging style in scheduler.go.
type Tracker struct {
	logger *log.Logger
	prefix string

	current Status

	lowPowerSince time.Time
	hasLowPower   bool
}

// NewTracker creates a Tracker starting in Disconnected, per spec.md
// §4.3 ("Initial state: D").
func NewTracker(logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{logger: logger, prefix: "[STATUS] ", current: Disconnected}
}

// Current returns the last status computed by Update.
func (tr *Tracker) Current() Status {
	return tr.current
}

// Update feeds one tick's raw mode-3 state and policy context through
// the base mapping and overrides, advancing the low-power hold timer
// that backs the Charged promotion, and returns the resulting
// Transition (From == To when nothing changed).
func (tr *Tracker) Update(now time.Time, raw string, ctx Context) Transition {
	base, ok := Base(raw)
	if !ok {
		tr.logger.Printf("%sunrecognised mode-3 state %q, treating as Disconnected", tr.prefix, raw)
	}

	if base == Charging && ctx.PowerW < ChargedPowerThresholdW {
		if !tr.hasLowPower {
			tr.hasLowPower = true
			tr.lowPowerSince = now
		}
		ctx.LowPowerSeconds = now.Sub(tr.lowPowerSince).Seconds()
	} else {
		tr.hasLowPower = false
		ctx.LowPowerSeconds = 0
	}

	next := Derive(raw, ctx)

	t := Transition{From: tr.current, To: next}
	if next != tr.current {
		tr.logger.Printf("%s%s -> %s (raw=%q)", tr.prefix, tr.current, next, raw)
		tr.current = next
	}
	return t
}
