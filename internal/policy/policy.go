// Package policy computes the desired current setpoint and phase
// count from a SetpointContext, per spec.md §4.5: MANUAL, AUTO
// (excess-solar), and SCHEDULED evaluators behind a common Evaluator
// interface. Every evaluator is a pure function of its inputs plus a
// small amount of hysteresis state it owns itself.
package policy

import "time"

// Mode selects which evaluator runs.
type Mode int

const (
	ModeManual Mode = iota
	ModeAuto
	ModeScheduled
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "MANUAL"
	case ModeAuto:
		return "AUTO"
	case ModeScheduled:
		return "SCHEDULED"
	default:
		return "UNKNOWN"
	}
}

// ScheduleItem is one entry in a SCHEDULED-mode schedule (spec.md
// §4.5). Start/End are minute-of-day in [0, 1440); End < Start means
// the window wraps past midnight.
type ScheduleItem struct {
	Active     bool
	DaysOfWeek map[time.Weekday]bool
	Start      int
	End        int
	CurrentAmps float32
}

// Matches reports whether the item covers the wall-clock time t,
// interpreted in t's own location.
func (it ScheduleItem) Matches(t time.Time) bool {
	if !it.Active {
		return false
	}
	if !it.DaysOfWeek[t.Weekday()] {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	if it.Start <= it.End {
		return minute >= it.Start && minute < it.End
	}
	// Wrap-around window, e.g. 23:00-07:00.
	return minute >= it.Start || minute < it.End
}

// SetpointContext carries everything an Evaluator needs for one tick.
type SetpointContext struct {
	Now time.Time

	StationMaxCurrent float32 // A, from register 1100-1101
	MaxSetCurrent     float32 // A, configured ceiling
	IntendedCurrent   float32 // A, user-configured setpoint (MANUAL)

	ActivePhases int

	// AUTO inputs.
	PVWatts            float32
	HouseLoadWatts     float32
	BatteryExportWatts float32
	SOCKnown           bool
	SOC                float64
	MinSOC             float64

	// SCHEDULED inputs.
	Schedule []ScheduleItem

	// PriceWindowActive, when non-nil, overrides schedule matching
	// with the outcome of the price strategy evaluator for the
	// current hour (spec.md §4.5 "SCHEDULED delegates window
	// selection to the price strategy").
	PriceWindowActive *bool
	PriceWindowAmps   float32
}

// Result is what an Evaluator produces for one tick.
type Result struct {
	DesiredAmps   float32
	DesiredPhases int
	// ScheduleMatched is only meaningful for the Scheduled evaluator.
	// status.Context.ScheduleActiveWindow is not read from it: the
	// engine computes that flag before evaluation, with the same rule.
	ScheduleMatched bool
}

// Evaluator computes a Result from a SetpointContext.
type Evaluator interface {
	Evaluate(ctx SetpointContext) Result
}

func clamp(v, lo, hi float32) float32 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maxCurrentCeiling implements min(station_max, max_set_current); a
// zero MaxSetCurrent means "no configured ceiling beyond the station".
func maxCurrentCeiling(ctx SetpointContext) float32 {
	if ctx.MaxSetCurrent <= 0 || ctx.StationMaxCurrent < ctx.MaxSetCurrent {
		return ctx.StationMaxCurrent
	}
	return ctx.MaxSetCurrent
}

// NormalizeAmps applies the boundary rule from spec.md §8: the
// charger cannot sustain a current below enableThreshold, so any
// evaluator output strictly between 0 and enableThreshold is written
// as 0 rather than as a sub-minimum current. AUTO's own hysteresis
// already respects this; MANUAL and SCHEDULED do not, so every
// Evaluator's Result is passed through this before reaching the
// setpoint writer.
func NormalizeAmps(amps, enableThreshold float32) float32 {
	if amps > 0 && amps < enableThreshold {
		return 0
	}
	return amps
}
