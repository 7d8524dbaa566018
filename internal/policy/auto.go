package policy

import "time"

// Auto implements the AUTO excess-solar evaluator (spec.md §4.5). It
// is stateful: it owns the hysteresis timers that decide when to
// start and stop charging, and the "currently applied" amps value
// those timers react to.
type Auto struct {
	EnableThreshold    float32 // A, default 6.0
	EnableHoldSeconds  float64 // default 30
	DisableHoldSeconds float64 // default 60
	SingleMinAmps      float32 // floor once charging, default 6.0

	// Latitude/Longitude, when UseDaylightGate is set, bound excess-
	// solar tracking to sunrise-sunset (spec.md §4.5 NEW: "AUTO mode
	// uses sunrise/sunset to skip excess-solar tracking outside
	// daylight hours"), so a momentary nonzero reading at night (bus
	// noise, a misconfigured collaborator) cannot start a session.
	Latitude        float64
	Longitude       float64
	UseDaylightGate bool

	appliedAmps float32

	aboveThresholdSince time.Time
	hasAboveSince       bool

	belowMinSince time.Time
	hasBelowSince bool
}

// NewAuto returns an Auto evaluator with spec.md's documented
// defaults.
func NewAuto() *Auto {
	return &Auto{
		EnableThreshold:    6.0,
		EnableHoldSeconds:  30,
		DisableHoldSeconds: 60,
		SingleMinAmps:      6.0,
	}
}

func (a *Auto) Evaluate(ctx SetpointContext) Result {
	if a.UseDaylightGate && !Daylight(ctx.Now, a.Latitude, a.Longitude) {
		a.appliedAmps = 0
		a.hasAboveSince = false
		a.hasBelowSince = false
		return Result{DesiredAmps: 0, DesiredPhases: ctx.ActivePhases}
	}

	phases := ctx.ActivePhases
	if phases < 1 {
		phases = 1
	}

	excess := ctx.PVWatts - ctx.HouseLoadWatts + ctx.BatteryExportWatts
	if excess < 0 {
		excess = 0
	}
	amps := excess / (float32(phases) * 230.0)

	ceiling := maxCurrentCeiling(ctx)

	if ctx.SOCKnown && ctx.SOC < ctx.MinSOC {
		a.appliedAmps = 0
		a.hasAboveSince = false
		a.hasBelowSince = false
		return Result{DesiredAmps: 0, DesiredPhases: ctx.ActivePhases}
	}

	switch {
	case a.appliedAmps == 0:
		a.hasBelowSince = false
		if amps >= a.EnableThreshold {
			if !a.hasAboveSince {
				a.hasAboveSince = true
				a.aboveThresholdSince = ctx.Now
			}
			if ctx.Now.Sub(a.aboveThresholdSince).Seconds() >= a.EnableHoldSeconds {
				a.appliedAmps = clamp(amps, a.SingleMinAmps, ceiling)
			}
		} else {
			a.hasAboveSince = false
		}

	default: // currently charging
		a.hasAboveSince = false
		if amps < a.SingleMinAmps {
			if !a.hasBelowSince {
				a.hasBelowSince = true
				a.belowMinSince = ctx.Now
			}
			if ctx.Now.Sub(a.belowMinSince).Seconds() >= a.DisableHoldSeconds {
				a.appliedAmps = 0
			}
		} else {
			a.hasBelowSince = false
			a.appliedAmps = clamp(amps, a.SingleMinAmps, ceiling)
		}
	}

	return Result{DesiredAmps: a.appliedAmps, DesiredPhases: ctx.ActivePhases}
}
