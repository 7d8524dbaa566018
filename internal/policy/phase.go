package policy

import (
	"time"
)

// PhaseSelector implements the phase-selection and rate-limiting
// rules from spec.md §4.5 / §9 "Phase switching": 3-phase above
// single_phase_max, single-phase at or below single_phase_max minus
// hysteresis, at most one switch per minSwitchInterval, and never
// while charging without first sequencing amps through 0 for at least
// zeroHoldSeconds.
type PhaseSelector struct {
	SinglePhaseMax   float32 // A, default 16
	Hysteresis       float32 // A, default 2
	MinSwitchInterval time.Duration // default 60s
	ZeroHoldSeconds   float64        // default 5

	currentPhases int
	lastSwitch    time.Time
	hasSwitched   bool

	zeroSince  time.Time
	hasZeroed  bool
}

// NewPhaseSelector returns a PhaseSelector with spec.md's documented
// defaults, starting from initialPhases.
func NewPhaseSelector(initialPhases int) *PhaseSelector {
	return &PhaseSelector{
		SinglePhaseMax:    16,
		Hysteresis:        2,
		MinSwitchInterval: 60 * time.Second,
		ZeroHoldSeconds:   5,
		currentPhases:     initialPhases,
	}
}

// Current returns the phase count currently in effect.
func (p *PhaseSelector) Current() int {
	return p.currentPhases
}

// Select decides the phase count for this tick given the desired amps
// and whether the charger is currently in the Charging status. It
// returns the phase count to use this tick and whether amps must be
// forced to 0 this tick to complete the zero-hold sequencing before a
// pending switch can proceed.
func (p *PhaseSelector) Select(now time.Time, desiredAmps float32, isCharging bool) (phases int, forceZero bool) {
	wantThree := desiredAmps > p.SinglePhaseMax
	wantOne := desiredAmps <= p.SinglePhaseMax-p.Hysteresis

	want := p.currentPhases
	switch {
	case wantThree && p.currentPhases != 3:
		want = 3
	case wantOne && p.currentPhases != 1:
		want = 1
	default:
		p.hasZeroed = false
		return p.currentPhases, false
	}

	if !p.hasSwitched {
		// First decision ever; no rate limit to honour.
	} else if now.Sub(p.lastSwitch) < p.MinSwitchInterval {
		return p.currentPhases, false
	}

	if isCharging {
		if !p.hasZeroed {
			p.hasZeroed = true
			p.zeroSince = now
			return p.currentPhases, true
		}
		if now.Sub(p.zeroSince).Seconds() < p.ZeroHoldSeconds {
			return p.currentPhases, true
		}
	}

	p.currentPhases = want
	p.lastSwitch = now
	p.hasSwitched = true
	p.hasZeroed = false
	return p.currentPhases, false
}
