// Package poll owns the adaptive tick timer (spec.md §4.2). It does
// not perform any charger I/O itself: it only decides when the next
// tick is due and delivers it to a consumer, generalizing the
// teacher's PeriodicTask.run delay/ticker mechanics (scheduler.go)
// from N parallel tasks down to a single self-rescheduling timer, per
// the Callback-soup-vs-linear-tick redesign.
package poll

import (
	"context"
	"time"
)

// Orchestrator fires a tick on Ticks() at active_interval_ms while
// IsActive reports true, idle_interval_ms otherwise. It never arms
// the next timer until the caller acknowledges the previous tick via
// Done, so a tick that runs long never overlaps with the next one —
// it fires immediately after Done instead.
type Orchestrator struct {
	activeInterval time.Duration
	idleInterval   time.Duration
	isActive       func() bool

	ticks chan time.Time
	done  chan struct{}
}

// NewOrchestrator builds an Orchestrator. isActive is consulted fresh
// before arming every timer, so it should read the engine's current
// canonical status.
func NewOrchestrator(activeInterval, idleInterval time.Duration, isActive func() bool) *Orchestrator {
	return &Orchestrator{
		activeInterval: activeInterval,
		idleInterval:   idleInterval,
		isActive:       isActive,
		ticks:          make(chan time.Time),
		done:           make(chan struct{}),
	}
}

// Ticks returns the channel a tick timestamp arrives on.
func (o *Orchestrator) Ticks() <-chan time.Time {
	return o.ticks
}

// Done must be called by the consumer once it has finished processing
// a tick, which arms the next timer. Calling it without having
// received a tick is a caller error and will block Run's next timer
// arm indefinitely rather than misbehave.
func (o *Orchestrator) Done() {
	o.done <- struct{}{}
}

func (o *Orchestrator) interval() time.Duration {
	if o.isActive() {
		return o.activeInterval
	}
	return o.idleInterval
}

// Run drives the timer loop until ctx is cancelled. The first tick
// fires after one interval, matching the teacher's PeriodicTask
// (initial delay, then periodic).
func (o *Orchestrator) Run(ctx context.Context) {
	timer := time.NewTimer(o.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-timer.C:
			select {
			case o.ticks <- now:
			case <-ctx.Done():
				return
			}

			select {
			case <-o.done:
			case <-ctx.Done():
				return
			}

			next := o.interval() - time.Since(now)
			if next < 0 {
				next = 0
			}
			timer.Reset(next)
		}
	}
}
