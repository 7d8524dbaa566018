// Package session implements the charging session/energy tracker
// described in spec.md §4.4: open/close on status transitions,
// rollover-safe energy accounting, optional cost accumulation, and
// at-most-once-per-30s persistence.
package session

import (
	"log"
	"time"

	"github.com/evcharged/evcharged/internal/state"
	"github.com/evcharged/evcharged/internal/status"
)

// persistInterval bounds how often an open session is flushed to disk
// while it's running (spec.md §4.4: "at most once per 30 s").
const persistInterval = 30 * time.Second

// staleWindow bounds how old a persisted session may be before it is
// discarded instead of resumed at startup (spec.md §4.4).
const staleWindow = 24 * time.Hour

// Store is the persistence seam the Tracker depends on, satisfied by
// *state.Store.
type Store interface {
	Save(state.Snapshot) error
	Load() (state.Snapshot, bool, error)
}

// Session is the Tracker's in-memory view of one charging session.
type Session struct {
	StartTS       time.Time
	EndTS         time.Time
	StartEnergyWh float64
	CarriedWh     float64
	SessionCost   float64

	// lastEnergyWh is the last reading seen by Tick, kept so a
	// rollover can be rebased against the highest value actually
	// observed rather than the stale StartEnergyWh.
	lastEnergyWh float64
	open         bool
}

// EnergyWh returns the session's accumulated energy given the
// charger's current lifetime energy counter.
func (s *Session) EnergyWh(currentEnergyWh float64) float64 {
	delta := currentEnergyWh - s.StartEnergyWh
	if delta < 0 {
		delta = 0
	}
	return s.CarriedWh + delta
}

// Tracker owns the current session, if any, and its persistence.
type Tracker struct {
	store  Store
	logger *log.Logger

	current     *Session
	lastPersist time.Time

	// DaemonState, when set, is consulted on every persist so the
	// engine-level half of the state document (mode, start/stop,
	// intended current, last applied setpoint) is written atomically
	// alongside the session, per spec.md §4.7.
	DaemonState func() *state.DaemonState
}

// NewTracker creates a Tracker. At startup the caller should call
// Resume to pick up (or discard) any previously persisted session.
func NewTracker(store Store, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{store: store, logger: logger}
}

// Resume re-opens the last persisted session if the charger currently
// reports a non-Disconnected status and the session's timestamps fall
// within staleWindow of now; otherwise it discards the stale session
// (spec.md §4.4).
func (tr *Tracker) Resume(now time.Time, currentStatus status.Status) {
	snap, ok, err := tr.store.Load()
	if err != nil {
		tr.logger.Printf("[SESSION] failed to load persisted state, starting fresh: %v", err)
		return
	}
	if !ok || snap.Session == nil {
		return
	}
	if currentStatus == status.Disconnected {
		tr.logger.Printf("[SESSION] charger reports Disconnected at startup, discarding persisted session")
		return
	}
	if now.Sub(snap.Session.StartTS) > staleWindow {
		tr.logger.Printf("[SESSION] persisted session is older than %s, discarding", staleWindow)
		return
	}

	tr.current = &Session{
		StartTS:       snap.Session.StartTS,
		StartEnergyWh: snap.Session.StartEnergyWh,
		CarriedWh:     snap.Session.CarriedWh,
		SessionCost:   snap.Session.SessionCost,
		lastEnergyWh:  snap.Session.StartEnergyWh,
		open:          true,
	}
	tr.logger.Printf("[SESSION] resumed session started at %s", snap.Session.StartTS)
}

// Current returns the open session, or nil if none is open.
func (tr *Tracker) Current() *Session {
	if tr.current == nil || !tr.current.open {
		return nil
	}
	return tr.current
}

// OnTransition opens or closes a session in reaction to a canonical
// status transition, per spec.md §4.4.
func (tr *Tracker) OnTransition(now time.Time, t status.Transition, currentEnergyWh float64) {
	switch {
	case t.OpensSession():
		tr.current = &Session{StartTS: now, StartEnergyWh: currentEnergyWh, lastEnergyWh: currentEnergyWh, open: true}
		tr.logger.Printf("[SESSION] opened at %s (start_energy_wh=%.1f)", now, currentEnergyWh)
		tr.persist(now, true)

	case t.ClosesSession():
		if tr.current == nil {
			return
		}
		tr.current.EndTS = now
		tr.current.open = false
		tr.logger.Printf("[SESSION] closed at %s (energy_wh=%.1f)", now, tr.current.EnergyWh(currentEnergyWh))
		tr.persist(now, true)
	}
}

// Tick advances the open session's accounting for one poll tick:
// rollover-safe energy rebasing, optional cost accumulation, and
// throttled persistence. No-op if no session is open.
func (tr *Tracker) Tick(now time.Time, currentEnergyWh float64, tickSeconds, powerKW, pricePerKWh float64, priceActive bool) {
	s := tr.Current()
	if s == nil {
		return
	}

	if currentEnergyWh < s.StartEnergyWh {
		s.CarriedWh += s.lastEnergyWh - s.StartEnergyWh // preserve the delta accumulated before the rollover
		tr.logger.Printf("[SESSION] energy counter rolled over (was %.1f, now %.1f), rebasing start", s.StartEnergyWh, currentEnergyWh)
		s.StartEnergyWh = currentEnergyWh
	}
	s.lastEnergyWh = currentEnergyWh

	if priceActive {
		s.SessionCost += (powerKW / 3600) * tickSeconds * pricePerKWh
	}

	tr.persist(now, false)
}

// PersistNow forces an immediate write of the daemon/session state,
// bypassing the throttle window. Used when a user command (mode,
// start/stop, intended current) changes state that must survive a
// restart even with no session open.
func (tr *Tracker) PersistNow(now time.Time) {
	tr.persist(now, true)
}

// persist writes the current session to disk. If force is false, the
// write is skipped unless persistInterval has elapsed since the last
// persist (spec.md §4.4: "at most once per 30 s while open").
func (tr *Tracker) persist(now time.Time, force bool) {
	if !force && now.Sub(tr.lastPersist) < persistInterval {
		return
	}

	var snap state.Snapshot
	if tr.current != nil {
		sess := &state.Session{
			StartTS:       tr.current.StartTS,
			StartEnergyWh: tr.current.StartEnergyWh,
			CarriedWh:     tr.current.CarriedWh,
			SessionCost:   tr.current.SessionCost,
		}
		if !tr.current.open {
			endTS := tr.current.EndTS
			sess.EndTS = &endTS
		}
		snap.Session = sess
	}
	if tr.DaemonState != nil {
		snap.Daemon = tr.DaemonState()
	}
	snap.SavedAt = now

	if err := tr.store.Save(snap); err != nil {
		tr.logger.Printf("[SESSION] failed to persist: %v", err)
		return
	}
	tr.lastPersist = now
}
