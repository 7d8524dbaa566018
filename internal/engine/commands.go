package engine

import (
	"fmt"
	"time"

	"github.com/evcharged/evcharged/internal/api"
	"github.com/evcharged/evcharged/internal/config"
	"github.com/evcharged/evcharged/internal/policy"
	"github.com/evcharged/evcharged/internal/setpoint"
)

// CurrentStatus implements api.Commands. It is safe to call from any
// goroutine; the read runs inside the owner goroutine via do.
func (e *Engine) CurrentStatus() api.StatusSnapshot {
	var snap api.StatusSnapshot
	e.do(func(e *Engine) {
		snap = api.StatusSnapshot{
			Timestamp:     time.Now(),
			Mode:          int(e.mode),
			StartStop:     e.startStop,
			Status:        int(e.lastStatus),
			SetCurrent:    e.writer.LastWrittenAmps(),
			MaxCurrent:    e.lastSnapshot.StationMaxCurrent,
			PowerW:        e.lastSnapshot.PowerW,
			EnergyWh:      e.lastSnapshot.EnergyWh,
			PhaseCount:    e.phases.Current(),
			ChargingTimeS: e.chargingTimeSeconds(time.Now()),
		}
	})
	return snap
}

// SetMode implements api.Commands (spec.md §6 POST /api/mode).
func (e *Engine) SetMode(mode int) error {
	var applyErr error
	e.do(func(e *Engine) {
		m := policy.Mode(mode)
		if m != policy.ModeManual && m != policy.ModeAuto && m != policy.ModeScheduled {
			applyErr = fmt.Errorf("engine: unknown mode %d", mode)
			return
		}
		e.mode = m
		e.sessionTracker.PersistNow(time.Now())
	})
	return applyErr
}

// SetStartStop implements api.Commands (spec.md §6 POST /api/startstop).
func (e *Engine) SetStartStop(enabled bool) error {
	e.do(func(e *Engine) {
		e.startStop = enabled
		e.sessionTracker.PersistNow(time.Now())
	})
	return nil
}

// SetCurrent implements api.Commands (spec.md §6 POST /api/set_current).
func (e *Engine) SetCurrent(amps float64) error {
	var applyErr error
	e.do(func(e *Engine) {
		if amps < 0 {
			applyErr = fmt.Errorf("engine: intended current must be >= 0, got %v", amps)
			return
		}
		e.intendedCurrent = amps
		e.sessionTracker.PersistNow(time.Now())
	})
	return applyErr
}

// GetConfig implements api.Commands (spec.md §6 GET /api/config).
func (e *Engine) GetConfig() *config.Config {
	var cfg *config.Config
	e.do(func(e *Engine) {
		c := *e.cfg
		cfg = &c
	})
	return cfg
}

// PutConfig implements api.Commands (spec.md §6 PUT /api/config):
// replaces the running configuration and re-derives every component
// that caches a value out of it.
func (e *Engine) PutConfig(cfg *config.Config) error {
	var applyErr error
	e.do(func(e *Engine) {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			applyErr = err
			return
		}
		e.cfg = cfg
		e.location = loc

		e.writerCfg = setpoint.Config{
			CurrentTolerance:      float32(cfg.CurrentTolerance),
			CurrentUpdateInterval: cfg.CurrentUpdateInterval,
			VerifyDelay:           cfg.VerifyDelay,
			MaxRetries:            cfg.MaxRetries,
		}
		e.writer = setpoint.NewWriter(e.writerCfg, e.client, e.writer.LastWrittenAmps(), uint16(e.phases.Current()), time.Now())

		e.phases.SinglePhaseMax = float32(cfg.SinglePhaseMax)
		e.phases.Hysteresis = float32(cfg.PhaseHysteresis)

		e.auto.EnableThreshold = float32(cfg.EnableThreshold)
		e.auto.EnableHoldSeconds = cfg.EnableHoldSeconds
		e.auto.DisableHoldSeconds = cfg.DisableHoldSeconds
		e.auto.Latitude = cfg.Latitude
		e.auto.Longitude = cfg.Longitude
		e.auto.UseDaylightGate = cfg.Latitude != 0 || cfg.Longitude != 0

		e.sessionTracker.PersistNow(time.Now())
	})
	return applyErr
}

// handleBusModeWrite applies an external write to /Mode (spec.md §6:
// the bus and the HTTP API share one command surface).
func (e *Engine) handleBusModeWrite(v any) {
	f, ok := toFloat64(v)
	if !ok {
		e.logger.Printf("[ENGINE] ignoring bus write to /Mode: not numeric (%T)", v)
		return
	}
	if err := e.SetMode(int(f)); err != nil {
		e.logger.Printf("[ENGINE] bus write to /Mode rejected: %v", err)
	}
}

// handleBusStartStopWrite applies an external write to /StartStop.
func (e *Engine) handleBusStartStopWrite(v any) {
	switch b := v.(type) {
	case bool:
		_ = e.SetStartStop(b)
	default:
		if f, ok := toFloat64(v); ok {
			_ = e.SetStartStop(f != 0)
			return
		}
		e.logger.Printf("[ENGINE] ignoring bus write to /StartStop: not boolean (%T)", v)
	}
}

// handleBusSetCurrentWrite applies an external write to /SetCurrent.
func (e *Engine) handleBusSetCurrentWrite(v any) {
	f, ok := toFloat64(v)
	if !ok {
		e.logger.Printf("[ENGINE] ignoring bus write to /SetCurrent: not numeric (%T)", v)
		return
	}
	if err := e.SetCurrent(f); err != nil {
		e.logger.Printf("[ENGINE] bus write to /SetCurrent rejected: %v", err)
	}
}
