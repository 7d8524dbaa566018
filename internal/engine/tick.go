package engine

import (
	"context"
	"time"

	"github.com/evcharged/evcharged/internal/bus"
	"github.com/evcharged/evcharged/internal/chart"
	"github.com/evcharged/evcharged/internal/charger"
	"github.com/evcharged/evcharged/internal/policy"
	"github.com/evcharged/evcharged/internal/priceclient"
	"github.com/evcharged/evcharged/internal/status"
)

// runTick performs one poll cycle per spec.md §4.2: read, decode,
// status mapping, session update, setpoint computation, apply,
// publish.
func (e *Engine) runTick(now time.Time) {
	snap, err := e.client.ReadSnapshot()
	if err != nil {
		e.logger.Printf("[ENGINE] read snapshot failed: %v", err)
		if e.hasGoodRead && now.Sub(e.lastGoodReadAt) > staleThreshold {
			e.forceDisconnected(now)
		}
		return
	}
	e.lastGoodReadAt = now
	e.hasGoodRead = true
	if snap.PhaseCountCoercions > 0 && e.lastSnapshot.PhaseCountCoercions == 0 {
		e.logger.Printf("[ENGINE] phase-count register read %d, treating as 3 phases", snap.RawPhaseCountValue)
	}
	e.lastSnapshot = snap

	e.refreshSystemValues()

	ctx := e.buildSetpointContext(now, snap)
	e.applyPriceFeed(now, &ctx)

	excess := e.excessWatts()
	statusCtx := status.Context{
		Mode:                 toStatusMode(e.mode),
		StartStop:            e.startStop,
		PowerW:               snap.PowerW,
		ExcessW:              excess,
		ActivePhases:         snap.PhaseCount,
		MinEnableCurrent:     float32(e.cfg.EnableThreshold),
		NominalPhaseVoltage:  charger.NominalPhaseVoltage,
		SOCKnown:             e.socKnown,
		SOC:                  e.soc,
		MinSOC:               e.cfg.MinSOC,
		ScheduleActiveWindow: e.scheduleActiveWindowFor(now, ctx),
	}

	transition := e.statusTracker.Update(now, snap.RawStatus, statusCtx)
	e.lastStatus = transition.To
	e.active.Store(e.lastStatus == status.Charging || e.lastStatus == status.Connected)

	e.sessionTracker.OnTransition(now, transition, snap.EnergyWh)

	result := e.evaluatorFor(e.mode).Evaluate(ctx)
	desiredAmps := policy.NormalizeAmps(result.DesiredAmps, float32(e.cfg.EnableThreshold))

	isCharging := e.lastStatus == status.Charging
	desiredPhases, forceZero := e.phases.Select(now, desiredAmps, isCharging)

	if err := e.writer.Tick(now, desiredAmps, forceZero); err != nil {
		e.logger.Printf("[ENGINE] setpoint write failed: %v", err)
	}
	if err := e.writer.WritePhases(uint16(desiredPhases)); err != nil {
		e.logger.Printf("[ENGINE] phase write failed: %v", err)
	}

	tickSeconds := e.intervalSeconds(now)
	priceActive := ctx.PriceWindowActive != nil && *ctx.PriceWindowActive
	e.sessionTracker.Tick(now, snap.EnergyWh, tickSeconds, float64(snap.PowerW)/1000.0, e.currentPricePerKWh, priceActive)
	e.lastTickAt = now
	e.hasTicked = true

	e.publish(now, snap)
}

func (e *Engine) intervalSeconds(now time.Time) float64 {
	if !e.hasTicked {
		return float64(e.cfg.ActiveIntervalMS) / 1000.0
	}
	return now.Sub(e.lastTickAt).Seconds()
}

// forceDisconnected synthesizes a transition to Disconnected when the
// charger has been unreachable for longer than staleThreshold
// (spec.md §7 "Transport"), without fabricating a fake snapshot.
func (e *Engine) forceDisconnected(now time.Time) {
	if e.lastStatus == status.Disconnected {
		return
	}
	t := status.Transition{From: e.lastStatus, To: status.Disconnected}
	e.lastStatus = status.Disconnected
	e.active.Store(false)
	e.logger.Printf("[STATUS] forcing Disconnected after %s without a successful read", staleThreshold)
	e.sessionTracker.OnTransition(now, t, e.lastSnapshot.EnergyWh)
}

// excessWatts computes P_excess_w per spec.md §4.5 from the PV,
// house-load and battery-export figures last observed on the bus.
func (e *Engine) excessWatts() float32 {
	excess := e.pvWatts - e.houseLoadWatts + e.batteryExportWatts
	if excess < 0 {
		excess = 0
	}
	return excess
}

// scheduleActiveWindowFor reports whether SCHEDULED mode currently
// considers itself inside an active charging window, honouring a
// price-strategy override exactly as policy.Scheduled.Evaluate does so
// the WaitStart status override agrees with the setpoint evaluator's
// own decision (spec.md §4.3, §4.5).
func (e *Engine) scheduleActiveWindowFor(now time.Time, ctx policy.SetpointContext) bool {
	if e.mode != policy.ModeScheduled {
		return false
	}
	if ctx.PriceWindowActive != nil {
		return *ctx.PriceWindowActive
	}
	local := now.In(e.location)
	for _, item := range e.scheduleItems() {
		if item.Matches(local) {
			return true
		}
	}
	return false
}

func (e *Engine) scheduleItems() []policy.ScheduleItem {
	items := make([]policy.ScheduleItem, 0, len(e.cfg.Schedule))
	for _, sc := range e.cfg.Schedule {
		days := make(map[time.Weekday]bool, len(sc.DaysOfWeek))
		for _, d := range sc.DaysOfWeek {
			days[time.Weekday(d)] = true
		}
		start, err := parseHHMM(sc.Start)
		if err != nil {
			continue
		}
		end, err := parseHHMM(sc.End)
		if err != nil {
			continue
		}
		items = append(items, policy.ScheduleItem{
			Active:      sc.Active,
			DaysOfWeek:  days,
			Start:       start,
			End:         end,
			CurrentAmps: float32(sc.CurrentAmps),
		})
	}
	return items
}

func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (e *Engine) buildSetpointContext(now time.Time, snap charger.Snapshot) policy.SetpointContext {
	return policy.SetpointContext{
		Now:                now.In(e.location),
		StationMaxCurrent:  snap.StationMaxCurrent,
		MaxSetCurrent:      float32(e.cfg.MaxSetCurrent),
		IntendedCurrent:    float32(e.intendedCurrent),
		ActivePhases:       e.phases.Current(),
		PVWatts:            e.pvWatts,
		HouseLoadWatts:     e.houseLoadWatts,
		BatteryExportWatts: e.batteryExportWatts,
		SOCKnown:           e.socKnown,
		SOC:                e.soc,
		MinSOC:             e.cfg.MinSOC,
		Schedule:           e.scheduleItems(),
	}
}

func (e *Engine) evaluatorFor(m policy.Mode) policy.Evaluator {
	switch m {
	case policy.ModeAuto:
		return e.auto
	case policy.ModeScheduled:
		return e.scheduled
	default:
		return e.manual
	}
}

// applyPriceFeed overrides SCHEDULED-mode window selection with the
// price strategy outcome when a dynamic price feed is configured and
// enabled (spec.md §4.5).
func (e *Engine) applyPriceFeed(now time.Time, ctx *policy.SetpointContext) {
	e.currentPricePerKWh = 0
	if e.priceClient == nil || !e.cfg.PriceFeed.Enabled || e.mode != policy.ModeScheduled {
		return
	}

	prices, err := e.priceClient.Prices(context.Background(), now)
	if err != nil {
		e.logger.Printf("[ENGINE] price feed unavailable: %v", err)
		return
	}

	in := priceclient.Input{
		Now:           now,
		Prices:        prices,
		Strategy:      priceclient.Strategy(e.cfg.PriceFeed.Strategy),
		AbsoluteLimit: e.cfg.PriceFeed.AbsoluteLimit,
		Tolerance:     e.cfg.PriceFeed.Tolerance,
		Percentile:    e.cfg.PriceFeed.Percentile,
	}
	charge, priceAtHour, ok := priceclient.ShouldCharge(in)
	if !ok {
		return
	}

	ctx.PriceWindowActive = &charge
	ctx.PriceWindowAmps = float32(e.cfg.PriceFeed.ChargeAmps)
	e.currentPricePerKWh = priceAtHour
}

func (e *Engine) publish(now time.Time, snap charger.Snapshot) {
	if e.publisher != nil {
		_ = e.publisher.SetValue(bus.PathMode, int(e.mode))
		_ = e.publisher.SetValue(bus.PathStartStop, e.startStop)
		_ = e.publisher.SetValue(bus.PathSetCurrent, e.writer.LastWrittenAmps())
		_ = e.publisher.SetValue(bus.PathMaxCurrent, snap.StationMaxCurrent)
		_ = e.publisher.SetValue(bus.PathStatus, int(e.lastStatus))
		_ = e.publisher.SetValue(bus.PathAcCurrent, snap.Currents.Sum)
		_ = e.publisher.SetValue(bus.PathAcPower, snap.PowerW)
		_ = e.publisher.SetValue(bus.PathAcEnergyFwd, snap.EnergyWh)
		_ = e.publisher.SetValue(bus.PathAcPhase(1, "Voltage"), snap.Voltages.L1N)
		_ = e.publisher.SetValue(bus.PathAcPhase(2, "Voltage"), snap.Voltages.L2N)
		_ = e.publisher.SetValue(bus.PathAcPhase(3, "Voltage"), snap.Voltages.L3N)
		_ = e.publisher.SetValue(bus.PathAcPhase(1, "Current"), snap.Currents.L1)
		_ = e.publisher.SetValue(bus.PathAcPhase(2, "Current"), snap.Currents.L2)
		_ = e.publisher.SetValue(bus.PathAcPhase(3, "Current"), snap.Currents.L3)
		_ = e.publisher.SetValue(bus.PathAcPhase(1, "Power"), snap.Voltages.L1N*snap.Currents.L1)
		_ = e.publisher.SetValue(bus.PathAcPhase(2, "Power"), snap.Voltages.L2N*snap.Currents.L2)
		_ = e.publisher.SetValue(bus.PathAcPhase(3, "Power"), snap.Voltages.L3N*snap.Currents.L3)
		_ = e.publisher.SetValue(bus.PathChargingTime, e.chargingTimeSeconds(now))
	}

	e.ring.Add(chartPoint(now, snap, e.lastStatus))
}

func (e *Engine) chargingTimeSeconds(now time.Time) float64 {
	s := e.sessionTracker.Current()
	if s == nil {
		return 0
	}
	return now.Sub(s.StartTS).Seconds()
}

func chartPoint(now time.Time, snap charger.Snapshot, st status.Status) chart.Point {
	return chart.Point{
		Time:   now,
		PowerW: snap.PowerW,
		Amps:   snap.Currents.Sum,
		Status: int(st),
	}
}

// refreshSystemValues reads the PV/house-load/battery/SOC values
// published onto the bus by the Victron collaborator, leaving the
// previous reading in place when a path is absent or of the wrong
// type (spec.md §4.5: AUTO mode has no direct telemetry of its own).
func (e *Engine) refreshSystemValues() {
	if e.publisher == nil {
		return
	}
	if v, ok := e.publisher.Value(bus.PathSystemPvPower); ok {
		if f, ok := toFloat32(v); ok {
			e.pvWatts = f
		}
	}
	if v, ok := e.publisher.Value(bus.PathSystemHouseLoad); ok {
		if f, ok := toFloat32(v); ok {
			e.houseLoadWatts = f
		}
	}
	if v, ok := e.publisher.Value(bus.PathSystemBatteryPower); ok {
		if f, ok := toFloat32(v); ok {
			e.batteryExportWatts = f
		}
	}
	if v, ok := e.publisher.Value(bus.PathSystemBatterySOC); ok {
		if f, ok := toFloat64(v); ok {
			e.soc = f
			e.socKnown = true
		}
	}
}

func toFloat32(v any) (float32, bool) {
	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	return float32(f), true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
