// Package engine ties every other package into the single-logical-
// thread cooperative daemon described in spec.md §5: one inbox
// channel carrying ticks and user/HTTP requests, consumed by one
// goroutine, so no state the tick pipeline touches needs a lock.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/evcharged/evcharged/internal/api"
	"github.com/evcharged/evcharged/internal/bus"
	"github.com/evcharged/evcharged/internal/chart"
	"github.com/evcharged/evcharged/internal/charger"
	"github.com/evcharged/evcharged/internal/config"
	"github.com/evcharged/evcharged/internal/poll"
	"github.com/evcharged/evcharged/internal/policy"
	"github.com/evcharged/evcharged/internal/priceclient"
	"github.com/evcharged/evcharged/internal/session"
	"github.com/evcharged/evcharged/internal/setpoint"
	"github.com/evcharged/evcharged/internal/state"
	"github.com/evcharged/evcharged/internal/status"
)

// staleThreshold bounds how long the canonical status may stay at its
// last-known value after a read failure before the engine forces it
// to Disconnected (spec.md §7 "Transport").
const staleThreshold = 15 * time.Second

// transportCloser is the subset of *modbus.Transport the engine needs
// at shutdown; an interface so tests can supply a fake with no real
// socket.
type transportCloser interface {
	Close() error
}

// Engine owns every stateful component and the single goroutine that
// serialises all access to them.
type Engine struct {
	cfg      *config.Config
	location *time.Location
	logger   *log.Logger

	client    *charger.Client
	transport transportCloser

	statusTracker  *status.Tracker
	sessionTracker *session.Tracker
	store          *state.Store

	manual    policy.Manual
	auto      *policy.Auto
	scheduled policy.Scheduled
	phases    *policy.PhaseSelector

	writer *setpoint.Writer

	publisher bus.Publisher
	ring      *chart.Ring

	priceClient *priceclient.Client

	orchestrator *poll.Orchestrator

	inbox chan request

	mode            policy.Mode
	startStop       bool
	intendedCurrent float64

	lastSnapshot   charger.Snapshot
	lastStatus     status.Status
	lastGoodReadAt time.Time
	hasGoodRead    bool
	lastTickAt     time.Time
	hasTicked      bool

	writerCfg setpoint.Config
	active    atomic.Bool

	// currentPricePerKWh is the price effective at the current hour
	// when a dynamic price feed is active, otherwise 0; consumed by
	// the session tracker's cost accumulation.
	currentPricePerKWh float64

	// pvWatts, houseLoadWatts, batteryExportWatts, soc and socKnown
	// mirror the Victron system values AUTO mode needs. They arrive
	// via bus writes (no GX telemetry exists on the Alfen itself) and
	// are read fresh at the top of every tick.
	pvWatts            float32
	houseLoadWatts     float32
	batteryExportWatts float32
	soc                float64
	socKnown           bool
}

// request is one piece of work the single owner goroutine executes
// between ticks (spec.md §5: "enqueue requests that run between
// ticks, never concurrently with a tick").
type request struct {
	fn   func(*Engine)
	done chan struct{}
}

// New builds an Engine from a validated configuration, a Modbus
// transport, and a bus Publisher. It does not start any goroutine;
// call Bootstrap then Run.
func New(cfg *config.Config, transport charger.Transport, closer transportCloser, publisher bus.Publisher, priceClient *priceclient.Client, chartCapacity int, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine: load timezone: %w", err)
	}

	mode, err := parseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	store := state.NewStore(cfg.StatePath)

	e := &Engine{
		cfg:             cfg,
		location:        loc,
		logger:          logger,
		client:          charger.NewClient(transport, byte(cfg.Modbus.SocketSlaveID), byte(cfg.Modbus.StationSlaveID)),
		transport:       closer,
		statusTracker:   status.NewTracker(logger),
		sessionTracker:  session.NewTracker(store, logger),
		store:           store,
		auto:            policy.NewAuto(),
		phases:          policy.NewPhaseSelector(3),
		writer:          setpoint.NewWriter(setpoint.DefaultConfig(), nil, 0, 3, time.Time{}),
		publisher:       publisher,
		ring:            chart.NewRing(chartCapacity),
		priceClient:     priceClient,
		mode:            mode,
		startStop:       cfg.StartStop,
		intendedCurrent: cfg.Intended,
		inbox:           make(chan request, 16),
	}

	writerCfg := setpoint.Config{
		CurrentTolerance:      float32(cfg.CurrentTolerance),
		CurrentUpdateInterval: cfg.CurrentUpdateInterval,
		VerifyDelay:           cfg.VerifyDelay,
		MaxRetries:            cfg.MaxRetries,
	}
	e.writerCfg = writerCfg
	e.writer = setpoint.NewWriter(writerCfg, e.client, 0, 3, time.Time{})

	e.phases.SinglePhaseMax = float32(cfg.SinglePhaseMax)
	e.phases.Hysteresis = float32(cfg.PhaseHysteresis)

	e.auto.EnableThreshold = float32(cfg.EnableThreshold)
	e.auto.EnableHoldSeconds = cfg.EnableHoldSeconds
	e.auto.DisableHoldSeconds = cfg.DisableHoldSeconds
	e.auto.Latitude = cfg.Latitude
	e.auto.Longitude = cfg.Longitude
	e.auto.UseDaylightGate = cfg.Latitude != 0 || cfg.Longitude != 0

	e.sessionTracker.DaemonState = e.daemonState

	activeInterval := time.Duration(cfg.ActiveIntervalMS) * time.Millisecond
	idleInterval := time.Duration(cfg.IdleIntervalMS) * time.Millisecond
	e.orchestrator = poll.NewOrchestrator(activeInterval, idleInterval, e.active.Load)

	if publisher != nil {
		publisher.OnUserWrite(bus.PathMode, func(v any) { e.handleBusModeWrite(v) })
		publisher.OnUserWrite(bus.PathStartStop, func(v any) { e.handleBusStartStopWrite(v) })
		publisher.OnUserWrite(bus.PathSetCurrent, func(v any) { e.handleBusSetCurrentWrite(v) })
	}

	return e, nil
}

// Bootstrap performs the one-time startup sequence: read the
// charger's identity and station max current, then resume any
// persisted session.
func (e *Engine) Bootstrap() error {
	identity, err := e.client.ReadIdentity()
	if err != nil {
		e.logger.Printf("[ENGINE] failed to read charger identity: %v", err)
	} else {
		e.logger.Printf("[ENGINE] connected to %s serial=%s firmware=%s", identity.ProductName, identity.Serial, identity.Firmware)
	}

	if _, err := e.client.ReadStationMaxCurrent(); err != nil {
		e.logger.Printf("[ENGINE] failed to read station max current: %v", err)
	}

	snap, ok, err := e.store.Load()
	if err != nil {
		e.logger.Printf("[ENGINE] failed to load persisted state: %v", err)
	} else if ok && snap.Daemon != nil {
		if m, err := parseMode(snap.Daemon.Mode); err == nil {
			e.mode = m
		}
		e.startStop = snap.Daemon.StartStop
		e.intendedCurrent = snap.Daemon.IntendedCurrent
		e.writer = setpoint.NewWriter(e.writerCfg, e.client, float32(snap.Daemon.LastAppliedAmps), uint16(snap.Daemon.LastAppliedPhase), time.Now())
		e.phases = policy.NewPhaseSelector(snap.Daemon.LastAppliedPhase)
		e.phases.SinglePhaseMax = float32(e.cfg.SinglePhaseMax)
		e.phases.Hysteresis = float32(e.cfg.PhaseHysteresis)
	}

	e.statusTracker = status.NewTracker(e.logger)
	e.sessionTracker.Resume(time.Now(), e.statusTracker.Current())
	return nil
}

// Run drives the engine until ctx is cancelled, then performs the
// shutdown sequence from spec.md §5.
func (e *Engine) Run(ctx context.Context) error {
	go e.orchestrator.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			e.runShutdown()
			return ctx.Err()

		case now := <-e.orchestrator.Ticks():
			e.runTick(now)
			e.orchestrator.Done()

		case req := <-e.inbox:
			req.fn(e)
			close(req.done)
		}
	}
}

// do enqueues fn to run inside the owner goroutine and blocks until
// it has executed, giving callers from other goroutines (the HTTP API
// and the bus collaborator) a safe way to read or mutate engine state.
func (e *Engine) do(fn func(*Engine)) {
	done := make(chan struct{})
	e.inbox <- request{fn: fn, done: done}
	<-done
}

func (e *Engine) runShutdown() {
	e.logger.Printf("[ENGINE] shutting down")

	// The tick pipeline has no internal suspension point it can be
	// aborted at mid-flight, so the 2s shutdown deadline (spec.md §5)
	// is satisfied by the pipeline's own per-operation Modbus timeouts
	// rather than a separate context here.
	if e.cfg.StartStopOnExit == "safe" {
		if err := e.writer.Tick(time.Now(), 0, true); err != nil {
			e.logger.Printf("[ENGINE] failed to zero setpoint on exit: %v", err)
		}
	}

	if s := e.sessionTracker.Current(); s != nil {
		now := time.Now()
		e.sessionTracker.OnTransition(now, status.Transition{From: e.lastStatus, To: status.Disconnected}, e.lastSnapshot.EnergyWh)
	}

	e.sessionTracker.PersistNow(time.Now())

	if e.transport != nil {
		if err := e.transport.Close(); err != nil {
			e.logger.Printf("[ENGINE] error closing transport: %v", err)
		}
	}
}

func (e *Engine) daemonState() *state.DaemonState {
	return &state.DaemonState{
		Mode:             e.mode.String(),
		StartStop:        e.startStop,
		IntendedCurrent:  e.intendedCurrent,
		LastAppliedAmps:  float64(e.writer.LastWrittenAmps()),
		LastAppliedPhase: e.phases.Current(),
		LastStatus:       int(e.lastStatus),
	}
}

func parseMode(m string) (policy.Mode, error) {
	switch m {
	case "MANUAL":
		return policy.ModeManual, nil
	case "AUTO":
		return policy.ModeAuto, nil
	case "SCHEDULED":
		return policy.ModeScheduled, nil
	default:
		return policy.ModeManual, fmt.Errorf("engine: unknown mode %q", m)
	}
}

func toStatusMode(m policy.Mode) status.Mode {
	switch m {
	case policy.ModeAuto:
		return status.ModeAuto
	case policy.ModeScheduled:
		return status.ModeScheduled
	default:
		return status.ModeManual
	}
}

var _ api.Commands = (*Engine)(nil)
