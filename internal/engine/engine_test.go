package engine

import (
	"context"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/evcharged/evcharged/internal/bus"
	"github.com/evcharged/evcharged/internal/charger"
	"github.com/evcharged/evcharged/internal/config"
	"github.com/evcharged/evcharged/internal/modbus"
	"github.com/evcharged/evcharged/internal/status"
)

// fakeTransport is a minimal in-memory charger.Transport double,
// mirroring the register-map style of charger's own test fake.
type fakeTransport struct {
	regs map[uint16][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: make(map[uint16][]byte)}
}

func (f *fakeTransport) setRegs(start uint16, data []byte) {
	for i := 0; i*2 < len(data); i++ {
		f.regs[start+uint16(i)] = data[i*2 : i*2+2]
	}
}

func (f *fakeTransport) ReadHolding(address, count uint16, slaveID byte) ([]byte, error) {
	out := make([]byte, 0, int(count)*2)
	for i := uint16(0); i < count; i++ {
		reg, ok := f.regs[address+i]
		if !ok {
			reg = []byte{0, 0}
		}
		out = append(out, reg...)
	}
	return out, nil
}

func (f *fakeTransport) WriteSingle(address uint16, value uint16, slaveID byte) error {
	f.setRegs(address, modbus.EncodeUint16(value))
	return nil
}

func (f *fakeTransport) WriteMultiple(address uint16, values []byte, slaveID byte) error {
	f.setRegs(address, values)
	return nil
}

func (f *fakeTransport) EnsureConnected() error { return nil }

func (f *fakeTransport) Close() error { return nil }

// setMeasurementBlock populates the socket-side measurement window
// (register 306..377) with the given power and energy, leaving
// voltages/currents at a plausible 3-phase reading.
func (f *fakeTransport) setMeasurementBlock(powerW float32, energyWh float64) {
	buf := make([]byte, charger.MeasurementBlockCount*2)
	for i, v := range []float32{230, 230, 230, 400, 400, 400} {
		copy(buf[i*4:i*4+4], modbus.EncodeFloat32(v))
	}
	currentsOffset := (charger.RegCurrents - charger.RegVoltages) * 2
	for i, v := range []float32{10, 10, 10, 30} {
		copy(buf[currentsOffset+i*4:currentsOffset+i*4+4], modbus.EncodeFloat32(v))
	}
	powerOffset := (charger.RegPower - charger.RegVoltages) * 2
	copy(buf[powerOffset:powerOffset+4], modbus.EncodeFloat32(powerW))
	energyOffset := (charger.RegEnergy - charger.RegVoltages) * 2
	copy(buf[energyOffset:energyOffset+8], modbus.EncodeFloat64(energyWh))
	f.setRegs(charger.MeasurementBlockStart, buf)
}

// setStatusBlock populates the station-side status/control window
// (register 1201..1215) with the given raw mode-3 state and phase
// count raw value (1 or 2).
func (f *fakeTransport) setStatusBlock(rawStatus string, phaseRaw uint16) {
	buf := make([]byte, charger.StatusBlockCount*2)
	ascii := make([]byte, 10)
	copy(ascii, rawStatus)
	copy(buf[0:10], ascii)
	// registers 1206-1207 (applied current) and 1208-1209 (validity
	// time) are left zero; tests don't assert on them.
	setOffset := (charger.RegSetCurrent - charger.RegMode3State) * 2
	copy(buf[setOffset:setOffset+4], modbus.EncodeFloat32(0))
	phaseOffset := (charger.RegPhaseCount - charger.RegMode3State) * 2
	copy(buf[phaseOffset:phaseOffset+2], modbus.EncodeUint16(phaseRaw))
	f.setRegs(charger.StatusBlockStart, buf)
}

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Mode = mode
	cfg.StatePath = filepath.Join(t.TempDir(), "state.json")
	cfg.ActiveIntervalMS = 1000
	cfg.IdleIntervalMS = 5000
	cfg.EnableThreshold = 6.0
	return cfg
}

func silentLogger() *log.Logger {
	return log.New(&discard{}, "", 0)
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestEngine(t *testing.T, cfg *config.Config, ft *fakeTransport, publisher bus.Publisher) *Engine {
	t.Helper()
	e, err := New(cfg, ft, ft, publisher, nil, 64, silentLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return e
}

func TestRunTickOpensSessionOnPlugIn(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatusBlock("A", 1)
	ft.setMeasurementBlock(0, 0)

	cfg := testConfig(t, "MANUAL")
	cfg.Intended = 10
	e := newTestEngine(t, cfg, ft, bus.NewMemoryBus())

	now := time.Unix(1000, 0)
	e.runTick(now)
	if got := e.sessionTracker.Current(); got != nil {
		t.Fatalf("session open while Disconnected: %+v", got)
	}

	ft.setStatusBlock("C2", 1)
	ft.setMeasurementBlock(2300, 500)
	e.runTick(now.Add(time.Second))

	if e.lastStatus != status.Charging {
		t.Fatalf("lastStatus = %v, want Charging", e.lastStatus)
	}
	s := e.sessionTracker.Current()
	if s == nil {
		t.Fatal("expected an open session after transition to Charging")
	}
	if s.StartEnergyWh != 500 {
		t.Errorf("StartEnergyWh = %v, want 500", s.StartEnergyWh)
	}
}

func TestRunTickManualModeWritesIntendedCurrent(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatusBlock("C2", 1)
	ft.setMeasurementBlock(2300, 100)

	cfg := testConfig(t, "MANUAL")
	cfg.Intended = 10
	cfg.MaxSetCurrent = 32
	e := newTestEngine(t, cfg, ft, bus.NewMemoryBus())

	now := time.Unix(2000, 0)
	e.runTick(now)

	if got := e.writer.LastWrittenAmps(); got != 10 {
		t.Errorf("LastWrittenAmps() = %v, want 10", got)
	}
}

func TestRunTickAutoModeHoldsBelowThreshold(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatusBlock("C1", 1)
	ft.setMeasurementBlock(0, 0)

	pub := bus.NewMemoryBus()
	pub.SetValue(bus.PathSystemPvPower, float64(1000))
	pub.SetValue(bus.PathSystemHouseLoad, float64(900))

	cfg := testConfig(t, "AUTO")
	e := newTestEngine(t, cfg, ft, pub)

	now := time.Unix(3000, 0)
	e.runTick(now)

	if got := e.writer.LastWrittenAmps(); got != 0 {
		t.Errorf("LastWrittenAmps() = %v, want 0 while excess is below enable threshold", got)
	}
}

func TestRunShutdownZerosSetpointWhenConfigured(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatusBlock("C2", 1)
	ft.setMeasurementBlock(2300, 100)

	cfg := testConfig(t, "MANUAL")
	cfg.Intended = 10
	cfg.StartStopOnExit = "safe"
	e := newTestEngine(t, cfg, ft, bus.NewMemoryBus())

	e.runTick(time.Unix(4000, 0))
	if e.writer.LastWrittenAmps() == 0 {
		t.Fatal("expected a nonzero setpoint to be written before shutdown")
	}

	e.runShutdown()
	if got := e.writer.LastWrittenAmps(); got != 0 {
		t.Errorf("LastWrittenAmps() after shutdown = %v, want 0", got)
	}
}

func TestDoRunsClosureInsideOwnerGoroutine(t *testing.T) {
	ft := newFakeTransport()
	ft.setStatusBlock("A", 1)
	ft.setMeasurementBlock(0, 0)

	cfg := testConfig(t, "MANUAL")
	e := newTestEngine(t, cfg, ft, bus.NewMemoryBus())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go e.Run(ctx)

	if err := e.SetCurrent(12); err != nil {
		t.Fatalf("SetCurrent() error = %v", err)
	}
	snap := e.CurrentStatus()
	if snap.Mode != 0 {
		t.Errorf("Mode = %v, want 0 (MANUAL)", snap.Mode)
	}
}
