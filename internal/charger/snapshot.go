package charger

import (
	"github.com/evcharged/evcharged/internal/modbus"
)

// PhaseVoltages holds the six phase/line voltages read from register
// block 306-317, in the order the charger exposes them.
type PhaseVoltages struct {
	L1N, L2N, L3N float32
	L1L2, L2L3, L3L1 float32
}

// PhaseCurrents holds the four current readings from register block
// 320-327.
type PhaseCurrents struct {
	L1, L2, L3, Sum float32
}

// Snapshot is a point-in-time sample of the charger (spec.md §3
// "Register snapshot"). Identity fields are not part of the snapshot:
// they are read once at startup and cached separately (see Identity).
type Snapshot struct {
	Voltages PhaseVoltages
	Currents PhaseCurrents
	PowerW   float32
	EnergyWh float64

	RawStatus string // two-ASCII-character mode-3 state, e.g. "A", "B1", "C2"

	StationMaxCurrent   float32 // A
	IntendedCurrent     float32 // A, "actual applied max current" register 1206
	SetCurrent          float32 // A, register 1210 (modbus-set max current)
	PhaseCount          int     // 1 or 3, coerced from register 1215 (value 2 -> 3)
	RawPhaseCountValue  uint16  // the raw register value before coercion, for diagnostics

	// PhaseCountCoercions counts how many times this snapshot's phase
	// register held a value other than the documented 1 or 3 (the
	// undocumented value 2 from spec.md §9's Open Question, or any
	// other garbled read), coerced to 3. Exposed as a plain counter
	// since no metrics library is wired (see SPEC_FULL.md REDESIGN
	// FLAGS #3 / DESIGN.md).
	PhaseCountCoercions int
}

// Identity holds the charger's read-once-at-startup identity fields
// (product name, serial, firmware, platform), cached for the life of
// the process.
type Identity struct {
	ProductName string
	Serial      string
	Firmware    string
	Platform    string
}

// decodeMeasurementBlock parses the 72-register measurement block
// (306..377) read in one shot.
func decodeMeasurementBlock(regs []byte) (PhaseVoltages, PhaseCurrents, float32, float64) {
	// Offsets are in bytes from the start of the block (register 306).
	v := PhaseVoltages{
		L1N:  modbus.Float32(regs[0:4]),
		L2N:  modbus.Float32(regs[4:8]),
		L3N:  modbus.Float32(regs[8:12]),
		L1L2: modbus.Float32(regs[12:16]),
		L2L3: modbus.Float32(regs[16:20]),
		L3L1: modbus.Float32(regs[20:24]),
	}

	currentsOffset := (RegCurrents - RegVoltages) * 2
	c := PhaseCurrents{
		L1:  modbus.Float32(regs[currentsOffset : currentsOffset+4]),
		L2:  modbus.Float32(regs[currentsOffset+4 : currentsOffset+8]),
		L3:  modbus.Float32(regs[currentsOffset+8 : currentsOffset+12]),
		Sum: modbus.Float32(regs[currentsOffset+12 : currentsOffset+16]),
	}

	powerOffset := (RegPower - RegVoltages) * 2
	power := modbus.Float32(regs[powerOffset : powerOffset+4])

	energyOffset := (RegEnergy - RegVoltages) * 2
	energy := modbus.Float64(regs[energyOffset : energyOffset+8])

	return v, c, power, energy
}

// decodeStatusBlock parses the 15-register status/control block
// (1201..1215) read in one shot, applying the phase-count-2
// coercion noted in spec.md §9. Station max current (register
// 1100-1101) lies outside this block and is read separately, once at
// startup (see Client.ReadStationMaxCurrent) — the orchestrator issues
// exactly two reads per tick (spec.md §4.2 step 1).
func decodeStatusBlock(regs []byte) (rawStatus string, applied, setCurrent float32, phaseCount int, rawPhase uint16, coerced bool) {
	rawStatus = modbus.ASCIIString(regs[0:10]) // 5 regs = 10 bytes

	appliedOffset := (RegAppliedCurrent - RegMode3State) * 2
	applied = modbus.Float32(regs[appliedOffset : appliedOffset+4])

	setOffset := (RegSetCurrent - RegMode3State) * 2
	setCurrent = modbus.Float32(regs[setOffset : setOffset+4])

	phaseOffset := (RegPhaseCount - RegMode3State) * 2
	rawPhase = modbus.Uint16(regs[phaseOffset : phaseOffset+2])

	switch rawPhase {
	case 1:
		phaseCount = 1
	case 3:
		phaseCount = 3
	default:
		// Anything other than 1 or 3 (the documented value 2, or a
		// garbled read) is coerced to 3, the safer assumption for a
		// wallbox wired for three phases.
		phaseCount = 3
		coerced = true
	}

	return
}
