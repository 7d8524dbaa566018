// Package charger implements the Alfen NG9xx register map on top of
// internal/modbus: it knows which addresses mean what, but nothing
// about control policy.
package charger

// Register addresses and widths, per spec.md §6.
const (
	// Socket (measurement) slave registers.
	RegVoltages   = 306 // 12 regs, 6 x float32: L1-N, L2-N, L3-N, L1-L2, L2-L3, L3-L1
	VoltagesCount = 12
	RegCurrents   = 320 // 8 regs, 4 x float32: L1, L2, L3, Sum
	CurrentsCount = 8
	RegPower      = 344 // 2 regs, float32, real power sum (W)
	PowerCount    = 2
	RegEnergy     = 374 // 4 regs, float64, real energy delivered sum (Wh)
	EnergyCount   = 4

	// Station (control) slave registers.
	RegStationMaxCurrent = 1100 // 2 regs, float32 (A)
	RegMode3State        = 1201 // 5 regs, ASCII
	Mode3StateCount      = 5
	RegAppliedCurrent    = 1206 // 2 regs, float32 (A)
	RegValidityTime      = 1208 // 2 regs, uint32 (s)
	RegSetCurrent        = 1210 // 2 regs, float32 (A), R/W
	RegPhaseCount        = 1215 // 1 reg, uint16, R/W

	// Identity registers, read once at startup.
	RegIdentityStart = 100
	IdentityCount    = 78 // 100..177
)

// Measurement and status/control windows are each read with a single
// contiguous read (spec.md §4.2 step 1: "Two reads, not one per
// field, to minimise round trips"), spanning the gaps between the
// individual fields listed in spec.md §6.
const (
	MeasurementBlockStart = RegVoltages             // 306
	MeasurementBlockCount = RegEnergy + EnergyCount - RegVoltages // 306..377 inclusive = 72 regs

	StatusBlockStart = RegMode3State                     // 1201
	StatusBlockCount = RegPhaseCount + 1 - RegMode3State // 1201..1215 inclusive = 15 regs
)

// MinEnableCurrent is the charger's minimum-enable threshold; a
// desired current below this is written as 0 to signal "pause"
// (spec.md §3 invariant 2).
const MinEnableCurrent = 6.0

// NominalPhaseVoltage is used when converting excess solar power to
// amps in AUTO mode (spec.md §4.5).
const NominalPhaseVoltage = 230.0
