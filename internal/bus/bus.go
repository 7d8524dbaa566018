// Package bus defines the narrow contract the engine uses to publish
// to, and accept writes from, a Victron-style system bus (spec.md §1:
// the real dbus binding is an external collaborator and explicitly
// out of scope; only the contract and a test double live here).
package bus

import "strconv"

// Well-known object paths published by the daemon (spec.md §6).
const (
	PathMode           = "/Mode"
	PathStartStop      = "/StartStop"
	PathSetCurrent     = "/SetCurrent"
	PathMaxCurrent     = "/MaxCurrent"
	PathStatus         = "/Status"
	PathAcCurrent      = "/Ac/Current"
	PathAcPower        = "/Ac/Power"
	PathAcEnergyFwd    = "/Ac/Energy/Forward"
	PathChargingTime   = "/ChargingTime"
)

// PathAcPhase returns the well-known path for a per-phase
// voltage/current/power field, phase in {1,2,3}.
func PathAcPhase(phase int, field string) string {
	return "/Ac/L" + strconv.Itoa(phase) + "/" + field
}

// System paths published by other services on the GX bus that AUTO
// mode's excess-solar tracking reads (spec.md §4.5: "using the
// published grid-import/PV/battery values"). The daemon never writes
// these; it only observes them.
const (
	PathSystemPvPower      = "/System/Pv/Power"
	PathSystemHouseLoad    = "/System/Ac/Consumption/Power"
	PathSystemBatteryPower = "/System/Battery/Power" // positive = exporting to the house
	PathSystemBatterySOC   = "/System/Battery/Soc"
)

// Publisher is the interface the engine depends on. Implementations
// own the actual bus connection; SetValue pushes a value out,
// Value reads the last known value at any path (including foreign
// system paths this daemon does not itself publish), and OnUserWrite
// registers a callback invoked when an external party writes to a
// writable path.
type Publisher interface {
	SetValue(path string, v any) error
	Value(path string) (any, bool)
	OnUserWrite(path string, cb func(v any))
}

// UserWrite is one write accepted by a Publisher and queued for the
// engine to apply on its next tick (spec.md §5: "enqueue requests
// that run between ticks, never concurrently with a tick").
type UserWrite struct {
	Path  string
	Value any
}
