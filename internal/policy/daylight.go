package policy

import (
	"time"

	"github.com/sixdouglas/suncalc"
)

// Daylight reports whether t falls between sunrise and sunset at the
// given coordinates, grounded on the teacher's mpc.go use of
// suncalc.GetTimes to gate solar forecasting to daylight hours. AUTO
// mode uses it the same way: outside daylight there is no PV excess
// to track, so AUTO returns 0 A and resets its hysteresis state
// (applied current and both hold timers).
func Daylight(t time.Time, latitude, longitude float64) bool {
	times := suncalc.GetTimes(t, latitude, longitude)
	sunrise, ok := times["sunrise"]
	if !ok {
		return true
	}
	sunset, ok := times["sunset"]
	if !ok {
		return true
	}
	return !t.Before(sunrise.Value) && !t.After(sunset.Value)
}
