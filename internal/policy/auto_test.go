package policy

import (
	"testing"
	"time"
)

func TestAutoExcessSolarHysteresisScenario(t *testing.T) {
	a := NewAuto()
	start := time.Unix(0, 0)

	base := SetpointContext{
		ActivePhases:      3,
		StationMaxCurrent: 32,
	}

	// pv=5000, house_load=2000 -> excess 3000W -> ~4.35A, below the
	// 6A enable threshold: applied stays 0.
	ctx := base
	ctx.Now = start
	ctx.PVWatts = 5000
	ctx.HouseLoadWatts = 2000
	got := a.Evaluate(ctx)
	if got.DesiredAmps != 0 {
		t.Fatalf("DesiredAmps = %v, want 0 while below enable threshold", got.DesiredAmps)
	}

	// Excess becomes sufficient: pv=8000, house_load=1000 -> 7000W ->
	// ~10.14A. Not yet enabled until enable_hold_seconds elapses.
	ctx.Now = start.Add(5 * time.Second)
	ctx.PVWatts = 8000
	ctx.HouseLoadWatts = 1000
	got = a.Evaluate(ctx)
	if got.DesiredAmps != 0 {
		t.Fatalf("DesiredAmps = %v, want 0 before hold elapses", got.DesiredAmps)
	}

	// Still below the 30s hold.
	ctx.Now = start.Add(20 * time.Second)
	got = a.Evaluate(ctx)
	if got.DesiredAmps != 0 {
		t.Fatalf("DesiredAmps = %v, want 0 at 20s (< 30s hold)", got.DesiredAmps)
	}

	// Past the 30s hold (counted from 5s): applied becomes ~10.14A.
	ctx.Now = start.Add(36 * time.Second)
	got = a.Evaluate(ctx)
	if got.DesiredAmps < 10.0 || got.DesiredAmps > 10.3 {
		t.Errorf("DesiredAmps = %v, want ~10.14", got.DesiredAmps)
	}
}

func TestAutoDisablesAfterSustainedLowExcess(t *testing.T) {
	a := NewAuto()
	start := time.Unix(0, 0)
	ctx := SetpointContext{ActivePhases: 3, StationMaxCurrent: 32, Now: start, PVWatts: 8000, HouseLoadWatts: 1000}

	for i := 0; i < 7; i++ {
		ctx.Now = start.Add(time.Duration(i) * 5 * time.Second)
		a.Evaluate(ctx)
	}
	if a.appliedAmps == 0 {
		t.Fatal("expected charging to have started")
	}

	// Excess drops to near zero.
	ctx.PVWatts = 100
	ctx.HouseLoadWatts = 2000
	ctx.Now = start.Add(40 * time.Second)
	got := a.Evaluate(ctx)
	if got.DesiredAmps == 0 {
		t.Fatal("should not disable immediately, disable hold has not elapsed")
	}

	ctx.Now = start.Add(40*time.Second + 61*time.Second)
	got = a.Evaluate(ctx)
	if got.DesiredAmps != 0 {
		t.Errorf("DesiredAmps = %v, want 0 after disable_hold_seconds elapses", got.DesiredAmps)
	}
}

func TestAutoForcesZeroBelowMinSOC(t *testing.T) {
	a := NewAuto()
	ctx := SetpointContext{
		ActivePhases:      3,
		StationMaxCurrent: 32,
		Now:               time.Unix(0, 0),
		PVWatts:           9000,
		SOCKnown:          true,
		SOC:               10,
		MinSOC:            20,
	}
	got := a.Evaluate(ctx)
	if got.DesiredAmps != 0 {
		t.Errorf("DesiredAmps = %v, want 0 when SOC < min_soc", got.DesiredAmps)
	}
}

func TestAutoAllowsChargingWhenSOCExactlyAtMin(t *testing.T) {
	a := NewAuto()
	start := time.Unix(0, 0)
	ctx := SetpointContext{
		ActivePhases:      3,
		StationMaxCurrent: 32,
		PVWatts:           9000,
		SOCKnown:          true,
		SOC:               20,
		MinSOC:            20,
	}
	for i := 0; i < 7; i++ {
		ctx.Now = start.Add(time.Duration(i) * 5 * time.Second)
		a.Evaluate(ctx)
	}
	if a.appliedAmps == 0 {
		t.Error("SOC exactly equal to min_soc must not trigger the low-SOC override")
	}
}
