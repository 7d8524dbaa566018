package policy

import "testing"

func TestManualClampsToStationMax(t *testing.T) {
	m := Manual{}
	ctx := SetpointContext{IntendedCurrent: 40, StationMaxCurrent: 32, MaxSetCurrent: 0, ActivePhases: 3}
	got := m.Evaluate(ctx)
	if got.DesiredAmps != 32 {
		t.Errorf("DesiredAmps = %v, want 32", got.DesiredAmps)
	}
}

func TestManualClampsToMaxSetCurrentWhenLower(t *testing.T) {
	m := Manual{}
	ctx := SetpointContext{IntendedCurrent: 20, StationMaxCurrent: 32, MaxSetCurrent: 10, ActivePhases: 3}
	got := m.Evaluate(ctx)
	if got.DesiredAmps != 10 {
		t.Errorf("DesiredAmps = %v, want 10", got.DesiredAmps)
	}
}

func TestManualNeverNegative(t *testing.T) {
	m := Manual{}
	ctx := SetpointContext{IntendedCurrent: -5, StationMaxCurrent: 32}
	got := m.Evaluate(ctx)
	if got.DesiredAmps != 0 {
		t.Errorf("DesiredAmps = %v, want 0", got.DesiredAmps)
	}
}
