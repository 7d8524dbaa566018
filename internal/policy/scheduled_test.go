package policy

import (
	"testing"
	"time"
)

func nightItem() ScheduleItem {
	return ScheduleItem{
		Active: true,
		DaysOfWeek: map[time.Weekday]bool{
			time.Sunday: true, time.Monday: true, time.Tuesday: true,
			time.Wednesday: true, time.Thursday: true,
		},
		Start:       23 * 60,
		End:         7 * 60,
		CurrentAmps: 16,
	}
}

func TestScheduledWrapAroundWindow(t *testing.T) {
	s := Scheduled{}
	item := nightItem()
	ctx := SetpointContext{StationMaxCurrent: 32, Schedule: []ScheduleItem{item}}

	// Tuesday 23:30 -> match.
	ctx.Now = time.Date(2026, 1, 6, 23, 30, 0, 0, time.UTC) // a Tuesday
	got := s.Evaluate(ctx)
	if !got.ScheduleMatched || got.DesiredAmps != 16 {
		t.Errorf("Tuesday 23:30: got %+v, want match at 16A", got)
	}

	// Wednesday 06:59 -> match (wrap-around).
	ctx.Now = time.Date(2026, 1, 7, 6, 59, 0, 0, time.UTC)
	got = s.Evaluate(ctx)
	if !got.ScheduleMatched || got.DesiredAmps != 16 {
		t.Errorf("Wednesday 06:59: got %+v, want match at 16A", got)
	}

	// Wednesday 07:00 -> no match.
	ctx.Now = time.Date(2026, 1, 7, 7, 0, 0, 0, time.UTC)
	got = s.Evaluate(ctx)
	if got.ScheduleMatched || got.DesiredAmps != 0 {
		t.Errorf("Wednesday 07:00: got %+v, want no match, 0A", got)
	}
}

func TestScheduledNoMatchYieldsZero(t *testing.T) {
	s := Scheduled{}
	ctx := SetpointContext{StationMaxCurrent: 32, Schedule: nil, Now: time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)}
	got := s.Evaluate(ctx)
	if got.DesiredAmps != 0 || got.ScheduleMatched {
		t.Errorf("got %+v, want no match, 0A", got)
	}
}

func TestScheduledFirstMatchWins(t *testing.T) {
	s := Scheduled{}
	first := ScheduleItem{Active: true, DaysOfWeek: map[time.Weekday]bool{time.Tuesday: true}, Start: 0, End: 24 * 60, CurrentAmps: 6}
	second := ScheduleItem{Active: true, DaysOfWeek: map[time.Weekday]bool{time.Tuesday: true}, Start: 0, End: 24 * 60, CurrentAmps: 20}
	ctx := SetpointContext{
		StationMaxCurrent: 32,
		Schedule:          []ScheduleItem{first, second},
		Now:               time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC),
	}
	got := s.Evaluate(ctx)
	if got.DesiredAmps != 6 {
		t.Errorf("DesiredAmps = %v, want 6 (first matching item wins)", got.DesiredAmps)
	}
}

func TestScheduledPriceWindowOverridesSchedule(t *testing.T) {
	s := Scheduled{}
	active := true
	ctx := SetpointContext{
		StationMaxCurrent: 32,
		Schedule:          nil, // would otherwise yield no match
		PriceWindowActive: &active,
		PriceWindowAmps:   12,
		Now:               time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC),
	}
	got := s.Evaluate(ctx)
	if !got.ScheduleMatched || got.DesiredAmps != 12 {
		t.Errorf("got %+v, want price window match at 12A", got)
	}
}

func TestNormalizeAmpsBoundary(t *testing.T) {
	if got := NormalizeAmps(3.0, 6.0); got != 0 {
		t.Errorf("NormalizeAmps(3.0, 6.0) = %v, want 0", got)
	}
	if got := NormalizeAmps(0, 6.0); got != 0 {
		t.Errorf("NormalizeAmps(0, 6.0) = %v, want 0", got)
	}
	if got := NormalizeAmps(6.0, 6.0); got != 6.0 {
		t.Errorf("NormalizeAmps(6.0, 6.0) = %v, want 6.0", got)
	}
	if got := NormalizeAmps(10.0, 6.0); got != 10.0 {
		t.Errorf("NormalizeAmps(10.0, 6.0) = %v, want 10.0", got)
	}
}
