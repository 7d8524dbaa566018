package status

import (
	"log"
	"io"
	"testing"
	"time"
)

func silentTracker() *Tracker {
	return NewTracker(log.New(io.Discard, "", 0))
}

func TestTrackerOpensOnFirstConnection(t *testing.T) {
	tr := silentTracker()
	now := time.Unix(0, 0)

	tt := tr.Update(now, "B1", Context{})
	if !tt.OpensSession() {
		t.Errorf("expected transition to open a session, got %+v", tt)
	}
	if tr.Current() != Connected {
		t.Errorf("Current() = %v, want Connected", tr.Current())
	}
}

func TestTrackerPromotesToChargedAfterSustainedLowPower(t *testing.T) {
	tr := silentTracker()
	now := time.Unix(0, 0)

	tr.Update(now, "C2", Context{PowerW: 5000})
	if tr.Current() != Charging {
		t.Fatalf("Current() = %v, want Charging", tr.Current())
	}

	tr.Update(now.Add(10*time.Second), "C2", Context{PowerW: 50})
	if tr.Current() != Charging {
		t.Fatalf("Current() = %v, want still Charging before hold elapses", tr.Current())
	}

	tt := tr.Update(now.Add(41*time.Second), "C2", Context{PowerW: 50})
	if tr.Current() != Charged {
		t.Errorf("Current() = %v, want Charged", tr.Current())
	}
	if tt.From != Charging || tt.To != Charged {
		t.Errorf("transition = %+v, want Charging -> Charged", tt)
	}
}

func TestTrackerLowPowerTimerResetsWhenPowerRecovers(t *testing.T) {
	tr := silentTracker()
	now := time.Unix(0, 0)

	tr.Update(now, "C2", Context{PowerW: 5000})
	tr.Update(now.Add(20*time.Second), "C2", Context{PowerW: 50})
	tr.Update(now.Add(25*time.Second), "C2", Context{PowerW: 5000}) // power recovers, timer resets
	tr.Update(now.Add(40*time.Second), "C2", Context{PowerW: 50})

	if tr.Current() != Charging {
		t.Errorf("Current() = %v, want Charging (low-power timer should have reset)", tr.Current())
	}
}

func TestTrackerClosesOnDisconnect(t *testing.T) {
	tr := silentTracker()
	now := time.Unix(0, 0)

	tr.Update(now, "B1", Context{})
	tt := tr.Update(now.Add(time.Second), "A", Context{})
	if !tt.ClosesSession() {
		t.Errorf("expected transition to close a session, got %+v", tt)
	}
	if tr.Current() != Disconnected {
		t.Errorf("Current() = %v, want Disconnected", tr.Current())
	}
}
