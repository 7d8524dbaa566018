package chart

import (
	"testing"
	"time"
)

func TestRingAddWithinCapacity(t *testing.T) {
	r := NewRing(3)
	base := time.Unix(0, 0)
	r.Add(Point{Time: base, PowerW: 100})
	r.Add(Point{Time: base.Add(time.Second), PowerW: 200})

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	snap := r.Snapshot()
	if snap[0].PowerW != 100 || snap[1].PowerW != 200 {
		t.Errorf("Snapshot() = %+v, want [100, 200] in order", snap)
	}
}

func TestRingEvictsOldestWhenFull(t *testing.T) {
	r := NewRing(3)
	base := time.Unix(0, 0)
	for i := 0; i < 5; i++ {
		r.Add(Point{Time: base.Add(time.Duration(i) * time.Second), PowerW: float32(i)})
	}

	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	snap := r.Snapshot()
	want := []float32{2, 3, 4}
	for i, p := range snap {
		if p.PowerW != want[i] {
			t.Errorf("snap[%d].PowerW = %v, want %v", i, p.PowerW, want[i])
		}
	}
}

func TestRingMinimumCapacityOne(t *testing.T) {
	r := NewRing(0)
	r.Add(Point{PowerW: 1})
	r.Add(Point{PowerW: 2})
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	if got := r.Snapshot()[0].PowerW; got != 2 {
		t.Errorf("Snapshot()[0].PowerW = %v, want 2", got)
	}
}
