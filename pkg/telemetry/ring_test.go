package telemetry

import "testing"

func TestRing_SnapshotBeforeFull(t *testing.T) {
	r := newRing[int](5)
	r.push(1)
	r.push(2)
	got := r.snapshot()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("snapshot() = %v, want [1 2]", got)
	}
}

func TestRing_DropsOldestOnceFull(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	got := r.snapshot()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("snapshot() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRing_ExactCapacity(t *testing.T) {
	r := newRing[string](2)
	r.push("a")
	r.push("b")
	got := r.snapshot()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("snapshot() = %v, want [a b]", got)
	}
}
