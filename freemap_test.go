package fat

import "testing"

func newTestFreeMap(regions ...freeRegion) *freeMap {
	fm := &freeMap{}
	for _, r := range regions {
		fm.regions = append(fm.regions, r)
		fm.free += r.length
	}
	return fm
}

func TestFreeMap_LargestRegion(t *testing.T) {
	fm := newTestFreeMap(
		freeRegion{start: 10, length: 3},
		freeRegion{start: 20, length: 8},
		freeRegion{start: 40, length: 5},
	)
	if got := fm.largestRegion(); got != 1 {
		t.Errorf("largestRegion() = %d, want 1", got)
	}
}

func TestFreeMap_LargestRegion_Empty(t *testing.T) {
	fm := &freeMap{}
	if got := fm.largestRegion(); got != -1 {
		t.Errorf("largestRegion() on empty map = %d, want -1", got)
	}
}

func TestFreeMap_TakeMidpoint(t *testing.T) {
	fm := newTestFreeMap(freeRegion{start: 10, length: 5})
	c := fm.takeMidpoint(0)
	if c != 12 {
		t.Errorf("takeMidpoint() = %d, want 12", c)
	}
	if len(fm.regions) != 2 {
		t.Fatalf("expected split into 2 regions, got %d", len(fm.regions))
	}
	if fm.regions[0] != (freeRegion{start: 10, length: 2}) {
		t.Errorf("left split = %+v, want {10 2}", fm.regions[0])
	}
	if fm.regions[1] != (freeRegion{start: 13, length: 2}) {
		t.Errorf("right split = %+v, want {13 2}", fm.regions[1])
	}
}

func TestFreeMap_ClosestRegion(t *testing.T) {
	fm := newTestFreeMap(
		freeRegion{start: 10, length: 3}, // [10,13)
		freeRegion{start: 50, length: 3}, // [50,53)
	)
	tests := []struct {
		near uint32
		want int
	}{
		{near: 5, want: 0},  // left of first region
		{near: 11, want: 0}, // inside first region
		{near: 30, want: 0}, // closer to the end of the first region than the start of the second
		{near: 60, want: 1}, // right of second region
	}
	for _, tt := range tests {
		if got := fm.closestRegion(tt.near); got != tt.want {
			t.Errorf("closestRegion(%d) = %d, want %d", tt.near, got, tt.want)
		}
	}
}

func TestFreeMap_TakeNearEdge(t *testing.T) {
	fm := newTestFreeMap(freeRegion{start: 10, length: 5}) // [10,15)

	c := fm.takeNearEdge(0, 20) // near is to the right, take last cluster
	if c != 14 {
		t.Errorf("takeNearEdge(right) = %d, want 14", c)
	}
	if fm.regions[0] != (freeRegion{start: 10, length: 4}) {
		t.Errorf("region after right-edge take = %+v", fm.regions[0])
	}

	c = fm.takeNearEdge(0, 0) // near is to the left, take first cluster
	if c != 10 {
		t.Errorf("takeNearEdge(left) = %d, want 10", c)
	}
	if fm.regions[0] != (freeRegion{start: 11, length: 3}) {
		t.Errorf("region after left-edge take = %+v", fm.regions[0])
	}
}

func TestFreeMap_Release_MergeCases(t *testing.T) {
	t.Run("merges both neighbours", func(t *testing.T) {
		fm := newTestFreeMap(
			freeRegion{start: 10, length: 2}, // [10,12)
			freeRegion{start: 13, length: 2}, // [13,15)
		)
		fm.used = 1
		fm.release(12)
		if len(fm.regions) != 1 {
			t.Fatalf("expected merge into 1 region, got %d: %+v", len(fm.regions), fm.regions)
		}
		if fm.regions[0] != (freeRegion{start: 10, length: 5}) {
			t.Errorf("merged region = %+v, want {10 5}", fm.regions[0])
		}
	})

	t.Run("merges left neighbour only", func(t *testing.T) {
		fm := newTestFreeMap(freeRegion{start: 10, length: 2}) // [10,12)
		fm.used = 1
		fm.release(12)
		if len(fm.regions) != 1 || fm.regions[0] != (freeRegion{start: 10, length: 3}) {
			t.Errorf("region = %+v, want {10 3}", fm.regions)
		}
	})

	t.Run("merges right neighbour only", func(t *testing.T) {
		fm := newTestFreeMap(freeRegion{start: 13, length: 2}) // [13,15)
		fm.used = 1
		fm.release(12)
		if len(fm.regions) != 1 || fm.regions[0] != (freeRegion{start: 12, length: 3}) {
			t.Errorf("region = %+v, want {12 3}", fm.regions)
		}
	})

	t.Run("isolated, no merge", func(t *testing.T) {
		fm := newTestFreeMap(freeRegion{start: 20, length: 2})
		fm.used = 1
		fm.release(5)
		if len(fm.regions) != 2 {
			t.Fatalf("expected 2 regions, got %d: %+v", len(fm.regions), fm.regions)
		}
		if fm.regions[0] != (freeRegion{start: 5, length: 1}) {
			t.Errorf("new region = %+v, want {5 1}", fm.regions[0])
		}
	})
}

func TestFreeMap_AllocateAndRelease_Counters(t *testing.T) {
	fm := newTestFreeMap(freeRegion{start: 10, length: 2})
	fm.used = 0

	fm.allocate()
	if fm.used != 1 || fm.free != 1 {
		t.Errorf("after allocate: used=%d free=%d, want 1 1", fm.used, fm.free)
	}

	fm.release(99)
	if fm.used != 0 || fm.free != 2 {
		t.Errorf("after release: used=%d free=%d, want 0 2", fm.used, fm.free)
	}
}
