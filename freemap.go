package fat

import "sort"

// freeRegion is a maximal contiguous run of free clusters.
type freeRegion struct {
	start  uint32
	length uint32
}

func (r freeRegion) end() uint32 { return r.start + r.length } // one past last

// freeMap is the ordered, non-overlapping, non-adjacent list of free
// cluster regions, built once at mount by a linear FAT scan and then
// maintained incrementally by allocate/release. It also tracks the
// used/free cluster counts required by statvfs.
type freeMap struct {
	regions []freeRegion // strictly increasing by start, non-adjacent
	used    uint32
	free    uint32
}

// buildFreeMap scans the FAT (through fc, so the scan benefits from the
// same sector cache subsequent operations use) and classifies every
// cluster cell in [2, limit) as free or allocated, coalescing consecutive
// free cells into regions as it goes.
func buildFreeMap(fc *fatCache, limit uint32) (*freeMap, error) {
	fm := &freeMap{}

	prevAllocated := true
	for c := uint32(clustersReservedLow); c < limit; c++ {
		cell, err := fc.get(c)
		if err != nil {
			return nil, err
		}

		if cell.isFree() {
			if prevAllocated {
				fm.regions = append(fm.regions, freeRegion{start: c, length: 1})
			} else {
				fm.regions[len(fm.regions)-1].length++
			}
			fm.free++
			prevAllocated = false
		} else {
			fm.used++
			prevAllocated = true
		}
	}

	return fm, nil
}

// largestRegion returns the index of the longest region, or -1 if the map
// is empty. Ties break toward the earliest region in list order.
func (fm *freeMap) largestRegion() int {
	best := -1
	for i, r := range fm.regions {
		if best == -1 || r.length > fm.regions[best].length {
			best = i
		}
	}
	return best
}

// takeMidpoint removes and returns the cluster at the midpoint of region
// i, shrinking the region (splitting it into two if the midpoint is
// interior). Used by the largest-region-first new-file policy.
func (fm *freeMap) takeMidpoint(i int) uint32 {
	r := fm.regions[i]
	mid := r.start + r.length/2
	fm.removeCluster(i, mid)
	return mid
}

// closestRegion returns the index of the region nearest to near by the
// distance metric of §4.3, and -1 if the map is empty. Ties break toward
// the earliest region in list order.
func (fm *freeMap) closestRegion(near uint32) int {
	best := -1
	bestDist := uint32(0)
	for i, r := range fm.regions {
		var dist uint32
		switch {
		case near < r.start:
			dist = r.start - near
		case near >= r.end():
			dist = near - r.end()
		default:
			// near falls inside the region; distance 0, can't beat that.
			dist = 0
		}
		if best == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}

// takeNearEdge removes and returns the cluster at the edge of region i
// closest to near (its first cluster if near is to the region's left,
// its last cluster otherwise), shrinking the region by one and dropping
// it from the list if it becomes empty.
func (fm *freeMap) takeNearEdge(i int, near uint32) uint32 {
	r := fm.regions[i]

	var c uint32
	if near < r.start {
		c = r.start
	} else {
		c = r.end() - 1
	}
	fm.removeCluster(i, c)
	return c
}

// removeCluster removes cluster c, known to lie within region i, from the
// free map, splitting or shrinking the region as needed and dropping it
// from the list if it becomes empty. Callers must also write the cluster's
// FAT cell and decrement fm.free/increment fm.used; removeCluster only
// maintains region-list shape.
func (fm *freeMap) removeCluster(i int, c uint32) {
	r := fm.regions[i]

	switch {
	case c == r.start && r.length == 1:
		fm.regions = append(fm.regions[:i], fm.regions[i+1:]...)
	case c == r.start:
		fm.regions[i].start++
		fm.regions[i].length--
	case c == r.end()-1:
		fm.regions[i].length--
	default:
		left := freeRegion{start: r.start, length: c - r.start}
		right := freeRegion{start: c + 1, length: r.end() - (c + 1)}
		fm.regions[i] = left
		fm.regions = append(fm.regions, freeRegion{})
		copy(fm.regions[i+2:], fm.regions[i+1:])
		fm.regions[i+1] = right
	}
}

// allocate counts one cluster (already removed from the free list by the
// caller) as used. The caller is responsible for the FAT
// cell edits (§4.3: write EOC into the new cluster, link the predecessor).
func (fm *freeMap) allocate() {
	fm.used++
	fm.free--
}

// release inserts cluster c back into the free map, merging with
// neighbours per §4.3's four cases, and updates the counters. It does not
// touch the FAT cell; callers clear it separately.
func (fm *freeMap) release(c uint32) {
	// Binary search for the insertion point: the first region whose start
	// is > c.
	idx := sort.Search(len(fm.regions), func(i int) bool {
		return fm.regions[i].start > c
	})

	var left, right *freeRegion
	leftIdx, rightIdx := -1, -1
	if idx > 0 {
		leftIdx = idx - 1
		left = &fm.regions[leftIdx]
	}
	if idx < len(fm.regions) {
		rightIdx = idx
		right = &fm.regions[rightIdx]
	}

	touchesLeft := left != nil && c == left.end()
	touchesRight := right != nil && c == right.start-1

	switch {
	case touchesLeft && touchesRight:
		left.length += 1 + right.length
		fm.regions = append(fm.regions[:rightIdx], fm.regions[rightIdx+1:]...)
	case touchesLeft:
		left.length++
	case touchesRight:
		right.start--
		right.length++
	default:
		newRegion := freeRegion{start: c, length: 1}
		fm.regions = append(fm.regions, freeRegion{})
		copy(fm.regions[idx+1:], fm.regions[idx:])
		fm.regions[idx] = newRegion
	}

	fm.used--
	fm.free++
}

// usedClusters and freeClusters back statvfs.
func (fm *freeMap) usedClusters() uint32 { return fm.used }
func (fm *freeMap) freeClusters() uint32 { return fm.free }
