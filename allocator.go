package fat

// allocator is the policy layer on top of the FAT cache and free-space
// map: it chooses clusters per the fragmentation-minimising policy of
// §4.3 and edits chain linkage in the FAT, while the free map tracks
// region shape and counters.
type allocator struct {
	fc *fatCache
	fm *freeMap
}

func newAllocator(fc *fatCache, fm *freeMap) *allocator {
	return &allocator{fc: fc, fm: fm}
}

// allocNode allocates a single cluster for a brand-new file (or
// directory), choosing the largest free region and taking its midpoint so
// that later growth has room on both sides. The new cluster's FAT cell is
// set to end-of-chain; there is no predecessor to link.
func (a *allocator) allocNode() (uint32, error) {
	i := a.fm.largestRegion()
	if i == -1 {
		return 0, ErrOutOfSpace
	}

	c := a.fm.takeMidpoint(i)
	if err := a.fc.put(c, fatCellEOCMark); err != nil {
		return 0, err
	}
	a.fm.allocate()
	return c, nil
}

// newCluster allocates one cluster adjacent to near (the current tail of
// some chain) and links it in: the new cluster's FAT cell becomes
// end-of-chain, and near's FAT cell is overwritten to point at the new
// cluster.
func (a *allocator) newCluster(near uint32) (uint32, error) {
	i := a.fm.closestRegion(near)
	if i == -1 {
		return 0, ErrOutOfSpace
	}

	c := a.fm.takeNearEdge(i, near)

	if err := a.fc.put(c, fatCellEOCMark); err != nil {
		return 0, err
	}
	if err := a.fc.put(near, fatCell(c)); err != nil {
		return 0, err
	}
	a.fm.allocate()
	return c, nil
}

// release frees every cluster in chain, in order, via the free map, and
// clears each one's FAT cell to 0.
func (a *allocator) release(chain []uint32) error {
	for _, c := range chain {
		if err := a.fc.put(c, fatCellFree); err != nil {
			return err
		}
		a.fm.release(c)
	}
	return nil
}

// releaseOne frees a single cluster; used by truncate-shrink, which needs
// to release a suffix of a chain one cluster at a time after re-marking
// the new tail.
func (a *allocator) releaseOne(c uint32) error {
	if err := a.fc.put(c, fatCellFree); err != nil {
		return err
	}
	a.fm.release(c)
	return nil
}

// markEndOfChain overwrites a cluster's FAT cell with the end-of-chain
// sentinel, without touching the free map. Used by truncate-shrink to cut
// a chain before releasing its former successors.
func (a *allocator) markEndOfChain(c uint32) error {
	return a.fc.put(c, fatCellEOCMark)
}
