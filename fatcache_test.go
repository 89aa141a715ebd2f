package fat

import (
	"encoding/binary"
	"testing"
)

func TestFATCache_GetReadsThroughSectors(t *testing.T) {
	v, f := mountTestVolume(t, 16)
	defer f.Close()

	fc := newFATCache(v, 0)

	cell, err := fc.get(testRootCluster)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !cell.isEOC() {
		t.Errorf("root cluster's cell should be EOC as written by the test image, got %#x", cell)
	}

	if _, ok := fc.entries[0]; !ok {
		t.Error("expected sector 0 to be cached after the first get")
	}
}

func TestFATCache_PutKeepsResidentSectorCoherent(t *testing.T) {
	v, f := mountTestVolume(t, 16)
	defer f.Close()

	fc := newFATCache(v, 0)

	// Populate the cache for this cell first.
	if _, err := fc.get(5); err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := fc.put(5, fatCellEOCMark); err != nil {
		t.Fatalf("put: %v", err)
	}

	// The device reflects the write...
	if cell := readFATCellFromDevice(t, v, f, 5); !cell.isEOC() {
		t.Errorf("device cell after put = %#x, want EOC", cell)
	}

	// ...and so does the already-cached sector: a resident sector must
	// never disagree with the device (§3), so put patches it in place
	// rather than leaving get() serve a stale value.
	cached, err := fc.get(5)
	if err != nil {
		t.Fatalf("get after put: %v", err)
	}
	if !cached.isEOC() {
		t.Error("expected the cached sector to read the freshly written EOC value after put")
	}
}

func TestFATCache_PutPreservesReservedBits(t *testing.T) {
	v, f := mountTestVolume(t, 16)
	defer f.Close()

	fc := newFATCache(v, 0)

	sector, byteOffset := v.fatSectorOf(5)
	off := v.fatSectorByteOffset(sector) + int64(byteOffset)
	buf := make([]byte, fatEntrySize)
	binary.LittleEndian.PutUint32(buf, 0xA0000000) // reserved bits set, link free
	if _, err := f.WriteAt(buf, off); err != nil {
		t.Fatalf("seed reserved bits: %v", err)
	}

	if err := fc.put(5, fatCellEOCMark); err != nil {
		t.Fatalf("put: %v", err)
	}

	cell := readFATCellFromDevice(t, v, f, 5)
	if cell&fatCellReservedMask != 0xA0000000 {
		t.Errorf("reserved bits after put = %#x, want preserved 0xA0000000", cell&fatCellReservedMask)
	}
	if !cell.isEOC() {
		t.Errorf("link bits after put = %#x, want EOC", cell.link())
	}
}

func TestFATCache_EvictsLRU(t *testing.T) {
	// 140 clusters spans two 128-entry FAT sectors: cluster 0 lives in
	// sector 0, cluster 129 lives in sector 1. A bound of 1 must evict
	// sector 0 once sector 1 is touched.
	v, f := mountTestVolumeWithFATSectors(t, 140, 2)
	defer f.Close()

	fc := newFATCache(v, 1)

	if _, err := fc.get(0); err != nil {
		t.Fatalf("get(0): %v", err)
	}
	if _, ok := fc.entries[0]; !ok {
		t.Fatal("expected sector 0 to be cached after get(0)")
	}

	if _, err := fc.get(129); err != nil {
		t.Fatalf("get(129): %v", err)
	}

	if fc.lru.Len() != 1 {
		t.Errorf("lru length = %d, want 1 (bound 1 should have evicted the older sector)", fc.lru.Len())
	}
	if _, ok := fc.entries[0]; ok {
		t.Error("expected sector 0 to have been evicted")
	}
	if _, ok := fc.entries[1]; !ok {
		t.Error("expected sector 1 to be cached after get(129)")
	}
}
