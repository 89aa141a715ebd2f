package fat

import (
	"container/list"
	"encoding/binary"

	"github.com/theanurin/emphatic-fs/checkpoint"
)

// defaultCacheSectors is the compile-time bound on resident FAT sectors
// referenced by §4.2, used when newFATCache is given a non-positive bound.
// Tests that exercise eviction pass their own small bound instead.
var defaultCacheSectors = 64

// fatCell is a single 32-bit FAT cell. The low 28 bits carry cluster
// linkage; the high 4 bits are reserved and must be preserved across a
// read-modify-write.
type fatCell uint32

const (
	fatCellLinkMask     fatCell = 0x0FFFFFFF
	fatCellReservedMask fatCell = 0xF0000000

	fatCellFree    fatCell = 0x00000000
	fatCellBad     fatCell = 0x0FFFFFF7
	fatCellEOCMark fatCell = 0x0FFFFFF8 // anything >= this is end-of-chain
)

func (c fatCell) link() fatCell { return c & fatCellLinkMask }

func (c fatCell) isFree() bool { return c.link() == fatCellFree }
func (c fatCell) isBad() bool  { return c.link() == fatCellBad }
func (c fatCell) isEOC() bool  { return c.link() >= fatCellEOCMark }

// fatSector is one cached, sector-sized buffer of FAT cells, keyed by its
// 0-based index within the FAT.
type fatSector struct {
	index uint32
	cells []fatCell
}

// fatCache is a read/write-through LRU cache of FAT sectors over the first
// FAT copy. Reads are served from the cache where possible; writes always
// go straight to the device, and additionally patch a resident sector's
// cached cell in place so a cache hit can never disagree with what the
// device would return (§3's write-through invariant).
type fatCache struct {
	v *Volume

	bound   int
	entries map[uint32]*list.Element // sector index -> element of lru
	lru     *list.List                // front = MRU, back = LRU
}

func newFATCache(v *Volume, bound int) *fatCache {
	if bound <= 0 {
		bound = defaultCacheSectors
	}
	return &fatCache{
		v:       v,
		bound:   bound,
		entries: make(map[uint32]*list.Element),
		lru:     list.New(),
	}
}

// get returns the FAT cell for cluster index c, reading the containing
// sector through the cache.
func (fc *fatCache) get(c uint32) (fatCell, error) {
	sectorIdx, byteOffset := fc.v.fatSectorOf(c)

	sector, err := fc.fetch(sectorIdx)
	if err != nil {
		return 0, err
	}

	idxInSector := byteOffset / fatEntrySize
	return sector.cells[idxInSector], nil
}

// fetch returns the cached sector, populating the cache on a miss and
// moving the sector to the MRU position either way.
func (fc *fatCache) fetch(sectorIdx uint32) (*fatSector, error) {
	if elem, ok := fc.entries[sectorIdx]; ok {
		fc.lru.MoveToFront(elem)
		return elem.Value.(*fatSector), nil
	}

	buf := make([]byte, fc.v.bytesPerSector)
	if err := fc.v.readAt(buf, fc.v.fatSectorByteOffset(sectorIdx)); err != nil {
		return nil, err
	}

	entriesPerSector := int(fc.v.bytesPerSector) / fatEntrySize
	cells := make([]fatCell, entriesPerSector)
	for i := 0; i < entriesPerSector; i++ {
		cells[i] = fatCell(binary.LittleEndian.Uint32(buf[i*fatEntrySize:]))
	}

	sector := &fatSector{index: sectorIdx, cells: cells}
	elem := fc.lru.PushFront(sector)
	fc.entries[sectorIdx] = elem

	if fc.lru.Len() > fc.bound {
		fc.evictLRU()
	}

	return sector, nil
}

func (fc *fatCache) evictLRU() {
	back := fc.lru.Back()
	if back == nil {
		return
	}
	evicted := back.Value.(*fatSector)
	delete(fc.entries, evicted.index)
	fc.lru.Remove(back)
}

// put writes a new FAT cell value through to the device, preserving the
// reserved high 4 bits of the previous on-disk value via read-modify-
// write. If the affected sector is resident in the cache, its cached cell
// is patched to the same combined value: buildChain and buildFreeMap both
// read cells via get, and on a volume with few enough FAT sectors to keep
// one pinned in the cache for the whole session, a put that left the
// resident copy stale would hand the very next get a phantom free/EOC
// value for a cluster this call just linked or released. Patching in
// place (rather than dropping the entry) keeps the sector's LRU position
// untouched.
func (fc *fatCache) put(c uint32, newValue fatCell) error {
	sectorIdx, byteOffset := fc.v.fatSectorOf(c)
	cellOff := fc.v.fatSectorByteOffset(sectorIdx) + int64(byteOffset)

	old := make([]byte, fatEntrySize)
	if err := fc.v.readAt(old, cellOff); err != nil {
		return err
	}
	oldCell := fatCell(binary.LittleEndian.Uint32(old))

	combined := (oldCell & fatCellReservedMask) | (newValue & fatCellLinkMask)

	buf := make([]byte, fatEntrySize)
	binary.LittleEndian.PutUint32(buf, uint32(combined))

	if err := fc.v.writeAt(buf, cellOff); err != nil {
		return checkpoint.Wrap(err, ErrIOError)
	}

	if elem, ok := fc.entries[sectorIdx]; ok {
		idxInSector := byteOffset / fatEntrySize
		elem.Value.(*fatSector).cells[idxInSector] = combined
	}

	return nil
}
