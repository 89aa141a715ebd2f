package fat

import (
	"encoding/binary"

	"github.com/theanurin/emphatic-fs/checkpoint"
)

// directory reads and edits the 32-byte slots of a directory's cluster
// chain. It has no notion of path components; resolver walks one directory
// at a time using this type.
type directory struct {
	v *Volume
	a *allocator
}

func newDirectory(v *Volume, a *allocator) *directory {
	return &directory{v: v, a: a}
}

// slot pairs a decoded directory entry with its location, so callers can write it
// back or delete it without re-scanning.
type slot struct {
	DirEntry
	chainIndex int    // index into chain.clusters
	slotOffset uint32 // byte offset of the slot within its cluster
}

// readSlot decodes the dirEntrySize bytes at chain index ci, byte offset
// within-cluster off.
func (d *directory) readSlot(ch *clusterChain, ci int, off uint32) (slot, error) {
	buf := make([]byte, dirEntrySize)
	devOff := d.v.ClusterOffset(ch.at(ci)) + int64(off)
	if err := d.v.readAt(buf, devOff); err != nil {
		return slot{}, err
	}
	return slot{DirEntry: decodeDirEntry(buf), chainIndex: ci, slotOffset: off}, nil
}

// writeSlot encodes and writes e back to its recorded location.
func (d *directory) writeSlot(ch *clusterChain, s slot) error {
	buf := encodeDirEntry(s.DirEntry)
	devOff := d.v.ClusterOffset(ch.at(s.chainIndex)) + int64(s.slotOffset)
	return d.v.writeAt(buf, devOff)
}

// forEach walks every slot of the directory's chain in on-disk order,
// invoking fn for each. Iteration stops at the first unused (Name[0]==0x00)
// slot, which terminates the directory per the on-disk convention, or when
// fn returns stop == true.
func (d *directory) forEach(ch *clusterChain, fn func(s slot) (stop bool, err error)) error {
	perCluster := d.v.ClusterSize() / dirEntrySize
	for ci := 0; ci < ch.len(); ci++ {
		for i := uint32(0); i < perCluster; i++ {
			off := i * dirEntrySize
			s, err := d.readSlot(ch, ci, off)
			if err != nil {
				return err
			}
			if s.IsUnused() {
				return nil
			}
			stop, err := fn(s)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// find scans the directory's chain for a slot whose short name matches raw.
// It returns ok == false, with no error, if no matching slot is found
// before the end-of-directory marker.
func (d *directory) find(ch *clusterChain, raw [11]byte) (s slot, ok bool, err error) {
	err = d.forEach(ch, func(cand slot) (bool, error) {
		if cand.Name == raw && cand.Attr&AttrVolumeID == 0 {
			s, ok = cand, true
			return true, nil
		}
		return false, nil
	})
	return s, ok, err
}

// findByCluster scans for the slot whose starting cluster is c, used to
// relocate a handle's own directory slot on demand rather than caching its
// byte location (which swap-with-last compaction or a rename could move
// out from under a cached reference).
func (d *directory) findByCluster(ch *clusterChain, c uint32) (s slot, ok bool, err error) {
	err = d.forEach(ch, func(cand slot) (bool, error) {
		if cand.Cluster() == c && cand.Attr&AttrVolumeID == 0 {
			s, ok = cand, true
			return true, nil
		}
		return false, nil
	})
	return s, ok, err
}

// isEmpty reports whether the directory's chain contains no entries other
// than the "." and ".." self/parent links.
func (d *directory) isEmpty(ch *clusterChain) (bool, error) {
	empty := true
	err := d.forEach(ch, func(s slot) (bool, error) {
		if isReservedName(s.Name) {
			return false, nil
		}
		empty = false
		return true, nil
	})
	return empty, err
}

// append writes a new slot at the first unused or past-end position in the
// directory's chain, extending the chain by one cluster first if it is
// completely full. The new slot is zero-filled except for entry.
func (d *directory) append(ch *clusterChain, entry DirEntry) (slot, error) {
	perCluster := d.v.ClusterSize() / dirEntrySize

	for ci := 0; ci < ch.len(); ci++ {
		for i := uint32(0); i < perCluster; i++ {
			off := i * dirEntrySize
			s, err := d.readSlot(ch, ci, off)
			if err != nil {
				return slot{}, err
			}
			if s.IsUnused() {
				written := slot{DirEntry: entry, chainIndex: ci, slotOffset: off}
				return written, d.writeSlot(ch, written)
			}
		}
	}

	// Chain is full (or empty): extend by one cluster and zero it, then
	// place entry in its first slot.
	if ch.len() == 0 {
		first, err := d.a.allocNode()
		if err != nil {
			return slot{}, err
		}
		ch.clusters = append(ch.clusters, first)
		ch.cursor = 0
	} else if err := ch.extend(d.a, 1); err != nil {
		return slot{}, err
	}

	newIdx := ch.len() - 1
	if err := d.zeroCluster(ch.at(newIdx)); err != nil {
		return slot{}, err
	}
	written := slot{DirEntry: entry, chainIndex: newIdx, slotOffset: 0}
	return written, d.writeSlot(ch, written)
}

// remove deletes target from the directory using swap-with-last
// compaction: the directory's last live slot is copied into target's
// position and the last slot is marked unused, per §4.6. If target is
// already the last live slot, it is simply marked unused in place.
func (d *directory) remove(ch *clusterChain, target slot) error {
	var last slot
	found := false
	err := d.forEach(ch, func(s slot) (bool, error) {
		last = s
		found = true
		return false, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return checkpoint.Wrap(ErrNoSuchEntry, ErrNoSuchEntry)
	}

	if last.chainIndex == target.chainIndex && last.slotOffset == target.slotOffset {
		target.Name[0] = 0x00
		return d.writeSlot(ch, target)
	}

	moved := last
	moved.chainIndex, moved.slotOffset = target.chainIndex, target.slotOffset
	if err := d.writeSlot(ch, moved); err != nil {
		return err
	}
	last.Name[0] = 0x00
	return d.writeSlot(ch, last)
}

// zeroCluster overwrites an entire cluster with zero bytes, used when a
// directory chain is extended so the new slots all read back as unused.
func (d *directory) zeroCluster(c uint32) error {
	buf := make([]byte, d.v.ClusterSize())
	return d.v.writeAt(buf, d.v.ClusterOffset(c))
}

func decodeDirEntry(buf []byte) DirEntry {
	var e DirEntry
	copy(e.Name[:], buf[0:11])
	e.Attr = buf[11]
	e.Reserved = buf[12]
	e.CreateTimeTenth = buf[13]
	e.CreateTime = binary.LittleEndian.Uint16(buf[14:16])
	e.CreateDate = binary.LittleEndian.Uint16(buf[16:18])
	e.AccessDate = binary.LittleEndian.Uint16(buf[18:20])
	e.ClusterHi = binary.LittleEndian.Uint16(buf[20:22])
	e.WriteTime = binary.LittleEndian.Uint16(buf[22:24])
	e.WriteDate = binary.LittleEndian.Uint16(buf[24:26])
	e.ClusterLo = binary.LittleEndian.Uint16(buf[26:28])
	e.Size = binary.LittleEndian.Uint32(buf[28:32])
	return e
}

func encodeDirEntry(e DirEntry) []byte {
	buf := make([]byte, dirEntrySize)
	copy(buf[0:11], e.Name[:])
	buf[11] = e.Attr
	buf[12] = e.Reserved
	buf[13] = e.CreateTimeTenth
	binary.LittleEndian.PutUint16(buf[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(buf[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(buf[18:20], e.AccessDate)
	binary.LittleEndian.PutUint16(buf[20:22], e.ClusterHi)
	binary.LittleEndian.PutUint16(buf[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(buf[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(buf[26:28], e.ClusterLo)
	binary.LittleEndian.PutUint32(buf[28:32], e.Size)
	return buf
}
