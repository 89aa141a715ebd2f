package fat

import (
	"io"

	"github.com/theanurin/emphatic-fs/checkpoint"
)

// handleFlags is the per-handle flag set described in §3; currently only
// delete-on-last-close.
type handleFlags uint8

const flagDeleteOnClose handleFlags = 1 << 0

// handle is the shared, reference-counted state for one open file or
// directory, keyed in the handle table by its starting-cluster identity.
// Per §4.5's open question, two concurrent opens of the same file share
// one handle, cursor included: a seek performed through one reference is
// visible to the other. This is the source driver's actual behavior,
// preserved rather than fixed, and is the reason read/write/seek below
// take no "which opener" parameter — there is only ever one cursor.
type handle struct {
	name         string
	startCluster uint32
	attr         byte
	chain        *clusterChain

	offset int64
	size   int64

	// parentCluster names the directory to scan (by startCluster, which
	// never changes) to find this handle's own slot on demand: a handle's
	// identity must survive both a rename of the path used to open it and
	// a swap-with-last compaction of a sibling slot, so the slot's exact
	// byte location is deliberately not cached here. hasParent is false
	// only for the synthetic root, which has no slot of its own.
	parentCluster uint32
	hasParent     bool

	flags    handleFlags
	refCount int
}

func (h *handle) isDir() bool      { return h.attr&AttrDir != 0 }
func (h *handle) isReadOnly() bool { return h.attr&AttrReadOnly != 0 }

// SeekWhence mirrors io.Seeker's whence values; the façade and bridge both
// translate their own whence encodings into this one.
type SeekWhence int

const (
	SeekSet SeekWhence = iota
	SeekCur
	SeekEnd
)

// seek resolves whence/offset to an absolute target, rejects targets
// outside [0, size), and advances the in-memory cursor to the chain index
// containing that offset. Per §4.4, seeking past EOF is not how a file
// grows; write is.
func (h *handle) seek(offset int64, whence SeekWhence, clusterSize uint32) (int64, error) {
	var target int64
	switch whence {
	case SeekSet:
		target = offset
	case SeekCur:
		target = h.offset + offset
	case SeekEnd:
		target = h.size - 1 + offset
	default:
		return 0, checkpoint.Wrap(ErrInvalidArgument, ErrInvalidArgument)
	}

	if target < 0 || target >= h.size {
		if h.size == 0 && target == 0 {
			// An empty file has no valid byte offset, but seeking to 0 on
			// it is a reasonable no-op rather than EINVAL.
			h.offset = 0
			return 0, nil
		}
		return 0, checkpoint.Wrap(ErrInvalidArgument, ErrEndOfFile)
	}

	h.offset = target
	if h.chain.len() > 0 {
		h.chain.seekToIndex(int(uint32(target) / clusterSize))
	}
	return target, nil
}

// setOffset is like seek(offset, SeekSet, ...) but additionally allows
// offset == size (used internally by read/write to position without the
// strict < size check seek() enforces, and by truncate/extend bookkeeping).
func (h *handle) setOffset(offset int64, clusterSize uint32) {
	h.offset = offset
	if h.chain.len() > 0 {
		idx := int(uint32(offset) / clusterSize)
		if idx >= h.chain.len() {
			idx = h.chain.len() - 1
		}
		h.chain.seekToIndex(idx)
	}
}

// read transfers up to len(p) bytes starting at the handle's current
// offset, walking the cluster chain in memory rather than through the FAT.
// It returns the number of bytes actually transferred.
func (h *handle) read(v *Volume, p []byte) (int, error) {
	if h.offset >= h.size {
		return 0, io.EOF
	}

	clusterSize := int64(v.ClusterSize())
	remaining := int64(len(p))
	if h.offset+remaining > h.size {
		remaining = h.size - h.offset
	}

	var total int64
	for remaining > 0 {
		if h.chain.cursor >= h.chain.len() {
			break
		}
		cluster := h.chain.current()
		withinCluster := h.offset % clusterSize
		chunk := clusterSize - withinCluster
		if chunk > remaining {
			chunk = remaining
		}

		dst := p[total : total+chunk]
		off := v.ClusterOffset(cluster) + withinCluster
		if err := v.readAt(dst, off); err != nil {
			return int(total), err
		}

		total += chunk
		remaining -= chunk
		h.offset += chunk

		if h.offset%clusterSize == 0 && h.chain.cursor < h.chain.len()-1 {
			h.chain.cursor++
		}
	}

	return int(total), nil
}

// write transfers len(p) bytes starting at the handle's current offset,
// allocating additional clusters first if the write would extend past the
// currently allocated extent. size grows if the write's end exceeds it.
func (h *handle) write(v *Volume, a *allocator, p []byte) (int, error) {
	clusterSize := int64(v.ClusterSize())

	neededEnd := h.offset + int64(len(p))
	allocatedExtent := int64(h.chain.len()) * clusterSize

	if h.chain.len() == 0 && len(p) > 0 {
		first, err := a.allocNode()
		if err != nil {
			return 0, err
		}
		h.chain.clusters = append(h.chain.clusters, first)
		h.chain.cursor = 0
		allocatedExtent = clusterSize
	}

	if neededEnd > allocatedExtent {
		shortfall := neededEnd - allocatedExtent
		extra := int((shortfall + clusterSize - 1) / clusterSize)
		if err := h.chain.extend(a, extra); err != nil {
			return 0, err
		}
	}

	// Reposition the cursor in case offset was left stale by a previous
	// short chain (e.g. right after the first-cluster allocation above).
	h.setOffset(h.offset, v.ClusterSize())

	remaining := int64(len(p))
	var total int64
	for remaining > 0 {
		cluster := h.chain.current()
		withinCluster := h.offset % clusterSize
		chunk := clusterSize - withinCluster
		if chunk > remaining {
			chunk = remaining
		}

		src := p[total : total+chunk]
		off := v.ClusterOffset(cluster) + withinCluster
		if err := v.writeAt(src, off); err != nil {
			return int(total), err
		}

		total += chunk
		remaining -= chunk
		h.offset += chunk

		if h.offset%clusterSize == 0 && h.chain.cursor < h.chain.len()-1 {
			h.chain.cursor++
		}
	}

	if h.offset > h.size {
		h.size = h.offset
	}

	return int(total), nil
}
