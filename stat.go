package fat

import (
	"os"
	"time"
)

// Attr is the portable attribute record returned by get-attrs (§6):
// starting-cluster-as-inode, POSIX-style mode bits, size and block counts,
// and the timestamps the on-disk slot actually carries.
type Attr struct {
	Ino       uint64
	Mode      os.FileMode
	Nlink     uint32
	Size      int64
	BlockSize uint32
	Blocks    int64
	Atime     time.Time
	Mtime     time.Time
}

// dirAttrMode and fileAttrMode are the fixed POSIX permission bits granted
// to every directory and file respectively; FAT has no per-entry owner,
// group or execute bit, so these are constants rather than derived values.
const (
	dirAttrMode  os.FileMode = 0o755
	fileAttrMode os.FileMode = 0o644
)

// attrFromEntry packs a directory slot plus the volume's cluster size into
// the portable attribute record. The starting cluster doubles as the
// inode number, matching the handle table's identity key for the same
// entry.
func attrFromEntry(v *Volume, e DirEntry) Attr {
	mode := fileAttrMode
	if e.IsDir() {
		mode = os.ModeDir | dirAttrMode
	}
	if e.IsReadOnly() {
		mode &^= 0o222
	}

	size := int64(e.Size)
	clusterSize := int64(v.ClusterSize())
	blocks := (size + clusterSize - 1) / clusterSize // ceil(size / cluster_size)

	return Attr{
		Ino:       uint64(e.Cluster()),
		Mode:      mode,
		Nlink:     1,
		Size:      size,
		BlockSize: v.ClusterSize(),
		Blocks:    blocks,
		Atime:     POSIXFromDOS(e.AccessDate, 0),
		Mtime:     POSIXFromDOS(e.WriteDate, e.WriteTime),
	}
}

// FileInfo adapts Attr plus the entry's decoded short name to os.FileInfo,
// for the afero.Fs façade and for io/fs-style consumers.
type FileInfo struct {
	name string
	attr Attr
}

func newFileInfo(name string, attr Attr) FileInfo { return FileInfo{name: name, attr: attr} }

func (fi FileInfo) Name() string       { return fi.name }
func (fi FileInfo) Size() int64        { return fi.attr.Size }
func (fi FileInfo) Mode() os.FileMode  { return fi.attr.Mode }
func (fi FileInfo) ModTime() time.Time { return fi.attr.Mtime }
func (fi FileInfo) IsDir() bool        { return fi.attr.Mode&os.ModeDir != 0 }
func (fi FileInfo) Sys() interface{}   { return fi.attr }

// StatVFS mirrors the fields of a POSIX statvfs(2) call that the façade's
// statfs operation can actually populate from the free-space map and
// volume geometry; there is no per-inode count to report.
type StatVFS struct {
	BlockSize    uint32
	TotalBlocks  uint64
	FreeBlocks   uint64
	AvailBlocks  uint64
	MaxNameBytes uint32
}
