// File model contains the structs which match the direct on-disk
// structures of the FAT32 filesystem: the boot sector, the FSInfo sector
// and a directory slot.

package fat

// BootSector is the FAT32 super-block, read from logical sector 0 of the
// volume. Field layout and offsets are fixed by the FAT32 specification;
// this struct is read with binary.Read against little-endian byte order
// and must not be reordered.
type BootSector struct {
	JumpBoot            [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16 // must be 0 on FAT32
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16 // must be 0 on FAT32
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32

	// FAT32-specific fields, starting at offset 36.
	FATSize32     uint32
	ExtFlags      uint16
	FSVersion     uint16
	RootCluster   uint32
	FSInfoSector  uint16
	BkBootSector  uint16
	Reserved      [12]byte
	DriveNumber   byte
	Reserved1     byte
	BootSignature byte
	VolumeID      uint32
	VolumeLabel   [11]byte
	FSType        [8]byte
}

// FSInfo mirrors the FAT32 FSInfo sector. Per spec (and the driver it was
// distilled from) all three magic values are read as 4-byte fields,
// including the third, which the FAT32 reference instead defines as a
// 2-byte field at offset 508 followed by 2 reserved bytes. Preserving the
// (4, 4, 4) layout is a binding Open Question resolution (see DESIGN.md):
// it reproduces the byte offsets the original driver actually validated.
type FSInfo struct {
	Magic1           uint32 // offset 0, must be 0x41615252
	Magic2           uint32 // offset 484, must be 0x61417272
	FreeClusterCount uint32
	NextFreeCluster  uint32
	Magic3           uint32 // offset 508, must be 0x0000AA55 in the low 16 bits
}

const (
	fsInfoMagic1 = 0x41615252
	fsInfoMagic2 = 0x61417272
	fsInfoMagic3 = 0x0000AA55

	fsInfoMagic1Offset = 0
	fsInfoMagic2Offset = 484
	fsInfoMagic3Offset = 508

	bootSectorSize = 512
	fsInfoSize     = 512
)

// DirEntry is the fixed 32-byte on-disk directory slot.
type DirEntry struct {
	Name            [11]byte
	Attr            byte
	Reserved        byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	AccessDate      uint16
	ClusterHi       uint16
	WriteTime       uint16
	WriteDate       uint16
	ClusterLo       uint16
	Size            uint32
}

// Attribute bits for DirEntry.Attr.
const (
	AttrReadOnly byte = 0x01
	AttrHidden   byte = 0x02
	AttrSystem   byte = 0x04
	AttrVolumeID byte = 0x08
	AttrDir      byte = 0x10
	AttrArchive  byte = 0x20
)

const dirEntrySize = 32

// Cluster returns the entry's starting cluster, assembled from the split
// high/low halves.
func (d *DirEntry) Cluster() uint32 {
	return uint32(d.ClusterHi)<<16 | uint32(d.ClusterLo)
}

// SetCluster splits c into the entry's high/low cluster halves.
func (d *DirEntry) SetCluster(c uint32) {
	d.ClusterHi = uint16(c >> 16)
	d.ClusterLo = uint16(c & 0xFFFF)
}

// IsDir reports whether the entry carries the directory attribute.
func (d *DirEntry) IsDir() bool {
	return d.Attr&AttrDir != 0
}

// IsReadOnly reports whether the entry carries the read-only attribute.
func (d *DirEntry) IsReadOnly() bool {
	return d.Attr&AttrReadOnly != 0
}

// IsUnused reports whether the slot is free (Name[0] == 0x00), which also
// terminates a linear directory scan.
func (d *DirEntry) IsUnused() bool {
	return d.Name[0] == 0x00
}

// reservedShortNames are excluded from is-directory-empty checks.
var reservedShortNames = [2][11]byte{
	{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
	{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '},
}

// isReservedName reports whether name matches "." or "..".
func isReservedName(name [11]byte) bool {
	for _, r := range reservedShortNames {
		if name == r {
			return true
		}
	}
	return false
}
