package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/theanurin/emphatic-fs/checkpoint"
)

// BlockDevice is the minimal positioned-I/O surface the driver needs from
// the underlying device. afero.File satisfies it directly, which is how
// both the real mount path (afero.NewOsFs()) and tests (afero.NewMemMapFs())
// supply one.
//
// The test mock in blockdevice_mock_test.go is hand-written in the shape
// mockgen produces for this interface.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
}

// Volume holds the device handle and the parsed boot sector/FSInfo state,
// plus every geometry constant derived from them. It is built once at
// mount, after which it is treated as immutable; every other component
// (FAT cache, free-space map, handle table, directory layer) is handed a
// pointer to it and never copies the fields that matter.
type Volume struct {
	device BlockDevice

	bytesPerSector      uint16
	sectorsPerCluster   uint8
	reservedSectorCount uint16
	numFATs             uint8
	sectorsPerFAT       uint32
	rootCluster         uint32
	fsInfoSector        uint16

	volumeID uint32
	label    string

	totalSectors uint32
	clusterSize  uint32

	// fatStartSector is the first sector of the (first) FAT.
	fatStartSector uint32
	// dataStartOffset is the byte offset of cluster 2.
	dataStartOffset int64
	// clusterCount is the number of usable data clusters, i.e. valid
	// cluster indices run [2, clusterCount+2).
	clusterCount uint32
}

// clustersReservedLow is the first valid cluster index; 0 and 1 are
// reserved FAT housekeeping entries.
const clustersReservedLow = 2

// mountVolume reads and validates the boot sector and FSInfo sector, and
// computes derived geometry. It does not build the free-space map or any
// other higher-level state; that happens in New, once the Volume is ready
// to be published to the rest of the driver. New brings those up in the
// order FAT cache, free-space map (scanned through the cache), allocator,
// directory layer, handle table.
func mountVolume(device BlockDevice, logger *slog.Logger) (*Volume, error) {
	bootBuf := make([]byte, bootSectorSize)
	if _, err := device.ReadAt(bootBuf, 0); err != nil {
		return nil, checkpoint.Wrap(err, ErrIOError)
	}

	var bs BootSector
	if err := binary.Read(bytes.NewReader(bootBuf), binary.LittleEndian, &bs); err != nil {
		return nil, checkpoint.Wrap(err, ErrIOError)
	}

	fsInfoOffset := int64(bs.FSInfoSector) * int64(bs.BytesPerSector)
	fsInfoBuf := make([]byte, fsInfoSize)
	if _, err := device.ReadAt(fsInfoBuf, fsInfoOffset); err != nil {
		return nil, checkpoint.Wrap(err, ErrIOError)
	}

	magic1 := binary.LittleEndian.Uint32(fsInfoBuf[fsInfoMagic1Offset:])
	magic2 := binary.LittleEndian.Uint32(fsInfoBuf[fsInfoMagic2Offset:])
	magic3 := binary.LittleEndian.Uint32(fsInfoBuf[fsInfoMagic3Offset:])

	if magic1 != fsInfoMagic1 || magic2 != fsInfoMagic2 || magic3&0x0000FFFF != fsInfoMagic3 {
		logger.Error("fsinfo magic mismatch",
			slog.Uint64("magic1", uint64(magic1)),
			slog.Uint64("magic2", uint64(magic2)),
			slog.Uint64("magic3", uint64(magic3)))
		return nil, checkpoint.Wrap(fmt.Errorf("magic1=%#x magic2=%#x magic3=%#x", magic1, magic2, magic3), ErrCorruptVolume)
	}

	totalSectors := bs.TotalSectors32
	if totalSectors == 0 {
		totalSectors = uint32(bs.TotalSectors16)
	}

	v := &Volume{
		device:              device,
		bytesPerSector:      bs.BytesPerSector,
		sectorsPerCluster:   bs.SectorsPerCluster,
		reservedSectorCount: bs.ReservedSectorCount,
		numFATs:             bs.NumFATs,
		sectorsPerFAT:       bs.FATSize32,
		rootCluster:         bs.RootCluster,
		fsInfoSector:        bs.FSInfoSector,
		volumeID:            bs.VolumeID,
		label:               trimLabel(bs.VolumeLabel),
		totalSectors:        totalSectors,
		clusterSize:         uint32(bs.BytesPerSector) * uint32(bs.SectorsPerCluster),
		fatStartSector:      uint32(bs.ReservedSectorCount),
	}

	v.dataStartOffset = (int64(v.reservedSectorCount) + int64(v.numFATs)*int64(v.sectorsPerFAT)) * int64(v.bytesPerSector)

	dataSectors := int64(v.totalSectors) - (int64(v.reservedSectorCount) + int64(v.numFATs)*int64(v.sectorsPerFAT))
	if dataSectors < 0 || v.sectorsPerCluster == 0 {
		return nil, checkpoint.Wrap(fmt.Errorf("invalid geometry: dataSectors=%d spc=%d", dataSectors, v.sectorsPerCluster), ErrCorruptVolume)
	}
	v.clusterCount = uint32(dataSectors) / uint32(v.sectorsPerCluster)

	logger.Info("mounted volume",
		slog.String("label", v.label),
		slog.Uint64("bytesPerSector", uint64(v.bytesPerSector)),
		slog.Uint64("sectorsPerCluster", uint64(v.sectorsPerCluster)),
		slog.Uint64("clusterSize", uint64(v.clusterSize)),
		slog.Uint64("clusterCount", uint64(v.clusterCount)),
		slog.Uint64("rootCluster", uint64(v.rootCluster)))

	return v, nil
}

func trimLabel(raw [11]byte) string {
	n := len(raw)
	for n > 0 && raw[n-1] == ' ' {
		n--
	}
	return string(raw[:n])
}

// ClusterSize returns the size, in bytes, of one cluster.
func (v *Volume) ClusterSize() uint32 { return v.clusterSize }

// BytesPerSector returns the volume's logical sector size.
func (v *Volume) BytesPerSector() uint16 { return v.bytesPerSector }

// RootCluster returns the first cluster of the root directory.
func (v *Volume) RootCluster() uint32 { return v.rootCluster }

// ClusterCount returns the number of usable data clusters. Valid cluster
// indices are [2, ClusterCount()+2).
func (v *Volume) ClusterCount() uint32 { return v.clusterCount }

// DataClusterLimit is the first cluster index beyond the usable range.
func (v *Volume) DataClusterLimit() uint32 { return v.clusterCount + clustersReservedLow }

// Label returns the trimmed volume label.
func (v *Volume) Label() string { return v.label }

// ClusterOffset returns the byte offset, within the device, of the start
// of cluster c. The caller must ensure c is in [2, DataClusterLimit()).
func (v *Volume) ClusterOffset(c uint32) int64 {
	return v.dataStartOffset + int64(c-clustersReservedLow)*int64(v.clusterSize)
}

// fatEntrySize is the width, in bytes, of one FAT32 cell.
const fatEntrySize = 4

// fatSectorOf returns the sector index (within the FAT, 0-based) and byte
// offset within that sector of the FAT cell for cluster index c.
func (v *Volume) fatSectorOf(c uint32) (sector uint32, byteOffset uint32) {
	entriesPerSector := uint32(v.bytesPerSector) / fatEntrySize
	sector = c / entriesPerSector
	byteOffset = (c % entriesPerSector) * fatEntrySize
	return sector, byteOffset
}

// fatSectorByteOffset returns the absolute device byte offset of the
// given 0-based FAT sector index, in the first FAT copy.
func (v *Volume) fatSectorByteOffset(sector uint32) int64 {
	return (int64(v.fatStartSector) + int64(sector)) * int64(v.bytesPerSector)
}

// readAt is a small convenience wrapper that turns device I/O errors into
// the tagged ErrIOError.
func (v *Volume) readAt(p []byte, off int64) error {
	if _, err := v.device.ReadAt(p, off); err != nil {
		return checkpoint.Wrap(err, ErrIOError)
	}
	return nil
}

// writeAt is the write-side counterpart of readAt.
func (v *Volume) writeAt(p []byte, off int64) error {
	if _, err := v.device.WriteAt(p, off); err != nil {
		return checkpoint.Wrap(err, ErrIOError)
	}
	return nil
}
