package fat

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
)

// Geometry constants for every synthetic test volume built by this file.
// One sector per cluster keeps cluster arithmetic easy to reason about by
// hand in test expectations.
const (
	testBytesPerSector    = 512
	testSectorsPerCluster = 1
	testReservedSectors   = 32
	testNumFATs           = 1
	testFATSectors        = 1
	testRootCluster       = 2
	testFSInfoSector      = 1
)

// buildTestImage constructs a minimal, valid FAT32 volume image with
// clusterCount usable data clusters: an empty root directory at cluster 2
// and every other data cluster free. One FAT sector (128 cells) bounds
// clusterCount to at most 125 for this helper.
func buildTestImage(t *testing.T, clusterCount uint32) []byte {
	t.Helper()
	if clusterCount+clustersReservedLow > 127 {
		t.Fatalf("buildTestImage: clusterCount %d exceeds single-FAT-sector capacity", clusterCount)
	}
	return buildTestImageWithFATSectors(t, clusterCount, testFATSectors)
}

// buildTestImageWithFATSectors is buildTestImage generalized to more than
// one FAT sector, for tests that need to observe cross-sector cache
// behavior (eviction, multiple resident sectors).
func buildTestImageWithFATSectors(t *testing.T, clusterCount, fatSectors uint32) []byte {
	t.Helper()

	bytesPerSector := uint32(testBytesPerSector)
	dataSectors := clusterCount * testSectorsPerCluster
	totalSectors := testReservedSectors + testNumFATs*fatSectors + dataSectors

	buf := make([]byte, uint64(totalSectors)*uint64(bytesPerSector))

	bs := BootSector{
		BytesPerSector:      uint16(bytesPerSector),
		SectorsPerCluster:   testSectorsPerCluster,
		ReservedSectorCount: testReservedSectors,
		NumFATs:             testNumFATs,
		TotalSectors32:      totalSectors,
		FATSize32:           fatSectors,
		RootCluster:         testRootCluster,
		FSInfoSector:        testFSInfoSector,
		BootSignature:       0x29,
		VolumeID:            0x12345678,
	}
	copy(bs.VolumeLabel[:], "NO NAME    ")
	copy(bs.FSType[:], "FAT32   ")

	var bsBuf bytes.Buffer
	if err := binary.Write(&bsBuf, binary.LittleEndian, &bs); err != nil {
		t.Fatalf("encode boot sector: %v", err)
	}
	copy(buf, bsBuf.Bytes())

	fsInfoOff := int64(bs.FSInfoSector) * int64(bytesPerSector)
	binary.LittleEndian.PutUint32(buf[fsInfoOff+fsInfoMagic1Offset:], fsInfoMagic1)
	binary.LittleEndian.PutUint32(buf[fsInfoOff+fsInfoMagic2Offset:], fsInfoMagic2)
	binary.LittleEndian.PutUint32(buf[fsInfoOff+fsInfoMagic3Offset:], fsInfoMagic3)

	fatStart := int64(testReservedSectors) * int64(bytesPerSector)
	putFATCell := func(cluster uint32, value fatCell) {
		off := fatStart + int64(cluster)*fatEntrySize
		binary.LittleEndian.PutUint32(buf[off:], uint32(value))
	}
	putFATCell(0, 0x0FFFFFF8)
	putFATCell(1, 0x0FFFFFFF)
	putFATCell(testRootCluster, fatCellEOCMark)

	return buf
}

// readFATCellFromDevice reads a FAT cell directly off the backing device,
// bypassing fatCache entirely, the same way a real fsck would. put keeps a
// resident sector's cached cell coherent with the device, so this mostly
// exists to assert what actually landed on disk independent of whatever
// the cache happens to hold.
func readFATCellFromDevice(t *testing.T, v *Volume, device afero.File, c uint32) fatCell {
	t.Helper()
	sector, byteOffset := v.fatSectorOf(c)
	off := v.fatSectorByteOffset(sector) + int64(byteOffset)
	buf := make([]byte, fatEntrySize)
	if _, err := device.ReadAt(buf, off); err != nil {
		t.Fatalf("ReadAt FAT cell: %v", err)
	}
	return fatCell(binary.LittleEndian.Uint32(buf))
}

// mountTestVolume is the volume-only counterpart of mountTestFS, for tests
// that want a *fatCache/*freeMap of their own construction rather than the
// one New assembles (e.g. to observe a cache miss that New's free-map scan
// would otherwise have already turned into a hit).
func mountTestVolume(t *testing.T, clusterCount uint32) (*Volume, afero.File) {
	t.Helper()

	img := buildTestImage(t, clusterCount)
	mem := afero.NewMemMapFs()
	f, err := mem.Create("volume.img")
	if err != nil {
		t.Fatalf("create backing file: %v", err)
	}
	if _, err := f.Write(img); err != nil {
		t.Fatalf("write image: %v", err)
	}

	v, err := mountVolume(f, slog.Default())
	if err != nil {
		t.Fatalf("mountVolume: %v", err)
	}
	return v, f
}

// mountTestVolumeWithFATSectors is mountTestVolume generalized to more than
// one FAT sector, for tests that need clusters spread across distinct
// cached sectors (e.g. LRU eviction).
func mountTestVolumeWithFATSectors(t *testing.T, clusterCount, fatSectors uint32) (*Volume, afero.File) {
	t.Helper()

	img := buildTestImageWithFATSectors(t, clusterCount, fatSectors)
	mem := afero.NewMemMapFs()
	f, err := mem.Create("volume.img")
	if err != nil {
		t.Fatalf("create backing file: %v", err)
	}
	if _, err := f.Write(img); err != nil {
		t.Fatalf("write image: %v", err)
	}

	v, err := mountVolume(f, slog.Default())
	if err != nil {
		t.Fatalf("mountVolume: %v", err)
	}
	return v, f
}

// mountTestFS writes a synthetic image to an in-memory afero file and
// mounts it through the public façade, the way production code mounts a
// real block device.
func mountTestFS(t *testing.T, clusterCount uint32, opts Options) (*FS, afero.File) {
	t.Helper()

	img := buildTestImage(t, clusterCount)
	mem := afero.NewMemMapFs()
	f, err := mem.Create("volume.img")
	if err != nil {
		t.Fatalf("create backing file: %v", err)
	}
	if _, err := f.Write(img); err != nil {
		t.Fatalf("write image: %v", err)
	}

	fs, err := New(f, opts)
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	return fs, f
}
