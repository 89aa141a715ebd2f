package fat

import (
	"os"
	"testing"
)

func TestAttrFromEntry_File(t *testing.T) {
	v, f := mountTestVolume(t, 8)
	defer f.Close()

	e := makeTestDirEntry("FILE.TXT", AttrArchive, 5)
	e.Size = uint32(v.ClusterSize()) + 1

	attr := attrFromEntry(v, e)
	if attr.Ino != 5 {
		t.Errorf("Ino = %d, want 5", attr.Ino)
	}
	if attr.Mode != fileAttrMode {
		t.Errorf("Mode = %v, want %v", attr.Mode, fileAttrMode)
	}
	if attr.Size != int64(v.ClusterSize())+1 {
		t.Errorf("Size = %d, want %d", attr.Size, int64(v.ClusterSize())+1)
	}
	// ceil((clusterSize+1) / clusterSize) == 2
	if attr.Blocks != 2 {
		t.Errorf("Blocks = %d, want 2 (ceiling division)", attr.Blocks)
	}
}

func TestAttrFromEntry_Directory(t *testing.T) {
	v, f := mountTestVolume(t, 8)
	defer f.Close()

	e := makeTestDirEntry("SUBDIR", AttrDir, 5)
	attr := attrFromEntry(v, e)
	if attr.Mode&os.ModeDir == 0 {
		t.Error("expected ModeDir bit set for a directory entry")
	}
	if attr.Mode.Perm() != dirAttrMode {
		t.Errorf("Mode.Perm() = %v, want %v", attr.Mode.Perm(), dirAttrMode)
	}
}

func TestAttrFromEntry_ReadOnlyStripsWriteBits(t *testing.T) {
	v, f := mountTestVolume(t, 8)
	defer f.Close()

	e := makeTestDirEntry("RO.TXT", AttrArchive|AttrReadOnly, 5)
	attr := attrFromEntry(v, e)
	if attr.Mode&0o222 != 0 {
		t.Errorf("Mode = %v, expected no write bits for a read-only entry", attr.Mode)
	}
}

func TestAttrFromEntry_ZeroSizeHasZeroBlocks(t *testing.T) {
	v, f := mountTestVolume(t, 8)
	defer f.Close()

	e := makeTestDirEntry("EMPTY.TXT", AttrArchive, 5)
	attr := attrFromEntry(v, e)
	if attr.Blocks != 0 {
		t.Errorf("Blocks = %d, want 0 for a zero-length file", attr.Blocks)
	}
}

func TestFileInfo_Accessors(t *testing.T) {
	v, f := mountTestVolume(t, 8)
	defer f.Close()

	e := makeTestDirEntry("README", AttrArchive, 5)
	e.Size = 42
	attr := attrFromEntry(v, e)
	fi := newFileInfo("README", attr)

	if fi.Name() != "README" {
		t.Errorf("Name() = %q, want README", fi.Name())
	}
	if fi.Size() != 42 {
		t.Errorf("Size() = %d, want 42", fi.Size())
	}
	if fi.IsDir() {
		t.Error("IsDir() should be false for a file")
	}
	sys, ok := fi.Sys().(Attr)
	if !ok {
		t.Fatalf("Sys() returned %T, want Attr", fi.Sys())
	}
	if sys.Ino != 5 {
		t.Errorf("Sys().(Attr).Ino = %d, want 5", sys.Ino)
	}
}

func TestStatVFS(t *testing.T) {
	fs, f := mountTestFS(t, 8, Options{})
	defer f.Close()

	before := fs.StatVFS()
	if before.BlockSize != fs.v.ClusterSize() {
		t.Errorf("BlockSize = %d, want %d", before.BlockSize, fs.v.ClusterSize())
	}
	if before.TotalBlocks != uint64(fs.v.ClusterCount()) {
		t.Errorf("TotalBlocks = %d, want %d", before.TotalBlocks, fs.v.ClusterCount())
	}

	if _, err := fs.alloc.allocNode(); err != nil {
		t.Fatalf("allocNode: %v", err)
	}
	after := fs.StatVFS()
	if after.FreeBlocks != before.FreeBlocks-1 {
		t.Errorf("FreeBlocks after one allocation = %d, want %d", after.FreeBlocks, before.FreeBlocks-1)
	}
}
