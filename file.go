package fat

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/theanurin/emphatic-fs/checkpoint"
)

// File is the public, afero.File-satisfying view onto one open()/create()
// result. Several Files opened against the same path share one underlying
// *handle (§4.5); each File only adds the per-opener afero.File method set
// on top of it.
type File struct {
	fs         *FS
	h          *handle
	appendMode bool

	readdirOnce sync.Once
	readdirBuf  []os.FileInfo
	readdirErr  error
	readdirPos  int
}

var _ afero.File = (*File)(nil)

func (f *File) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.fs.closeHandle(f.h)
}

func (f *File) Read(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.h.read(f.fs.v, p)
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	saved := f.h.offset
	f.h.setOffset(off, f.fs.v.ClusterSize())
	n, err := f.h.read(f.fs.v, p)
	f.h.setOffset(saved, f.fs.v.ClusterSize())
	return n, err
}

// Seek implements io.Seeker. May return syscall-style errors wrapped by
// checkpoint if whence is invalid or the target is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.h.seek(offset, SeekWhence(whence), f.fs.v.ClusterSize())
}

func (f *File) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if err := f.fs.checkWritable(); err != nil {
		return 0, err
	}
	if f.appendMode {
		f.h.setOffset(f.h.size, f.fs.v.ClusterSize())
	}
	n, err := f.h.write(f.fs.v, f.fs.alloc, p)
	if err == nil {
		err = f.syncSizeToSlot()
	}
	return n, err
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if err := f.fs.checkWritable(); err != nil {
		return 0, err
	}
	saved := f.h.offset
	f.h.setOffset(off, f.fs.v.ClusterSize())
	n, err := f.h.write(f.fs.v, f.fs.alloc, p)
	if n > 0 {
		f.h.setOffset(saved, f.fs.v.ClusterSize())
	}
	if err == nil {
		err = f.syncSizeToSlot()
	}
	return n, err
}

// syncSizeToSlot writes the handle's possibly-grown size and write-time
// back to its directory slot, keeping the on-disk entry in sync with
// in-memory writes.
func (f *File) syncSizeToSlot() error {
	if !f.h.hasParent {
		return nil
	}
	parentChain, s, err := f.fs.slotOf(f.h)
	if err != nil {
		return err
	}
	s.Size = uint32(f.h.size)
	now := time.Now().UTC()
	s.WriteDate, s.WriteTime = DOSFromPOSIX(now)
	return f.fs.dir.writeSlot(parentChain, s)
}

func (f *File) Name() string { return f.h.name }

// Readdir reads up to count directory entries (all remaining entries if
// count <= 0), matching afero.File.Readdir.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if !f.h.isDir() {
		return nil, checkpoint.Wrap(ErrNotADirectory, ErrNotADirectory)
	}

	f.readdirOnce.Do(func() {
		f.readdirBuf, f.readdirErr = f.listChildren()
	})
	if f.readdirErr != nil {
		return nil, f.readdirErr
	}

	if count <= 0 {
		rest := f.readdirBuf[f.readdirPos:]
		f.readdirPos = len(f.readdirBuf)
		return rest, nil
	}

	end := f.readdirPos + count
	if end > len(f.readdirBuf) {
		end = len(f.readdirBuf)
	}
	out := f.readdirBuf[f.readdirPos:end]
	f.readdirPos = end

	var err error
	if len(out) < count {
		err = io.EOF
	}
	return out, err
}

func (f *File) listChildren() ([]os.FileInfo, error) {
	var out []os.FileInfo
	err := f.fs.dir.forEach(f.h.chain, func(s slot) (bool, error) {
		if isReservedName(s.Name) || s.Attr&AttrVolumeID != 0 {
			return false, nil
		}
		attr := attrFromEntry(f.fs.v, s.DirEntry)
		out = append(out, newFileInfo(shortToName(s.Name), attr))
		return false, nil
	})
	return out, err
}

func (f *File) Readdirnames(count int) ([]string, error) {
	entries, err := f.Readdir(count)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, err
}

func (f *File) Stat() (os.FileInfo, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if !f.h.hasParent {
		return newFileInfo("/", Attr{Ino: uint64(f.h.startCluster), Mode: os.ModeDir | dirAttrMode, Nlink: 1}), nil
	}
	_, s, err := f.fs.slotOf(f.h)
	if err != nil {
		return nil, err
	}
	return newFileInfo(f.h.name, attrFromEntry(f.fs.v, s.DirEntry)), nil
}

func (f *File) Sync() error {
	return nil
}

func (f *File) Truncate(size int64) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()

	if err := f.fs.checkWritable(); err != nil {
		return err
	}
	if err := f.fs.truncateHandleLocked(f.h, size); err != nil {
		return err
	}
	return f.syncSizeToSlot()
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}
