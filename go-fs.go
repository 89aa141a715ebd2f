package fat

import (
	"errors"
	"io/fs"
)

// GoDirEntry adapts os.FileInfo (returned throughout this package) to
// fs.DirEntry, for callers that want an io/fs-compatible ReadDir.
type GoDirEntry struct {
	FileInfo
}

func (g GoDirEntry) Type() fs.FileMode { return g.FileInfo.Mode().Type() }
func (g GoDirEntry) Info() (fs.FileInfo, error) { return g.FileInfo, nil }

// GoFile wraps *File to additionally satisfy fs.ReadDirFile.
type GoFile struct {
	*File
}

func (g GoFile) Stat() (fs.FileInfo, error) { return g.File.Stat() }
func (g GoFile) Read(p []byte) (int, error) { return g.File.Read(p) }
func (g GoFile) Close() error               { return g.File.Close() }

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		fi, ok := e.(FileInfo)
		if !ok {
			continue
		}
		goEntries[i] = GoDirEntry{fi}
	}

	return goEntries, err
}

// GoFS wraps *FS to be compatible with fs.FS/fs.ReadDirFS.
type GoFS struct {
	*FS
}

// NewGoFS mounts device and returns an fs.FS-compatible view of it.
func NewGoFS(device BlockDevice, opts Options) (*GoFS, error) {
	underlying, err := New(device, opts)
	if err != nil {
		return nil, err
	}
	return &GoFS{underlying}, nil
}

func (g GoFS) Open(name string) (fs.File, error) {
	file, err := g.FS.Open(name)
	if err != nil {
		return nil, err
	}

	f, ok := file.(*File)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}

	return GoFile{f}, nil
}

func (g GoFS) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gf, ok := f.(GoFile)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}
	return gf.ReadDir(-1)
}
