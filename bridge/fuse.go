// Package bridge adapts the façade in the root package to the go-fuse v2
// kernel-bridge node API, the way absfs/fusefs adapts absfs.FileSystem:
// one node per path, embedding fs.Inode, implementing the handful of
// Node* interfaces the kernel actually calls.
package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	gofat "github.com/theanurin/emphatic-fs"
)

// Root wraps a mounted *gofat.FS as the go-fuse filesystem root. Every
// node below it shares this one Root and its engine singletons, matching
// §5's single-cohesive-context model.
type Root struct {
	engine *gofat.FS
	log    *slog.Logger
}

// NewRoot constructs the root node for go-fuse's Mount, backed by an
// already-mounted filesystem engine.
func NewRoot(engine *gofat.FS, logger *slog.Logger) *fusefs.Inode {
	if logger == nil {
		logger = slog.Default()
	}
	root := &node{root: &Root{engine: engine, log: logger}, path: "/"}
	return &root.Inode
}

// node implements the go-fuse Node* interfaces for one path. go-fuse
// identifies nodes by *inode pointer identity; this package re-derives
// the path from its parent chain rather than caching a cluster number, so
// renames (which the façade implements as a different starting cluster's
// slot moving, never the cluster itself) never leave a node's identity
// stale.
type node struct {
	fusefs.Inode
	root *Root
	path string
}

var (
	_ fusefs.NodeLookuper   = (*node)(nil)
	_ fusefs.NodeOpener     = (*node)(nil)
	_ fusefs.NodeReaddirer  = (*node)(nil)
	_ fusefs.NodeGetattrer  = (*node)(nil)
	_ fusefs.NodeCreater    = (*node)(nil)
	_ fusefs.NodeMkdirer    = (*node)(nil)
	_ fusefs.NodeUnlinker   = (*node)(nil)
	_ fusefs.NodeRmdirer    = (*node)(nil)
	_ fusefs.NodeRenamer    = (*node)(nil)
	_ fusefs.NodeSetattrer  = (*node)(nil)
	_ fusefs.NodeStatfser   = (*node)(nil)
)

func (n *node) childPath(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	info, err := n.root.engine.Stat(childPath)
	if err != nil {
		return nil, toErrno(err)
	}

	child := &node{root: n.root, path: childPath}
	fillAttr(&out.Attr, info)
	mode := uint32(fuse.S_IFREG)
	if info.IsDir() {
		mode = fuse.S_IFDIR
	}
	return n.NewInode(ctx, child, fusefs.StableAttr{Mode: mode}), 0
}

func (n *node) Getattr(ctx context.Context, f fusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, err := n.root.engine.Stat(n.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, info)
	return 0
}

func (n *node) Setattr(ctx context.Context, f fusefs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if fh, ok := f.(*fileHandle); ok {
			if err := fh.file.Truncate(int64(size)); err != nil {
				return toErrno(err)
			}
		} else if err := truncatePath(n.root.engine, n.path, int64(size)); err != nil {
			return toErrno(err)
		}
	}
	if mode, ok := in.GetMode(); ok {
		if err := n.root.engine.Chmod(n.path, os.FileMode(mode)); err != nil {
			return toErrno(err)
		}
	}
	mtime, mok := in.GetMTime()
	atime, aok := in.GetATime()
	if mok || aok {
		if err := n.root.engine.Chtimes(n.path, atime, mtime); err != nil {
			return toErrno(err)
		}
	}
	return n.Getattr(ctx, f, out)
}

func truncatePath(engine *gofat.FS, path string, size int64) error {
	f, err := engine.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func (n *node) Open(ctx context.Context, flags uint32) (fusefs.FileHandle, uint32, syscall.Errno) {
	f, err := n.root.engine.OpenFile(n.path, int(flags), 0o644)
	if err != nil {
		return nil, 0, toErrno(err)
	}
	return &fileHandle{file: f, mu: &sync.Mutex{}}, 0, 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fusefs.Inode, fusefs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	f, err := n.root.engine.OpenFile(childPath, int(flags)|os.O_CREATE, os.FileMode(mode))
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	fillAttr(&out.Attr, info)

	child := &node{root: n.root, path: childPath}
	inode := n.NewInode(ctx, child, fusefs.StableAttr{Mode: fuse.S_IFREG})
	return inode, &fileHandle{file: f, mu: &sync.Mutex{}}, 0, 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.root.engine.Mkdir(childPath, os.FileMode(mode)); err != nil {
		return nil, toErrno(err)
	}
	info, err := n.root.engine.Stat(childPath)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, info)

	child := &node{root: n.root, path: childPath}
	return n.NewInode(ctx, child, fusefs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.root.engine.Remove(n.childPath(name)))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.root.engine.Remove(n.childPath(name)))
}

func (n *node) Rename(ctx context.Context, name string, newParent fusefs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newNode, ok := newParent.(*node)
	if !ok {
		return syscall.EINVAL
	}
	return toErrno(n.root.engine.Rename(n.childPath(name), newNode.childPath(newName)))
}

func (n *node) Readdir(ctx context.Context) (fusefs.DirStream, syscall.Errno) {
	f, err := n.root.engine.OpenFile(n.path, os.O_RDONLY, 0)
	if err != nil {
		return nil, toErrno(err)
	}
	defer f.Close()

	entries, err := f.Readdir(-1)
	if err != nil {
		return nil, toErrno(err)
	}

	list := make([]fuse.DirEntry, len(entries))
	for i, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir() {
			mode = fuse.S_IFDIR
		}
		list[i] = fuse.DirEntry{Name: e.Name(), Mode: mode}
	}
	return fusefs.NewListDirStream(list), 0
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	s := n.root.engine.StatVFS()
	out.Bsize = s.BlockSize
	out.Blocks = s.TotalBlocks
	out.Bfree = s.FreeBlocks
	out.Bavail = s.AvailBlocks
	out.NameLen = s.MaxNameBytes
	return 0
}

// fileHandle is the go-fuse FileHandle backing an open *gofat.File; reads
// and writes are serialized per handle even though the engine itself also
// serializes through its own mutex, matching the belt-and-suspenders
// locking the teacher pack's fusefs adapter uses around its HandleTracker.
type fileHandle struct {
	mu   *sync.Mutex
	file interface {
		ReadAt(p []byte, off int64) (int, error)
		WriteAt(p []byte, off int64) (int, error)
		Truncate(size int64) error
		Close() error
	}
}

var (
	_ fusefs.FileReader    = (*fileHandle)(nil)
	_ fusefs.FileWriter    = (*fileHandle)(nil)
	_ fusefs.FileFlusher   = (*fileHandle)(nil)
	_ fusefs.FileReleaser  = (*fileHandle)(nil)
)

func (fh *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	n, err := fh.file.ReadAt(dest, off)
	if err != nil && n == 0 && !errors.Is(err, io.EOF) {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (fh *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	n, err := fh.file.WriteAt(data, off)
	if err != nil {
		return uint32(n), toErrno(err)
	}
	return uint32(n), 0
}

func (fh *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (fh *fileHandle) Release(ctx context.Context) syscall.Errno {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return toErrno(fh.file.Close())
}
