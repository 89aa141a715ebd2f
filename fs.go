// File fs implements the top-level façade: the named operations (open,
// read, write, seek, close, create, unlink, rename, truncate, lookup-attrs,
// readdir, set-times, statfs) composed from the volume/cache/allocator/
// directory/resolver layers, and an afero.Fs adapter over them.
package fat

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/theanurin/emphatic-fs/checkpoint"
)

// Options configure a mount beyond what can be read off the device itself.
type Options struct {
	ReadOnly        bool
	FATCacheSectors int
	Logger          *slog.Logger
}

// FS is the process-wide, single-mutex-guarded filesystem engine: one
// Volume, one FAT cache, one free-space map, one allocator, one directory
// layer and one handle table, all reached only through this type's
// methods (§5: "Only the façade mutates them, and only inside one request
// at a time").
type FS struct {
	mu sync.Mutex

	v       *Volume
	fc      *fatCache
	fm      *freeMap
	alloc   *allocator
	dir     *directory
	handles *handleTable

	readOnly bool
	log      *slog.Logger
}

// New mounts device and brings up the engine in the order volume geometry,
// FAT cache, free-space map (scanned through the cache), allocator,
// directory layer, handle table (§4.1).
func New(device BlockDevice, opts Options) (*FS, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v, err := mountVolume(device, logger)
	if err != nil {
		return nil, err
	}

	fc := newFATCache(v, opts.FATCacheSectors)

	fm, err := buildFreeMap(fc, v.DataClusterLimit())
	if err != nil {
		return nil, err
	}

	alloc := newAllocator(fc, fm)
	dir := newDirectory(v, alloc)
	handles := newHandleTable()

	fs := &FS{
		v:        v,
		fc:       fc,
		fm:       fm,
		alloc:    alloc,
		dir:      dir,
		handles:  handles,
		readOnly: opts.ReadOnly,
		log:      logger,
	}

	logger.Info("emphaticfs mounted", slog.Bool("readOnly", fs.readOnly))
	return fs, nil
}

func (fs *FS) checkWritable() error {
	if fs.readOnly {
		return checkpoint.Wrap(ErrPermissionDenied, ErrPermissionDenied)
	}
	return nil
}

// openHandle resolves path and returns the shared handle for it, bumping
// its refcount if it was already open (§4.5's identity-sharing contract).
func (fs *FS) openHandle(path string) (*handle, error) {
	r, err := resolve(fs.v, fs.fc, fs.dir, path)
	if err != nil {
		return nil, err
	}

	cluster := r.entry.Cluster()
	if h, ok := fs.handles.lookup(cluster); ok {
		fs.handles.acquire(h)
		return h, nil
	}

	ch, err := buildChain(fs.fc, cluster)
	if err != nil {
		return nil, err
	}

	h := &handle{
		name:          shortToName(r.entry.Name),
		startCluster:  cluster,
		attr:          r.entry.Attr,
		chain:         ch,
		size:          int64(r.entry.Size),
		parentCluster: r.parentCluster,
		hasParent:     r.name != "/",
	}
	fs.handles.insert(h)
	return h, nil
}

// closeHandle releases a reference; at refcount zero it removes the
// handle from the table and, if flagDeleteOnClose is set, releases the
// file's clusters. The parent slot itself was already marked unused by
// Remove at unlink time; delete-on-close only needs to free the clusters.
func (fs *FS) closeHandle(h *handle) error {
	if !fs.handles.release(h) {
		return nil
	}
	fs.handles.remove(h)

	if h.flags&flagDeleteOnClose == 0 {
		return nil
	}
	return fs.alloc.release(h.chain.clusters)
}

// slotOf locates h's own directory slot by scanning its parent directory
// for a matching starting cluster, for callers that need to read-modify-
// write the on-disk entry (size, timestamps, attributes) without any path
// lookup. Scanning rather than caching a byte offset means a rename or a
// sibling's swap-with-last compaction can never leave this stale.
func (fs *FS) slotOf(h *handle) (parentChain *clusterChain, s slot, err error) {
	if !h.hasParent {
		return nil, slot{}, checkpoint.Wrap(ErrInvalidArgument, ErrInvalidArgument)
	}
	// parentCluster 0 is the resolver's identity for the root directory,
	// whose chain starts at the boot sector's root cluster.
	dirCluster := h.parentCluster
	if dirCluster == 0 {
		dirCluster = fs.v.RootCluster()
	}
	parentChain, err = buildChain(fs.fc, dirCluster)
	if err != nil {
		return nil, slot{}, err
	}
	s, ok, err := fs.dir.findByCluster(parentChain, h.startCluster)
	if err != nil {
		return nil, slot{}, err
	}
	if !ok {
		return nil, slot{}, checkpoint.Wrap(ErrNoSuchEntry, ErrNoSuchEntry)
	}
	return parentChain, s, nil
}

// Open implements the façade's open for a regular file in read-only mode,
// matching afero.Fs.Open.
func (fs *FS) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

// Create creates (or truncates) the named file and opens it read-write,
// matching afero.Fs.Create.
func (fs *FS) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile implements open/create per the flag combination, matching
// afero.Fs.OpenFile.
func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, err := fs.openHandle(name)
	if err != nil {
		if flag&os.O_CREATE == 0 {
			return nil, err
		}
		if err := fs.checkWritable(); err != nil {
			return nil, err
		}
		h, err = fs.createLocked(name, perm, false)
		if err != nil {
			return nil, err
		}
	}

	if h.isDir() && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		fs.closeHandle(h)
		return nil, checkpoint.Wrap(ErrIsADirectory, ErrIsADirectory)
	}

	file := &File{fs: fs, h: h, appendMode: flag&os.O_APPEND != 0}

	if flag&os.O_TRUNC != 0 {
		if err := fs.checkWritable(); err != nil {
			return nil, err
		}
		if err := fs.truncateHandleLocked(h, 0); err != nil {
			return nil, err
		}
		if err := file.syncSizeToSlot(); err != nil {
			return nil, err
		}
	}

	return file, nil
}

// createLocked makes a new zero-length regular file (or, when isDir is
// set, an empty directory) at path, with the caller already holding fs.mu.
func (fs *FS) createLocked(path string, perm os.FileMode, isDir bool) (*handle, error) {
	parentChain, parentCluster, leaf, err := resolveParent(fs.v, fs.fc, fs.dir, path)
	if err != nil {
		return nil, err
	}

	raw, err := nameToShort(leaf)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrInvalidArgument)
	}

	if _, ok, err := fs.dir.find(parentChain, raw); err != nil {
		return nil, err
	} else if ok {
		return nil, checkpoint.Wrap(ErrExists, ErrExists)
	}

	attr := byte(0)
	if isDir {
		attr = AttrDir
	}

	now := time.Now().UTC()
	date, clock := DOSFromPOSIX(now)

	entry := DirEntry{
		Name:       raw,
		Attr:       attr,
		CreateDate: date,
		CreateTime: clock,
		WriteDate:  date,
		WriteTime:  clock,
		AccessDate: date,
	}

	// A brand-new entry is given its own cluster immediately, even a
	// zero-length file: the starting cluster is this driver's handle
	// identity, and leaving it at 0 (the on-disk encoding of "no clusters
	// allocated yet") would make every newly created empty file collide on
	// the same handle-table key.
	cluster, err := fs.alloc.allocNode()
	if err != nil {
		return nil, err
	}
	entry.SetCluster(cluster)
	if isDir {
		if err := fs.dir.zeroCluster(cluster); err != nil {
			return nil, err
		}
		if err := fs.writeDotEntries(cluster, parentCluster); err != nil {
			return nil, err
		}
	}

	if _, err := fs.dir.append(parentChain, entry); err != nil {
		return nil, err
	}

	ch, err := buildChain(fs.fc, cluster)
	if err != nil {
		return nil, err
	}

	h := &handle{
		name:          leaf,
		startCluster:  cluster,
		attr:          entry.Attr,
		chain:         ch,
		parentCluster: parentCluster,
		hasParent:     true,
	}
	fs.handles.insert(h)
	return h, nil
}

// writeDotEntries populates a freshly allocated directory cluster's "."
// and ".." slots, the only entries a FAT32 subdirectory carries that the
// root does not.
func (fs *FS) writeDotEntries(cluster, parentCluster uint32) error {
	ch, err := buildChain(fs.fc, cluster)
	if err != nil {
		return err
	}

	dot := DirEntry{Name: reservedShortNames[0], Attr: AttrDir}
	dot.SetCluster(cluster)
	dotdot := DirEntry{Name: reservedShortNames[1], Attr: AttrDir}
	dotdot.SetCluster(parentCluster)

	if err := fs.dir.writeSlot(ch, slot{DirEntry: dot, chainIndex: 0, slotOffset: 0}); err != nil {
		return err
	}
	return fs.dir.writeSlot(ch, slot{DirEntry: dotdot, chainIndex: 0, slotOffset: dirEntrySize})
}

// truncateHandleLocked grows or shrinks h to exactly size bytes.
func (fs *FS) truncateHandleLocked(h *handle, size int64) error {
	clusterSize := int64(fs.v.ClusterSize())

	if size > h.size {
		oldSize := h.size
		if h.size == 0 && h.chain.len() == 0 {
			first, err := fs.alloc.allocNode()
			if err != nil {
				return err
			}
			h.chain.clusters = append(h.chain.clusters, first)
		}
		needClusters := int((size + clusterSize - 1) / clusterSize)
		if needClusters > h.chain.len() {
			if err := h.chain.extend(fs.alloc, needClusters-h.chain.len()); err != nil {
				return err
			}
		}
		if err := h.chain.zeroFill(fs.v, oldSize, size); err != nil {
			return err
		}
		h.size = size
		return nil
	}

	if size == h.size {
		return nil
	}

	// Shrinking: keep ceil(size/clusterSize) clusters, release the rest.
	keep := int((size + clusterSize - 1) / clusterSize)
	if size == 0 {
		keep = 0
		if h.chain.len() > 0 {
			// A driver-created file's starting cluster doubles as its
			// handle-table identity and the cluster field of its own
			// directory slot (createLocked's eager allocation). Releasing
			// it here would leave both pointing at a freed cluster with no
			// path to re-key either one, so a truncate-to-zero followed by
			// a write would silently corrupt the file. Keep it as a single
			// end-of-chain cluster instead; only clusters beyond it go
			// back to the free-space map.
			keep = 1
		}
	}

	if keep < h.chain.len() {
		if keep > 0 {
			if err := fs.alloc.markEndOfChain(h.chain.at(keep - 1)); err != nil {
				return err
			}
		}
		for i := keep; i < h.chain.len(); i++ {
			if err := fs.alloc.releaseOne(h.chain.at(i)); err != nil {
				return err
			}
		}
		h.chain.clusters = h.chain.clusters[:keep]
		if h.chain.cursor >= keep {
			h.chain.cursor = keep - 1
		}
	}
	h.size = size
	return nil
}

// Mkdir implements mkdir.
func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}
	h, err := fs.createLocked(name, perm, true)
	if err != nil {
		return err
	}
	return fs.closeHandle(h)
}

// MkdirAll implements MkdirAll by creating every missing leading
// component, matching afero.Fs.MkdirAll.
func (fs *FS) MkdirAll(path string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	components := splitPath(path)
	partial := ""
	for _, c := range components {
		if partial == "" {
			partial = c
		} else {
			partial = partial + "/" + c
		}
		if _, err := resolve(fs.v, fs.fc, fs.dir, partial); err == nil {
			continue
		}
		h, err := fs.createLocked(partial, perm, true)
		if err != nil {
			return err
		}
		if err := fs.closeHandle(h); err != nil {
			return err
		}
	}
	return nil
}

// Remove implements unlink/rmdir: it fails on a non-empty directory, and
// otherwise removes the parent slot immediately. With no handle open the
// clusters are released at once; with a handle open, the handle is marked
// delete-on-close and the clusters are released at its last close.
func (fs *FS) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	r, err := resolve(fs.v, fs.fc, fs.dir, name)
	if err != nil {
		return err
	}

	if r.entry.IsDir() {
		ch, err := buildChain(fs.fc, r.entry.Cluster())
		if err != nil {
			return err
		}
		empty, err := fs.dir.isEmpty(ch)
		if err != nil {
			return err
		}
		if !empty {
			return checkpoint.Wrap(ErrNotEmpty, ErrNotEmpty)
		}
	}

	if h, ok := fs.handles.lookup(r.entry.Cluster()); ok {
		h.flags |= flagDeleteOnClose
		return fs.dir.remove(r.parentChain, r.entry)
	}

	chain, err := buildChain(fs.fc, r.entry.Cluster())
	if err != nil {
		return err
	}
	if err := fs.alloc.release(chain.clusters); err != nil {
		return err
	}
	return fs.dir.remove(r.parentChain, r.entry)
}

// RemoveAll implements RemoveAll by recursively removing a directory's
// children before removing the directory itself. It takes fs.mu itself,
// once per recursive step, rather than holding it for the whole walk.
func (fs *FS) RemoveAll(path string) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}
	return fs.removeAll(path)
}

func (fs *FS) removeAll(path string) error {
	fs.mu.Lock()
	r, err := resolve(fs.v, fs.fc, fs.dir, path)
	if err != nil {
		fs.mu.Unlock()
		if errors.Is(err, ErrNoSuchEntry) {
			return nil
		}
		return err
	}

	if !r.entry.IsDir() {
		fs.mu.Unlock()
		return fs.Remove(path)
	}

	ch, err := buildChain(fs.fc, r.entry.Cluster())
	if err != nil {
		fs.mu.Unlock()
		return err
	}
	var children []string
	err = fs.dir.forEach(ch, func(s slot) (bool, error) {
		if isReservedName(s.Name) || s.Attr&AttrVolumeID != 0 {
			return false, nil
		}
		children = append(children, path+"/"+shortToName(s.Name))
		return false, nil
	})
	fs.mu.Unlock()
	if err != nil {
		return err
	}

	for _, c := range children {
		if err := fs.removeAll(c); err != nil {
			return err
		}
	}
	return fs.Remove(path)
}

// Rename implements rename by re-pointing the directory slot: append a
// copy under the new parent/name, then remove the old slot. The starting
// cluster, and therefore every open handle's identity, is unchanged.
func (fs *FS) Rename(oldname, newname string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}

	r, err := resolve(fs.v, fs.fc, fs.dir, oldname)
	if err != nil {
		return err
	}

	newParentChain, newParentCluster, leaf, err := resolveParent(fs.v, fs.fc, fs.dir, newname)
	if err != nil {
		return err
	}
	raw, err := nameToShort(leaf)
	if err != nil {
		return checkpoint.Wrap(err, ErrInvalidArgument)
	}

	entry := r.entry.DirEntry
	entry.Name = raw
	if _, err := fs.dir.append(newParentChain, entry); err != nil {
		return err
	}
	if err := fs.dir.remove(r.parentChain, r.entry); err != nil {
		return err
	}

	// An open handle locates its slot by scanning parentCluster on demand
	// (see slotOf), so only parentCluster/name need updating here; no
	// cached byte offset can go stale.
	if h, ok := fs.handles.lookup(entry.Cluster()); ok {
		h.name = leaf
		h.parentCluster = newParentCluster
	}
	return nil
}

// Stat implements lookup-attrs for a path, matching afero.Fs.Stat.
func (fs *FS) Stat(name string) (os.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	r, err := resolve(fs.v, fs.fc, fs.dir, name)
	if err != nil {
		return nil, err
	}
	attr := attrFromEntry(fs.v, r.entry.DirEntry)
	return newFileInfo(displayName(r), attr), nil
}

func displayName(r resolved) string {
	if r.name == "/" {
		return "/"
	}
	return r.name
}

// Name reports the façade's implementation name, matching afero.Fs.Name.
func (fs *FS) Name() string { return "emphaticfs" }

// Chmod only supports toggling the read-only attribute bit; FAT32 carries
// no other permission state.
func (fs *FS) Chmod(name string, mode os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}
	r, err := resolve(fs.v, fs.fc, fs.dir, name)
	if err != nil {
		return err
	}
	if mode&0o200 == 0 {
		r.entry.Attr |= AttrReadOnly
	} else {
		r.entry.Attr &^= AttrReadOnly
	}
	return fs.dir.writeSlot(r.parentChain, r.entry)
}

// Chown is a no-op: FAT32 has no owner/group fields.
func (fs *FS) Chown(name string, uid, gid int) error { return nil }

// Chtimes implements set-times.
func (fs *FS) Chtimes(name string, atime, mtime time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.checkWritable(); err != nil {
		return err
	}
	r, err := resolve(fs.v, fs.fc, fs.dir, name)
	if err != nil {
		return err
	}
	r.entry.AccessDate, _ = DOSFromPOSIX(atime)
	r.entry.WriteDate, r.entry.WriteTime = DOSFromPOSIX(mtime)
	return fs.dir.writeSlot(r.parentChain, r.entry)
}

// StatVFS implements statfs.
func (fs *FS) StatVFS() StatVFS {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return StatVFS{
		BlockSize:    fs.v.ClusterSize(),
		TotalBlocks:  uint64(fs.v.ClusterCount()),
		FreeBlocks:   uint64(fs.fm.freeClusters()),
		AvailBlocks:  uint64(fs.fm.freeClusters()),
		MaxNameBytes: 11, // the on-disk 8.3 short name, per §6
	}
}

func splitPath(path string) []string {
	var out []string
	cur := ""
	for _, r := range path {
		if r == '/' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
