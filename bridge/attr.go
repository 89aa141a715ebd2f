package bridge

import (
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	gofat "github.com/theanurin/emphatic-fs"
)

// fillAttr copies an os.FileInfo (as returned by the façade's Stat/Attr
// operations) into a fuse.Attr, the way absfs/fusefs's attr() helper maps
// its absfs.Info onto the kernel's struct stat.
func fillAttr(out *fuse.Attr, info os.FileInfo) {
	out.Size = uint64(info.Size())
	out.Mode = uint32(info.Mode().Perm())
	if info.IsDir() {
		out.Mode |= fuse.S_IFDIR
	} else {
		out.Mode |= fuse.S_IFREG
	}

	mtime := info.ModTime()
	setTime(&out.Mtime, &out.Mtimensec, mtime)
	setTime(&out.Atime, &out.Atimensec, mtime)
	setTime(&out.Ctime, &out.Ctimensec, mtime)

	if attr, ok := info.Sys().(gofat.Attr); ok {
		out.Blksize = attr.BlockSize
		out.Blocks = uint64(attr.Blocks)
		out.Nlink = attr.Nlink
		out.Ino = attr.Ino
	}
}

func setTime(sec *uint64, nsec *uint32, t time.Time) {
	*sec = uint64(t.Unix())
	*nsec = uint32(t.Nanosecond())
}
