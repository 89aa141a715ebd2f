package bridge

import (
	"log/slog"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	gofat "github.com/theanurin/emphatic-fs"
)

// MountOptions collects the handful of go-fuse/OS level knobs the mount
// subcommand exposes, separately from the engine's own gofat.Options.
type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	Debug      bool
	FSName     string
}

// Mount brings up engine as a kernel-visible filesystem at opts.MountPoint
// and blocks, the way absfs/fusefs's own Mount helper wraps fuse.NewServer
// plus Serve, returning only on unmount or a fatal mount error.
func Mount(engine *gofat.FS, opts MountOptions, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	root := NewRoot(engine, logger)

	fsName := opts.FSName
	if fsName == "" {
		fsName = "emphaticfs"
	}

	var mountOpts []string
	if opts.ReadOnly {
		mountOpts = append(mountOpts, "ro")
	}

	server, err := fusefs.Mount(opts.MountPoint, root, &fusefs.Options{
		MountOptions: fuse.MountOptions{
			FsName:     fsName,
			Name:       "emphaticfs",
			Options:    mountOpts,
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
		},
	})
	if err != nil {
		return err
	}

	logger.Info("emphaticfs serving", slog.String("mountpoint", opts.MountPoint))
	server.Wait()
	return nil
}
