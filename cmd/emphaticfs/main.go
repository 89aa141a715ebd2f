package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	fat "github.com/theanurin/emphatic-fs"
	"github.com/theanurin/emphatic-fs/bridge"
	"github.com/theanurin/emphatic-fs/internal/blockdev"
)

func main() {
	app := &cli.App{
		Name:    "emphaticfs",
		Usage:   "mount or check a FAT32 volume",
		Version: "0.1.0",

		Commands: []*cli.Command{
			mountCommand(),
			fsckCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mountCommand() *cli.Command {
	return &cli.Command{
		Name:      "mount",
		Usage:     "mount a FAT32 volume over FUSE",
		ArgsUsage: "<device> <mountpoint>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "read-only"},
			&cli.IntFlag{Name: "fat-cache-sectors", Value: 256},
			&cli.BoolFlag{Name: "allow-other"},
			&cli.BoolFlag{Name: "debug"},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return cli.Exit("expected <device> <mountpoint>", 2)
			}
			devicePath := c.Args().Get(0)
			mountpoint := c.Args().Get(1)

			logger := slog.Default()

			device, err := afero.NewOsFs().OpenFile(devicePath, os.O_RDWR, 0)
			if err != nil {
				return cli.Exit(fmt.Errorf("open device: %w", err), 1)
			}
			defer device.Close()

			// afero.OsFs.OpenFile hands back a concrete *os.File; take an
			// advisory exclusive lock on it so a second accidental mount of
			// the same device fails fast instead of racing this one's
			// writes. Non-OsFs backends (used in tests) have no file
			// descriptor to lock and are left unguarded.
			if osFile, ok := device.(*os.File); ok {
				if err := blockdev.Lock(osFile); err != nil {
					return cli.Exit(fmt.Errorf("lock device: %w", err), 1)
				}
				defer blockdev.Unlock(osFile)
			}

			engine, err := fat.New(device, fat.Options{
				ReadOnly:        c.Bool("read-only"),
				FATCacheSectors: c.Int("fat-cache-sectors"),
				Logger:          logger,
			})
			if err != nil {
				return cli.Exit(fmt.Errorf("mount: %w", err), 1)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				logger.Info("emphaticfs unmount requested")
			}()

			opts := bridge.MountOptions{
				MountPoint: mountpoint,
				ReadOnly:   c.Bool("read-only"),
				AllowOther: c.Bool("allow-other"),
				Debug:      c.Bool("debug"),
			}
			if err := bridge.Mount(engine, opts, logger); err != nil {
				return cli.Exit(fmt.Errorf("serve: %w", err), 1)
			}
			return nil
		},
	}
}

func fsckCommand() *cli.Command {
	return &cli.Command{
		Name:      "fsck",
		Usage:     "validate a FAT32 volume without mounting it",
		ArgsUsage: "<device>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return cli.Exit("expected <device>", 2)
			}
			devicePath := c.Args().Get(0)

			device, err := afero.NewOsFs().OpenFile(devicePath, os.O_RDWR, 0)
			if err != nil {
				return cli.Exit(fmt.Errorf("open device: %w", err), 1)
			}
			defer device.Close()

			engine, err := fat.New(device, fat.Options{ReadOnly: true, Logger: slog.Default()})
			if err != nil {
				return cli.Exit(fmt.Errorf("fsck: %w", err), 1)
			}

			stat := engine.StatVFS()
			fmt.Printf("volume %q: block size %d, %d blocks total, %d free\n",
				engine.Name(), stat.BlockSize, stat.TotalBlocks, stat.FreeBlocks)
			return nil
		},
	}
}
