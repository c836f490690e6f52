//go:build fuse

package main

import (
	"log"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/urfave/cli/v2"

	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/core"
	"github.com/rufs-go/rufs/fuseadapter"
)

var mountCommand = &cli.Command{
	Name:      "mount",
	Usage:     "Mount a RUFS diskfile over FUSE (requires -tags fuse)",
	ArgsUsage: "DISKFILE MOUNTPOINT",
	Action: func(c *cli.Context) error {
		path, mountpoint := c.Args().Get(0), c.Args().Get(1)
		if path == "" || mountpoint == "" {
			return cli.Exit("usage: rufs mount DISKFILE MOUNTPOINT", 1)
		}

		dev, err := block.Open(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer dev.Close()

		fsys, err := core.Mount(dev)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer fsys.Close()

		server, err := fs.Mount(mountpoint, fuseadapter.Root(fsys), fuseadapter.MountOptions())
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		log.Printf("mounted %s at %s", path, mountpoint)
		server.Wait()
		return nil
	},
}
