//go:build !fuse

package main

import (
	"github.com/urfave/cli/v2"
)

var mountCommand = &cli.Command{
	Name:      "mount",
	Usage:     "Mount a RUFS diskfile over FUSE (requires -tags fuse)",
	ArgsUsage: "DISKFILE MOUNTPOINT",
	Action: func(c *cli.Context) error {
		return cli.Exit("rufs was built without FUSE support; rebuild with -tags fuse", 1)
	},
}
