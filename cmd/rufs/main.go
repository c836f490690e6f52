// Command rufs is the CLI front end for the core package: it formats
// diskfiles, inspects them, and (when built with -tags fuse) mounts them.
//
// Grounded on github.com/dargueta/disko's cmd/main.go, which wires the
// same urfave/cli/v2 App/Command shape around a single "format"
// subcommand; this repo fills in the rest of the subcommands that stub
// left as TODOs.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rufs-go/rufs/block"
	"github.com/rufs-go/rufs/core"
	"github.com/rufs-go/rufs/layout"
	"github.com/rufs-go/rufs/presets"
)

func main() {
	app := &cli.App{
		Name:  "rufs",
		Usage: "Format, inspect, and mount RUFS diskfiles",
		Commands: []*cli.Command{
			formatCommand,
			fsckCommand,
			lsCommand,
			mkdirCommand,
			mountCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("rufs: %s", err)
	}
}

var formatCommand = &cli.Command{
	Name:      "format",
	Usage:     "Create (or overwrite) a RUFS diskfile",
	ArgsUsage: "DISKFILE",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "preset", Value: "default", Usage: "named layout preset (see `rufs format --help`)"},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("missing DISKFILE argument", 1)
		}

		preset, err := presets.Get(c.String("preset"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		sb := layout.Compute(preset.Params)
		dev, err := block.Init(path, sb.TotalBlocks())
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer dev.Close()

		if _, err := core.Format(dev, preset.Params); err != nil {
			return cli.Exit(err.Error(), 1)
		}

		log.Printf("formatted %s with preset %q (%d inodes, %d data blocks)",
			path, preset.Slug, preset.Params.MaxInodes, preset.Params.MaxDataBlks)
		return nil
	},
}

var fsckCommand = &cli.Command{
	Name:      "fsck",
	Usage:     "Check a mounted diskfile for consistency",
	ArgsUsage: "DISKFILE",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("missing DISKFILE argument", 1)
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

		if err := fsys.CheckConsistency(); err != nil {
			fmt.Fprintln(c.App.Writer, err)
			return cli.Exit("inconsistencies found", 1)
		}
		log.Printf("%s: no inconsistencies found", path)
		return nil
	},
}

var lsCommand = &cli.Command{
	Name:      "ls",
	Usage:     "List a directory's entries",
	ArgsUsage: "DISKFILE PATH",
	Action: func(c *cli.Context) error {
		path, target := c.Args().Get(0), c.Args().Get(1)
		if path == "" {
			return cli.Exit("missing DISKFILE argument", 1)
		}
		if target == "" {
			target = "/"
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

		return fsys.Readdir(target, func(name string, ino uint32) error {
			fmt.Fprintf(c.App.Writer, "%8d  %s\n", ino, name)
			return nil
		})
	},
}

var mkdirCommand = &cli.Command{
	Name:      "mkdir",
	Usage:     "Create a directory",
	ArgsUsage: "DISKFILE PATH",
	Action: func(c *cli.Context) error {
		path, target := c.Args().Get(0), c.Args().Get(1)
		if path == "" || target == "" {
			return cli.Exit("usage: rufs mkdir DISKFILE PATH", 1)
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

		if err := fsys.Mkdir(target, 0755); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return nil
	},
}
