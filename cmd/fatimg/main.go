// Command fatimg is a thin shell over the volume/format engine: argument
// parsing, human-readable output, and exit codes. It carries none of the
// FAT12/16 logic itself.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mdfat/fat12/format"
	"github.com/mdfat/fat12/volume"
)

func main() {
	app := &cli.App{
		Name:                 "fatimg",
		Usage:                "inspect and mutate FAT12/16 super-floppy disk images",
		Version:              "0.1.0",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			infoCommand,
			listCommand,
			formatCommand,
			copyInCommand,
			deleteCommand,
			mkdirCommand,
		},
	}

	// Action failures are cli.Exit values that urfave/cli prints and exits
	// on itself; an error reaching here is a flag or argument usage error.
	if err := app.Run(stripDoubleColon(os.Args)); err != nil {
		log.SetFlags(0)
		log.Printf("fatimg: %s", err)
		os.Exit(2)
	}
}

// stripDoubleColon drops a bare "::" token wherever it appears, accepted for
// command-line compatibility with classic FAT tooling but otherwise
// meaningless here.
func stripDoubleColon(args []string) []string {
	out := args[:0:0]
	for _, a := range args {
		if a == "::" {
			continue
		}
		out = append(out, a)
	}
	return out
}

var imageFlag = &cli.StringFlag{
	Name:     "image",
	Aliases:  []string{"i"},
	Usage:    "path to the FAT12/16 image file",
	Required: true,
}

var infoCommand = &cli.Command{
	Name:      "info",
	Usage:     "print boot-sector summary and derived layout",
	ArgsUsage: " ",
	Flags:     []cli.Flag{imageFlag},
	Action: func(c *cli.Context) error {
		vol, err := openVolume(c.String("image"))
		if err != nil {
			return err
		}
		defer vol.Close()

		printWarnings(vol)

		s := vol.Info()
		fmt.Printf("Bytes/sector       %d\n", s.BytesPerSector)
		fmt.Printf("Sec/cluster        %d\n", s.SectorsPerCluster)
		fmt.Printf("Reserved sectors   %d\n", s.ReservedSectors)
		fmt.Printf("Number of FATs     %d\n", s.NumFATs)
		fmt.Printf("Root entries       %d\n", s.RootEntries)
		fmt.Printf("Total sectors      %d\n", s.TotalSectors)
		fmt.Printf("Media              0x%02X\n", s.Media)
		fmt.Printf("FAT size (sec)     %d\n", s.SectorsPerFAT)
		fmt.Printf("Cluster count      %d\n", s.ClusterCount)
		fmt.Printf("Guessed FAT type   %s\n", s.FATType)
		return nil
	},
}

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "list root directory entries",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		imageFlag,
		&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "include hidden and system entries"},
	},
	Action: func(c *cli.Context) error {
		vol, err := openVolume(c.String("image"))
		if err != nil {
			return err
		}
		defer vol.Close()

		printWarnings(vol)

		entries, err := vol.List(c.Bool("all"))
		if err != nil {
			return exitErr(err)
		}

		fmt.Printf("%-6s %-12s %s\n", "ATTRS", "NAME", "SIZE")
		for _, e := range entries {
			fmt.Printf("%-6s %-12s %d\n", e.Attrs, e.Name, e.Size)
		}
		return nil
	},
}

var formatCommand = &cli.Command{
	Name:      "format",
	Usage:     "(re)format an image to FAT12, sized 1.44MB unless it already exists or --geometry is given",
	ArgsUsage: " ",
	Flags: []cli.Flag{
		imageFlag,
		&cli.StringFlag{Name: "geometry", Usage: "predefined geometry slug for a newly created image (e.g. 720k, 1440k)"},
	},
	Action: func(c *cli.Context) error {
		err := format.Format(c.String("image"), format.Options{GeometrySlug: c.String("geometry")})
		if err != nil {
			return exitErr(err)
		}
		return nil
	},
}

var copyInCommand = &cli.Command{
	Name:      "copy-in",
	Usage:     "copy a host file into the image's root directory",
	ArgsUsage: "SRCFILE",
	Flags: []cli.Flag{
		imageFlag,
		&cli.BoolFlag{Name: "overwrite", Usage: "replace an existing entry with the same name"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("copy-in requires exactly one SRCFILE argument", 2)
		}

		vol, err := openVolume(c.String("image"))
		if err != nil {
			return err
		}
		defer vol.Close()

		printWarnings(vol)

		if err := vol.CopyIn(c.Args().First(), c.Bool("overwrite")); err != nil {
			return exitErr(err)
		}
		return nil
	},
}

var deleteCommand = &cli.Command{
	Name:      "delete",
	Usage:     "mark a root entry deleted and free its cluster chain",
	ArgsUsage: "NAME",
	Flags:     []cli.Flag{imageFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("delete requires exactly one NAME argument", 2)
		}

		vol, err := openVolume(c.String("image"))
		if err != nil {
			return err
		}
		defer vol.Close()

		printWarnings(vol)

		if err := vol.Delete(c.Args().First()); err != nil {
			return exitErr(err)
		}
		return nil
	},
}

var mkdirCommand = &cli.Command{
	Name:      "mkdir",
	Usage:     "create a root subdirectory",
	ArgsUsage: "NAME",
	Flags:     []cli.Flag{imageFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("mkdir requires exactly one NAME argument", 2)
		}

		vol, err := openVolume(c.String("image"))
		if err != nil {
			return err
		}
		defer vol.Close()

		printWarnings(vol)

		if err := vol.Mkdir(c.Args().First()); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				return cli.Exit("Directory already exists.", 1)
			}
			return exitErr(err)
		}
		return nil
	},
}

func openVolume(path string) (*volume.Volume, error) {
	vol, err := volume.Open(path)
	if err != nil {
		return nil, exitErr(err)
	}
	return vol, nil
}

// printWarnings surfaces non-fatal BPB irregularities to stderr without
// aborting the operation (spec §7's propagation policy).
func printWarnings(vol *volume.Volume) {
	warnings := vol.Warnings()
	if warnings == nil {
		return
	}
	for _, w := range warnings.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

// exitErr wraps any engine error as a urfave/cli exit error with exit code
// 1, per spec §6's "runtime failure" code.
func exitErr(err error) error {
	return cli.Exit(err.Error(), 1)
}
