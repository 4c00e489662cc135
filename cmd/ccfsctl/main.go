// Command ccfsctl formats and inspects ccfs disk images from the command
// line. It talks to the engine directly and does not mount anything onto
// the host filesystem.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kestrelfs/ccfs/block"
	"github.com/kestrelfs/ccfs/fs"
	"github.com/kestrelfs/ccfs/volumes"
	"github.com/noxer/bytewriter"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "ccfsctl",
		Usage: "Format and inspect ccfs disk image files",
		Commands: []*cli.Command{
			{
				Name:      "mkfs",
				Usage:     "Create a fresh, empty ccfs image",
				ArgsUsage: "IMAGE_FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "preset", Value: "floppy", Usage: "named volume geometry from volumes.List()"},
				},
				Action: mkfsCommand,
			},
			{
				Name:      "info",
				Usage:     "Print volume geometry and free space",
				ArgsUsage: "IMAGE_FILE",
				Action:    infoCommand,
			},
			{
				Name:      "ls",
				Usage:     "List a directory's entries",
				ArgsUsage: "IMAGE_FILE PATH",
				Action:    lsCommand,
			},
			{
				Name:      "cat",
				Usage:     "Print a file's contents to stdout",
				ArgsUsage: "IMAGE_FILE PATH",
				Action:    catCommand,
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				ArgsUsage: "IMAGE_FILE PATH",
				Action:    mkdirCommand,
			},
			{
				Name:      "rm",
				Usage:     "Remove a file or empty directory",
				ArgsUsage: "IMAGE_FILE PATH",
				Action:    rmCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("ccfsctl: %s", err.Error())
	}
}

func mkfsCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("mkfs requires exactly one argument: IMAGE_FILE", 1)
	}
	imagePath := c.Args().Get(0)

	preset, err := volumes.Get(c.String("preset"))
	if err != nil {
		known := make([]string, 0, len(volumes.List()))
		for _, p := range volumes.List() {
			known = append(known, p.Slug)
		}
		return cli.Exit(fmt.Sprintf("%s; known presets: %s", err, strings.Join(known, ", ")), 1)
	}

	dev := block.NewMemDevice(512, preset.NumBlocks())
	if _, err := fs.Format(dev, preset.Geometry()); err != nil {
		return fmt.Errorf("format %s: %w", imagePath, err)
	}
	if err := os.WriteFile(imagePath, dev.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", imagePath, err)
	}
	fmt.Printf("formatted %s (%s) as %s\n", imagePath, preset.Slug, humanize.IBytes(uint64(len(dev.Bytes()))))
	return nil
}

func infoCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("info requires exactly one argument: IMAGE_FILE", 1)
	}
	fsys, _, err := mountImage(c.Args().Get(0))
	if err != nil {
		return err
	}

	total := fsys.RootDirNode().GetTotalSize()
	freeBytes := uint64(fsys.FreeClusterCount()) * uint64(fsys.BytesPerCluster())
	fmt.Printf("bytes per cluster:  %d\n", fsys.BytesPerCluster())
	fmt.Printf("next free cluster:  %d\n", fsys.GetNextFreeCluster())
	fmt.Printf("free space:         %s\n", humanize.IBytes(freeBytes))
	fmt.Printf("root directory size: %s\n", humanize.IBytes(uint64(total)))
	return nil
}

func lsCommand(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("ls requires two arguments: IMAGE_FILE PATH", 1)
	}
	fsys, _, err := mountImage(c.Args().Get(0))
	if err != nil {
		return err
	}

	node, err := fsys.RootDirNode().Lookup(c.Args().Get(1))
	if err != nil {
		return err
	}
	if !node.IsDir() {
		return cli.Exit(fmt.Sprintf("%s is a file, not a directory", c.Args().Get(1)), 1)
	}
	for _, entry := range node.Dir.ReadDir() {
		marker := ""
		if entry.Type == fs.NodeTypeDir {
			marker = "/"
		}
		fmt.Printf("%s%s\n", entry.Name, marker)
	}
	return nil
}

func catCommand(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("cat requires two arguments: IMAGE_FILE PATH", 1)
	}
	fsys, _, err := mountImage(c.Args().Get(0))
	if err != nil {
		return err
	}

	node, err := fsys.RootDirNode().Lookup(c.Args().Get(1))
	if err != nil {
		return err
	}
	if node.IsDir() {
		return cli.Exit(fmt.Sprintf("%s is a directory, not a file", c.Args().Get(1)), 1)
	}

	buf := make([]byte, node.File.Size())
	writer := bytewriter.New(buf)
	data, err := node.File.ReadAll()
	if err != nil {
		return err
	}
	if _, err := writer.Write(data); err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf)
	return err
}

func mkdirCommand(c *cli.Context) error {
	return mutateImage(c, "mkdir", func(root *fs.DirNode, path string) error {
		return root.Create(path, fs.NodeTypeDir)
	})
}

func rmCommand(c *cli.Context) error {
	return mutateImage(c, "rm", func(root *fs.DirNode, path string) error {
		return root.Remove(path)
	})
}

func mutateImage(c *cli.Context, name string, op func(root *fs.DirNode, path string) error) error {
	if c.Args().Len() != 2 {
		return cli.Exit(fmt.Sprintf("%s requires two arguments: IMAGE_FILE PATH", name), 1)
	}
	imagePath := c.Args().Get(0)
	fsys, dev, err := mountImage(imagePath)
	if err != nil {
		return err
	}

	if err := op(fsys.RootDirNode(), c.Args().Get(1)); err != nil {
		return err
	}
	if err := fsys.RootDirNode().FlushTree(); err != nil {
		return fmt.Errorf("flush directory entries: %w", err)
	}
	if err := fsys.Flush(); err != nil {
		return fmt.Errorf("flush fat: %w", err)
	}
	return os.WriteFile(imagePath, dev.Bytes(), 0o644)
}

func mountImage(path string) (*fs.Filesystem, *block.MemDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	dev := block.WrapBytes(512, data)
	fsys, err := fs.Init(dev)
	if err != nil {
		return nil, nil, fmt.Errorf("mount %s: %w", path, err)
	}
	return fsys, dev, nil
}
