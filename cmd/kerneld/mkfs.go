package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kcore/internal/block"
	"kcore/internal/dir"
	"kcore/internal/fat"
	"kcore/internal/file"
	"kcore/internal/inode"
	"kcore/internal/sched"
)

// newMkfsCmd formats a fresh volume and optionally imports a host
// directory tree into it, the same two-step shape as biscuit's
// mkfs.go (ufs.MkDisk followed by addfiles walking a skeleton
// directory), minus the bootloader/kernel-image concatenation biscuit's
// version also performs since this simulator has no separate boot
// sector to embed.
func newMkfsCmd() *cobra.Command {
	var sectors int
	var skelDir string
	cmd := &cobra.Command{
		Use:   "mkfs <image>",
		Short: "Format a fresh FAT-style disk image, optionally importing a host directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]
			dev, err := block.OpenFileDevice(image, sectors)
			if err != nil {
				return fmt.Errorf("mkfs: opening %s: %w", image, err)
			}
			vol, ferr := fat.Format(dev)
			if ferr != 0 {
				return fmt.Errorf("mkfs: formatting: %s", ferr.Error())
			}

			scheduler := sched.New(sched.PolicyPriorityDonation)
			t := scheduler.NewThread("mkfs", sched.PriDefault)
			inodes := inode.NewTable(scheduler, vol)
			if err := dir.Create(inodes, t, fat.RootDirCluster, fat.RootDirCluster); err != 0 {
				return fmt.Errorf("mkfs: creating root directory: %s", err.Error())
			}

			if skelDir != "" {
				if err := importTree(vol, inodes, t, skelDir); err != nil {
					return err
				}
			}

			if err := vol.Close(); err != 0 {
				return fmt.Errorf("mkfs: flushing: %s", err.Error())
			}
			return dev.Close()
		},
	}
	cmd.Flags().IntVar(&sectors, "sectors", 8192, "filesystem capacity in sectors")
	cmd.Flags().StringVar(&skelDir, "skel", "", "host directory tree to copy into the new image")
	return cmd
}

// importTree walks skelDir on the host, replicating directories and
// files into the freshly formatted volume's root, mirroring
// mkfs.go's addfiles/copydata. Host symlinks are skipped with a
// warning on stderr.
func importTree(vol *fat.Volume, tbl *inode.Table, t *sched.Thread, skelDir string) error {
	root, err := tbl.Open(fat.RootDirCluster)
	if err != 0 {
		return fmt.Errorf("mkfs: opening root: %s", err.Error())
	}
	defer tbl.Close(root)
	rootDir := dir.Open(root, tbl)

	return filepath.WalkDir(skelDir, func(path string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skelDir), "/")
		if rel == "" {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			fmt.Fprintf(os.Stderr, "mkfs: warning: skipping host symlink %s\n", path)
			return nil
		}
		if strings.Contains(rel, "/") {
			// This simulator's directory layer has no nested mkdir walk of
			// its own yet; only top-level entries are imported.
			return nil
		}
		if d.IsDir() {
			return importSubdir(vol, tbl, rootDir, fat.RootDirCluster, t, rel)
		}
		return importFile(vol, tbl, rootDir, t, path, rel)
	})
}

func importSubdir(vol *fat.Volume, tbl *inode.Table, parent *dir.Dir, parentSector fat.Cluster, t *sched.Thread, name string) error {
	sector, err := vol.CreateChain(0)
	if err != 0 {
		return fmt.Errorf("mkfs: allocating sector for %s: %s", name, err.Error())
	}
	if err := dir.Create(tbl, t, sector, parentSector); err != 0 {
		return fmt.Errorf("mkfs: creating dir %s: %s", name, err.Error())
	}
	if err := parent.Add(t, name, sector); err != 0 {
		return fmt.Errorf("mkfs: linking dir %s: %s", name, err.Error())
	}
	return nil
}

func importFile(vol *fat.Volume, tbl *inode.Table, parent *dir.Dir, t *sched.Thread, hostPath, name string) error {
	sector, err := vol.CreateChain(0)
	if err != 0 {
		return fmt.Errorf("mkfs: allocating sector for %s: %s", name, err.Error())
	}
	if err := tbl.Create(sector, 0, false, false, ""); err != 0 {
		return fmt.Errorf("mkfs: creating file %s: %s", name, err.Error())
	}
	if err := parent.Add(t, name, sector); err != 0 {
		return fmt.Errorf("mkfs: linking file %s: %s", name, err.Error())
	}

	in, oerr := tbl.Open(sector)
	if oerr != 0 {
		return fmt.Errorf("mkfs: opening new file %s: %s", name, oerr.Error())
	}
	defer tbl.Close(in)
	f := file.Open(in, tbl)
	defer f.Close(tbl)

	src, herr := os.Open(hostPath)
	if herr != nil {
		return herr
	}
	defer src.Close()

	buf := make([]byte, 4096)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := f.Write(t, buf[:n]); werr != 0 {
				return fmt.Errorf("mkfs: writing %s: %s", name, werr.Error())
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}
