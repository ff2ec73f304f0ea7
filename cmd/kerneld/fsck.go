package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kcore/internal/block"
	"kcore/internal/dir"
	"kcore/internal/fat"
	"kcore/internal/inode"
	"kcore/internal/sched"
)

// newFsckCmd walks the directory tree from the root directory and
// prints how many clusters holding inode records (the root's and every
// reachable entry's) it found. The data chains those inodes point to
// are not walked, and clusters that are allocated in the FAT but never
// referenced are not listed (there is no original_source fsck to port,
// so this follows the FAT chain-walk primitives internal/fat already
// exposes).
func newFsckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fsck <image>",
		Short: "Count the inode clusters reachable from a disk image's root directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]
			fi, serr := os.Stat(image)
			if serr != nil {
				return fmt.Errorf("fsck: opening %s: %w", image, serr)
			}
			dev, err := block.OpenFileDevice(image, int(fi.Size()/block.SectorSize))
			if err != nil {
				return fmt.Errorf("fsck: opening %s: %w", image, err)
			}
			defer dev.Close()

			vol, ferr := fat.Open(dev)
			if ferr != 0 {
				return fmt.Errorf("fsck: %s is not a formatted volume: %s", image, ferr.Error())
			}

			scheduler := sched.New(sched.PolicyPriorityDonation)
			inodes := inode.NewTable(scheduler, vol)

			reachable := map[fat.Cluster]bool{fat.RootDirCluster: true}
			if err := walkDir(inodes, vol, fat.RootDirCluster, reachable); err != nil {
				return err
			}

			fmt.Printf("fsck: %d clusters reachable from root\n", len(reachable))
			return vol.Close()
		},
	}
	return cmd
}

func walkDir(tbl *inode.Table, vol *fat.Volume, sector fat.Cluster, reachable map[fat.Cluster]bool) error {
	in, err := tbl.Open(sector)
	if err != 0 {
		return fmt.Errorf("fsck: opening directory at cluster %d: %s", sector, err.Error())
	}
	defer tbl.Close(in)

	for _, c := range vol.Walk(sector) {
		reachable[c] = true
	}

	d := dir.Open(in, tbl)
	names, derr := d.List()
	if derr != 0 {
		return fmt.Errorf("fsck: listing cluster %d: %s", sector, derr.Error())
	}
	for _, name := range names {
		childSector, ok, lerr := d.Lookup(name)
		if lerr != 0 || !ok {
			continue
		}
		if reachable[childSector] {
			continue
		}
		reachable[childSector] = true
		child, oerr := tbl.Open(childSector)
		if oerr != 0 {
			continue
		}
		isDir := child.IsDir()
		tbl.Close(child)
		for _, c := range vol.Walk(childSector) {
			reachable[c] = true
		}
		if isDir {
			if err := walkDir(tbl, vol, childSector, reachable); err != nil {
				return err
			}
		}
	}
	return nil
}
