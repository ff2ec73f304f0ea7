// Command kerneld boots the kernel core simulator: it assembles every
// singleton subsystem (scheduler, frame table, swap, FAT volume, inode
// cache) per internal/config's boot parameters and runs until a process
// issues HALT. Subcommands mkfs and fsck manage the backing disk image
// independently of a live boot, the way biscuit ships mkfs as a
// standalone host-side tool (biscuit/src/mkfs/mkfs.go) rather than
// folding it into the kernel binary itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "kerneld",
		Short: "Run or administer the kernel core disk image",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML boot configuration file")
	root.AddCommand(newRunCmd())
	root.AddCommand(newMkfsCmd())
	root.AddCommand(newFsckCmd())
	root.AddCommand(newConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
