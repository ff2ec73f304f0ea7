package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kcore/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or generate boot configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init <path>",
		Short: "Write a default boot configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(args[0]); err != nil {
				return err
			}
			fmt.Printf("kerneld: wrote default configuration to %s\n", args[0])
			return nil
		},
	})
	return cmd
}
