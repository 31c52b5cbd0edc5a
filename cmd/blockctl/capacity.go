package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"blocknode/internal/controlplane"
	"blocknode/internal/ui"
)

func capacityCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity <mb>",
		Short: "Set this node's storage capacity (50-100 MB), only while disconnected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mb, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid capacity_mb %q: %w", args[0], err)
			}
			if err := client().SetCapacity(mb); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("capacity set to %d MB", mb))
			return nil
		},
	}
}
