package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blocknode/internal/controlplane"
	"blocknode/internal/ui"
)

func connectCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <ip>",
		Short: "Join the mesh of the node at <ip>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := client().Connect(args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println(ui.ErrorMsg("connect to %s failed", args[0]))
				return fmt.Errorf("connect to %s failed", args[0])
			}
			fmt.Println(ui.SuccessMsg("connected to %s", args[0]))
			return nil
		},
	}
}
