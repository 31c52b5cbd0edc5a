package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blocknode/internal/controlplane"
	"blocknode/internal/ui"
)

func uploadCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file into the mesh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Upload(args[0]); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("uploaded %s", args[0]))
			return nil
		},
	}
}
