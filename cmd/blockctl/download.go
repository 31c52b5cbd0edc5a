package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blocknode/internal/controlplane"
	"blocknode/internal/ui"
)

func downloadCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "download <file_name> <save_path>",
		Short: "Download a file from the mesh",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Download(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("downloaded %s to %s", args[0], args[1]))
			return nil
		},
	}
}
