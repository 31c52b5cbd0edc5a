package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blocknode/internal/controlplane"
	"blocknode/internal/ui"
)

func deleteCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <file_name>",
		Aliases: []string{"rm"},
		Short:   "Delete a file from the mesh",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Delete(args[0]); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("deleted %s", args[0]))
			return nil
		},
	}
}
