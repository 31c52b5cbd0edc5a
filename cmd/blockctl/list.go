package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"blocknode/internal/controlplane"
	"blocknode/internal/ui"
)

func listCmd(client func() *controlplane.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes, files, or blocks known to this node",
	}
	cmd.AddCommand(
		listNodesCmd(client),
		listFilesCmd(client),
		listBlocksCmd(client),
	)
	return cmd
}

func listNodesCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "nodes",
		Aliases: []string{"node"},
		Short:   "List the nodes in this node's group",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := client().ListNodes()
			if err != nil {
				return err
			}
			if len(nodes) == 0 {
				fmt.Println(ui.Muted("no nodes registered"))
				return nil
			}
			rows := make([][]string, len(nodes))
			for i, n := range nodes {
				status := n.Status
				if status == "online" {
					status = ui.Success(status)
				} else {
					status = ui.Warn(status)
				}
				rows[i] = []string{
					strconv.Itoa(n.NodeID),
					fmt.Sprintf("%s:%d", n.IP, n.TCPPort),
					status,
					strconv.Itoa(n.TotalCapacityMB),
					strconv.Itoa(n.FreeSpaceMB),
				}
			}
			fmt.Println(ui.Table(
				[]string{"Node ID", "Address", "Status", "Capacity MB", "Free MB"},
				rows,
			))
			return nil
		},
	}
}

func listFilesCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "files",
		Aliases: []string{"file"},
		Short:   "List files stored in the mesh",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := client().ListFiles()
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println(ui.Muted("no files"))
				return nil
			}
			rows := make([][]string, len(files))
			for i, f := range files {
				rows[i] = []string{
					f.FileName,
					ui.Bytes(f.SizeBytes),
					strconv.Itoa(f.NumBlocks),
					f.UploadTime,
				}
			}
			fmt.Println(ui.Table(
				[]string{"File", "Size", "Blocks", "Uploaded"},
				rows,
			))
			return nil
		},
	}
}

func listBlocksCmd(client func() *controlplane.Client) *cobra.Command {
	return &cobra.Command{
		Use:     "blocks",
		Aliases: []string{"block"},
		Short:   "List block slots in the group's block table",
		RunE: func(cmd *cobra.Command, args []string) error {
			blocks, err := client().ListBlocks()
			if err != nil {
				return err
			}
			if len(blocks) == 0 {
				fmt.Println(ui.Muted("no blocks"))
				return nil
			}
			rows := make([][]string, len(blocks))
			for i, b := range blocks {
				owner := "-"
				if b.OwnerNodeID != 0 {
					owner = strconv.Itoa(b.OwnerNodeID)
				}
				rows[i] = []string{
					strconv.Itoa(b.BlockID),
					b.Status,
					b.Role,
					owner,
					b.FileName,
				}
			}
			fmt.Println(ui.Table(
				[]string{"Block ID", "Status", "Role", "Owner", "File"},
				rows,
			))
			return nil
		},
	}
}
