// Command blockctl is the CLI client for a running blocknoded: it
// drives the connect/upload/download/delete/set_capacity/list
// operation surface over the daemon's local control-plane socket.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"blocknode/internal/controlplane"
	"blocknode/internal/defaults"
	"blocknode/internal/ui"
)

func main() {
	ui.ConfigureInteraction(false)
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "blockctl",
		Short: "Control a running blocknoded",
	}
	cmd.PersistentFlags().StringVar(&socketPath, "socket", defaults.SocketPath(), "control-plane unix socket path")

	client := func() *controlplane.Client { return controlplane.NewClient(socketPath) }

	cmd.AddCommand(
		connectCmd(client),
		uploadCmd(client),
		downloadCmd(client),
		deleteCmd(client),
		capacityCmd(client),
		listCmd(client),
	)
	return cmd
}
