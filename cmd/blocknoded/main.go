// Command blocknoded is the blocknode daemon: it joins the peer mesh,
// serves the replicated registries, and exposes the connect/upload/
// download/delete/set_capacity/list operation surface to blockctl over
// a local control-plane socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"blocknode/internal/controlplane"
	"blocknode/internal/daemon"
	"blocknode/internal/defaults"
	"blocknode/internal/errs"
	"blocknode/internal/logging"
	"blocknode/internal/obs"
	"blocknode/internal/paths"
	"blocknode/internal/store"
	"blocknode/internal/transport"
)

func main() {
	shutdown := obs.Setup()
	defer func() {
		_ = shutdown(context.Background())
	}()

	if err := rootCmd().Execute(); err != nil {
		slog.Error("blocknoded exited", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configDir  string
		blockDir   string
		socketPath string
		ip         string
		tcpPort    int
		udpPort    int
		capacityMB int
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "blocknoded",
		Short: "blocknode peer daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := resolvePaths(configDir, blockDir)
			if err != nil {
				return err
			}
			if err := p.EnsureDirs(); err != nil {
				return err
			}

			node, err := bootstrap(p, ip, tcpPort, udpPort, capacityMB)
			if err != nil {
				return err
			}

			srv, err := controlplane.Listen(socketPath, node, slog.Default())
			if err != nil {
				return fmt.Errorf("listen control socket %s: %w", socketPath, err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return node.Run(gctx) })
			g.Go(func() error { return srv.Run(gctx) })
			return g.Wait()
		},
	}

	home, _ := os.UserHomeDir()
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&configDir, "config-dir", "", fmt.Sprintf("config directory (default %s/.blocknode)", home))
	cmd.Flags().StringVar(&blockDir, "block-dir", "", fmt.Sprintf("block storage directory (default %s/espacioCompartido)", home))
	cmd.Flags().StringVar(&socketPath, "socket", defaults.SocketPath(), "control-plane unix socket path")
	cmd.Flags().StringVar(&ip, "ip", "127.0.0.1", "IP address to advertise and bind to")
	cmd.Flags().IntVar(&tcpPort, "tcp-port", transport.DefaultTCPPort, "mesh TCP port")
	cmd.Flags().IntVar(&udpPort, "udp-port", transport.DefaultUDPPort, "heartbeat UDP port")
	cmd.Flags().IntVar(&capacityMB, "capacity-mb", 50, "storage capacity in MB (50-100), used only on first run")
	return cmd
}

func resolvePaths(configDir, blockDir string) (paths.Paths, error) {
	if configDir != "" && blockDir != "" {
		return paths.Paths{ConfigDir: configDir, BlockDir: blockDir}, nil
	}
	p, err := paths.Default()
	if err != nil {
		return paths.Paths{}, err
	}
	if configDir != "" {
		p.ConfigDir = configDir
	}
	if blockDir != "" {
		p.BlockDir = blockDir
	}
	return p, nil
}

// bootstrap loads config.json and node_state.json if present,
// creating config.json from flags on a first run, and wires a Node.
func bootstrap(p paths.Paths, ip string, tcpPort, udpPort, capacityMB int) (*daemon.Node, error) {
	var cfg store.Config
	if _, err := os.Stat(p.ConfigFile()); os.IsNotExist(err) {
		cfg = store.Config{CapacityMB: capacityMB, Port: tcpPort}
		if err := store.SaveConfig(p, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrConfigInvalid, err)
		}
	} else {
		loaded, err := store.LoadConfig(p)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	nodeState, _, err := store.LoadNodeState(p)
	if err != nil {
		return nil, err
	}

	return daemon.New(daemon.Config{
		Paths:      p,
		CapacityMB: cfg.CapacityMB,
		IP:         ip,
		TCPPort:    tcpPort,
		UDPPort:    udpPort,
		NodeState:  nodeState,
		Logger:     slog.Default(),
	})
}
