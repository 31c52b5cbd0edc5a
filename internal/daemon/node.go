// Package daemon implements the §6 operation surface by wiring
// together the replicated registries, the mesh transport, and the
// upload/download/delete pipeline into a single orchestrator,
// matching the teacher's daemon/daemon.go::Run shape: one struct
// owning every long-running collaborator, started and stopped
// through golang.org/x/sync/errgroup.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"blocknode/internal/blocktable"
	"blocknode/internal/blockstore"
	"blocknode/internal/errs"
	"blocknode/internal/filetable"
	"blocknode/internal/obs"
	"blocknode/internal/paths"
	"blocknode/internal/pipeline"
	"blocknode/internal/planner"
	"blocknode/internal/registry"
	"blocknode/internal/store"
	"blocknode/internal/transport"
)

// Config bundles everything Node needs to come up: the validated
// config.json contents, any persisted node_state.json, and the
// process's addressing.
type Config struct {
	Paths      paths.Paths
	CapacityMB int
	IP         string
	TCPPort    int
	UDPPort    int
	NodeState  store.NodeState // zero value if this is a first run
	Logger     *slog.Logger
}

// Node is the §6 operation surface: connect, upload, download,
// delete, set_capacity, and the read-only list/is_connected queries.
type Node struct {
	mu         sync.RWMutex
	capacityMB int

	paths    paths.Paths
	store    *blockstore.Store
	registry *registry.Registry
	blocks   *blocktable.Table
	files    *filetable.Table
	cache    *pipeline.BlockCache
	mesh     *transport.Mesh
	pipe     *pipeline.Pipeline
	log      *slog.Logger
}

// New wires a Node from persisted state. It does not start any
// network loop; call Run for that.
func New(cfg Config) (*Node, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.CapacityMB < 50 || cfg.CapacityMB > 100 {
		return nil, fmt.Errorf("%w: capacity_mb %d out of [50,100]", errs.ErrConfigInvalid, cfg.CapacityMB)
	}

	reg := registry.New(cfg.NodeState.NodeID)
	blocks := blocktable.New()
	files := filetable.New()
	bstore := blockstore.New(cfg.Paths)
	cache := pipeline.NewBlockCache()

	n := &Node{
		capacityMB: cfg.CapacityMB,
		paths:      cfg.Paths,
		store:      bstore,
		registry:   reg,
		blocks:     blocks,
		files:      files,
		cache:      cache,
		log:        log,
	}

	records, err := store.LoadMetadata(cfg.Paths)
	if err != nil {
		return nil, err
	}
	files.ReplaceAll(records)

	identity := transport.NewIdentity(cfg.NodeState.NodeID, cfg.NodeState.GroupID, func(groupID string, nodeID int) {
		if err := store.SaveNodeState(cfg.Paths, store.NodeState{NodeID: nodeID, GroupID: groupID}); err != nil {
			log.Warn("persist node_state.json failed", "err", err)
		}
	})

	n.mesh = transport.New(transport.Config{
		Identity: identity,
		Registry: reg,
		Blocks:   blocks,
		Files:    files,
		Store:    bstore,
		Cache:    cache,
		Capacity: n,
		IP:       cfg.IP,
		TCPPort:  cfg.TCPPort,
		UDPPort:  cfg.UDPPort,
		Logger:   log,
	})

	n.pipe = pipeline.New(pipeline.Config{
		SelfID:   reg.Self,
		Registry: reg,
		Blocks:   blocks,
		Files:    files,
		Store:    bstore,
		Planner:  planner.New(),
		Mesh:     n.mesh,
		Cache:    cache,
		Logger:   log,
	})

	if cfg.NodeState.NodeID != 0 {
		reg.SetSelf(cfg.NodeState.NodeID)
		n.mesh.UpsertSelf(cfg.NodeState.NodeID)
	}
	return n, nil
}

// CapacityMB implements transport.CapacityProvider.
func (n *Node) CapacityMB() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.capacityMB
}

// FreeSpaceMB implements transport.CapacityProvider: configured
// capacity minus locally-used space, per spec.md §3's free_space_mb.
func (n *Node) FreeSpaceMB() (int, error) {
	usedMB, err := n.store.UsedMB()
	if err != nil {
		return 0, err
	}
	capacityMB := n.CapacityMB()
	free := capacityMB - usedMB
	if free < 0 {
		free = 0
	}
	return free, nil
}

// Run starts every supervision loop (TCP accept, UDP heartbeat
// sender/receiver, timeout sweep, mesh repair) and blocks until ctx
// is cancelled or one loop returns a non-nil error, at which point the
// rest are cancelled too (§5's single `running` flag, generalized to
// an errgroup-derived context).
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.mesh.RunTCPAccept(gctx) })
	g.Go(func() error { return n.mesh.RunUDPReceiver(gctx) })
	g.Go(func() error { return n.mesh.RunUDPSender(gctx) })
	g.Go(func() error { return n.mesh.RunTimeoutSweep(gctx) })
	g.Go(func() error { return n.mesh.RunMeshRepair(gctx) })
	err := g.Wait()
	if stopErr := n.mesh.Stop(); stopErr != nil {
		n.log.Warn("mesh stop reported errors", "err", stopErr)
	}
	return err
}

// loopbackLiterals are the addresses §6's connect(ip) contract rejects
// outright: a process connecting to its own machine can never form a
// real two-node mesh. Matches _examples/original_source/main.py:243-256
// (_gui_connect)'s exact literal checks.
var loopbackLiterals = map[string]bool{
	"127.0.0.1": true,
	"localhost": true,
	"::1":       true,
}

// Connect implements §6's connect(ip): ip must be non-empty and not a
// loopback address.
func (n *Node) Connect(ip string) bool {
	if ip == "" || loopbackLiterals[strings.ToLower(ip)] {
		n.log.Warn("connect: rejected loopback or empty address", "ip", ip)
		return false
	}
	return n.mesh.Connect(ip)
}

// Upload implements §6's upload(file_path).
func (n *Node) Upload(ctx context.Context, filePath string) error {
	if err := n.pipe.Upload(ctx, filePath); err != nil {
		return err
	}
	return n.persistMetadata()
}

// Download implements §6's download(file_name, save_path).
func (n *Node) Download(ctx context.Context, fileName, savePath string) error {
	_, span := obs.Tracer().Start(ctx, "daemon.Download")
	defer span.End()
	return n.pipe.Download(ctx, fileName, savePath)
}

// Delete implements §6's delete(file_name).
func (n *Node) Delete(ctx context.Context, fileName string) error {
	if err := n.pipe.Delete(ctx, fileName); err != nil {
		return err
	}
	return n.persistMetadata()
}

func (n *Node) persistMetadata() error {
	if err := store.SaveMetadata(n.paths, n.files.All()); err != nil {
		n.log.Warn("persist metadata.json failed", "err", err)
		return err
	}
	return nil
}

// SetCapacity implements §6's set_capacity(mb): only while
// disconnected from every peer, and never below currently used space.
func (n *Node) SetCapacity(mb int) error {
	if n.mesh.IsConnected() {
		return errs.ErrStillConnected
	}
	if mb < 50 || mb > 100 {
		return fmt.Errorf("%w: capacity_mb %d out of [50,100]", errs.ErrConfigInvalid, mb)
	}
	usedMB, err := n.store.UsedMB()
	if err != nil {
		return err
	}
	if mb < usedMB {
		return fmt.Errorf("%w: capacity_mb %d below used %d", errs.ErrConfigInvalid, mb, usedMB)
	}

	if err := store.SaveConfig(n.paths, store.Config{CapacityMB: mb, Port: transport.DefaultTCPPort}); err != nil {
		return err
	}
	n.mu.Lock()
	n.capacityMB = mb
	n.mu.Unlock()
	n.blocks.Resize(n.registry.AggregateCapacityMB())
	return nil
}

// ListNodes implements §6's list_nodes.
func (n *Node) ListNodes() []registry.Node { return n.registry.All() }

// ListFiles implements §6's list_files.
func (n *Node) ListFiles() []filetable.Record { return n.files.All() }

// ListBlocks implements §6's list_blocks.
func (n *Node) ListBlocks() []blocktable.Slot { return n.blocks.All() }

// IsConnected implements §6's is_connected.
func (n *Node) IsConnected() bool { return n.mesh.IsConnected() }

// SelfID returns this process's own node ID (0 before any join).
func (n *Node) SelfID() int { return n.registry.Self() }
