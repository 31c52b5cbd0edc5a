// Package transport implements C6: the TCP mesh (framed
// request/response) and UDP heartbeat, the membership/join protocol,
// and the supervision loops that keep the mesh connected and peers'
// liveness current.
package transport

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"blocknode/internal/blocktable"
	"blocknode/internal/blockstore"
	"blocknode/internal/errs"
	"blocknode/internal/filetable"
	"blocknode/internal/registry"
	"blocknode/internal/wire"
)

// DefaultTCPPort and DefaultUDPPort match the reference
// implementation's conventional ports. New falls back to them when
// Config leaves a port at zero, and blocknoded uses them as its
// --tcp-port/--udp-port flag defaults; the port stored in config.json
// is not read back into either.
const (
	DefaultTCPPort = 8888
	DefaultUDPPort = 8889
)

// MeshRepairInterval is how often the mesh-repair loop dials peers it
// lacks a connection to (§4.1).
const MeshRepairInterval = 5 * time.Second

// Cache is the subset of internal/pipeline.BlockCache the transport
// needs to satisfy §4.6's two BLOCK_SEND rows. Defined here (not
// imported from pipeline) so pipeline can depend on transport without
// a cycle.
type Cache interface {
	Put(blockID int, data []byte)
	// TakePending reports whether blockID is an outstanding download
	// request this node is waiting on, clearing it if so. This is the
	// signal used to route an incoming BLOCK_SEND to the cache instead
	// of local storage.
	TakePending(blockID int) bool
}

// CapacityProvider reports this node's own capacity and free space,
// used both to answer CONNECT/RECONNECT and to keep this node's own
// registry entry current.
type CapacityProvider interface {
	CapacityMB() int
	FreeSpaceMB() (int, error)
}

// Mesh owns the connection map, the node/block/file registries, and
// the join protocol. It is the sole place a peer socket is created,
// replaced, or torn down.
type Mesh struct {
	identity *Identity
	registry *registry.Registry
	blocks   *blocktable.Table
	files    *filetable.Table
	store    *blockstore.Store
	cache    Cache
	capacity CapacityProvider

	ip      string
	tcpPort int
	udpPort int

	connMu sync.Mutex
	conns  map[int]*Peer

	udpConn net.PacketConn
	ln      net.Listener

	log *slog.Logger

	runningMu sync.RWMutex
	running   bool
}

// Config bundles the collaborators and local addressing Mesh needs.
type Config struct {
	Identity *Identity
	Registry *registry.Registry
	Blocks   *blocktable.Table
	Files    *filetable.Table
	Store    *blockstore.Store
	Cache    Cache
	Capacity CapacityProvider
	IP       string
	TCPPort  int
	UDPPort  int
	Logger   *slog.Logger
}

// New builds a Mesh. Callers start it with the Run* loop methods.
func New(cfg Config) *Mesh {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	tcpPort := cfg.TCPPort
	if tcpPort == 0 {
		tcpPort = DefaultTCPPort
	}
	udpPort := cfg.UDPPort
	if udpPort == 0 {
		udpPort = DefaultUDPPort
	}
	return &Mesh{
		identity: cfg.Identity,
		registry: cfg.Registry,
		blocks:   cfg.Blocks,
		files:    cfg.Files,
		store:    cfg.Store,
		cache:    cfg.Cache,
		capacity: cfg.Capacity,
		ip:       cfg.IP,
		tcpPort:  tcpPort,
		udpPort:  udpPort,
		conns:    make(map[int]*Peer),
		log:      log,
		running:  true,
	}
}

// IsRunning reports whether Stop has been called yet.
func (m *Mesh) IsRunning() bool {
	m.runningMu.RLock()
	defer m.runningMu.RUnlock()
	return m.running
}

// Stop flips the running flag, closes the listener and UDP socket,
// and closes every peer connection. Shutdown is best-effort: in-flight
// sends/receives simply fail and their loops exit on the next
// iteration, matching §5's cancellation model.
func (m *Mesh) Stop() error {
	m.runningMu.Lock()
	m.running = false
	m.runningMu.Unlock()

	var result error
	if m.ln != nil {
		if err := m.ln.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close listener: %w", err))
		}
	}
	if m.udpConn != nil {
		if err := m.udpConn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close udp socket: %w", err))
		}
	}

	m.connMu.Lock()
	peers := make([]*Peer, 0, len(m.conns))
	for _, p := range m.conns {
		peers = append(peers, p)
	}
	m.conns = make(map[int]*Peer)
	m.connMu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	return result
}

// ConnectedPeerIDs returns the node IDs this process currently holds
// an open TCP connection to.
func (m *Mesh) ConnectedPeerIDs() []int {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	ids := make([]int, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}

// IsConnected reports whether this process has any live peer
// connection at all (used to gate set_capacity, §6).
func (m *Mesh) IsConnected() bool {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return len(m.conns) > 0
}

// adopt installs p as the connection for nodeID, replacing and
// closing any prior connection under a single lock (§4.1 "Connection
// ownership").
func (m *Mesh) adopt(nodeID int, p *Peer) {
	m.connMu.Lock()
	old, existed := m.conns[nodeID]
	m.conns[nodeID] = p
	m.connMu.Unlock()
	if existed {
		old.Close()
	}
}

// drop removes nodeID's connection if it is still p (avoids a race
// where a newer connection already replaced it).
func (m *Mesh) drop(nodeID int, p *Peer) {
	m.connMu.Lock()
	if cur, ok := m.conns[nodeID]; ok && cur == p {
		delete(m.conns, nodeID)
	}
	m.connMu.Unlock()
}

// Broadcast sends msg to every connected peer except those in
// exclude. Failures are collected, logged, and otherwise swallowed —
// per §4.1 a broadcast never fails the caller's operation.
func (m *Mesh) Broadcast(msg wire.Message, exclude map[int]bool) {
	m.connMu.Lock()
	peers := make([]*Peer, 0, len(m.conns))
	for id, p := range m.conns {
		if exclude != nil && exclude[id] {
			continue
		}
		peers = append(peers, p)
	}
	m.connMu.Unlock()

	var result error
	for _, p := range peers {
		if !p.Send(msg) {
			result = multierror.Append(result, fmt.Errorf("%w: node %d", errs.ErrSendFailure, p.NodeID))
		}
	}
	if result != nil {
		m.log.Warn("broadcast had send failures", "err", result)
	}
}

// SendToNode sends msg to exactly one peer.
func (m *Mesh) SendToNode(nodeID int, msg wire.Message) error {
	m.connMu.Lock()
	p, ok := m.conns[nodeID]
	m.connMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: node %d", errs.ErrNotConnected, nodeID)
	}
	if !p.Send(msg) {
		return fmt.Errorf("%w: node %d", errs.ErrSendFailure, nodeID)
	}
	return nil
}

// newGroupID mints a fresh group UUID (§4.1, listener forming a
// brand-new group).
func newGroupID() string { return uuid.New().String() }
