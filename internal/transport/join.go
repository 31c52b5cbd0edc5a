package transport

import (
	"fmt"
	"net"
	"time"

	"blocknode/internal/blocktable"
	"blocknode/internal/errs"
	"blocknode/internal/filetable"
	"blocknode/internal/registry"
	"blocknode/internal/wire"
)

// DialTimeout bounds how long Connect waits to establish a TCP
// connection and receive the CONNECT_ACK.
const DialTimeout = 5 * time.Second

// Connect is the initiator side of the join protocol (§4.1, §6
// "connect(ip)"). It dials ip on the conventional TCP port, sends
// CONNECT, applies the CONNECT_ACK snapshot, and returns false on any
// refusal, timeout, or I/O error.
func (m *Mesh) Connect(ip string) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, portString(m.tcpPort)), DialTimeout)
	if err != nil {
		m.log.Warn("connect: dial failed", "ip", ip, "err", err)
		return false
	}

	_, groupID := m.identity.Get()
	freeMB, err := m.capacity.FreeSpaceMB()
	if err != nil {
		m.log.Warn("connect: free space lookup failed", "err", err)
		_ = conn.Close()
		return false
	}

	payload := wire.PayloadConnect{
		GroupID:     groupID,
		CapacityMB:  m.capacity.CapacityMB(),
		FreeSpaceMB: freeMB,
		TCPPort:     m.tcpPort,
		UDPPort:     m.udpPort,
	}
	msg, err := wire.New(wire.Connect, m.selfIDOrZero(), payload)
	if err != nil {
		_ = conn.Close()
		return false
	}
	if err := conn.SetDeadline(time.Now().Add(DialTimeout)); err != nil {
		_ = conn.Close()
		return false
	}
	if err := wire.WriteFrame(conn, msg); err != nil {
		m.log.Warn("connect: send CONNECT failed", "err", err)
		_ = conn.Close()
		return false
	}

	peer := newPeer(0, conn)
	ack, err := peer.Read()
	if err != nil || ack.Type != wire.ConnectAck {
		m.log.Warn("connect: no CONNECT_ACK", "err", err)
		peer.Close()
		return false
	}
	var ackPayload wire.PayloadConnectAck
	if err := ack.Decode(&ackPayload); err != nil {
		peer.Close()
		return false
	}
	_ = conn.SetDeadline(time.Time{})

	m.applyAck(ackPayload)
	// The connection belongs to the listener, whose node ID is the ACK's
	// sender ID; our own newly assigned ID is not the map key.
	peer.NodeID = ack.SenderID
	m.adopt(ack.SenderID, peer)
	go m.serve(peer)
	return true
}

// selfIDOrZero reports the currently-assigned node ID, or 0 before
// any has been assigned (a brand-new peer's first CONNECT).
func (m *Mesh) selfIDOrZero() int {
	id, _ := m.identity.Get()
	return id
}

// UpsertSelf inserts or refreshes this node's own registry entry under
// id, so AggregateCapacityMB and every ListNodes/NODE_DISCOVERY/
// CONNECT_ACK snapshot built from the registry include this node, not
// just the peers it has heard from. Grounded in
// _examples/original_source/main.py:92-100's add_node call for self at
// startup; call this every time the local identity is assigned or
// reassigned.
func (m *Mesh) UpsertSelf(id int) {
	freeMB, err := m.capacity.FreeSpaceMB()
	if err != nil {
		freeMB = 0
	}
	m.registry.Upsert(registry.Node{
		NodeID:          id,
		IP:              m.ip,
		TCPPort:         m.tcpPort,
		UDPPort:         m.udpPort,
		Status:          registry.Online,
		TotalCapacityMB: m.capacity.CapacityMB(),
		FreeSpaceMB:     freeMB,
		LastHeartbeatAt: time.Now(),
	})
}

// applyAck installs a CONNECT_ACK/RECONNECT_ACK snapshot: persists
// the assigned identity, replaces the node/file/block registries
// wholesale, and resizes the block table to the group's aggregate
// online capacity.
func (m *Mesh) applyAck(ack wire.PayloadConnectAck) {
	m.identity.Set(ack.NodeIDAssigned, ack.GroupID)
	m.registry.SetSelf(ack.NodeIDAssigned)

	nodes := make([]registry.Node, 0, len(ack.AllNodes))
	for _, n := range ack.AllNodes {
		nodes = append(nodes, nodeFromWire(n))
	}
	m.registry.ReplaceAll(nodes)
	m.UpsertSelf(ack.NodeIDAssigned)

	files := make([]filetable.Record, 0, len(ack.AllFiles))
	for _, f := range ack.AllFiles {
		files = append(files, fileFromWire(f))
	}
	m.files.ReplaceAll(files)

	slots := make([]blocktable.Slot, 0, len(ack.AllBlocks))
	for _, b := range ack.AllBlocks {
		slots = append(slots, slotFromWire(b))
	}
	m.blocks.ReplaceAll(slots)

	m.blocks.Resize(m.registry.AggregateCapacityMB())
}

// Reconnect is the initiator side of §4.1's reconnect path: a process
// holding a persisted (node_id, group_id) rejoins after a restart.
func (m *Mesh) Reconnect(ip string, nodeID int, groupID string) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, portString(m.tcpPort)), DialTimeout)
	if err != nil {
		m.log.Warn("reconnect: dial failed", "ip", ip, "err", err)
		return false
	}
	freeMB, err := m.capacity.FreeSpaceMB()
	if err != nil {
		_ = conn.Close()
		return false
	}
	payload := wire.PayloadReconnect{
		NodeID:      nodeID,
		GroupID:     groupID,
		CapacityMB:  m.capacity.CapacityMB(),
		FreeSpaceMB: freeMB,
		TCPPort:     m.tcpPort,
		UDPPort:     m.udpPort,
	}
	msg, err := wire.New(wire.Reconnect, nodeID, payload)
	if err != nil {
		_ = conn.Close()
		return false
	}
	_ = conn.SetDeadline(time.Now().Add(DialTimeout))
	if err := wire.WriteFrame(conn, msg); err != nil {
		_ = conn.Close()
		return false
	}

	peer := newPeer(nodeID, conn)
	ack, err := peer.Read()
	if err != nil || ack.Type != wire.ReconnectAck {
		m.log.Warn("reconnect: refused or timed out", "err", err)
		peer.Close()
		return false
	}
	var ackPayload wire.PayloadConnectAck
	if err := ack.Decode(&ackPayload); err != nil {
		peer.Close()
		return false
	}
	_ = conn.SetDeadline(time.Time{})

	m.applyAck(ackPayload)
	peer.NodeID = ack.SenderID
	m.adopt(ack.SenderID, peer)
	go m.serve(peer)
	return true
}

// resolveJoin implements the §4.1 group-merge table for the listener
// side of a CONNECT. It returns the assigned node ID and the group ID
// both sides end up on.
func (m *Mesh) resolveJoin(remoteGroupID string) (assignedID int, groupID string) {
	_, localGroupID := m.identity.Get()

	switch {
	case localGroupID == "" && remoteGroupID == "":
		// Listener mints a fresh group, keeps node_id=1 for itself.
		groupID = newGroupID()
		m.identity.Set(1, groupID)
		m.registry.SetSelf(1)
		m.UpsertSelf(1)
		assignedID = m.registry.NextNodeID()
	case localGroupID == "":
		groupID = remoteGroupID
		m.identity.Set(m.selfIDOrZero(), groupID)
		assignedID = m.registry.NextNodeID()
	case remoteGroupID == "":
		groupID = localGroupID
		assignedID = m.registry.NextNodeID()
	case localGroupID == remoteGroupID:
		groupID = localGroupID
		assignedID = m.registry.NextNodeID()
	default:
		// Two pre-existing groups collide: the listener's group wins
		// (§4.1 row 5, a documented force-join — see spec.md §9 on the
		// orphaned-blocks consequence, which this implementation does
		// not attempt to fix).
		groupID = localGroupID
		assignedID = m.registry.NextNodeID()
	}
	return assignedID, groupID
}

// handleConnect is the listener side of CONNECT (§4.1, §4.6).
func (m *Mesh) handleConnect(peer *Peer, senderID int, payload wire.PayloadConnect) error {
	assignedID, groupID := m.resolveJoin(payload.GroupID)

	now := time.Now()
	remoteIP, _, _ := net.SplitHostPort(peer.conn.RemoteAddr().String())
	m.registry.Upsert(registry.Node{
		NodeID:          assignedID,
		IP:              remoteIP,
		TCPPort:         payload.TCPPort,
		UDPPort:         payload.UDPPort,
		Status:          registry.Online,
		TotalCapacityMB: payload.CapacityMB,
		FreeSpaceMB:     payload.FreeSpaceMB,
		LastHeartbeatAt: now,
	})
	m.blocks.Resize(m.registry.AggregateCapacityMB())

	ack := wire.PayloadConnectAck{
		NodeIDAssigned: assignedID,
		GroupID:        groupID,
		CapacityMB:     m.capacity.CapacityMB(),
		FreeSpaceMB:    mustFreeSpace(m.capacity),
		AllNodes:       nodesToWire(m.registry.All()),
		AllFiles:       filesToWire(m.files.All()),
		AllBlocks:      blocksToWire(m.blocks.All()),
	}
	ackMsg, err := wire.New(wire.ConnectAck, m.selfIDOrZero(), ack)
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(peer.conn, ackMsg); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSendFailure, err)
	}

	peer.NodeID = assignedID
	m.adopt(assignedID, peer)

	discovery := wire.PayloadNodeDiscovery{Nodes: nodesToWire(m.registry.All())}
	discMsg, err := wire.New(wire.NodeDiscovery, m.selfIDOrZero(), discovery)
	if err == nil {
		peer.Send(discMsg)
	}
	return nil
}

// handleReconnect is the listener side of RECONNECT (§4.1, §4.6).
func (m *Mesh) handleReconnect(peer *Peer, payload wire.PayloadReconnect) error {
	_, localGroupID := m.identity.Get()
	if localGroupID == "" || localGroupID != payload.GroupID {
		return fmt.Errorf("%w: local=%q remote=%q", errs.ErrGroupMismatch, localGroupID, payload.GroupID)
	}

	now := time.Now()
	remoteIP, _, _ := net.SplitHostPort(peer.conn.RemoteAddr().String())
	m.registry.Upsert(registry.Node{
		NodeID:          payload.NodeID,
		IP:              remoteIP,
		TCPPort:         payload.TCPPort,
		UDPPort:         payload.UDPPort,
		Status:          registry.Online,
		TotalCapacityMB: payload.CapacityMB,
		FreeSpaceMB:     payload.FreeSpaceMB,
		LastHeartbeatAt: now,
	})
	m.blocks.MarkNodeAvailable(payload.NodeID)
	m.blocks.Resize(m.registry.AggregateCapacityMB())

	ack := wire.PayloadConnectAck{
		NodeIDAssigned: payload.NodeID,
		GroupID:        localGroupID,
		CapacityMB:     m.capacity.CapacityMB(),
		FreeSpaceMB:    mustFreeSpace(m.capacity),
		AllNodes:       nodesToWire(m.registry.All()),
		AllFiles:       filesToWire(m.files.All()),
		AllBlocks:      blocksToWire(m.blocks.All()),
	}
	ackMsg, err := wire.New(wire.ReconnectAck, m.selfIDOrZero(), ack)
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(peer.conn, ackMsg); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSendFailure, err)
	}

	peer.NodeID = payload.NodeID
	m.adopt(payload.NodeID, peer)

	discovery := wire.PayloadNodeDiscovery{Nodes: nodesToWire(m.registry.All())}
	discMsg, err := wire.New(wire.NodeDiscovery, m.selfIDOrZero(), discovery)
	if err == nil {
		peer.Send(discMsg)
	}
	return nil
}

func mustFreeSpace(c CapacityProvider) int {
	mb, err := c.FreeSpaceMB()
	if err != nil {
		return 0
	}
	return mb
}

func portString(p int) string {
	return fmt.Sprintf("%d", p)
}
