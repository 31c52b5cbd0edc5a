package transport

import (
	"fmt"

	"blocknode/internal/blocktable"
	"blocknode/internal/errs"
	"blocknode/internal/filetable"
	"blocknode/internal/wire"
)

// handleBlockSend implements the two Joined-state BLOCK_SEND rows of
// §4.6. The protocol table distinguishes them by whether the block is
// "already stored locally"; that is decided against the cache's
// pending-request set rather than disk presence, since a block_id is
// global and a genuine download reply is the first time its bytes
// ever reach this node — a disk-presence check would never route a
// real remote fetch into the cache, and every round-trip beyond the
// uploader's own degraded two-node case would time out.
func (m *Mesh) handleBlockSend(p wire.PayloadBlockSend) error {
	data, err := wire.DecodeBlockData(p.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrDeserialize, err)
	}

	if m.cache.TakePending(p.BlockID) {
		m.cache.Put(p.BlockID, data)
		return nil
	}

	if err := m.store.Write(p.BlockID, data); err != nil {
		return err
	}
	self := m.registry.Self()
	if freeMB, err := m.capacity.FreeSpaceMB(); err == nil {
		m.registry.SetFreeSpace(self, freeMB)
	}
	return nil
}

// handleBlockRequest implements §4.6's BLOCK_REQUEST row: read the
// block via C1 and, if present, reply BLOCK_SEND.
func (m *Mesh) handleBlockRequest(peer *Peer, p wire.PayloadBlockRequest) error {
	if !m.store.Has(p.BlockID) {
		return fmt.Errorf("%w: block %d not stored here", errs.ErrBlockMissing, p.BlockID)
	}
	data, err := m.store.Read(p.BlockID)
	if err != nil {
		return err
	}

	slot := m.findSlot(p.BlockID)
	reply := wire.PayloadBlockSend{
		BlockID: p.BlockID,
		Data:    wire.EncodeBlockData(data),
	}
	if slot != nil {
		reply.FileName = slot.FileName
		reply.FileBlockIndex = slot.FileBlockIndex
		reply.BlockType = string(slot.Role)
	}
	msg, err := wire.New(wire.BlockSend, m.registry.Self(), reply)
	if err != nil {
		return err
	}
	if !peer.Send(msg) {
		return fmt.Errorf("%w: node %d", errs.ErrSendFailure, peer.NodeID)
	}
	return nil
}

func (m *Mesh) findSlot(blockID int) *blocktable.Slot {
	for _, s := range m.blocks.All() {
		if s.BlockID == blockID {
			s := s
			return &s
		}
	}
	return nil
}

// handleMetadataSync implements §4.6's METADATA_SYNC row: overwrite
// C4 and C3 wholesale (last-writer-wins at table granularity, per
// §4.4's documented design).
func (m *Mesh) handleMetadataSync(p wire.PayloadMetadataSync) {
	files := make([]filetable.Record, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, fileFromWire(f))
	}
	m.files.ReplaceAll(files)

	slots := make([]blocktable.Slot, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		slots = append(slots, slotFromWire(b))
	}
	m.blocks.ReplaceAll(slots)
}

// handleDeleteFile implements §4.6's DELETE_FILE row: free this
// node's own slots for the file (deleting local block data) and
// remove the file from C4. Slots owned by other nodes are left to the
// metadata-sync model to converge.
func (m *Mesh) handleDeleteFile(p wire.PayloadDeleteFile) error {
	self := m.registry.Self()
	for _, s := range m.blocks.ForFile(p.FileName) {
		if s.OwnerNodeID == self {
			if err := m.store.Delete(s.BlockID); err != nil {
				m.log.Warn("delete local block failed", "block_id", s.BlockID, "err", err)
			}
			m.blocks.Free(s.BlockID)
		}
	}
	m.files.Delete(p.FileName)
	return nil
}

// handleNodeDiscovery implements §4.6's NODE_DISCOVERY row: dial any
// listed node we are not already connected to.
func (m *Mesh) handleNodeDiscovery(p wire.PayloadNodeDiscovery) {
	self := m.registry.Self()
	connected := m.ConnectedPeerIDs()
	connectedSet := make(map[int]bool, len(connected))
	for _, id := range connected {
		connectedSet[id] = true
	}
	for _, n := range p.Nodes {
		if n.NodeID == self || connectedSet[n.NodeID] {
			continue
		}
		go m.dialDiscovered(n)
	}
}

// dialDiscovered dials a peer learned from NODE_DISCOVERY or found
// stale by the mesh-repair loop, rejoining it with our own persisted
// identity (we are always the reconnecting side here: we already
// belong to a group).
func (m *Mesh) dialDiscovered(n wire.NodeInfo) {
	self, groupID := m.identity.Get()
	if groupID == "" {
		return
	}
	if ok := m.Reconnect(n.IP, self, groupID); ok {
		return
	}
	m.log.Debug("mesh repair dial failed", "node_id", n.NodeID, "ip", n.IP)
}
