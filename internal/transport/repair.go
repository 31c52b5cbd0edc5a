package transport

import (
	"context"
	"time"
)

// RunMeshRepair periodically dials any online peer this process has
// no open TCP connection to (§4.1's "mesh stays fully connected"
// property, applied beyond the reactive NODE_DISCOVERY push).
func (m *Mesh) RunMeshRepair(ctx context.Context) error {
	ticker := time.NewTicker(MeshRepairInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.repairOnce()
		}
	}
}

func (m *Mesh) repairOnce() {
	self := m.registry.Self()
	connected := m.ConnectedPeerIDs()
	connectedSet := make(map[int]bool, len(connected))
	for _, id := range connected {
		connectedSet[id] = true
	}
	for _, n := range m.registry.OnlineNodes() {
		if n.NodeID == self || connectedSet[n.NodeID] {
			continue
		}
		go m.dialDiscovered(nodeToWire(n))
	}
}
