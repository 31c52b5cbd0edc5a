package transport

import (
	"testing"
	"time"

	"blocknode/internal/blocktable"
	"blocknode/internal/registry"
)

func TestSweepOnceMarksTimedOutPeerUnavailableAndResizes(t *testing.T) {
	m := newTestMesh(t, 1, "127.0.0.1", 0, 0)
	m.registry.SetSelf(1)
	m.registry.Upsert(registry.Node{
		NodeID: 1, Status: registry.Online, TotalCapacityMB: 50,
		LastHeartbeatAt: time.Now(),
	})
	m.registry.Upsert(registry.Node{
		NodeID: 2, Status: registry.Online, TotalCapacityMB: 50,
		LastHeartbeatAt: time.Now().Add(-1 * time.Hour),
	})
	m.blocks.Resize(100)
	blockID, ok := m.blocks.Allocate(2, "f.txt", 0, blocktable.RoleOriginal)
	if !ok {
		t.Fatal("allocate failed")
	}

	m.sweepOnce()

	n, _ := m.registry.Get(2)
	if n.Status != registry.Offline {
		t.Fatalf("node 2 status = %v, want offline", n.Status)
	}
	if m.registry.AggregateCapacityMB() != 50 {
		t.Fatalf("aggregate capacity = %d, want 50 (only node 1 online)", m.registry.AggregateCapacityMB())
	}
	if m.blocks.Len() != 50 {
		t.Fatalf("block table len = %d, want resized to 50", m.blocks.Len())
	}
	found := false
	for _, s := range m.blocks.All() {
		if s.BlockID == blockID {
			found = true
			if s.Status != blocktable.StatusUnavailable {
				t.Fatalf("slot %d status = %v, want unavailable", blockID, s.Status)
			}
		}
	}
	if !found {
		t.Fatalf("block %d missing after resize-down, shrink should preserve used slots as unavailable", blockID)
	}
}

func TestSweepOnceNeverSweepsSelf(t *testing.T) {
	m := newTestMesh(t, 1, "127.0.0.1", 0, 0)
	m.registry.SetSelf(1)
	m.registry.Upsert(registry.Node{
		NodeID: 1, Status: registry.Online, TotalCapacityMB: 50,
		LastHeartbeatAt: time.Now().Add(-1 * time.Hour),
	})
	m.sweepOnce()
	n, _ := m.registry.Get(1)
	if n.Status != registry.Online {
		t.Fatal("self should never be swept offline")
	}
}
