package planner

import (
	"testing"

	"blocknode/internal/blocktable"
	"blocknode/internal/registry"
)

func setup(t *testing.T, selfID int, nodes ...registry.Node) (*registry.Registry, *blocktable.Table) {
	t.Helper()
	reg := registry.New(selfID)
	total := 0
	for _, n := range nodes {
		reg.Upsert(n)
		total += n.TotalCapacityMB
	}
	tb := blocktable.New()
	tb.Resize(total)
	return reg, tb
}

func TestPlanPlacesOriginalAndCopyOnDistinctNodes(t *testing.T) {
	reg, tb := setup(t, 1,
		registry.Node{NodeID: 1, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
		registry.Node{NodeID: 2, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
		registry.Node{NodeID: 3, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
	)
	p := New()
	plan := p.Plan(reg, tb, 3, "f.txt", 1)

	byIndex := map[int][]Assignment{}
	for _, a := range plan {
		byIndex[a.FileBlockIndex] = append(byIndex[a.FileBlockIndex], a)
	}
	if len(byIndex) != 3 {
		t.Fatalf("expected 3 indices planned, got %d", len(byIndex))
	}
	for idx, as := range byIndex {
		if len(as) != 2 {
			t.Fatalf("index %d: expected original+copy, got %d assignments", idx, len(as))
		}
		var originals, copies int
		owners := map[int]bool{}
		for _, a := range as {
			if a.Role == blocktable.RoleOriginal {
				originals++
			} else {
				copies++
			}
			owners[a.NodeID] = true
			if a.NodeID == 1 {
				t.Fatalf("uploader must never be assigned a block, got %+v", a)
			}
		}
		if originals != 1 || copies != 1 {
			t.Fatalf("index %d: want exactly 1 original and 1 copy, got %d/%d", idx, originals, copies)
		}
		if len(owners) != 2 {
			t.Fatalf("index %d: original and copy must reside on distinct nodes, got %+v", idx, as)
		}
	}
}

func TestPlanDegradesWithSingleCandidate(t *testing.T) {
	reg, tb := setup(t, 1,
		registry.Node{NodeID: 1, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
		registry.Node{NodeID: 2, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
	)
	p := New()
	plan := p.Plan(reg, tb, 1, "f.txt", 1)

	if len(plan) != 1 {
		t.Fatalf("with only one non-uploader candidate, expected a degraded single-owner plan of length 1, got %d", len(plan))
	}
	if plan[0].Role != blocktable.RoleOriginal {
		t.Fatalf("degraded plan must still place the original, got role %v", plan[0].Role)
	}
}

func TestPlanStopsWhenNoCandidateForOriginal(t *testing.T) {
	reg, tb := setup(t, 1,
		registry.Node{NodeID: 1, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
	)
	p := New()
	plan := p.Plan(reg, tb, 2, "f.txt", 1)
	if len(plan) != 0 {
		t.Fatalf("with no non-uploader candidates, plan must be empty, got %+v", plan)
	}
}

func TestPlanRoundRobinsAcrossUploads(t *testing.T) {
	reg, tb := setup(t, 1,
		registry.Node{NodeID: 2, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
		registry.Node{NodeID: 3, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
		registry.Node{NodeID: 4, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50},
	)
	p := New()
	first := p.Plan(reg, tb, 1, "a.txt", 1)
	second := p.Plan(reg, tb, 1, "b.txt", 1)

	if len(first) == 0 || len(second) == 0 {
		t.Fatal("expected both plans to place at least the original")
	}
	// The cursor advances once per selection (original and copy), so with
	// three candidates the first upload's original lands on node 2 and the
	// second upload's on node 4.
	if first[0].NodeID == second[0].NodeID {
		t.Fatalf("expected the cursor to move the original across uploads, both landed on node %d", first[0].NodeID)
	}
}
