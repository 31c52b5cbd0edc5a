// Package planner implements C5: computes (block_id, node_id, role)
// assignments for an upload via round-robin over peers with free
// space, per spec.md §4.3.
package planner

import (
	"log/slog"
	"sync"

	"blocknode/internal/blocktable"
	"blocknode/internal/registry"
)

// Assignment is one placed replica.
type Assignment struct {
	BlockID        int
	NodeID         int
	Role           blocktable.Role
	FileBlockIndex int
}

// Planner holds the process-wide round-robin cursor (§4.3 step 2)
// across a registry and a block table.
type Planner struct {
	mu     sync.Mutex
	cursor int
}

// New returns a Planner with its round-robin cursor at zero.
func New() *Planner {
	return &Planner{}
}

type candidate struct {
	nodeID    int
	freeSpace int
}

// Plan allocates numBlocks logical chunks for fileName, excluding
// uploaderID as a placement target. It returns one assignment per
// (index, role) pair it manages to place. An index whose copy could
// not be placed carries only its original (a degraded single-owner
// block, §4.3 step 5); a result missing an original for some index
// means placement stopped early, and the caller treats that upload as
// failed per §4.3 step 4.
//
// The free-space bookkeeping used to choose candidates is local to
// this call: it decrements an in-memory copy per selection and is
// never committed back to the registry (spec.md §9 documents this as
// a known planner quirk, not a bug to silently fix — concurrent
// uploads during the same window can see stale space here).
func (p *Planner) Plan(reg *registry.Registry, table *blocktable.Table, numBlocks int, fileName string, uploaderID int) []Assignment {
	p.mu.Lock()
	defer p.mu.Unlock()

	online := reg.OnlineNodes()
	candidates := make(map[int]*candidate, len(online))
	order := make([]int, 0, len(online))
	for _, n := range online {
		if n.NodeID == uploaderID {
			continue
		}
		candidates[n.NodeID] = &candidate{nodeID: n.NodeID, freeSpace: n.FreeSpaceMB}
		order = append(order, n.NodeID)
	}

	var assignments []Assignment
	for idx := 0; idx < numBlocks; idx++ {
		originalNode, ok := p.selectLocked(order, candidates, nil)
		if !ok {
			slog.Error("placement planner found no candidate for original block", "file", fileName, "index", idx)
			break
		}
		originalID, ok := table.Allocate(originalNode, fileName, idx, blocktable.RoleOriginal)
		if !ok {
			slog.Error("block table has no free slot for original", "file", fileName, "index", idx)
			break
		}
		assignments = append(assignments, Assignment{BlockID: originalID, NodeID: originalNode, Role: blocktable.RoleOriginal, FileBlockIndex: idx})

		candidates[originalNode].freeSpace--
		copyNode, ok := p.selectLocked(order, candidates, []int{originalNode})
		candidates[originalNode].freeSpace++
		if !ok {
			slog.Warn("no candidate available for copy; upload continues degraded (single-owner)", "file", fileName, "index", idx)
			continue
		}
		copyID, ok := table.Allocate(copyNode, fileName, idx, blocktable.RoleCopy)
		if !ok {
			slog.Warn("block table has no free slot for copy; upload continues degraded", "file", fileName, "index", idx)
			continue
		}
		assignments = append(assignments, Assignment{BlockID: copyID, NodeID: copyNode, Role: blocktable.RoleCopy, FileBlockIndex: idx})
	}
	return assignments
}

// selectLocked runs one round-robin step over order, skipping any ID
// in exclude, preferring (and only returning) a candidate with
// positive free space. Called with p.mu held.
func (p *Planner) selectLocked(order []int, candidates map[int]*candidate, exclude []int) (int, bool) {
	eligible := make([]int, 0, len(order))
outer:
	for _, id := range order {
		for _, ex := range exclude {
			if id == ex {
				continue outer
			}
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return 0, false
	}

	start := p.cursor % len(eligible)
	p.cursor++
	for i := 0; i < len(eligible); i++ {
		id := eligible[(start+i)%len(eligible)]
		if candidates[id].freeSpace > 0 {
			return id, true
		}
	}
	return 0, false
}
