// Package blocktable implements C3: the global block slot vector.
// Its length is sized to the group's aggregate online capacity in MB;
// each slot is free, used, or unavailable.
package blocktable

import "sync"

// Role distinguishes the two replicas of a logical chunk.
type Role string

const (
	RoleNone     Role = ""
	RoleOriginal Role = "original"
	RoleCopy     Role = "copy"
)

// Status is a slot's allocation state.
type Status string

const (
	StatusFree        Status = "free"
	StatusUsed        Status = "used"
	StatusUnavailable Status = "unavailable"
)

// Slot is one entry in the block table.
type Slot struct {
	BlockID        int
	Role           Role
	OwnerNodeID    int // 0 means unset (no node ID is ever 0 per spec.md §3)
	FileName       string
	FileBlockIndex int
	Status         Status
}

// Table is the thread-safe block slot vector (C3).
type Table struct {
	mu        sync.Mutex
	slots     []Slot
	nextBlock int
}

// New returns an empty table; call Resize to size it.
func New() *Table {
	return &Table{nextBlock: 1}
}

// Len returns the current slot count.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Resize grows or shrinks the table to n slots. Growing appends free
// slots; shrinking marks any used slot at index >= n unavailable
// without losing its placement metadata, per spec.md §3.
func (t *Table) Resize(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resizeLocked(n)
}

func (t *Table) resizeLocked(n int) {
	cur := len(t.slots)
	if n > cur {
		for i := cur; i < n; i++ {
			t.slots = append(t.slots, Slot{BlockID: t.nextBlock, Status: StatusFree})
			t.nextBlock++
		}
		return
	}
	for i := n; i < cur; i++ {
		if t.slots[i].Status == StatusUsed {
			t.slots[i].Status = StatusUnavailable
		}
	}
}

// Allocate scans for the first free slot (table order, not
// round-robin — round-robin selection happens one layer up, over
// candidate nodes) and stamps it with the given placement. Returns
// the allocated block ID, or false if no free slot exists.
func (t *Table) Allocate(ownerNodeID int, fileName string, fileBlockIndex int, role Role) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].Status == StatusFree {
			t.slots[i].Role = role
			t.slots[i].OwnerNodeID = ownerNodeID
			t.slots[i].FileName = fileName
			t.slots[i].FileBlockIndex = fileBlockIndex
			t.slots[i].Status = StatusUsed
			return t.slots[i].BlockID, true
		}
	}
	return 0, false
}

// Free marks the slot with the given block ID as free, clearing its
// placement metadata. The slot itself keeps its position in the
// table and is eligible for reuse by the next Allocate scan.
func (t *Table) Free(blockID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].BlockID == blockID {
			t.slots[i] = Slot{BlockID: blockID, Status: StatusFree}
			return
		}
	}
}

// MarkNodeUnavailable flips every used slot owned by nodeID to
// unavailable, preserving placement metadata (§4.2 housekeeping pass).
func (t *Table) MarkNodeUnavailable(nodeID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].OwnerNodeID == nodeID && t.slots[i].Status == StatusUsed {
			t.slots[i].Status = StatusUnavailable
		}
	}
}

// MarkNodeAvailable flips every unavailable slot owned by nodeID back
// to used, preserving placement metadata (a peer rejoining, §3).
func (t *Table) MarkNodeAvailable(nodeID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].OwnerNodeID == nodeID && t.slots[i].Status == StatusUnavailable {
			t.slots[i].Status = StatusUsed
		}
	}
}

// ForFile returns a defensive copy of every slot belonging to
// fileName, in table order.
func (t *Table) ForFile(fileName string) []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Slot
	for _, s := range t.slots {
		if s.FileName == fileName {
			out = append(out, s)
		}
	}
	return out
}

// ForNode returns a defensive copy of every slot owned by nodeID.
func (t *Table) ForNode(nodeID int) []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Slot
	for _, s := range t.slots {
		if s.OwnerNodeID == nodeID {
			out = append(out, s)
		}
	}
	return out
}

// All returns a defensive copy of every slot.
func (t *Table) All() []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Slot, len(t.slots))
	copy(out, t.slots)
	return out
}

// Counts tallies slots by status, for the slot-accounting invariant
// (|free| + |used| + |unavailable| = |table|).
type Counts struct {
	Free, Used, Unavailable int
}

func (t *Table) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	var c Counts
	for _, s := range t.slots {
		switch s.Status {
		case StatusFree:
			c.Free++
		case StatusUsed:
			c.Used++
		case StatusUnavailable:
			c.Unavailable++
		}
	}
	return c
}

// ReplaceAll overwrites the whole table (METADATA_SYNC application)
// and recomputes the next-block-id cursor as max(existing)+1.
func (t *Table) ReplaceAll(slots []Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = make([]Slot, len(slots))
	copy(t.slots, slots)
	max := 0
	for _, s := range t.slots {
		if s.BlockID > max {
			max = s.BlockID
		}
	}
	t.nextBlock = max + 1
}
