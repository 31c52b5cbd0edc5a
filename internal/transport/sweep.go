package transport

import (
	"context"
	"time"
)

// SweepInterval is how often the timeout-sweep loop checks for stale
// heartbeats (§4.2). It runs more often than DefaultTimeout so a
// timed-out peer is caught within roughly one heartbeat interval of
// crossing the threshold.
const SweepInterval = 1 * time.Second

// RunTimeoutSweep periodically flips timed-out peers offline and runs
// the housekeeping pass that follows from it: marking that peer's
// owned slots unavailable and resizing C3 to the group's new aggregate
// online capacity (§4.2).
func (m *Mesh) RunTimeoutSweep(ctx context.Context) error {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Mesh) sweepOnce() {
	flipped := m.registry.SweepTimeouts(time.Now())
	if len(flipped) == 0 {
		return
	}
	for _, id := range flipped {
		m.blocks.MarkNodeUnavailable(id)
		m.log.Warn("peer timed out", "node_id", id)
	}
	m.blocks.Resize(m.registry.AggregateCapacityMB())
}
