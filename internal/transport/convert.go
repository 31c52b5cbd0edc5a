package transport

import (
	"time"

	"blocknode/internal/blocktable"
	"blocknode/internal/filetable"
	"blocknode/internal/registry"
	"blocknode/internal/wire"
)

func nodeFromWire(n wire.NodeInfo) registry.Node {
	return registry.Node{
		NodeID:          n.NodeID,
		IP:              n.IP,
		TCPPort:         n.TCPPort,
		UDPPort:         n.UDPPort,
		Status:          registry.Status(n.Status),
		TotalCapacityMB: n.TotalCapacityMB,
		FreeSpaceMB:     n.FreeSpaceMB,
		LastHeartbeatAt: time.Unix(0, int64(n.LastHeartbeatAt*1e9)),
	}
}

func nodeToWire(n registry.Node) wire.NodeInfo {
	return wire.NodeInfo{
		NodeID:          n.NodeID,
		IP:              n.IP,
		TCPPort:         n.TCPPort,
		UDPPort:         n.UDPPort,
		Status:          string(n.Status),
		TotalCapacityMB: n.TotalCapacityMB,
		FreeSpaceMB:     n.FreeSpaceMB,
		LastHeartbeatAt: float64(n.LastHeartbeatAt.UnixNano()) / 1e9,
	}
}

func nodesToWire(nodes []registry.Node) []wire.NodeInfo {
	out := make([]wire.NodeInfo, len(nodes))
	for i, n := range nodes {
		out[i] = nodeToWire(n)
	}
	return out
}

func fileFromWire(f wire.FileInfo) filetable.Record {
	t, _ := time.Parse(time.RFC3339, f.UploadTime)
	return filetable.Record{
		FileName:   f.FileName,
		SizeBytes:  f.SizeBytes,
		NumBlocks:  f.NumBlocks,
		UploadTime: t,
		BlockIDs:   append([]int(nil), f.BlockIDs...),
	}
}

func fileToWire(r filetable.Record) wire.FileInfo {
	return wire.FileInfo{
		FileName:   r.FileName,
		SizeBytes:  r.SizeBytes,
		NumBlocks:  r.NumBlocks,
		UploadTime: r.UploadTime.UTC().Format(time.RFC3339),
		BlockIDs:   append([]int(nil), r.BlockIDs...),
	}
}

func filesToWire(records []filetable.Record) []wire.FileInfo {
	out := make([]wire.FileInfo, len(records))
	for i, r := range records {
		out[i] = fileToWire(r)
	}
	return out
}

func slotFromWire(b wire.BlockInfo) blocktable.Slot {
	return blocktable.Slot{
		BlockID:        b.BlockID,
		Role:           blocktable.Role(b.Role),
		OwnerNodeID:    b.OwnerNodeID,
		FileName:       b.FileName,
		FileBlockIndex: b.FileBlockIndex,
		Status:         blocktable.Status(b.Status),
	}
}

func slotToWire(s blocktable.Slot) wire.BlockInfo {
	return wire.BlockInfo{
		BlockID:        s.BlockID,
		Role:           string(s.Role),
		OwnerNodeID:    s.OwnerNodeID,
		FileName:       s.FileName,
		FileBlockIndex: s.FileBlockIndex,
		Status:         string(s.Status),
	}
}

func blocksToWire(slots []blocktable.Slot) []wire.BlockInfo {
	out := make([]wire.BlockInfo, len(slots))
	for i, s := range slots {
		out[i] = slotToWire(s)
	}
	return out
}
