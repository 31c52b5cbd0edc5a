package pipeline

import (
	"time"

	"blocknode/internal/blocktable"
	"blocknode/internal/filetable"
	"blocknode/internal/wire"
)

func fileToWire(r filetable.Record) wire.FileInfo {
	return wire.FileInfo{
		FileName:   r.FileName,
		SizeBytes:  r.SizeBytes,
		NumBlocks:  r.NumBlocks,
		UploadTime: r.UploadTime.UTC().Format(time.RFC3339),
		BlockIDs:   append([]int(nil), r.BlockIDs...),
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
