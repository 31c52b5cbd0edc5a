// Package pipeline implements C7: splitting a file into 1 MiB blocks,
// dispatching writes through the mesh to planned peers, and
// reconstructing a file on download by gathering blocks from local
// storage or the mesh.
package pipeline

import "sync"

// BlockCache is the shared block_id -> bytes map download coordination
// relies on (§4.5). It also tracks which block IDs this process is
// currently awaiting as the downloader side of an in-flight
// BLOCK_REQUEST: that, not disk presence, is what tells an incoming
// BLOCK_SEND apart from an ordinary upload write, since a genuine
// remote download reply is the first time this node ever sees that
// block's bytes. Downloaders poll the cache every PollInterval up to
// T_block; retrieval removes the entry.
type BlockCache struct {
	mu      sync.Mutex
	data    map[int][]byte
	pending map[int]bool
}

// NewBlockCache returns an empty cache.
func NewBlockCache() *BlockCache {
	return &BlockCache{data: make(map[int][]byte), pending: make(map[int]bool)}
}

// Put stores data for blockID, overwriting any prior entry.
func (c *BlockCache) Put(blockID int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[blockID] = data
}

// Take returns and removes the cached bytes for blockID, if present.
func (c *BlockCache) Take(blockID int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[blockID]
	if ok {
		delete(c.data, blockID)
	}
	return data, ok
}

// MarkPending records that this node is about to send a BLOCK_REQUEST
// for blockID, so the matching BLOCK_SEND reply is recognized as a
// download delivery rather than an upload write.
func (c *BlockCache) MarkPending(blockID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[blockID] = true
}

// TakePending reports whether blockID is currently an outstanding
// download request, clearing the flag if so (a reply is only expected
// once per request).
func (c *BlockCache) TakePending(blockID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[blockID] {
		delete(c.pending, blockID)
		return true
	}
	return false
}
