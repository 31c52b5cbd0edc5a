package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"blocknode/internal/blockstore"
	"blocknode/internal/blocktable"
	"blocknode/internal/filetable"
	"blocknode/internal/paths"
	"blocknode/internal/planner"
	"blocknode/internal/registry"
	"blocknode/internal/wire"
)

// fakeMesh routes SendToNode/Broadcast directly to the other test
// node's dispatch function, simulating the transport layer without a
// real socket.
type fakeMesh struct {
	peers map[int]*node
	self  int
}

func (f *fakeMesh) SendToNode(nodeID int, msg wire.Message) error {
	peer, ok := f.peers[nodeID]
	if !ok {
		return errNotConnected
	}
	peer.receive(msg)
	return nil
}

func (f *fakeMesh) Broadcast(msg wire.Message, exclude map[int]bool) {
	for id, peer := range f.peers {
		if id == f.self || (exclude != nil && exclude[id]) {
			continue
		}
		peer.receive(msg)
	}
}

var errNotConnected = &fakeErr{"not connected"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

// node bundles one simulated peer's full stack: registries, store,
// pipeline, and a dispatch method mimicking transport's Joined-state
// handling for the message types the pipeline exercises.
type node struct {
	id     int
	reg    *registry.Registry
	blocks *blocktable.Table
	files  *filetable.Table
	store  *blockstore.Store
	cache  *BlockCache
	pipe   *Pipeline
}

func newNode(t *testing.T, id int) *node {
	t.Helper()
	p := paths.Paths{ConfigDir: t.TempDir(), BlockDir: t.TempDir()}
	n := &node{
		id:     id,
		reg:    registry.New(id),
		blocks: blocktable.New(),
		files:  filetable.New(),
		store:  blockstore.New(p),
		cache:  NewBlockCache(),
	}
	return n
}

func (n *node) receive(msg wire.Message) {
	switch msg.Type {
	case wire.BlockSend:
		var p wire.PayloadBlockSend
		_ = msg.Decode(&p)
		data, _ := wire.DecodeBlockData(p.Data)
		if n.cache.TakePending(p.BlockID) {
			n.cache.Put(p.BlockID, data)
		} else {
			_ = n.store.Write(p.BlockID, data)
		}
	case wire.BlockRequest:
		var p wire.PayloadBlockRequest
		_ = msg.Decode(&p)
		if !n.store.Has(p.BlockID) {
			return
		}
		data, _ := n.store.Read(p.BlockID)
		reply, _ := wire.New(wire.BlockSend, n.id, wire.PayloadBlockSend{
			BlockID: p.BlockID, Data: wire.EncodeBlockData(data),
		})
		n.pipe.mesh.(*fakeMesh).peers[msg.SenderID].receive(reply)
	case wire.MetadataSync:
		var p wire.PayloadMetadataSync
		_ = msg.Decode(&p)
		files := make([]filetable.Record, 0, len(p.Files))
		for _, f := range p.Files {
			files = append(files, filetable.Record{
				FileName: f.FileName, SizeBytes: f.SizeBytes, NumBlocks: f.NumBlocks, BlockIDs: f.BlockIDs,
			})
		}
		n.files.ReplaceAll(files)
		slots := make([]blocktable.Slot, 0, len(p.Blocks))
		for _, b := range p.Blocks {
			slots = append(slots, blocktable.Slot{
				BlockID: b.BlockID, Role: blocktable.Role(b.Role), OwnerNodeID: b.OwnerNodeID,
				FileName: b.FileName, FileBlockIndex: b.FileBlockIndex, Status: blocktable.Status(b.Status),
			})
		}
		n.blocks.ReplaceAll(slots)
	case wire.DeleteFile:
		var p wire.PayloadDeleteFile
		_ = msg.Decode(&p)
		for _, s := range n.blocks.ForFile(p.FileName) {
			if s.OwnerNodeID == n.id {
				_ = n.store.Delete(s.BlockID)
				n.blocks.Free(s.BlockID)
			}
		}
		n.files.Delete(p.FileName)
	}
}

func setupTwoNodes(t *testing.T) (*node, *node) {
	t.Helper()
	a := newNode(t, 1)
	b := newNode(t, 2)

	for _, n := range []*node{a, b} {
		n.reg.Upsert(registry.Node{NodeID: 1, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50})
		n.reg.Upsert(registry.Node{NodeID: 2, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50})
		n.blocks.Resize(100)
	}

	meshA := &fakeMesh{self: 1, peers: map[int]*node{}}
	meshB := &fakeMesh{self: 2, peers: map[int]*node{}}
	meshA.peers[2] = b
	meshB.peers[1] = a

	a.pipe = New(Config{
		SelfID: func() int { return 1 }, Registry: a.reg, Blocks: a.blocks, Files: a.files,
		Store: a.store, Planner: planner.New(), Mesh: meshA, Cache: a.cache,
	})
	b.pipe = New(Config{
		SelfID: func() int { return 2 }, Registry: b.reg, Blocks: b.blocks, Files: b.files,
		Store: b.store, Planner: planner.New(), Mesh: meshB, Cache: b.cache,
	})
	return a, b
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	a, b := setupTwoNodes(t)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "hello.txt")
	content := bytes.Repeat([]byte("x"), 3*filetable.BlockSizeBytes+17)
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := a.pipe.Upload(context.Background(), srcPath); err != nil {
		t.Fatalf("upload: %v", err)
	}

	rec, ok := b.files.Get("hello.txt")
	if !ok {
		t.Fatal("expected hello.txt to sync to node b's file table")
	}
	if rec.NumBlocks != 4 {
		t.Fatalf("num_blocks = %d, want 4", rec.NumBlocks)
	}

	savePath := filepath.Join(dir, "out.txt")
	if err := b.pipe.Download(context.Background(), "hello.txt", savePath); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("downloaded content mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

// TestDownloadFetchesRemoteBlocks uses a third node so the uploader
// owns none of the placed blocks, forcing its own Download to exercise
// the BLOCK_REQUEST/BLOCK_SEND/block-cache remote path end to end.
func TestDownloadFetchesRemoteBlocks(t *testing.T) {
	a := newNode(t, 1)
	b := newNode(t, 2)
	c := newNode(t, 3)
	nodes := []*node{a, b, c}
	for _, n := range nodes {
		for _, peer := range nodes {
			n.reg.Upsert(registry.Node{NodeID: peer.id, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50})
		}
		n.blocks.Resize(150)
	}

	meshes := map[int]*fakeMesh{}
	for _, n := range nodes {
		meshes[n.id] = &fakeMesh{self: n.id, peers: map[int]*node{}}
	}
	for _, n := range nodes {
		for _, peer := range nodes {
			if peer.id != n.id {
				meshes[n.id].peers[peer.id] = peer
			}
		}
	}
	for _, n := range nodes {
		id := n.id
		n.pipe = New(Config{
			SelfID: func() int { return id }, Registry: n.reg, Blocks: n.blocks, Files: n.files,
			Store: n.store, Planner: planner.New(), Mesh: meshes[id], Cache: n.cache,
		})
	}

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "remote.txt")
	content := []byte("remote fetch payload")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.pipe.Upload(context.Background(), srcPath); err != nil {
		t.Fatalf("upload: %v", err)
	}

	for _, s := range a.blocks.ForFile("remote.txt") {
		if s.OwnerNodeID == a.id {
			t.Fatalf("uploader must never own a placed block, got %+v", s)
		}
	}

	savePath := filepath.Join(dir, "remote_out.txt")
	if err := a.pipe.Download(context.Background(), "remote.txt", savePath); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("downloaded content mismatch: got %q, want %q", got, content)
	}
}

func TestUploadInsufficientCandidatesFails(t *testing.T) {
	a := newNode(t, 1)
	a.reg.Upsert(registry.Node{NodeID: 1, Status: registry.Online, TotalCapacityMB: 50, FreeSpaceMB: 50})
	a.blocks.Resize(50)
	mesh := &fakeMesh{self: 1, peers: map[int]*node{}}
	a.pipe = New(Config{
		SelfID: func() int { return 1 }, Registry: a.reg, Blocks: a.blocks, Files: a.files,
		Store: a.store, Planner: planner.New(), Mesh: mesh, Cache: a.cache,
	})

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(srcPath, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.pipe.Upload(context.Background(), srcPath); err == nil {
		t.Fatal("expected upload to fail with no non-uploader candidates")
	}
}

func TestDeletePropagatesAndFreesSlots(t *testing.T) {
	a, b := setupTwoNodes(t)
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "d.txt")
	if err := os.WriteFile(srcPath, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.pipe.Upload(context.Background(), srcPath); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, ok := b.files.Get("d.txt"); !ok {
		t.Fatal("expected file synced before delete")
	}

	if err := a.pipe.Delete(context.Background(), "d.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := a.files.Get("d.txt"); ok {
		t.Fatal("deleter should no longer have the file")
	}
	if _, ok := b.files.Get("d.txt"); ok {
		t.Fatal("delete should propagate to peer")
	}
	for _, s := range a.blocks.ForFile("d.txt") {
		t.Fatalf("expected no remaining slots for deleted file, got %+v", s)
	}
}

func TestDownloadUnknownFileFails(t *testing.T) {
	a, _ := setupTwoNodes(t)
	err := a.pipe.Download(context.Background(), "nope.txt", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error for unknown file")
	}
}

func TestBlockCacheTakeRemovesEntry(t *testing.T) {
	c := NewBlockCache()
	c.Put(7, []byte("abc"))
	data, ok := c.Take(7)
	if !ok || string(data) != "abc" {
		t.Fatalf("Take = %q, %v", data, ok)
	}
	if _, ok := c.Take(7); ok {
		t.Fatal("expected entry removed after Take")
	}
}
