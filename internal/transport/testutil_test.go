package transport

import (
	"io"
	"log/slog"
	"testing"

	"blocknode/internal/blockstore"
	"blocknode/internal/blocktable"
	"blocknode/internal/filetable"
	"blocknode/internal/paths"
	"blocknode/internal/registry"
)

type fakeCache struct {
	put     map[int][]byte
	pending map[int]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{put: make(map[int][]byte), pending: make(map[int]bool)}
}

func (f *fakeCache) Put(blockID int, data []byte) {
	cp := append([]byte(nil), data...)
	f.put[blockID] = cp
}

func (f *fakeCache) TakePending(blockID int) bool {
	if f.pending[blockID] {
		delete(f.pending, blockID)
		return true
	}
	return false
}

type fakeCapacity struct {
	capacityMB int
	freeMB     int
	freeErr    error
}

func (f *fakeCapacity) CapacityMB() int { return f.capacityMB }
func (f *fakeCapacity) FreeSpaceMB() (int, error) {
	if f.freeErr != nil {
		return 0, f.freeErr
	}
	return f.freeMB, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestMesh wires up a Mesh with real registry/blocktable/filetable
// and store collaborators rooted at a temp directory, for tests that
// exercise join/dispatch logic without a real network socket.
func newTestMesh(tb testing.TB, selfID int, ip string, tcpPort, udpPort int) *Mesh {
	p := paths.Paths{ConfigDir: tb.TempDir(), BlockDir: tb.TempDir()}
	reg := registry.New(selfID)
	blocks := blocktable.New()
	files := filetable.New()
	store := blockstore.New(p)
	return New(Config{
		Identity: NewIdentity(selfID, "", nil),
		Registry: reg,
		Blocks:   blocks,
		Files:    files,
		Store:    store,
		Cache:    newFakeCache(),
		Capacity: &fakeCapacity{capacityMB: 100, freeMB: 100},
		IP:       ip,
		TCPPort:  tcpPort,
		UDPPort:  udpPort,
		Logger:   silentLogger(),
	})
}
