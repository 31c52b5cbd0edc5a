package daemon

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"blocknode/internal/errs"
	"blocknode/internal/paths"
	"blocknode/internal/store"
)

func reservePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return port
}

func newTestNode(t *testing.T, capacityMB int) *Node {
	t.Helper()
	return newTestNodeAt(t, capacityMB, "127.0.0.1", reservePort(t))
}

// newTestNodeAt builds a node bound to a caller-chosen loopback alias
// and TCP port. Mesh.Connect dials its *own* configured TCP port
// against the given IP (§4.1's conventional-shared-port assumption, the
// same one production deployments rely on) — so two test peers that
// must actually reach each other need distinct loopback IPs sharing one
// TCP port, not independently reserved ports.
func newTestNodeAt(t *testing.T, capacityMB int, ip string, tcpPort int) *Node {
	t.Helper()
	p := paths.Paths{ConfigDir: t.TempDir(), BlockDir: t.TempDir()}
	n, err := New(Config{
		Paths:      p,
		CapacityMB: capacityMB,
		IP:         ip,
		TCPPort:    tcpPort,
		UDPPort:    reservePort(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func runNode(t *testing.T, n *Node) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go n.Run(ctx)
	time.Sleep(20 * time.Millisecond)
}

// TestTwoNodeUploadDownloadRoundTrip exercises S1 (fresh group forms)
// and S2-style upload/download across a real loopback mesh: B
// connects to A, then B uploads a file and downloads it back,
// verifying the metadata reaches A and the bytes round-trip.
func TestTwoNodeUploadDownloadRoundTrip(t *testing.T) {
	sharedPort := reservePort(t)
	a := newTestNodeAt(t, 50, "127.0.0.2", sharedPort)
	b := newTestNodeAt(t, 60, "127.0.0.3", sharedPort)
	runNode(t, a)
	runNode(t, b)

	if ok := b.Connect("127.0.0.2"); !ok {
		t.Fatal("Connect returned false")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.SelfID() == 1 && b.SelfID() == 2 && len(a.ListNodes()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if a.SelfID() != 1 {
		t.Fatalf("a self id = %d, want 1", a.SelfID())
	}
	if b.SelfID() != 2 {
		t.Fatalf("b self id = %d, want 2", b.SelfID())
	}
	if len(a.ListNodes()) != 2 || len(b.ListNodes()) != 2 {
		t.Fatalf("expected both registries to converge on 2 nodes, got a=%d b=%d",
			len(a.ListNodes()), len(b.ListNodes()))
	}

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "roundtrip.txt")
	content := []byte("hello from the mesh")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := b.Upload(context.Background(), srcPath); err != nil {
		t.Fatalf("upload: %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := a.files.Get("roundtrip.txt"); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := a.files.Get("roundtrip.txt"); !ok {
		t.Fatal("expected metadata sync to reach node a")
	}

	savePath := filepath.Join(dir, "out.txt")
	if err := b.Download(context.Background(), "roundtrip.txt", savePath); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(savePath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("downloaded content = %q, want %q", got, content)
	}
}

// TestSetCapacityGuardedByConnection exercises the connected half of
// S6: set_capacity is refused with ErrStillConnected while connected.
func TestSetCapacityGuardedByConnection(t *testing.T) {
	sharedPort := reservePort(t)
	a := newTestNodeAt(t, 50, "127.0.0.2", sharedPort)
	b := newTestNodeAt(t, 60, "127.0.0.3", sharedPort)
	runNode(t, a)
	runNode(t, b)

	if ok := b.Connect("127.0.0.2"); !ok {
		t.Fatal("Connect returned false")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !a.IsConnected() {
		time.Sleep(10 * time.Millisecond)
	}
	if !a.IsConnected() {
		t.Fatal("expected a to observe an incoming connection")
	}

	if err := a.SetCapacity(80); err == nil {
		t.Fatal("expected set_capacity to fail while connected")
	} else if !errorIs(err, errs.ErrStillConnected) {
		t.Fatalf("expected ErrStillConnected, got %v", err)
	}
}

func TestSetCapacityRejectsOutOfRange(t *testing.T) {
	a := newTestNode(t, 50)
	if err := a.SetCapacity(10); err == nil {
		t.Fatal("expected set_capacity to reject capacity below 50")
	}
}

func errorIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestNewRejectsOutOfRangeCapacity(t *testing.T) {
	p := paths.Paths{ConfigDir: t.TempDir(), BlockDir: t.TempDir()}
	_, err := New(Config{Paths: p, CapacityMB: 10, IP: "127.0.0.1", TCPPort: reservePort(t), UDPPort: reservePort(t)})
	if err == nil {
		t.Fatal("expected New to reject capacity below 50")
	}
}

// TestUploadPersistsMetadata confirms Upload writes metadata.json so
// a restart can recover the file registry (A2's persistence mechanics).
// The uploader never places blocks on itself, so the upload needs a
// second connected node to succeed.
func TestUploadPersistsMetadata(t *testing.T) {
	sharedPort := reservePort(t)
	a := newTestNodeAt(t, 50, "127.0.0.2", sharedPort)
	b := newTestNodeAt(t, 50, "127.0.0.3", sharedPort)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "solo.txt")
	if err := os.WriteFile(srcPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	runNode(t, a)
	runNode(t, b)
	if ok := b.Connect("127.0.0.2"); !ok {
		t.Fatal("Connect returned false")
	}
	if err := b.Upload(context.Background(), srcPath); err != nil {
		t.Fatalf("upload: %v", err)
	}

	records, err := store.LoadMetadata(b.paths)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if len(records) != 1 || records[0].FileName != "solo.txt" {
		t.Fatalf("metadata.json records = %+v", records)
	}
}
