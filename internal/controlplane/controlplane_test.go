package controlplane

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"blocknode/internal/daemon"
	"blocknode/internal/paths"
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

func newTestServer(t *testing.T) *Client {
	t.Helper()
	p := paths.Paths{ConfigDir: t.TempDir(), BlockDir: t.TempDir()}
	node, err := daemon.New(daemon.Config{
		Paths:      p,
		CapacityMB: 50,
		IP:         "127.0.0.1",
		TCPPort:    reservePort(t),
		UDPPort:    reservePort(t),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go node.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	socketPath := filepath.Join(t.TempDir(), "blocknoded.sock")
	srv, err := Listen(socketPath, node, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	return NewClient(socketPath)
}

func TestIsConnectedAndListNodesRoundTrip(t *testing.T) {
	client := newTestServer(t)

	connected, err := client.IsConnected()
	if err != nil {
		t.Fatalf("IsConnected: %v", err)
	}
	if connected {
		t.Fatal("expected a fresh node to report not connected")
	}

	nodes, err := client.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected no registered nodes yet, got %+v", nodes)
	}
}

func TestConnectToUnreachablePeerReturnsFalse(t *testing.T) {
	client := newTestServer(t)

	ok, err := client.Connect("127.0.0.2")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if ok {
		t.Fatal("expected Connect to an address nothing listens on to report false")
	}
}

func TestSetCapacityRoundTrip(t *testing.T) {
	client := newTestServer(t)

	if err := client.SetCapacity(90); err != nil {
		t.Fatalf("SetCapacity: %v", err)
	}
	if err := client.SetCapacity(10); err == nil {
		t.Fatal("expected SetCapacity below 50 to be rejected")
	}
}
