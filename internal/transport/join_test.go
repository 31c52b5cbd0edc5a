package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

// TestConnectFormsGroupAndAssignsIDs exercises the full listener +
// initiator join path over a real loopback TCP socket: a fresh
// listener mints a group, the initiator is assigned node ID 2, and
// both sides converge on the resulting registry.
func TestConnectFormsGroupAndAssignsIDs(t *testing.T) {
	listener := newTestMesh(t, 0, "127.0.0.1", 0, 0)
	port := reservePort(t)
	listener.tcpPort = port

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.RunTCPAccept(ctx)
	time.Sleep(20 * time.Millisecond) // let the accept loop start listening

	initiator := newTestMesh(t, 0, "127.0.0.1", 0, 0)
	initiator.tcpPort = port
	if ok := initiator.Connect("127.0.0.1"); !ok {
		t.Fatal("Connect returned false")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if initiator.registry.Self() != 0 && len(listener.registry.All()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if initiator.registry.Self() != 2 {
		t.Fatalf("initiator self id = %d, want 2", initiator.registry.Self())
	}
	if listener.registry.Self() != 1 {
		t.Fatalf("listener self id = %d, want 1", listener.registry.Self())
	}
	_, listenerGroup := listener.identity.Get()
	_, initiatorGroup := initiator.identity.Get()
	if listenerGroup == "" || listenerGroup != initiatorGroup {
		t.Fatalf("groups diverged: listener=%q initiator=%q", listenerGroup, initiatorGroup)
	}
	if len(listener.registry.All()) != 2 {
		t.Fatalf("listener registry has %d nodes, want 2", len(listener.registry.All()))
	}
}

func reservePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestResolveJoinFreshGroup(t *testing.T) {
	m := newTestMesh(t, 0, "127.0.0.1", 0, 0)
	id, groupID := m.resolveJoin("")
	if id != 2 {
		t.Fatalf("id = %d, want 2 (listener keeps 1 for itself)", id)
	}
	if groupID == "" {
		t.Fatal("expected a freshly minted group id")
	}
	gotSelf, gotGroup := m.identity.Get()
	if gotSelf != 1 || gotGroup != groupID {
		t.Fatalf("identity = (%d, %q), want (1, %q)", gotSelf, gotGroup, groupID)
	}
}

func TestResolveJoinAdoptsRemoteGroupWhenLocalUnset(t *testing.T) {
	m := newTestMesh(t, 0, "127.0.0.1", 0, 0)
	id, groupID := m.resolveJoin("remote-group")
	if groupID != "remote-group" {
		t.Fatalf("groupID = %q, want remote-group", groupID)
	}
	if id == 0 {
		t.Fatal("expected a non-zero assigned id")
	}
}

func TestResolveJoinCollidingGroupsListenerWins(t *testing.T) {
	m := newTestMesh(t, 1, "127.0.0.1", 0, 0)
	m.identity.Set(1, "local-group")
	_, groupID := m.resolveJoin("other-group")
	if groupID != "local-group" {
		t.Fatalf("groupID = %q, want local-group to win", groupID)
	}
}

func TestResolveJoinSameGroupKeepsIt(t *testing.T) {
	m := newTestMesh(t, 1, "127.0.0.1", 0, 0)
	m.identity.Set(1, "shared-group")
	_, groupID := m.resolveJoin("shared-group")
	if groupID != "shared-group" {
		t.Fatalf("groupID = %q, want shared-group", groupID)
	}
}
