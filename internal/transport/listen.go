package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"blocknode/internal/wire"
)

// RunTCPAccept opens the TCP listener and accepts connections until
// ctx is cancelled or Stop is called; each accepted connection is
// serviced by its own handshake + serve goroutine.
func (m *Mesh) RunTCPAccept(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(m.ip, portString(m.tcpPort)))
	if err != nil {
		return fmt.Errorf("listen tcp %s:%d: %w", m.ip, m.tcpPort, err)
	}
	m.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !m.IsRunning() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			m.log.Warn("accept failed", "err", err)
			continue
		}
		go m.handshakeAndServe(conn)
	}
}

// handshakeAndServe drives a freshly-accepted connection through the
// Handshaking state (§4.6): it expects exactly one CONNECT or
// RECONNECT as the first frame, then transitions to Joined and hands
// off to serve.
func (m *Mesh) handshakeAndServe(conn net.Conn) {
	peer := newPeer(0, conn)
	first, err := peer.Read()
	if err != nil {
		peer.Close()
		return
	}

	switch first.Type {
	case wire.Connect:
		var payload wire.PayloadConnect
		if err := first.Decode(&payload); err != nil {
			peer.Close()
			return
		}
		if err := m.handleConnect(peer, first.SenderID, payload); err != nil {
			m.log.Warn("handleConnect failed", "err", err)
			peer.Close()
			return
		}
	case wire.Reconnect:
		var payload wire.PayloadReconnect
		if err := first.Decode(&payload); err != nil {
			peer.Close()
			return
		}
		if err := m.handleReconnect(peer, payload); err != nil {
			m.log.Warn("handleReconnect refused", "err", err)
			peer.Close()
			return
		}
	default:
		m.log.Warn("first frame on new connection was not CONNECT/RECONNECT", "type", first.Type)
		peer.Close()
		return
	}

	m.serve(peer)
}

// serve is the Joined-state read loop for one peer: it dispatches
// every subsequent frame until the socket closes (§4.6).
func (m *Mesh) serve(peer *Peer) {
	defer func() {
		m.drop(peer.NodeID, peer)
		peer.Close()
	}()
	for {
		msg, err := peer.Read()
		if err != nil {
			return
		}
		if err := m.dispatch(peer, msg); err != nil {
			m.log.Warn("dispatch failed", "type", msg.Type, "err", err)
		}
	}
}

// dispatch implements the Joined row of §4.6's state table.
func (m *Mesh) dispatch(peer *Peer, msg wire.Message) error {
	switch msg.Type {
	case wire.BlockSend:
		var p wire.PayloadBlockSend
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return m.handleBlockSend(p)
	case wire.BlockRequest:
		var p wire.PayloadBlockRequest
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return m.handleBlockRequest(peer, p)
	case wire.MetadataSync:
		var p wire.PayloadMetadataSync
		if err := msg.Decode(&p); err != nil {
			return err
		}
		m.handleMetadataSync(p)
		return nil
	case wire.DeleteFile:
		var p wire.PayloadDeleteFile
		if err := msg.Decode(&p); err != nil {
			return err
		}
		return m.handleDeleteFile(p)
	case wire.NodeDiscovery:
		var p wire.PayloadNodeDiscovery
		if err := msg.Decode(&p); err != nil {
			return err
		}
		m.handleNodeDiscovery(p)
		return nil
	default:
		return fmt.Errorf("unexpected message type in Joined state: %s", msg.Type)
	}
}
