package transport

import (
	"bufio"
	"net"
	"sync"

	"blocknode/internal/wire"
)

// peerOutboxCap bounds how many frames may queue for a slow peer
// before Send starts refusing frames (returning false); it replaces a goroutine
// per outgoing send with a single writer goroutine per peer.
const peerOutboxCap = 64

// Peer is one live TCP connection to another node. Exactly one Peer
// exists per connected node ID at a time (§4.1 "Connection
// ownership"); replacing it is the Mesh connection map's job, not
// this type's.
type Peer struct {
	NodeID int
	conn   net.Conn
	reader *bufio.Reader
	outbox chan wire.Message
	done   chan struct{}
	once   sync.Once
}

func newPeer(nodeID int, conn net.Conn) *Peer {
	p := &Peer{
		NodeID: nodeID,
		conn:   conn,
		reader: bufio.NewReader(conn),
		outbox: make(chan wire.Message, peerOutboxCap),
		done:   make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// writeLoop is the single goroutine allowed to write to conn; Send
// hands frames to it over outbox instead of spawning a goroutine per
// send.
func (p *Peer) writeLoop() {
	for {
		select {
		case msg, ok := <-p.outbox:
			if !ok {
				return
			}
			if err := wire.WriteFrame(p.conn, msg); err != nil {
				p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// Send enqueues msg for delivery. It returns false if the peer's
// outbox is full or already closed; callers treat that as
// ErrSendFailure per §7.
func (p *Peer) Send(msg wire.Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.outbox <- msg:
		return true
	case <-p.done:
		return false
	default:
		return false
	}
}

// Read blocks for the next inbound frame.
func (p *Peer) Read() (wire.Message, error) {
	return wire.ReadFrame(p.reader)
}

// Close shuts the connection down; safe to call more than once.
func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
