package transport

import (
	"context"
	"net"
	"time"

	"blocknode/internal/wire"
)

// HeartbeatInterval is T_heartbeat: how often this node sends a
// HEARTBEAT datagram to every online peer (§4.2).
const HeartbeatInterval = 3 * time.Second

// RunUDPReceiver opens the UDP socket and, for every datagram that
// decodes to a HEARTBEAT, touches the sender's registry entry (§4.2).
// Unparseable datagrams are dropped silently — UDP has no peer to
// report an error back to.
func (m *Mesh) RunUDPReceiver(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", net.JoinHostPort(m.ip, portString(m.udpPort)))
	if err != nil {
		return err
	}
	m.udpConn = conn

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, wire.MaxUDPBody)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if !m.IsRunning() || ctx.Err() != nil {
				return nil
			}
			continue
		}
		msg, err := wire.DecodeDatagram(buf[:n])
		if err != nil || msg.Type != wire.Heartbeat {
			continue
		}
		var p wire.PayloadHeartbeat
		if err := msg.Decode(&p); err != nil {
			continue
		}
		m.registry.Touch(p.NodeID, time.Now())
	}
}

// RunUDPSender sends a HEARTBEAT datagram to every online peer every
// HeartbeatInterval until ctx is cancelled (§4.2).
func (m *Mesh) RunUDPSender(ctx context.Context) error {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sendHeartbeats(conn)
		}
	}
}

func (m *Mesh) sendHeartbeats(conn net.PacketConn) {
	self := m.registry.Self()
	msg, err := wire.New(wire.Heartbeat, self, wire.PayloadHeartbeat{NodeID: self})
	if err != nil {
		return
	}
	datagram, err := wire.EncodeDatagram(msg)
	if err != nil {
		return
	}
	for _, n := range m.registry.OnlineNodes() {
		if n.NodeID == self {
			continue
		}
		addr := net.JoinHostPort(n.IP, portString(n.UDPPort))
		raddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			continue
		}
		_, _ = conn.WriteTo(datagram, raddr)
	}
}
