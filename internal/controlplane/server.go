// Package controlplane exposes a running daemon.Node's §6 operation
// surface to blockctl over a local Unix domain socket, reusing
// internal/wire's length-prefixed JSON framing (the same codec the
// peer mesh speaks over TCP) instead of inventing a second wire
// format for the local case.
package controlplane

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"blocknode/internal/daemon"
	"blocknode/internal/wire"
)

// Server accepts connections on a Unix socket and dispatches each
// frame to the wrapped Node.
type Server struct {
	node     *daemon.Node
	listener net.Listener
	log      *slog.Logger
}

// Listen binds a Unix socket at socketPath, removing any stale socket
// file left behind by a prior unclean shutdown.
func Listen(socketPath string, node *daemon.Node, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Server{node: node, listener: ln, log: log}, nil
}

// Run accepts connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		msg, err := wire.ReadFrame(r)
		if err != nil {
			return
		}
		resp := s.dispatch(msg)
		respMsg, err := wire.New(wire.CtlResponse, 0, resp)
		if err != nil {
			s.log.Error("encode control-plane response failed", "err", err)
			return
		}
		if err := wire.WriteFrame(conn, respMsg); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(msg wire.Message) wire.PayloadCtlResponse {
	ctx := context.Background()
	switch msg.Type {
	case wire.CtlConnect:
		var p wire.PayloadCtlConnect
		if err := msg.Decode(&p); err != nil {
			return errResp(err)
		}
		ok := s.node.Connect(p.IP)
		return dataResp(wire.PayloadCtlConnected{Connected: ok})

	case wire.CtlUpload:
		var p wire.PayloadCtlUpload
		if err := msg.Decode(&p); err != nil {
			return errResp(err)
		}
		if err := s.node.Upload(ctx, p.FilePath); err != nil {
			return errResp(err)
		}
		return okResp()

	case wire.CtlDownload:
		var p wire.PayloadCtlDownload
		if err := msg.Decode(&p); err != nil {
			return errResp(err)
		}
		if err := s.node.Download(ctx, p.FileName, p.SavePath); err != nil {
			return errResp(err)
		}
		return okResp()

	case wire.CtlDelete:
		var p wire.PayloadCtlDelete
		if err := msg.Decode(&p); err != nil {
			return errResp(err)
		}
		if err := s.node.Delete(ctx, p.FileName); err != nil {
			return errResp(err)
		}
		return okResp()

	case wire.CtlSetCapacity:
		var p wire.PayloadCtlSetCapacity
		if err := msg.Decode(&p); err != nil {
			return errResp(err)
		}
		if err := s.node.SetCapacity(p.CapacityMB); err != nil {
			return errResp(err)
		}
		return okResp()

	case wire.CtlListNodes:
		nodes := s.node.ListNodes()
		infos := make([]wire.NodeInfo, len(nodes))
		for i, n := range nodes {
			infos[i] = wire.NodeInfo{
				NodeID:          n.NodeID,
				IP:              n.IP,
				TCPPort:         n.TCPPort,
				UDPPort:         n.UDPPort,
				Status:          string(n.Status),
				TotalCapacityMB: n.TotalCapacityMB,
				FreeSpaceMB:     n.FreeSpaceMB,
				LastHeartbeatAt: float64(n.LastHeartbeatAt.UnixNano()) / 1e9,
			}
		}
		return dataResp(wire.PayloadCtlListNodes{Nodes: infos})

	case wire.CtlListFiles:
		files := s.node.ListFiles()
		infos := make([]wire.FileInfo, len(files))
		for i, f := range files {
			infos[i] = wire.FileInfo{
				FileName:   f.FileName,
				SizeBytes:  f.SizeBytes,
				NumBlocks:  f.NumBlocks,
				UploadTime: f.UploadTime.UTC().Format(time.RFC3339),
				BlockIDs:   f.BlockIDs,
			}
		}
		return dataResp(wire.PayloadCtlListFiles{Files: infos})

	case wire.CtlListBlocks:
		blocks := s.node.ListBlocks()
		infos := make([]wire.BlockInfo, len(blocks))
		for i, b := range blocks {
			infos[i] = wire.BlockInfo{
				BlockID:        b.BlockID,
				Role:           string(b.Role),
				OwnerNodeID:    b.OwnerNodeID,
				FileName:       b.FileName,
				FileBlockIndex: b.FileBlockIndex,
				Status:         string(b.Status),
			}
		}
		return dataResp(wire.PayloadCtlListBlocks{Blocks: infos})

	case wire.CtlIsConnected:
		return dataResp(wire.PayloadCtlConnected{Connected: s.node.IsConnected()})

	default:
		return errResp(errors.New("unknown control-plane message type: " + string(msg.Type)))
	}
}
