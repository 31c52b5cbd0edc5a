package controlplane

import (
	"bufio"
	"errors"
	"net"

	"blocknode/internal/wire"
)

// Client is blockctl's handle to a running blocknoded's control
// socket: one request-response round trip per call, a fresh
// connection per call (the control plane is low-volume and
// interactive, unlike the peer mesh's long-lived connections).
type Client struct {
	socketPath string
}

// NewClient returns a Client bound to socketPath; no connection is
// made until the first call.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) roundTrip(msg wire.Message) (wire.PayloadCtlResponse, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return wire.PayloadCtlResponse{}, err
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, msg); err != nil {
		return wire.PayloadCtlResponse{}, err
	}
	reply, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return wire.PayloadCtlResponse{}, err
	}
	var resp wire.PayloadCtlResponse
	if err := reply.Decode(&resp); err != nil {
		return wire.PayloadCtlResponse{}, err
	}
	if !resp.Ok {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Connect(ip string) (bool, error) {
	msg, err := wire.New(wire.CtlConnect, 0, wire.PayloadCtlConnect{IP: ip})
	if err != nil {
		return false, err
	}
	resp, err := c.roundTrip(msg)
	if err != nil {
		return false, err
	}
	var p wire.PayloadCtlConnected
	if err := jsonDecode(resp.Data, &p); err != nil {
		return false, err
	}
	return p.Connected, nil
}

func (c *Client) Upload(filePath string) error {
	msg, err := wire.New(wire.CtlUpload, 0, wire.PayloadCtlUpload{FilePath: filePath})
	if err != nil {
		return err
	}
	_, err = c.roundTrip(msg)
	return err
}

func (c *Client) Download(fileName, savePath string) error {
	msg, err := wire.New(wire.CtlDownload, 0, wire.PayloadCtlDownload{FileName: fileName, SavePath: savePath})
	if err != nil {
		return err
	}
	_, err = c.roundTrip(msg)
	return err
}

func (c *Client) Delete(fileName string) error {
	msg, err := wire.New(wire.CtlDelete, 0, wire.PayloadCtlDelete{FileName: fileName})
	if err != nil {
		return err
	}
	_, err = c.roundTrip(msg)
	return err
}

func (c *Client) SetCapacity(mb int) error {
	msg, err := wire.New(wire.CtlSetCapacity, 0, wire.PayloadCtlSetCapacity{CapacityMB: mb})
	if err != nil {
		return err
	}
	_, err = c.roundTrip(msg)
	return err
}

func (c *Client) ListNodes() ([]wire.NodeInfo, error) {
	msg, err := wire.New(wire.CtlListNodes, 0, struct{}{})
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(msg)
	if err != nil {
		return nil, err
	}
	var p wire.PayloadCtlListNodes
	if err := jsonDecode(resp.Data, &p); err != nil {
		return nil, err
	}
	return p.Nodes, nil
}

func (c *Client) ListFiles() ([]wire.FileInfo, error) {
	msg, err := wire.New(wire.CtlListFiles, 0, struct{}{})
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(msg)
	if err != nil {
		return nil, err
	}
	var p wire.PayloadCtlListFiles
	if err := jsonDecode(resp.Data, &p); err != nil {
		return nil, err
	}
	return p.Files, nil
}

func (c *Client) ListBlocks() ([]wire.BlockInfo, error) {
	msg, err := wire.New(wire.CtlListBlocks, 0, struct{}{})
	if err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(msg)
	if err != nil {
		return nil, err
	}
	var p wire.PayloadCtlListBlocks
	if err := jsonDecode(resp.Data, &p); err != nil {
		return nil, err
	}
	return p.Blocks, nil
}

func (c *Client) IsConnected() (bool, error) {
	msg, err := wire.New(wire.CtlIsConnected, 0, struct{}{})
	if err != nil {
		return false, err
	}
	resp, err := c.roundTrip(msg)
	if err != nil {
		return false, err
	}
	var p wire.PayloadCtlConnected
	if err := jsonDecode(resp.Data, &p); err != nil {
		return false, err
	}
	return p.Connected, nil
}
