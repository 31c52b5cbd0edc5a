// Package wire implements the framed JSON protocol shared by the peer
// mesh (TCP), the heartbeat channel (UDP), and the local control
// plane: a closed set of typed message variants instead of a dynamic
// JSON dictionary passed around untyped.
package wire

import (
	"encoding/json"
	"time"
)

// Type is the closed set of message kinds carried by a Message.
type Type string

const (
	Connect        Type = "CONNECT"
	ConnectAck     Type = "CONNECT_ACK"
	Reconnect      Type = "RECONNECT"
	ReconnectAck   Type = "RECONNECT_ACK"
	NodeDiscovery  Type = "NODE_DISCOVERY"
	BlockRequest   Type = "BLOCK_REQUEST"
	BlockSend      Type = "BLOCK_SEND"
	MetadataSync   Type = "METADATA_SYNC"
	DeleteFile     Type = "DELETE_FILE"
	Heartbeat      Type = "HEARTBEAT"
	HeartbeatAck   Type = "HEARTBEAT_ACK"
)

// MaxUDPBody is the maximum datagram body length; only heartbeats
// travel over UDP so this comfortably bounds them.
const MaxUDPBody = 1024

// Message is the envelope every frame carries: {type, sender_id,
// payload, timestamp}. Payload is intentionally untyped JSON at this
// layer — callers decode it into one of the Payload* structs below
// based on Type, so no untyped map ever crosses a component boundary.
type Message struct {
	Type      Type            `json:"type"`
	SenderID  int             `json:"sender_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp float64         `json:"timestamp"`
}

// New builds a Message with payload marshaled to JSON and the
// timestamp set to now.
func New(t Type, senderID int, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:      t,
		SenderID:  senderID,
		Payload:   raw,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}, nil
}

// Decode unmarshals m.Payload into dst.
func (m Message) Decode(dst any) error {
	return json.Unmarshal(m.Payload, dst)
}

// NodeInfo is the wire shape of one node registry entry, used in
// CONNECT_ACK/RECONNECT_ACK/NODE_DISCOVERY payloads.
type NodeInfo struct {
	NodeID          int     `json:"node_id"`
	IP              string  `json:"ip"`
	TCPPort         int     `json:"tcp_port"`
	UDPPort         int     `json:"udp_port"`
	Status          string  `json:"status"`
	TotalCapacityMB int     `json:"total_capacity_mb"`
	FreeSpaceMB     int     `json:"free_space_mb"`
	LastHeartbeatAt float64 `json:"last_heartbeat_at"`
}

// BlockInfo is the wire shape of one block table slot.
type BlockInfo struct {
	BlockID        int    `json:"block_id"`
	Role           string `json:"role"`
	OwnerNodeID    int    `json:"owner_node_id"`
	FileName       string `json:"file_name"`
	FileBlockIndex int    `json:"file_block_index"`
	Status         string `json:"status"`
}

// FileInfo is the wire shape of one file registry entry.
type FileInfo struct {
	FileName   string `json:"file_name"`
	SizeBytes  int64  `json:"size_bytes"`
	NumBlocks  int    `json:"num_blocks"`
	UploadTime string `json:"upload_time"`
	BlockIDs   []int  `json:"block_ids"`
}

// PayloadConnect is the CONNECT request payload.
type PayloadConnect struct {
	GroupID     string `json:"group_id,omitempty"`
	CapacityMB  int    `json:"capacity_mb"`
	FreeSpaceMB int    `json:"free_space_mb"`
	TCPPort     int    `json:"tcp_port"`
	UDPPort     int    `json:"udp_port"`
}

// PayloadConnectAck is the CONNECT_ACK / RECONNECT_ACK response
// payload: the full advertised state.
type PayloadConnectAck struct {
	NodeIDAssigned int         `json:"node_id_assigned"`
	GroupID        string      `json:"group_id"`
	CapacityMB     int         `json:"capacity_mb"`
	FreeSpaceMB    int         `json:"free_space_mb"`
	AllNodes       []NodeInfo  `json:"all_nodes"`
	AllFiles       []FileInfo  `json:"all_files"`
	AllBlocks      []BlockInfo `json:"all_blocks"`
}

// PayloadReconnect is the RECONNECT request payload.
type PayloadReconnect struct {
	NodeID      int    `json:"node_id"`
	GroupID     string `json:"group_id"`
	CapacityMB  int    `json:"capacity_mb"`
	FreeSpaceMB int    `json:"free_space_mb"`
	TCPPort     int    `json:"tcp_port"`
	UDPPort     int    `json:"udp_port"`
}

// PayloadNodeDiscovery is the NODE_DISCOVERY payload.
type PayloadNodeDiscovery struct {
	Nodes []NodeInfo `json:"nodes"`
}

// PayloadBlockRequest is the BLOCK_REQUEST payload.
type PayloadBlockRequest struct {
	BlockID int `json:"block_id"`
}

// PayloadBlockSend is the BLOCK_SEND payload; Data is lowercase hex of
// the block bytes.
type PayloadBlockSend struct {
	BlockID        int    `json:"block_id"`
	FileName       string `json:"file_name"`
	FileBlockIndex int    `json:"file_block_index"`
	BlockType      string `json:"block_type"`
	Data           string `json:"data"`
}

// PayloadMetadataSync is the METADATA_SYNC payload.
type PayloadMetadataSync struct {
	Files  []FileInfo  `json:"files"`
	Blocks []BlockInfo `json:"blocks"`
}

// PayloadDeleteFile is the DELETE_FILE payload.
type PayloadDeleteFile struct {
	FileName string `json:"file_name"`
}

// PayloadHeartbeat is the HEARTBEAT / HEARTBEAT_ACK payload.
type PayloadHeartbeat struct {
	NodeID int `json:"node_id"`
}
