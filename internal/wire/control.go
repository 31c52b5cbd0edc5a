package wire

import "encoding/json"

// Control-plane message types: blockctl talks to a running blocknoded
// over a local Unix socket using the same uint32-length-prefixed JSON
// framing as the peer mesh (WriteFrame/ReadFrame), just a different
// closed set of Type values.
const (
	CtlConnect     Type = "CTL_CONNECT"
	CtlUpload      Type = "CTL_UPLOAD"
	CtlDownload    Type = "CTL_DOWNLOAD"
	CtlDelete      Type = "CTL_DELETE"
	CtlSetCapacity Type = "CTL_SET_CAPACITY"
	CtlListNodes   Type = "CTL_LIST_NODES"
	CtlListFiles   Type = "CTL_LIST_FILES"
	CtlListBlocks  Type = "CTL_LIST_BLOCKS"
	CtlIsConnected Type = "CTL_IS_CONNECTED"
	CtlResponse    Type = "CTL_RESPONSE"
)

// PayloadCtlConnect is the CTL_CONNECT request payload.
type PayloadCtlConnect struct {
	IP string `json:"ip"`
}

// PayloadCtlUpload is the CTL_UPLOAD request payload.
type PayloadCtlUpload struct {
	FilePath string `json:"file_path"`
}

// PayloadCtlDownload is the CTL_DOWNLOAD request payload.
type PayloadCtlDownload struct {
	FileName string `json:"file_name"`
	SavePath string `json:"save_path"`
}

// PayloadCtlDelete is the CTL_DELETE request payload.
type PayloadCtlDelete struct {
	FileName string `json:"file_name"`
}

// PayloadCtlSetCapacity is the CTL_SET_CAPACITY request payload.
type PayloadCtlSetCapacity struct {
	CapacityMB int `json:"capacity_mb"`
}

// PayloadCtlResponse is the envelope for every control-plane reply:
// Ok reports whether the operation succeeded, Error carries the
// message on failure, and Data carries the operation's typed result
// on success (a PayloadCtlConnected, or one of the List* payloads
// below).
type PayloadCtlResponse struct {
	Ok    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PayloadCtlListNodes is CTL_LIST_NODES's successful response Data.
type PayloadCtlListNodes struct {
	Nodes []NodeInfo `json:"nodes"`
}

// PayloadCtlListFiles is CTL_LIST_FILES's successful response Data.
type PayloadCtlListFiles struct {
	Files []FileInfo `json:"files"`
}

// PayloadCtlListBlocks is CTL_LIST_BLOCKS's successful response Data.
type PayloadCtlListBlocks struct {
	Blocks []BlockInfo `json:"blocks"`
}

// PayloadCtlConnected is CTL_IS_CONNECTED's successful response Data.
type PayloadCtlConnected struct {
	Connected bool `json:"connected"`
}
