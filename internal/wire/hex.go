package wire

import "encoding/hex"

// EncodeBlockData lowercase-hex-encodes block bytes for PayloadBlockSend.Data.
func EncodeBlockData(b []byte) string { return hex.EncodeToString(b) }

// DecodeBlockData decodes the hex string carried in PayloadBlockSend.Data.
func DecodeBlockData(s string) ([]byte, error) { return hex.DecodeString(s) }
