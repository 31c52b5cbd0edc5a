package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"blocknode/internal/errs"
)

// MaxFrameBytes bounds a single frame body to guard against a
// malformed length prefix trying to allocate unbounded memory.
const MaxFrameBytes = 64 << 20 // 64 MiB, comfortably above one 1 MiB block hex-encoded plus envelope overhead

// WriteFrame writes msg as uint32 BE length || JSON body.
func WriteFrame(w io.Writer, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal frame: %v", errs.ErrDeserialize, err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: write frame header: %v", errs.ErrSendFailure, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("%w: write frame body: %v", errs.ErrSendFailure, err)
	}
	return nil
}

// ReadFrame reads one uint32 BE length || JSON body frame from r.
func ReadFrame(r *bufio.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameBytes {
		return Message{}, fmt.Errorf("%w: frame body %d bytes exceeds limit", errs.ErrDeserialize, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errs.ErrDeserialize, err)
	}
	return msg, nil
}

// EncodeDatagram serializes msg for a single UDP datagram (no length
// prefix — UDP preserves datagram boundaries). The caller is
// responsible for keeping the body within MaxUDPBody.
func EncodeDatagram(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal datagram: %v", errs.ErrDeserialize, err)
	}
	if len(body) > MaxUDPBody {
		return nil, fmt.Errorf("%w: datagram body %d bytes exceeds %d", errs.ErrDeserialize, len(body), MaxUDPBody)
	}
	return body, nil
}

// DecodeDatagram parses a single UDP datagram body into a Message.
func DecodeDatagram(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errs.ErrDeserialize, err)
	}
	return msg, nil
}
