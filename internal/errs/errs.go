// Package errs defines the closed set of error kinds the core
// distinguishes, per the error handling design. Callers use errors.Is
// to classify a failure without parsing log text.
package errs

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("...: %w", Kind) at the
// call site to attach context; unwrap with errors.Is/errors.As.
var (
	// ErrConfigInvalid means capacity was out of [50, 100] or below
	// the currently used space.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrPeerUnreachable means a dial was refused, timed out, or
	// failed with an I/O error.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrGroupMismatch means a RECONNECT carried a group_id that does
	// not match the listener's group.
	ErrGroupMismatch = errors.New("group mismatch")

	// ErrPlanInsufficient means the placement planner returned fewer
	// originals than the file needed.
	ErrPlanInsufficient = errors.New("placement plan insufficient")

	// ErrBlockIOLocal means a local block read/write/delete failed.
	ErrBlockIOLocal = errors.New("local block I/O failed")

	// ErrBlockTimeout means a BLOCK_REQUEST did not populate the
	// block cache within T_block.
	ErrBlockTimeout = errors.New("block request timed out")

	// ErrBlockMissing means no replica of a required block index is
	// currently used.
	ErrBlockMissing = errors.New("no replica available for block")

	// ErrSendFailure means a framed send to a peer failed; the
	// connection is dropped from the connection map.
	ErrSendFailure = errors.New("send to peer failed")

	// ErrDeserialize means a frame could not be parsed; the message
	// is dropped but the connection is kept if framing recovered.
	ErrDeserialize = errors.New("malformed frame")

	// ErrStillConnected guards set_capacity: it may only run while
	// disconnected from every peer.
	ErrStillConnected = errors.New("cannot change capacity while connected")

	// ErrUnknownFile means an operation referenced a file name with
	// no record in the file registry.
	ErrUnknownFile = errors.New("unknown file")

	// ErrNotConnected means an operation needs an established mesh
	// connection that does not currently exist.
	ErrNotConnected = errors.New("not connected to any peer")
)
