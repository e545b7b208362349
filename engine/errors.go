package engine

import "errors"

var (
	// ErrProtocolDesync means the server's acknowledgments no longer line
	// up with the local transaction log. Local speculative state cannot be
	// trusted; the coordinator drops it and requests a fresh snapshot.
	ErrProtocolDesync = errors.New("acknowledgment out of order with transaction log")

	// ErrUnknownSequence is returned by Cancel for a sequence that is not
	// pending.
	ErrUnknownSequence = errors.New("sequence not pending")

	// ErrResyncing is returned by Mutate while a snapshot request is in
	// flight; local edits would be built on state about to be replaced.
	ErrResyncing = errors.New("re-sync in progress")
)

// Rejection describes a transaction that was undone: either rejected by
// the server, cancelled by the caller, dropped because replaying it after
// an earlier rejection or a remote edit failed (cascading), or discarded
// during a full re-sync.
type Rejection struct {
	Seq       int64
	Reason    string
	Cascading bool
}
