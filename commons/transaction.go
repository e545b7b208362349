package commons

import "github.com/driftlabs/scopesync/scope"

// Transaction is the wire form of a transaction: the client-assigned
// sequence number and the ordered fragments.
type Transaction struct {
	// Seq is the client-assigned local sequence number. Zero for
	// transactions rebroadcast to other clients, which carry no meaning
	// in the receiver's sequence space.
	Seq int64 `json:"seq"`

	// Fragments is the ordered batch of changes.
	Fragments []scope.Fragment `json:"fragments"`
}

// Outcome is the server's verdict on a transaction.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
)

// Ack is the server's acknowledgment of a client transaction.
type Ack struct {
	// Seq echoes the client-assigned sequence number.
	Seq int64 `json:"seq"`

	// Outcome is confirmed or rejected.
	Outcome Outcome `json:"outcome"`

	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`
}
