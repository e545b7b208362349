package commons

import (
	"github.com/driftlabs/scopesync/scope"
	"github.com/google/uuid"
)

// Message represents the message sent over the wire.
type Message struct {
	// Type represents the message type.
	Type MessageType `json:"type"`

	// ScopeID names the synchronized scope the message belongs to.
	ScopeID string `json:"scopeID"`

	// ID represents the client's UUID.
	ID uuid.UUID `json:"ID"`

	// Username is the display name of the client, used for join messages.
	Username string `json:"username,omitempty"`

	// Transaction carries a batch of fragments for transaction messages.
	Transaction *Transaction `json:"transaction,omitempty"`

	// Ack carries the server's verdict on a client transaction.
	Ack *Ack `json:"ack,omitempty"`

	// Snapshot carries the full scope state. Snapshots are large, and are
	// only sent when a client joins or requests a re-sync.
	Snapshot *scope.Snapshot `json:"snapshot,omitempty"`
}

// MessageType represents the type of the message.
type MessageType string

const (
	// TxMessage carries a transaction: client to server for local edits,
	// server to client for confirmed edits made by other clients.
	TxMessage MessageType = "transaction"

	// AckMessage carries the server's confirmation or rejection of a
	// client transaction.
	AckMessage MessageType = "ack"

	// SnapshotMessage carries the authoritative scope state.
	SnapshotMessage MessageType = "snapshot"

	// SnapshotReqMessage asks the server for the authoritative state.
	SnapshotReqMessage MessageType = "snapshotReq"

	// SessionMessage assigns the client its UUID on join.
	SessionMessage MessageType = "session"

	// JoinMessage announces a client joining a scope.
	JoinMessage MessageType = "join"
)
