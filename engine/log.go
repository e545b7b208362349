package engine

import (
	"fmt"

	"github.com/driftlabs/scopesync/scope"
)

// TransactionLog tracks local transactions awaiting server confirmation.
// Entries form a contiguous run of strictly increasing sequence numbers:
// the speculative suffix of the graph's history beyond the last confirmed
// point.
type TransactionLog struct {
	entries []*scope.Transaction
	nextSeq int64
}

// NewTransactionLog returns an empty log. Sequence numbers start at 1.
func NewTransactionLog() *TransactionLog {
	return &TransactionLog{nextSeq: 1}
}

// Len returns the number of pending transactions.
func (l *TransactionLog) Len() int {
	return len(l.entries)
}

// NextSeq returns the sequence number the next appended transaction will
// be assigned.
func (l *TransactionLog) NextSeq() int64 {
	return l.nextSeq
}

// Append assigns the next local sequence number to the transaction,
// stores it pending, and returns the sequence.
func (l *TransactionLog) Append(tx *scope.Transaction) int64 {
	tx.Seq = l.nextSeq
	tx.State = scope.StatePending
	l.nextSeq++
	l.entries = append(l.entries, tx)
	return tx.Seq
}

// Restore re-inserts a transaction persisted from an earlier session. The
// sequence must continue the contiguous run.
func (l *TransactionLog) Restore(tx *scope.Transaction) error {
	if n := len(l.entries); n > 0 && tx.Seq != l.entries[n-1].Seq+1 {
		return fmt.Errorf("restore sequence %d breaks contiguity after %d", tx.Seq, l.entries[n-1].Seq)
	}
	l.entries = append(l.entries, tx)
	if tx.Seq >= l.nextSeq {
		l.nextSeq = tx.Seq + 1
	}
	return nil
}

// Acknowledge confirms and removes the entry with the given sequence. By
// protocol every earlier entry must already be confirmed, so the sequence
// must be the head of the log; an acknowledgment beyond the head means the
// server and client disagree about history (ErrProtocolDesync). An
// acknowledgment below the head is a duplicate and is ignored.
func (l *TransactionLog) Acknowledge(seq int64) (*scope.Transaction, error) {
	if len(l.entries) == 0 || seq < l.entries[0].Seq {
		if seq >= l.nextSeq {
			return nil, ErrProtocolDesync
		}
		return nil, nil
	}
	head := l.entries[0]
	if seq > head.Seq {
		return nil, ErrProtocolDesync
	}
	head.State = scope.StateConfirmed
	l.entries = l.entries[1:]
	return head, nil
}

// Lookup returns the pending transaction with the given sequence.
func (l *TransactionLog) Lookup(seq int64) (*scope.Transaction, bool) {
	for _, tx := range l.entries {
		if tx.Seq == seq {
			return tx, true
		}
	}
	return nil, false
}

// Remove drops the entry with the given sequence without confirming it.
func (l *TransactionLog) Remove(seq int64) (*scope.Transaction, bool) {
	for i, tx := range l.entries {
		if tx.Seq == seq {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return tx, true
		}
	}
	return nil, false
}

// PendingSince returns, in sequence order, every pending transaction with
// sequence >= seq.
func (l *TransactionLog) PendingSince(seq int64) []*scope.Transaction {
	var out []*scope.Transaction
	for _, tx := range l.entries {
		if tx.Seq >= seq {
			out = append(out, tx)
		}
	}
	return out
}

// Pending returns all pending transactions in sequence order.
func (l *TransactionLog) Pending() []*scope.Transaction {
	return append([]*scope.Transaction(nil), l.entries...)
}

// Clear drops every entry and returns them in sequence order.
func (l *TransactionLog) Clear() []*scope.Transaction {
	dropped := l.entries
	l.entries = nil
	return dropped
}
