package engine

import (
	"errors"
	"testing"

	"github.com/driftlabs/scopesync/scope"
	"github.com/google/uuid"
)

func pendingSeqs(l *TransactionLog) []int64 {
	var seqs []int64
	for _, tx := range l.Pending() {
		seqs = append(seqs, tx.Seq)
	}
	return seqs
}

func TestLogAppendAssignsContiguousSequences(t *testing.T) {
	l := NewTransactionLog()

	for want := int64(1); want <= 5; want++ {
		got := l.Append(scope.NewLocal())
		if got != want {
			t.Errorf("got != want; got = %v, expected = %v\n", got, want)
		}
	}
	if l.Len() != 5 {
		t.Errorf("len = %v, expected 5\n", l.Len())
	}
	if l.NextSeq() != 6 {
		t.Errorf("next seq = %v, expected 6\n", l.NextSeq())
	}
}

func TestLogAcknowledgeInOrder(t *testing.T) {
	l := NewTransactionLog()
	l.Append(scope.NewLocal())
	l.Append(scope.NewLocal())

	tx, err := l.Acknowledge(1)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if tx.Seq != 1 || tx.State != scope.StateConfirmed {
		t.Errorf("tx = %v/%v, expected seq 1 confirmed\n", tx.Seq, tx.State)
	}

	// Acknowledging sequence 1 implies it is gone from the log.
	if _, ok := l.Lookup(1); ok {
		t.Errorf("seq 1 still pending after acknowledge")
	}
	if got := pendingSeqs(l); len(got) != 1 || got[0] != 2 {
		t.Errorf("pending = %v, expected [2]\n", got)
	}
}

// TestLogAcknowledgeSkippingHead checks that confirming a sequence while
// an earlier one is still pending is flagged as a protocol violation.
func TestLogAcknowledgeSkippingHead(t *testing.T) {
	l := NewTransactionLog()
	l.Append(scope.NewLocal())
	l.Append(scope.NewLocal())

	_, err := l.Acknowledge(2)
	if !errors.Is(err, ErrProtocolDesync) {
		t.Errorf("err = %v, expected ErrProtocolDesync\n", err)
	}
}

func TestLogAcknowledgeDuplicate(t *testing.T) {
	l := NewTransactionLog()
	l.Append(scope.NewLocal())
	if _, err := l.Acknowledge(1); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	// A re-delivered ack for an already-confirmed sequence is a no-op.
	tx, err := l.Acknowledge(1)
	if err != nil || tx != nil {
		t.Errorf("duplicate ack: tx = %v, err = %v, expected nil/nil\n", tx, err)
	}

	// An ack for a sequence that was never assigned is a desync.
	if _, err := l.Acknowledge(7); !errors.Is(err, ErrProtocolDesync) {
		t.Errorf("err = %v, expected ErrProtocolDesync\n", err)
	}
}

func TestLogPendingSince(t *testing.T) {
	l := NewTransactionLog()
	for i := 0; i < 4; i++ {
		l.Append(scope.NewLocal())
	}

	var got []int64
	for _, tx := range l.PendingSince(3) {
		got = append(got, tx.Seq)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("pending since 3 = %v, expected [3 4]\n", got)
	}
}

func TestLogRemove(t *testing.T) {
	l := NewTransactionLog()
	for i := 0; i < 3; i++ {
		l.Append(scope.NewLocal())
	}

	if _, ok := l.Remove(2); !ok {
		t.Fatalf("remove seq 2 failed")
	}
	if got := pendingSeqs(l); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("pending = %v, expected [1 3]\n", got)
	}
	if _, ok := l.Remove(2); ok {
		t.Errorf("removing seq 2 twice succeeded")
	}
}

func TestLogRestore(t *testing.T) {
	l := NewTransactionLog()

	first := scope.NewLocal(scope.Add(uuid.New(), uuid.New(), "node", scope.PositionEnd, nil))
	first.Seq = 4
	if err := l.Restore(first); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if l.NextSeq() != 5 {
		t.Errorf("next seq = %v, expected 5\n", l.NextSeq())
	}

	// A gap in the restored sequence run is rejected.
	gap := scope.NewLocal()
	gap.Seq = 7
	if err := l.Restore(gap); err == nil {
		t.Errorf("expected restore with gap to fail")
	}
}

func TestLogClear(t *testing.T) {
	l := NewTransactionLog()
	for i := 0; i < 3; i++ {
		l.Append(scope.NewLocal())
	}

	dropped := l.Clear()
	if len(dropped) != 3 {
		t.Errorf("dropped = %v entries, expected 3\n", len(dropped))
	}
	if l.Len() != 0 {
		t.Errorf("len = %v, expected 0\n", l.Len())
	}

	// Sequence numbering continues after a clear.
	if got := l.Append(scope.NewLocal()); got != 4 {
		t.Errorf("got != want; got = %v, expected = 4\n", got)
	}
}
