package scope

import (
	"fmt"

	"github.com/google/uuid"
)

// Origin tells whether a transaction was produced by local mutation or
// received from the server.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// State is the acceptance state of a transaction.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateRejected  State = "rejected"
	StateReverted  State = "reverted"
)

// ApplyError reports that a fragment could not be applied against the
// current graph state. The transaction it belonged to had no effect.
type ApplyError struct {
	Fragment Fragment
	Index    int
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("fragment %d (%s on %s): %v", e.Index, e.Fragment.Kind, e.Fragment.TargetID, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// undoStep records how to unwind one applied fragment. strictRemove is set
// for adds so that reverting one refuses to cascade into objects a later,
// still-applied change attached underneath.
type undoStep struct {
	inverses     []Fragment
	strictRemove bool
}

// Transaction is an ordered batch of fragments applied atomically.
type Transaction struct {
	Seq       int64
	Origin    Origin
	State     State
	Fragments []Fragment

	undo    []undoStep
	applied bool
}

// NewLocal returns a pending local transaction. The sequence number is
// assigned when the transaction is appended to the log.
func NewLocal(fragments ...Fragment) *Transaction {
	return &Transaction{
		Origin:    OriginLocal,
		State:     StatePending,
		Fragments: fragments,
	}
}

// NewRemote returns a server-confirmed transaction received over the wire.
func NewRemote(fragments ...Fragment) *Transaction {
	return &Transaction{
		Origin:    OriginRemote,
		State:     StateConfirmed,
		Fragments: fragments,
	}
}

// Applied reports whether the transaction's effects are currently in the
// graph.
func (t *Transaction) Applied() bool {
	return t.applied
}

// Apply applies every fragment in order. If any fragment fails, the
// partial effects are undone before returning, so the graph observes
// either all of the transaction or none of it.
func (t *Transaction) Apply(g *Graph) error {
	if t.applied {
		return fmt.Errorf("transaction %d already applied", t.Seq)
	}

	var steps []undoStep
	var cs ChangeSet
	for i, f := range t.Fragments {
		inverses, err := g.Apply(f)
		if err != nil {
			// Unwind the fragments that did apply, in reverse.
			for j := len(steps) - 1; j >= 0; j-- {
				unwind(g, steps[j])
			}
			return &ApplyError{Fragment: f, Index: i, Err: err}
		}
		steps = append(steps, undoStep{
			inverses:     inverses,
			strictRemove: f.Kind == FragmentAdd,
		})
		accumulate(&cs, f)
	}

	t.undo = steps
	t.applied = true
	g.notify(cs)
	return nil
}

// Revert undoes the transaction by applying the recorded inverse fragments
// in reverse order. It fails only if a later, still-applied change makes
// inversion impossible, which is a structural conflict.
func (t *Transaction) Revert(g *Graph) error {
	if !t.applied {
		return fmt.Errorf("transaction %d is not applied", t.Seq)
	}

	var cs ChangeSet
	for i := len(t.undo) - 1; i >= 0; i-- {
		step := t.undo[i]
		for _, inv := range step.inverses {
			if _, err := g.apply(inv, step.strictRemove); err != nil {
				return fmt.Errorf("revert transaction %d: %w", t.Seq, err)
			}
			accumulate(&cs, inv)
		}
	}

	t.undo = nil
	t.applied = false
	t.State = StateReverted
	g.notify(cs)
	return nil
}

// Detach drops the recorded undo state without touching the graph, for
// use when the graph is being replaced wholesale by a snapshot.
func (t *Transaction) Detach() {
	t.undo = nil
	t.applied = false
	t.State = StateReverted
}

// Reapply marks a reverted transaction pending again and applies it.
func (t *Transaction) Reapply(g *Graph) error {
	t.State = StatePending
	return t.Apply(g)
}

// unwind applies an undo step, panicking on failure: undoing fragments
// that just applied against an otherwise untouched graph cannot fail
// unless the graph's own bookkeeping is broken.
func unwind(g *Graph, step undoStep) {
	for _, inv := range step.inverses {
		if _, err := g.apply(inv, step.strictRemove); err != nil {
			panic(fmt.Sprintf("scope: cannot unwind partial transaction: %v", err))
		}
	}
}

func accumulate(cs *ChangeSet, f Fragment) {
	switch f.Kind {
	case FragmentAdd:
		cs.Added = append(cs.Added, f.TargetID)
	case FragmentRemove:
		cs.Removed = append(cs.Removed, f.TargetID)
	case FragmentMove, FragmentChangeProperty:
		cs.Modified = append(cs.Modified, f.TargetID)
	}
}

// TargetIDs returns the distinct objects the transaction touches.
func (t *Transaction) TargetIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(t.Fragments))
	var ids []uuid.UUID
	for _, f := range t.Fragments {
		if !seen[f.TargetID] {
			seen[f.TargetID] = true
			ids = append(ids, f.TargetID)
		}
	}
	return ids
}
