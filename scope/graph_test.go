package scope

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// applyAll applies fragments one by one, failing the test on any error.
func applyAll(t *testing.T, g *Graph, fragments ...Fragment) {
	t.Helper()
	for _, f := range fragments {
		if _, err := g.Apply(f); err != nil {
			t.Fatalf("apply %s on %s: %v", f.Kind, f.TargetID, err)
		}
	}
}

func TestNewGraph(t *testing.T) {
	g := NewGraph("canvas")

	// A new graph holds exactly the root object.
	got := g.Len()
	want := 1

	if got != want {
		t.Errorf("got != want; got = %v, expected = %v\n", got, want)
	}

	root, ok := g.Lookup(g.RootID())
	if !ok {
		t.Fatalf("root object not found")
	}
	if root.Class != "canvas" {
		t.Errorf("root class = %q, expected %q\n", root.Class, "canvas")
	}
	if err := g.WellFormed(); err != nil {
		t.Errorf("new graph not well-formed: %v", err)
	}
}

func TestApplyAdd(t *testing.T) {
	g := NewGraph("root")
	id := uuid.New()

	applyAll(t, g, Add(id, g.RootID(), "shape", PositionEnd, map[string]Value{
		"label": String("box"),
	}))

	obj, ok := g.Lookup(id)
	if !ok {
		t.Fatalf("added object not found")
	}
	if obj.ParentID != g.RootID() {
		t.Errorf("parent = %v, expected root %v\n", obj.ParentID, g.RootID())
	}
	if !obj.Property("label").Equal(String("box")) {
		t.Errorf("label = %v, expected %q\n", obj.Property("label"), "box")
	}

	root, _ := g.Lookup(g.RootID())
	if root.childIndex(id) != 0 {
		t.Errorf("root children = %v, expected [%v]\n", root.Children, id)
	}
	if err := g.WellFormed(); err != nil {
		t.Errorf("graph not well-formed after add: %v", err)
	}
}

func TestApplyAdd_ChildPosition(t *testing.T) {
	g := NewGraph("root")
	first, second, between := uuid.New(), uuid.New(), uuid.New()

	applyAll(t, g,
		Add(first, g.RootID(), "item", PositionEnd, nil),
		Add(second, g.RootID(), "item", PositionEnd, nil),
		Add(between, g.RootID(), "item", 1, nil),
	)

	root, _ := g.Lookup(g.RootID())
	want := []uuid.UUID{first, between, second}
	if !cmp.Equal(root.Children, want) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(root.Children, want))
	}
}

func TestApplyAdd_UnknownParent(t *testing.T) {
	g := NewGraph("root")
	before := g.Snapshot()

	_, err := g.Apply(Add(uuid.New(), uuid.New(), "shape", PositionEnd, nil))
	if !errors.Is(err, ErrUnknownParent) {
		t.Errorf("err = %v, expected ErrUnknownParent\n", err)
	}

	// Failure must leave the graph untouched.
	if !cmp.Equal(g.Snapshot(), before) {
		t.Errorf("graph changed on failed add; diff = %v\n", cmp.Diff(g.Snapshot(), before))
	}
}

func TestApplyRemove_Unknown(t *testing.T) {
	g := NewGraph("root")
	before := g.Snapshot()

	_, err := g.Apply(Remove(uuid.New()))
	if !errors.Is(err, ErrUnknownObject) {
		t.Errorf("err = %v, expected ErrUnknownObject\n", err)
	}
	if !cmp.Equal(g.Snapshot(), before) {
		t.Errorf("graph changed on failed remove; diff = %v\n", cmp.Diff(g.Snapshot(), before))
	}
}

func TestApplyRemove_CascadesSubtree(t *testing.T) {
	g := NewGraph("root")
	parent, child, grandchild := uuid.New(), uuid.New(), uuid.New()

	applyAll(t, g,
		Add(parent, g.RootID(), "node", PositionEnd, nil),
		Add(child, parent, "node", PositionEnd, nil),
		Add(grandchild, child, "node", PositionEnd, nil),
	)
	before := g.Snapshot()

	inverses, err := g.Apply(Remove(parent))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	// The whole subtree is gone.
	for _, id := range []uuid.UUID{parent, child, grandchild} {
		if g.Contains(id) {
			t.Errorf("object %v still present after subtree remove\n", id)
		}
	}
	if err := g.WellFormed(); err != nil {
		t.Errorf("graph not well-formed after remove: %v", err)
	}

	// Applying the inverses restores the subtree exactly.
	applyAll(t, g, inverses...)
	if !cmp.Equal(g.Snapshot(), before) {
		t.Errorf("inverse did not restore subtree; diff = %v\n", cmp.Diff(g.Snapshot(), before))
	}
}

func TestApplyRemove_Root(t *testing.T) {
	g := NewGraph("root")

	_, err := g.Apply(Remove(g.RootID()))
	if !errors.Is(err, ErrRootImmovable) {
		t.Errorf("err = %v, expected ErrRootImmovable\n", err)
	}
}

func TestApplyMove(t *testing.T) {
	g := NewGraph("root")
	a, b := uuid.New(), uuid.New()

	applyAll(t, g,
		Add(a, g.RootID(), "node", PositionEnd, nil),
		Add(b, g.RootID(), "node", PositionEnd, nil),
	)
	before := g.Snapshot()

	inverses, err := g.Apply(Move(b, a, PositionEnd))
	if err != nil {
		t.Fatalf("move: %v", err)
	}

	moved, _ := g.Lookup(b)
	if moved.ParentID != a {
		t.Errorf("parent = %v, expected %v\n", moved.ParentID, a)
	}
	if err := g.WellFormed(); err != nil {
		t.Errorf("graph not well-formed after move: %v", err)
	}

	applyAll(t, g, inverses...)
	if !cmp.Equal(g.Snapshot(), before) {
		t.Errorf("inverse move did not restore state; diff = %v\n", cmp.Diff(g.Snapshot(), before))
	}
}

func TestApplyMove_Cycle(t *testing.T) {
	g := NewGraph("root")
	a, b := uuid.New(), uuid.New()

	applyAll(t, g,
		Add(a, g.RootID(), "node", PositionEnd, nil),
		Add(b, a, "node", PositionEnd, nil),
	)

	// Moving a under its own descendant must fail.
	_, err := g.Apply(Move(a, b, PositionEnd))
	if !errors.Is(err, ErrCycle) {
		t.Errorf("err = %v, expected ErrCycle\n", err)
	}
	if err := g.WellFormed(); err != nil {
		t.Errorf("graph not well-formed after rejected move: %v", err)
	}
}

func TestApplyChangeProperty(t *testing.T) {
	g := NewGraph("root")
	id := uuid.New()
	applyAll(t, g, Add(id, g.RootID(), "node", PositionEnd, map[string]Value{
		"name": String("old"),
		"kept": Bool(true),
	}))
	before := g.Snapshot()

	inverses, err := g.Apply(ChangeProperty(id, map[string]Value{
		"name":  String("new"),
		"extra": Number(42),
		"kept":  Null(), // null deletes
	}))
	if err != nil {
		t.Fatalf("changeProperty: %v", err)
	}

	obj, _ := g.Lookup(id)
	if !obj.Property("name").Equal(String("new")) {
		t.Errorf("name = %v, expected %q\n", obj.Property("name"), "new")
	}
	if !obj.Property("extra").Equal(Number(42)) {
		t.Errorf("extra = %v, expected 42\n", obj.Property("extra"))
	}
	if !obj.Property("kept").IsNull() {
		t.Errorf("kept = %v, expected deleted\n", obj.Property("kept"))
	}

	// The inverse restores the prior values and deletes the added key.
	applyAll(t, g, inverses...)
	if !cmp.Equal(g.Snapshot(), before) {
		t.Errorf("inverse did not restore properties; diff = %v\n", cmp.Diff(g.Snapshot(), before))
	}
}

func TestEventsAreBestEffort(t *testing.T) {
	g := NewGraph("root")

	// Nobody drains the channel; applies must not block even past the
	// buffer size.
	for i := 0; i < 200; i++ {
		tx := NewLocal(Add(uuid.New(), g.RootID(), "node", PositionEnd, nil))
		if err := tx.Apply(g); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	select {
	case cs := <-g.Events():
		if len(cs.Added) != 1 {
			t.Errorf("change set added = %v, expected 1 entry\n", cs.Added)
		}
	default:
		t.Errorf("expected at least one buffered change notification")
	}
}
