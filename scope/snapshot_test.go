package scope

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func buildTestGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph("root")
	a, b := uuid.New(), uuid.New()
	applyAll(t, g,
		Add(a, g.RootID(), "folder", PositionEnd, map[string]Value{"name": String("docs")}),
		Add(b, a, "file", PositionEnd, map[string]Value{
			"name":   String("readme"),
			"size":   Number(512),
			"hidden": Bool(false),
			"parent": Reference(a),
		}),
	)
	return g
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := buildTestGraph(t)

	restored, err := FromSnapshot(g.Snapshot())
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}

	if !cmp.Equal(restored.Snapshot(), g.Snapshot()) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(restored.Snapshot(), g.Snapshot()))
	}
	if err := restored.WellFormed(); err != nil {
		t.Errorf("restored graph not well-formed: %v", err)
	}
}

func TestRestoreReplacesInPlace(t *testing.T) {
	g := buildTestGraph(t)
	replacement := NewGraph("other")

	if err := g.Restore(replacement.Snapshot()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if g.RootID() != replacement.RootID() {
		t.Errorf("root = %v, expected %v\n", g.RootID(), replacement.RootID())
	}
	if g.Len() != 1 {
		t.Errorf("graph size = %v, expected 1\n", g.Len())
	}
}

func TestRestoreRejectsBadSnapshot(t *testing.T) {
	g := buildTestGraph(t)
	before := g.Snapshot()

	// A snapshot whose root is missing from the object list.
	bad := Snapshot{RootID: uuid.New(), Objects: before.Objects}
	if err := g.Restore(bad); !errors.Is(err, ErrBadSnapshot) {
		t.Errorf("err = %v, expected ErrBadSnapshot\n", err)
	}

	// The graph keeps its old contents.
	if !cmp.Equal(g.Snapshot(), before) {
		t.Errorf("graph changed on bad snapshot; diff = %v\n", cmp.Diff(g.Snapshot(), before))
	}
}

func TestSaveLoad(t *testing.T) {
	g := buildTestGraph(t)
	fileName := filepath.Join(t.TempDir(), "scope.json")

	if err := Save(fileName, g); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(fileName)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cmp.Equal(loaded.Snapshot(), g.Snapshot()) {
		t.Errorf("got != want; diff = %v\n", cmp.Diff(loaded.Snapshot(), g.Snapshot()))
	}
}
