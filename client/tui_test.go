package main

import (
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/driftlabs/scopesync/engine"
	"github.com/driftlabs/scopesync/scope"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	testLogger := logrus.New()
	testLogger.SetOutput(io.Discard)

	coord := engine.NewCoordinator(engine.Config{
		ScopeID:  "test",
		ClientID: uuid.New(),
		Graph:    scope.NewGraph("root"),
		Logger:   testLogger,
	})
	return initialModel(coord, Flags{Scope: "test"})
}

// TestChangeNotificationReachesModel checks that a graph mutation flows
// through the change channel into the update loop, updates the status
// line, and re-arms the watch command.
func TestChangeNotificationReachesModel(t *testing.T) {
	m := newTestModel(t)

	if _, err := m.coord.Mutate(scope.Add(uuid.New(), m.coord.Graph().RootID(), "node", scope.PositionEnd, nil)); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	// The mutation left a notification buffered on the channel.
	msg := watchChanges(m.coord.Graph().Events())()
	cs, ok := msg.(changeMsg)
	if !ok {
		t.Fatalf("msg = %T, expected changeMsg\n", msg)
	}
	if len(cs.Added) != 1 {
		t.Fatalf("added = %v, expected 1 entry\n", cs.Added)
	}

	next, cmd := m.Update(msg)
	updated, ok := next.(model)
	if !ok {
		t.Fatalf("model type = %T\n", next)
	}
	if !strings.Contains(updated.status, "1 added") {
		t.Errorf("status = %q, expected change summary\n", updated.status)
	}
	if cmd == nil {
		t.Errorf("watch command was not re-armed")
	}
}

func TestChangeSummary(t *testing.T) {
	cs := scope.ChangeSet{
		Added:    []uuid.UUID{uuid.New()},
		Modified: []uuid.UUID{uuid.New(), uuid.New()},
	}
	if got, want := changeSummary(cs), "1 added, 2 changed"; got != want {
		t.Errorf("got != want; got = %v, expected = %v\n", got, want)
	}
	if got, want := changeSummary(scope.ChangeSet{}), "no changes"; got != want {
		t.Errorf("got != want; got = %v, expected = %v\n", got, want)
	}
}
