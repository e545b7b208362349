package scope

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/google/uuid"
)

var ErrBadSnapshot = errors.New("snapshot does not describe a well-formed tree")

// Snapshot is a full serialization of a graph, used for re-sync with the
// server and for saving local state to disk. Objects are listed in
// depth-first order, parents before children.
type Snapshot struct {
	RootID  uuid.UUID    `json:"rootID"`
	Objects []SyncObject `json:"objects"`
}

// Snapshot captures the current state of the graph.
func (g *Graph) Snapshot() Snapshot {
	s := Snapshot{RootID: g.rootID}
	g.Traverse(func(obj SyncObject, depth int) {
		s.Objects = append(s.Objects, obj)
	})
	return s
}

// FromSnapshot builds a graph from a snapshot, validating well-formedness.
func FromSnapshot(s Snapshot) (*Graph, error) {
	g := &Graph{
		objects: make(map[uuid.UUID]*SyncObject, len(s.Objects)),
		events:  make(chan ChangeSet, 64),
	}
	if err := g.restore(s); err != nil {
		return nil, err
	}
	return g, nil
}

// Restore replaces the graph's contents with the snapshot in place, so
// holders of the graph pointer observe the new state. Emits a single
// change notification covering every object.
func (g *Graph) Restore(s Snapshot) error {
	old := g.objects
	if err := g.restore(s); err != nil {
		return err
	}

	var cs ChangeSet
	for id := range old {
		if !g.Contains(id) {
			cs.Removed = append(cs.Removed, id)
		}
	}
	for id := range g.objects {
		if _, ok := old[id]; ok {
			cs.Modified = append(cs.Modified, id)
		} else {
			cs.Added = append(cs.Added, id)
		}
	}
	g.notify(cs)
	return nil
}

func (g *Graph) restore(s Snapshot) error {
	objects := make(map[uuid.UUID]*SyncObject, len(s.Objects))
	for i := range s.Objects {
		obj := s.Objects[i].clone()
		if _, ok := objects[obj.ID]; ok {
			return ErrBadSnapshot
		}
		objects[obj.ID] = obj
	}
	if _, ok := objects[s.RootID]; !ok {
		return ErrBadSnapshot
	}

	// Validate before touching the receiver, so a bad snapshot leaves the
	// graph as it was.
	probe := Graph{rootID: s.RootID, objects: objects}
	if err := probe.WellFormed(); err != nil {
		return ErrBadSnapshot
	}

	g.objects = objects
	g.rootID = s.RootID
	return nil
}

// Save writes the graph to a file.
func Save(fileName string, g *Graph) error {
	data, err := json.MarshalIndent(g.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fileName, data, 0644)
}

// Load reads a graph from a file written by Save.
func Load(fileName string) (*Graph, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return FromSnapshot(s)
}
