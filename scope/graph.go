package scope

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnknownObject   = errors.New("unknown target object")
	ErrUnknownParent   = errors.New("unknown parent object")
	ErrDuplicateObject = errors.New("object already exists")
	ErrRootImmovable   = errors.New("root object cannot be removed or moved")
	ErrCycle           = errors.New("move would create a cycle")

	// ErrHasChildren signals a structural conflict: undoing an add found
	// children attached by a change that has not been reverted yet.
	ErrHasChildren = errors.New("object still has children")
)

// ChangeSet enumerates the net effect of one applied or reverted
// transaction, for observers such as a view layer.
type ChangeSet struct {
	Added    []uuid.UUID
	Removed  []uuid.UUID
	Modified []uuid.UUID
}

func (c *ChangeSet) empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Graph is a rooted tree of SyncObjects indexed by ID.
// All mutation goes through Apply/Revert of fragments; the graph is
// well-formed (a single tree, no orphans, no cycles) after every completed
// transaction.
type Graph struct {
	rootID  uuid.UUID
	objects map[uuid.UUID]*SyncObject
	events  chan ChangeSet
}

// NewGraph returns a graph holding a single root object of the given class.
func NewGraph(rootClass string) *Graph {
	root := &SyncObject{ID: uuid.New(), Class: rootClass}
	return &Graph{
		rootID:  root.ID,
		objects: map[uuid.UUID]*SyncObject{root.ID: root},
		events:  make(chan ChangeSet, 64),
	}
}

// RootID returns the ID of the root object.
func (g *Graph) RootID() uuid.UUID {
	return g.rootID
}

// Len returns the number of objects in the graph.
func (g *Graph) Len() int {
	return len(g.objects)
}

// Contains reports whether an object with the given ID is in the graph.
func (g *Graph) Contains(id uuid.UUID) bool {
	_, ok := g.objects[id]
	return ok
}

// Lookup returns a copy of the object with the given ID.
func (g *Graph) Lookup(id uuid.UUID) (SyncObject, bool) {
	obj, ok := g.objects[id]
	if !ok {
		return SyncObject{}, false
	}
	return *obj.clone(), true
}

// Events returns the change notification channel. Notifications are
// best-effort: when no one is draining the channel they are dropped rather
// than blocking the apply path.
func (g *Graph) Events() <-chan ChangeSet {
	return g.events
}

func (g *Graph) notify(cs ChangeSet) {
	if cs.empty() {
		return
	}
	select {
	case g.events <- cs:
	default:
	}
}

// Traverse walks the tree depth-first from the root, handing each visited
// object (as a copy) and its depth to fn.
func (g *Graph) Traverse(fn func(obj SyncObject, depth int)) {
	g.traverse(g.rootID, 0, fn)
}

func (g *Graph) traverse(id uuid.UUID, depth int, fn func(obj SyncObject, depth int)) {
	obj, ok := g.objects[id]
	if !ok {
		return
	}
	fn(*obj.clone(), depth)
	for _, child := range obj.Children {
		g.traverse(child, depth+1, fn)
	}
}

// Apply applies a single fragment and returns the inverse fragments that
// undo it, in the order they must be applied to do so. On failure the
// graph is unchanged.
func (g *Graph) Apply(f Fragment) ([]Fragment, error) {
	return g.apply(f, false)
}

// apply dispatches on the fragment kind. strictRemove is set when a remove
// is undoing an add: the target must then be childless, otherwise the
// revert would silently destroy objects added by a later change.
func (g *Graph) apply(f Fragment, strictRemove bool) ([]Fragment, error) {
	switch f.Kind {
	case FragmentAdd:
		return g.applyAdd(f)
	case FragmentRemove:
		return g.applyRemove(f, strictRemove)
	case FragmentMove:
		return g.applyMove(f)
	case FragmentChangeProperty:
		return g.applyChangeProperty(f)
	}
	return nil, fmt.Errorf("unknown fragment kind %q", f.Kind)
}

func (g *Graph) applyAdd(f Fragment) ([]Fragment, error) {
	if g.Contains(f.TargetID) {
		return nil, ErrDuplicateObject
	}
	parent, ok := g.objects[f.ParentID]
	if !ok {
		return nil, ErrUnknownParent
	}

	obj := &SyncObject{
		ID:         f.TargetID,
		Class:      f.Class,
		ParentID:   f.ParentID,
		Properties: cloneProperties(f.Properties),
	}
	for name, value := range obj.Properties {
		if value.IsNull() {
			delete(obj.Properties, name)
		}
	}
	g.objects[obj.ID] = obj
	parent.insertChild(obj.ID, f.Position)

	return []Fragment{Remove(obj.ID)}, nil
}

func (g *Graph) applyRemove(f Fragment, strict bool) ([]Fragment, error) {
	obj, ok := g.objects[f.TargetID]
	if !ok {
		return nil, ErrUnknownObject
	}
	if f.TargetID == g.rootID {
		return nil, ErrRootImmovable
	}
	if strict && len(obj.Children) > 0 {
		return nil, ErrHasChildren
	}

	// Removal cascades through the subtree. The inverse re-adds the
	// subtree top-down, the detached object first at its old index.
	parent := g.objects[obj.ParentID]
	index := parent.removeChild(obj.ID)

	var inverses []Fragment
	g.collectSubtree(obj, index, &inverses)
	for _, victim := range inverses {
		delete(g.objects, victim.TargetID)
	}
	return inverses, nil
}

// collectSubtree appends an add fragment for obj (at the given child
// index) and for every descendant, parents before children.
func (g *Graph) collectSubtree(obj *SyncObject, index int, out *[]Fragment) {
	*out = append(*out, Add(obj.ID, obj.ParentID, obj.Class, index, obj.Properties))
	for i, child := range obj.Children {
		if childObj, ok := g.objects[child]; ok {
			g.collectSubtree(childObj, i, out)
		}
	}
}

func (g *Graph) applyMove(f Fragment) ([]Fragment, error) {
	obj, ok := g.objects[f.TargetID]
	if !ok {
		return nil, ErrUnknownObject
	}
	if f.TargetID == g.rootID {
		return nil, ErrRootImmovable
	}
	newParent, ok := g.objects[f.ParentID]
	if !ok {
		return nil, ErrUnknownParent
	}
	if g.inSubtree(f.ParentID, f.TargetID) {
		return nil, ErrCycle
	}

	oldParent := g.objects[obj.ParentID]
	oldIndex := oldParent.removeChild(obj.ID)
	newParent.insertChild(obj.ID, f.Position)
	inverse := Move(obj.ID, oldParent.ID, oldIndex)
	obj.ParentID = newParent.ID

	return []Fragment{inverse}, nil
}

// inSubtree reports whether id is rootID itself or a descendant of it.
func (g *Graph) inSubtree(id, rootID uuid.UUID) bool {
	for {
		if id == rootID {
			return true
		}
		obj, ok := g.objects[id]
		if !ok || id == g.rootID {
			return false
		}
		id = obj.ParentID
	}
}

func (g *Graph) applyChangeProperty(f Fragment) ([]Fragment, error) {
	obj, ok := g.objects[f.TargetID]
	if !ok {
		return nil, ErrUnknownObject
	}

	prior := make(map[string]Value, len(f.Properties))
	for name, value := range f.Properties {
		if old, ok := obj.Properties[name]; ok {
			prior[name] = old
		} else {
			prior[name] = Null()
		}
		if value.IsNull() {
			delete(obj.Properties, name)
			continue
		}
		if obj.Properties == nil {
			obj.Properties = make(map[string]Value)
		}
		obj.Properties[name] = value
	}

	return []Fragment{ChangeProperty(obj.ID, prior)}, nil
}

// WellFormed verifies the structural invariant: every object except the
// root has a known parent listing it as a child, every child link resolves,
// and every object is reachable from the root.
func (g *Graph) WellFormed() error {
	reachable := make(map[uuid.UUID]bool, len(g.objects))
	g.markReachable(g.rootID, reachable)

	for id, obj := range g.objects {
		if !reachable[id] {
			return fmt.Errorf("object %s not reachable from root", id)
		}
		if id == g.rootID {
			continue
		}
		parent, ok := g.objects[obj.ParentID]
		if !ok {
			return fmt.Errorf("object %s has unknown parent %s", id, obj.ParentID)
		}
		if parent.childIndex(id) == -1 {
			return fmt.Errorf("object %s missing from parent %s child list", id, obj.ParentID)
		}
	}
	for _, obj := range g.objects {
		for _, child := range obj.Children {
			if _, ok := g.objects[child]; !ok {
				return fmt.Errorf("object %s lists unknown child %s", obj.ID, child)
			}
		}
	}
	return nil
}

func (g *Graph) markReachable(id uuid.UUID, seen map[uuid.UUID]bool) {
	if seen[id] {
		return
	}
	seen[id] = true
	if obj, ok := g.objects[id]; ok {
		for _, child := range obj.Children {
			g.markReachable(child, seen)
		}
	}
}
