package scope

import "github.com/google/uuid"

// SyncObject is a node in a synchronized object graph.
// Objects are owned by the graph that contains them; the graph hands out
// copies, never aliases. The parent link is an ID resolved through the
// graph's index, not a pointer.
type SyncObject struct {
	ID         uuid.UUID        `json:"id"`
	Class      string           `json:"class"`
	Properties map[string]Value `json:"properties,omitempty"`
	ParentID   uuid.UUID        `json:"parentID,omitempty"`
	Children   []uuid.UUID      `json:"children,omitempty"`
}

// Property returns the named property value, or the null value if unset.
func (o *SyncObject) Property(name string) Value {
	if v, ok := o.Properties[name]; ok {
		return v
	}
	return Null()
}

func (o *SyncObject) clone() *SyncObject {
	c := &SyncObject{
		ID:       o.ID,
		Class:    o.Class,
		ParentID: o.ParentID,
	}
	if o.Properties != nil {
		c.Properties = cloneProperties(o.Properties)
	}
	if o.Children != nil {
		c.Children = append([]uuid.UUID(nil), o.Children...)
	}
	return c
}

func (o *SyncObject) childIndex(id uuid.UUID) int {
	for i, child := range o.Children {
		if child == id {
			return i
		}
	}
	return -1
}

func (o *SyncObject) insertChild(id uuid.UUID, position int) {
	if position == PositionEnd || position >= len(o.Children) {
		o.Children = append(o.Children, id)
		return
	}
	if position < 0 {
		position = 0
	}
	o.Children = append(o.Children[:position],
		append([]uuid.UUID{id}, o.Children[position:]...)...,
	)
}

func (o *SyncObject) removeChild(id uuid.UUID) int {
	i := o.childIndex(id)
	if i == -1 {
		return -1
	}
	o.Children = append(o.Children[:i], o.Children[i+1:]...)
	return i
}
