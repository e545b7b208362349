package scope

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// FragmentKind represents the kind of change a fragment describes.
type FragmentKind string

const (
	FragmentAdd            FragmentKind = "add"
	FragmentRemove         FragmentKind = "remove"
	FragmentMove           FragmentKind = "move"
	FragmentChangeProperty FragmentKind = "changeProperty"
)

// PositionEnd appends to the end of a parent's child list.
const PositionEnd = -1

// Fragment is an immutable description of one atomic change to one object.
// Its ID is a ULID, so fragment IDs created on one client sort in creation
// order and double as the ordering hint.
type Fragment struct {
	ID   ulid.ULID    `json:"id"`
	Kind FragmentKind `json:"kind"`

	// TargetID is the object the fragment acts on. For add fragments it is
	// the ID the new object will be created with.
	TargetID uuid.UUID `json:"targetID"`

	// ParentID is the parent under which the target is created (add) or
	// moved (move). Unused for remove and changeProperty.
	ParentID uuid.UUID `json:"parentID,omitempty"`

	// Class tags the object type for add fragments.
	Class string `json:"class,omitempty"`

	// Position is the index in the parent's child list for add and move,
	// or PositionEnd to append.
	Position int `json:"position"`

	// Properties holds the property writes for add and changeProperty.
	// Within one fragment the last write per property wins trivially,
	// since a property appears at most once.
	Properties map[string]Value `json:"properties,omitempty"`
}

// Add returns a fragment creating an object under parentID.
func Add(targetID, parentID uuid.UUID, class string, position int, properties map[string]Value) Fragment {
	return Fragment{
		ID:         ulid.Make(),
		Kind:       FragmentAdd,
		TargetID:   targetID,
		ParentID:   parentID,
		Class:      class,
		Position:   position,
		Properties: cloneProperties(properties),
	}
}

// Remove returns a fragment detaching targetID and deleting its subtree.
func Remove(targetID uuid.UUID) Fragment {
	return Fragment{
		ID:       ulid.Make(),
		Kind:     FragmentRemove,
		TargetID: targetID,
		Position: PositionEnd,
	}
}

// Move returns a fragment reparenting targetID under parentID at position.
func Move(targetID, parentID uuid.UUID, position int) Fragment {
	return Fragment{
		ID:       ulid.Make(),
		Kind:     FragmentMove,
		TargetID: targetID,
		ParentID: parentID,
		Position: position,
	}
}

// ChangeProperty returns a fragment merging properties into the target.
// A null value deletes the property.
func ChangeProperty(targetID uuid.UUID, properties map[string]Value) Fragment {
	return Fragment{
		ID:         ulid.Make(),
		Kind:       FragmentChangeProperty,
		TargetID:   targetID,
		Position:   PositionEnd,
		Properties: cloneProperties(properties),
	}
}

func cloneProperties(properties map[string]Value) map[string]Value {
	if properties == nil {
		return nil
	}
	clone := make(map[string]Value, len(properties))
	for name, value := range properties {
		clone[name] = value
	}
	return clone
}
