package scope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ValueKind represents the kind of a property value.
type ValueKind string

// Property values are a tagged variant so that every value survives a
// serialization round trip with its kind intact.
const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindBool      ValueKind = "bool"
	KindReference ValueKind = "reference"

	// KindNull marks an absent value. Writing a null value to a property
	// deletes it; inverse fragments use this to undo a property that did
	// not exist before.
	KindNull ValueKind = "null"
)

// Value is a single property value on a SyncObject.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	ref  uuid.UUID
}

// String returns a string value.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a numeric value.
func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

// Bool returns a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Reference returns a value referencing another object in the scope by ID.
// References are non-owning; they are resolved through the graph's index.
func Reference(id uuid.UUID) Value {
	return Value{kind: KindReference, ref: id}
}

// Null returns the absent value.
func Null() Value {
	return Value{kind: KindNull}
}

// Kind returns the kind tag of the value.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether the value is the absent value.
func (v Value) IsNull() bool {
	return v.Kind() == KindNull
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsReference returns the referenced object ID.
func (v Value) AsReference() (uuid.UUID, bool) {
	return v.ref, v.kind == KindReference
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindReference:
		return v.ref == other.ref
	}
	return true
}

// Display returns a human-readable form of the value.
func (v Value) Display() string {
	switch v.Kind() {
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindReference:
		return "@" + v.ref.String()
	}
	return "null"
}

// wireValue is the JSON representation of a Value.
type wireValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch v.Kind() {
	case KindString:
		payload = v.str
	case KindNumber:
		payload = v.num
	case KindBool:
		payload = v.b
	case KindReference:
		payload = v.ref
	case KindNull:
		return json.Marshal(wireValue{Kind: KindNull})
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Kind: v.Kind(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var wire wireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.Kind {
	case KindString:
		var s string
		if err := json.Unmarshal(wire.Value, &s); err != nil {
			return err
		}
		*v = String(s)
	case KindNumber:
		var n float64
		if err := json.Unmarshal(wire.Value, &n); err != nil {
			return err
		}
		*v = Number(n)
	case KindBool:
		var b bool
		if err := json.Unmarshal(wire.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case KindReference:
		var id uuid.UUID
		if err := json.Unmarshal(wire.Value, &id); err != nil {
			return err
		}
		*v = Reference(id)
	case KindNull, "":
		*v = Null()
	default:
		return fmt.Errorf("unknown value kind %q", wire.Kind)
	}
	return nil
}
