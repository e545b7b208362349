package scope

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

// TestValueJSON checks that every value kind survives the wire with its
// tag intact, since property bags are otherwise untyped JSON.
func TestValueJSON(t *testing.T) {
	ref := uuid.New()
	values := []Value{
		String("hello"),
		Number(3.5),
		Bool(true),
		Reference(ref),
		Null(),
	}

	for _, want := range values {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal %v: %v", want.Kind(), err)
		}

		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %v: %v", want.Kind(), err)
		}
		if !got.Equal(want) {
			t.Errorf("round trip changed value; got = %v, expected = %v\n", got, want)
		}
	}
}

func TestValueZeroIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Errorf("zero value kind = %v, expected null\n", v.Kind())
	}
}
