package graphapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// InputKind tells which variant an InputValue holds.
type InputKind int

const (
	// InputLiteral is any non-object, non-null JSON value.
	InputLiteral InputKind = iota
	// InputReference is an edge [nodeId, outputSlot] to another node's output.
	InputReference
	// InputOpaque holds objects and null. They are carried through untouched.
	InputOpaque
)

func (k InputKind) String() string {
	switch k {
	case InputLiteral:
		return "literal"
	case InputReference:
		return "reference"
	case InputOpaque:
		return "opaque"
	}
	return "unknown"
}

// NodeRef points at an output slot of another node in the same workflow
type NodeRef struct {
	NodeID string
	Slot   int
}

// InputValue is a single entry of a node's inputs mapping.
// Only one of Literal, Ref or Raw is meaningful, as selected by Kind.
type InputValue struct {
	Kind    InputKind
	Literal interface{}
	Ref     NodeRef
	Raw     json.RawMessage
}

// NewLiteral wraps v as a literal input
func NewLiteral(v interface{}) InputValue {
	return InputValue{Kind: InputLiteral, Literal: v}
}

// NewReference creates an edge to slot of node id
func NewReference(id string, slot int) InputValue {
	return InputValue{Kind: InputReference, Ref: NodeRef{NodeID: id, Slot: slot}}
}

func (v *InputValue) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty input value")
	}

	switch trimmed[0] {
	case '{', 'n':
		// objects and null are not literals
		v.Kind = InputOpaque
		v.Raw = append(json.RawMessage(nil), trimmed...)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var tmp interface{}
	if err := dec.Decode(&tmp); err != nil {
		return err
	}

	// a two element array of [string, number] is an edge to another node
	if arr, ok := tmp.([]interface{}); ok && len(arr) == 2 {
		id, idok := arr[0].(string)
		num, numok := arr[1].(json.Number)
		if idok && numok {
			slot, err := num.Int64()
			if err == nil {
				v.Kind = InputReference
				v.Ref = NodeRef{NodeID: id, Slot: int(slot)}
				return nil
			}
		}
	}

	v.Kind = InputLiteral
	v.Literal = tmp
	return nil
}

func (v InputValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case InputReference:
		return json.Marshal([]interface{}{v.Ref.NodeID, v.Ref.Slot})
	case InputOpaque:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	}
	return json.Marshal(v.Literal)
}

// Clone returns a deep copy of the value
func (v InputValue) Clone() InputValue {
	retv := v
	switch v.Kind {
	case InputLiteral:
		retv.Literal = deepCopyValue(v.Literal)
	case InputOpaque:
		if v.Raw != nil {
			retv.Raw = append(json.RawMessage(nil), v.Raw...)
		}
	}
	return retv
}

func deepCopyValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []interface{}:
		c := make([]interface{}, len(value))
		for i, e := range value {
			c[i] = deepCopyValue(e)
		}
		return c
	case map[string]interface{}:
		c := make(map[string]interface{}, len(value))
		for k, e := range value {
			c[k] = deepCopyValue(e)
		}
		return c
	}
	// scalars (string, bool, json.Number, int64, float64) are immutable
	return v
}
