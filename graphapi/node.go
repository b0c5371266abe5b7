package graphapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// PromptNode represents a single step of an API format workflow
type PromptNode struct {
	ID        string
	ClassType string
	// Inputs can be one of:
	//	literal		string, json.Number, bool, array
	//	reference	[0] is the id of the source node, [1] is the output slot index
	//	opaque		objects and null
	Inputs map[string]InputValue
	// InputOrder is the order the inputs were declared in
	InputOrder []string
	// Meta is the optional "_meta" block the ComfyUI frontend attaches (title etc.)
	Meta json.RawMessage
}

// Literal returns the literal value of the named input.
// ok is false when the input is missing or is not a literal.
func (n *PromptNode) Literal(name string) (interface{}, bool) {
	v, ok := n.Inputs[name]
	if !ok || v.Kind != InputLiteral {
		return nil, false
	}
	return v.Literal, true
}

// HasLiteral reports whether the named input exists and carries a literal value
func (n *PromptNode) HasLiteral(name string) bool {
	_, ok := n.Literal(name)
	return ok
}

// Reference returns the edge of the named input, if it is one
func (n *PromptNode) Reference(name string) (NodeRef, bool) {
	v, ok := n.Inputs[name]
	if !ok || v.Kind != InputReference {
		return NodeRef{}, false
	}
	return v.Ref, true
}

// SetLiteral overwrites (or adds) a literal input
func (n *PromptNode) SetLiteral(name string, value interface{}) {
	if n.Inputs == nil {
		n.Inputs = make(map[string]InputValue)
	}
	if _, ok := n.Inputs[name]; !ok {
		n.InputOrder = append(n.InputOrder, name)
	}
	n.Inputs[name] = NewLiteral(value)
}

// Title returns the _meta title set in the frontend, or the class type
func (n *PromptNode) Title() string {
	var meta struct {
		Title string `json:"title"`
	}
	if len(n.Meta) > 0 && json.Unmarshal(n.Meta, &meta) == nil && meta.Title != "" {
		return meta.Title
	}
	return n.ClassType
}

// Clone returns a deep copy of the node
func (n *PromptNode) Clone() *PromptNode {
	retv := &PromptNode{
		ID:         n.ID,
		ClassType:  n.ClassType,
		Inputs:     make(map[string]InputValue, len(n.Inputs)),
		InputOrder: append([]string(nil), n.InputOrder...),
	}
	for k, v := range n.Inputs {
		retv.Inputs[k] = v.Clone()
	}
	if n.Meta != nil {
		retv.Meta = append(json.RawMessage(nil), n.Meta...)
	}
	return retv
}

func (n *PromptNode) UnmarshalJSON(b []byte) error {
	var temp struct {
		ClassType string          `json:"class_type"`
		Inputs    json.RawMessage `json:"inputs"`
		Meta      json.RawMessage `json:"_meta"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}
	if temp.ClassType == "" {
		return errors.New("node is missing class_type")
	}

	n.ClassType = temp.ClassType
	n.Meta = temp.Meta
	n.Inputs = make(map[string]InputValue)
	n.InputOrder = make([]string, 0)

	raw := bytes.TrimSpace(temp.Inputs)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '{' {
		return fmt.Errorf("inputs of %s node must be an object", n.ClassType)
	}

	// keep the declared input order so the node encodes the same way it was read
	return DecodeOrderedObject(raw, func(key string, value json.RawMessage) error {
		var iv InputValue
		if err := json.Unmarshal(value, &iv); err != nil {
			return fmt.Errorf("input %q: %w", key, err)
		}
		if _, exists := n.Inputs[key]; !exists {
			n.InputOrder = append(n.InputOrder, key)
		}
		n.Inputs[key] = iv
		return nil
	})
}

func (n *PromptNode) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"inputs":{`)
	first := true
	for _, k := range n.orderedInputNames() {
		v := n.Inputs[k]
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		data, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", k, err)
		}
		buf.Write(data)
	}
	buf.WriteString(`},"class_type":`)
	ct, _ := json.Marshal(n.ClassType)
	buf.Write(ct)
	if len(n.Meta) != 0 {
		buf.WriteString(`,"_meta":`)
		buf.Write(n.Meta)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// orderedInputNames returns InputOrder, followed by any input that was added
// to the map without going through SetLiteral
func (n *PromptNode) orderedInputNames() []string {
	retv := make([]string, 0, len(n.Inputs))
	seen := make(map[string]bool, len(n.Inputs))
	for _, k := range n.InputOrder {
		if _, ok := n.Inputs[k]; ok && !seen[k] {
			retv = append(retv, k)
			seen[k] = true
		}
	}
	if len(retv) != len(n.Inputs) {
		extra := make([]string, 0)
		for k := range n.Inputs {
			if !seen[k] {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		retv = append(retv, extra...)
	}
	return retv
}
