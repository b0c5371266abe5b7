package graphapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeObjects is the node type catalog returned by /object_info
type NodeObjects struct {
	Objects map[string]*NodeObject
}

// NodeObject represents the metadata that describes a node type
type NodeObject struct {
	Input       *NodeObjectInput `json:"input"`
	Output      []string         `json:"output"`
	OutputName  []string         `json:"output_name"`
	Name        string           `json:"name"`
	DisplayName string           `json:"display_name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	OutputNode  bool             `json:"output_node"`
}

// NodeObjectInput holds the declared inputs of a node type, raw, in declaration order
type NodeObjectInput struct {
	Required        map[string]json.RawMessage `json:"required"`
	Optional        map[string]json.RawMessage `json:"optional,omitempty"`
	OrderedRequired []string                   `json:"-"`
	OrderedOptional []string                   `json:"-"`
}

func (noi *NodeObjectInput) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("node input declaration must be an object")
	}

	return DecodeOrderedObject(raw, func(key string, value json.RawMessage) error {
		if key != "required" && key != "optional" {
			// "hidden" and friends
			return nil
		}
		section := bytes.TrimSpace(value)
		if len(section) == 0 || section[0] != '{' {
			return nil
		}

		entries := make(map[string]json.RawMessage)
		order := make([]string, 0)
		err := DecodeOrderedObject(section, func(name string, decl json.RawMessage) error {
			entries[name] = decl
			order = append(order, name)
			return nil
		})
		if err != nil {
			return err
		}

		if key == "required" {
			noi.Required = entries
			noi.OrderedRequired = order
		} else {
			noi.Optional = entries
			noi.OrderedOptional = order
		}
		return nil
	})
}

// NewNodeObjectsFromJson decodes an /object_info response body
func NewNodeObjectsFromJson(b []byte) (*NodeObjects, error) {
	result := &NodeObjects{Objects: make(map[string]*NodeObject)}
	if err := json.Unmarshal(b, &result.Objects); err != nil {
		return nil, err
	}
	return result, nil
}

func (n *NodeObjects) GetNodeObjectByName(name string) *NodeObject {
	if n == nil {
		return nil
	}
	val, ok := n.Objects[name]
	if ok {
		return val
	}
	return nil
}

// Choices returns the enumerated values a COMBO input accepts.
// Both declaration shapes are understood:
//
//	[["euler", "dpmpp_2m"], {...}]              legacy
//	["COMBO", {"options": ["euler", "dpmpp_2m"]}]  newer servers
//
// Anything else yields an empty slice.
func (n *NodeObject) Choices(input string) []string {
	retv := make([]string, 0)
	if n == nil || n.Input == nil {
		return retv
	}

	decl, ok := n.Input.Required[input]
	if !ok {
		decl, ok = n.Input.Optional[input]
	}
	if !ok {
		return retv
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(decl, &parts); err != nil || len(parts) == 0 {
		return retv
	}

	var legacy []interface{}
	if err := json.Unmarshal(parts[0], &legacy); err == nil {
		return stringsOnly(legacy)
	}

	var typeName string
	if err := json.Unmarshal(parts[0], &typeName); err == nil && typeName == "COMBO" && len(parts) > 1 {
		var opts struct {
			Options []interface{} `json:"options"`
		}
		if err := json.Unmarshal(parts[1], &opts); err == nil {
			return stringsOnly(opts.Options)
		}
	}
	return retv
}

func stringsOnly(values []interface{}) []string {
	retv := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			retv = append(retv, s)
		}
	}
	return retv
}
