package graphapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Workflow is an API format ComfyUI graph: a mapping of node id to node.
// The declared key order is kept because node discovery picks the first
// matching node in that order.
type Workflow struct {
	Nodes map[string]*PromptNode
	Order []string
}

// Node returns the node with the given id
func (w *Workflow) Node(id string) (*PromptNode, bool) {
	n, ok := w.Nodes[id]
	return n, ok
}

// NodesInOrder returns the nodes in declared key order
func (w *Workflow) NodesInOrder() []*PromptNode {
	retv := make([]*PromptNode, 0, len(w.Order))
	for _, id := range w.Order {
		if n, ok := w.Nodes[id]; ok {
			retv = append(retv, n)
		}
	}
	return retv
}

// Len returns the number of nodes in the workflow
func (w *Workflow) Len() int {
	return len(w.Nodes)
}

// Clone returns a deep copy of the workflow. Writes to the copy never reach the original.
func (w *Workflow) Clone() *Workflow {
	retv := &Workflow{
		Nodes: make(map[string]*PromptNode, len(w.Nodes)),
		Order: append([]string(nil), w.Order...),
	}
	for id, n := range w.Nodes {
		retv.Nodes[id] = n.Clone()
	}
	return retv
}

func (w *Workflow) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if len(raw) == 0 || raw[0] != '{' {
		return errors.New("workflow must be a JSON object of node id to node")
	}

	w.Nodes = make(map[string]*PromptNode)
	w.Order = make([]string, 0)
	return DecodeOrderedObject(raw, func(id string, value json.RawMessage) error {
		node := &PromptNode{}
		if err := json.Unmarshal(value, node); err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
		node.ID = id
		if _, exists := w.Nodes[id]; !exists {
			w.Order = append(w.Order, id)
		}
		w.Nodes[id] = node
		return nil
	})
}

func (w *Workflow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, id := range w.Order {
		n, ok := w.Nodes[id]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(id)
		buf.Write(key)
		buf.WriteByte(':')
		data, err := n.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeOrderedObject walks the members of a JSON object in the order they appear
func DecodeOrderedObject(b []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	t, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := t.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected a JSON object, got %v", t)
	}

	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := t.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", t)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil { // consume closing brace
		return err
	}
	return nil
}

// NewWorkflowFromJsonReader creates a new workflow from the data read from an io.Reader
func NewWorkflowFromJsonReader(r io.Reader) (*Workflow, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	wf := &Workflow{}
	if err := json.Unmarshal(content, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// NewWorkflowFromJsonString creates a new workflow from a JSON string
func NewWorkflowFromJsonString(data string) (*Workflow, error) {
	return NewWorkflowFromJsonReader(strings.NewReader(data))
}

// NewWorkflowFromPNGReader extracts the API format workflow that ComfyUI embeds
// in the "prompt" tEXt chunk of the images it saves
func NewWorkflowFromPNGReader(r io.Reader) (*Workflow, error) {
	metadata, err := GetPngMetadata(r)
	if err != nil {
		return nil, err
	}

	prompt, ok := metadata["prompt"]
	if !ok {
		return nil, errors.New("png does not contain prompt metadata")
	}
	return NewWorkflowFromJsonString(prompt)
}

// NewWorkflowFromFile loads a workflow from a .json file, or from the metadata of a .png file
func NewWorkflowFromFile(path string) (*Workflow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		return NewWorkflowFromPNGReader(file)
	}
	return NewWorkflowFromJsonReader(file)
}
