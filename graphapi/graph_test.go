package graphapi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func loadWorkflow(t *testing.T, name string) *Workflow {
	t.Helper()
	wf, err := NewWorkflowFromFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("Failed to load %s: %v", name, err)
	}
	return wf
}

func TestWorkflowKeepsDeclaredOrder(t *testing.T) {
	wf := loadWorkflow(t, "samplercustom.json")

	want := []string{"4", "5", "6", "7", "13", "14", "15", "16", "17"}
	if diff := cmp.Diff(want, wf.Order); diff != "" {
		t.Errorf("node order mismatch (-want +got):\n%s", diff)
	}

	sampler, ok := wf.Node("13")
	if !ok {
		t.Fatal("Expected node 13")
	}
	wantInputs := []string{"add_noise", "noise_seed", "cfg", "model", "positive", "negative", "sampler", "sigmas", "latent_image"}
	if diff := cmp.Diff(wantInputs, sampler.InputOrder); diff != "" {
		t.Errorf("input order mismatch (-want +got):\n%s", diff)
	}
}

func TestInputValueVariants(t *testing.T) {
	input := `{
		"1": {
			"class_type": "Test",
			"inputs": {
				"text": "hello",
				"count": 3,
				"ratio": 0.5,
				"flag": true,
				"edge": ["2", 1],
				"pair": ["a", "b"],
				"list": ["a", 1, 2],
				"obj": {"x": 1},
				"nothing": null
			}
		}
	}`
	wf, err := NewWorkflowFromJsonString(input)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	n, _ := wf.Node("1")

	kinds := map[string]InputKind{
		"text":    InputLiteral,
		"count":   InputLiteral,
		"ratio":   InputLiteral,
		"flag":    InputLiteral,
		"edge":    InputReference,
		"pair":    InputLiteral,
		"list":    InputLiteral,
		"obj":     InputOpaque,
		"nothing": InputOpaque,
	}
	for name, want := range kinds {
		if got := n.Inputs[name].Kind; got != want {
			t.Errorf("input %s: expected %v, got %v", name, want, got)
		}
	}

	ref, ok := n.Reference("edge")
	if !ok || ref != (NodeRef{NodeID: "2", Slot: 1}) {
		t.Errorf("unexpected reference %+v", ref)
	}
	if _, ok := n.Reference("text"); ok {
		t.Error("literal reported as reference")
	}
	if v, _ := n.Literal("count"); v != json.Number("3") {
		t.Errorf("expected count to stay json.Number(3), got %#v", v)
	}
	if n.HasLiteral("obj") || n.HasLiteral("nothing") || n.HasLiteral("edge") {
		t.Error("non literal inputs reported as literals")
	}
}

func TestWorkflowRoundtrip(t *testing.T) {
	data, err := os.ReadFile("testdata/ksampler.json")
	if err != nil {
		t.Fatalf("Failed to read test file: %v", err)
	}

	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		t.Fatalf("Failed to unmarshal workflow: %v", err)
	}
	out, err := json.Marshal(&wf)
	if err != nil {
		t.Fatalf("Failed to marshal workflow: %v", err)
	}

	var original, result map[string]interface{}
	if err := json.Unmarshal(data, &original); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(original, result); diff != "" {
		t.Errorf("roundtrip changed the workflow (-want +got):\n%s", diff)
	}

	// encoding is stable
	again, err := json.Marshal(&wf)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(again) {
		t.Error("Expected identical encodings")
	}
}

func TestWorkflowCloneIsIndependent(t *testing.T) {
	wf := loadWorkflow(t, "ksampler.json")
	before, _ := json.Marshal(wf)

	c := wf.Clone()
	n, _ := c.Node("6")
	n.SetLiteral("text", "changed")
	n.SetLiteral("extra", int64(1))
	delete(c.Nodes, "9")

	after, _ := json.Marshal(wf)
	if string(before) != string(after) {
		t.Error("Mutating the clone changed the original workflow")
	}
}

func TestWorkflowDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"not an object":      `[1, 2]`,
		"inputs not object":  `{"1": {"class_type": "X", "inputs": [1, 2]}}`,
		"missing class_type": `{"1": {"inputs": {}}}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewWorkflowFromJsonString(input); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	wf, err := NewWorkflowFromJsonString(`{"1": {"class_type": "X"}}`)
	if err != nil {
		t.Fatalf("node without inputs should decode: %v", err)
	}
	n, _ := wf.Node("1")
	if n.Inputs == nil {
		t.Error("Expected an empty, non nil inputs map")
	}
}
