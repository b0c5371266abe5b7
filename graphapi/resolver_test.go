package graphapi

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveKSampler(t *testing.T) {
	wf := loadWorkflow(t, "ksampler.json")

	b, err := Resolve(wf, nil, DefaultResolverOptions())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := map[string]string{
		"sampler":     "3",
		"model":       "4",
		"positive":    "6",
		"negative":    "7",
		"seed":        "3",
		"samplerName": "3",
		"steps":       "3",
		"width":       "5",
		"height":      "5",
		"scheduler":   "3",
		"cfg":         "3",
	}
	if diff := cmp.Diff(want, b.Table()); diff != "" {
		t.Errorf("binding table mismatch (-want +got):\n%s", diff)
	}
	if b.SeedInput() != "seed" {
		t.Errorf("Expected seed input \"seed\", got %q", b.SeedInput())
	}
}

func TestResolveSamplerCustom(t *testing.T) {
	wf := loadWorkflow(t, "samplercustom.json")

	b, err := Resolve(wf, nil, DefaultResolverOptions())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := map[string]string{
		"sampler":     "13",
		"model":       "4",
		"positive":    "6",
		"negative":    "7",
		"seed":        "13",
		"samplerName": "14",
		"steps":       "15",
		"width":       "5",
		"height":      "5",
		"cfg":         "13",
	}
	if diff := cmp.Diff(want, b.Table()); diff != "" {
		t.Errorf("binding table mismatch (-want +got):\n%s", diff)
	}
	if b.Has(RoleScheduler) {
		t.Error("SamplerCustom carries no scheduler, role should be absent")
	}
	if b.SeedInput() != "noise_seed" {
		t.Errorf("Expected seed input \"noise_seed\", got %q", b.SeedInput())
	}
}

func TestResolveNodeMapWins(t *testing.T) {
	wf := loadWorkflow(t, "ksampler.json")

	nm := NodeMap{
		RolePositive: "7",
		RoleNegative: "6",
		RoleWidth:    "5",
	}
	b, err := Resolve(wf, nm, DefaultResolverOptions())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for role, id := range nm {
		if got, _ := b.Get(role); got != id {
			t.Errorf("role %s: expected mapped node %s, got %s", role, id, got)
		}
	}
}

func TestResolveMappedSamplerDrivesDerivedRoles(t *testing.T) {
	wf, err := NewWorkflowFromJsonString(`{
		"1": {"class_type": "KSampler", "inputs": {"seed": 1, "positive": ["2", 0]}},
		"2": {"class_type": "CLIPTextEncode", "inputs": {"text": "first"}},
		"3": {"class_type": "MySampler", "inputs": {"noise_seed": 5, "positive": ["4", 0]}},
		"4": {"class_type": "CLIPTextEncode", "inputs": {"text": "second"}}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	b, err := Resolve(wf, NodeMap{RoleSampler: "3"}, DefaultResolverOptions())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id, _ := b.Get(RolePositive); id != "4" {
		t.Errorf("Expected positive from mapped sampler (4), got %s", id)
	}
	if b.SeedInput() != NoiseSeedInputName {
		t.Errorf("Expected noise_seed, got %q", b.SeedInput())
	}
}

func TestResolveFirstSamplerInDeclaredOrder(t *testing.T) {
	// "10" is declared before "2"; lexical or numeric sorting would pick "2"
	wf, err := NewWorkflowFromJsonString(`{
		"10": {"class_type": "KSamplerAdvanced", "inputs": {"noise_seed": 1, "positive": ["20", 0]}},
		"2": {"class_type": "KSampler", "inputs": {"seed": 1, "positive": ["21", 0]}},
		"20": {"class_type": "CLIPTextEncode", "inputs": {"text": "a"}},
		"21": {"class_type": "CLIPTextEncode", "inputs": {"text": "b"}}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		b, err := Resolve(wf, nil, DefaultResolverOptions())
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if id, _ := b.Get(RoleSampler); id != "10" {
			t.Fatalf("Expected the first declared sampler (10), got %s", id)
		}
	}
}

func TestResolvePositiveWithoutTextIsFatal(t *testing.T) {
	wf, err := NewWorkflowFromJsonString(`{
		"3": {"class_type": "KSampler", "inputs": {"seed": 1, "positive": ["6", 0]}},
		"6": {"class_type": "CLIPTextEncode", "inputs": {"clip": ["4", 1]}}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Resolve(wf, nil, DefaultResolverOptions())
	if !errors.Is(err, ErrPositiveNotResolved) {
		t.Fatalf("Expected ErrPositiveNotResolved, got %v", err)
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("Expected a *ConfigError, got %T", err)
	}
}

func TestResolveMappedPositiveMissing(t *testing.T) {
	wf := loadWorkflow(t, "ksampler.json")
	_, err := Resolve(wf, NodeMap{RolePositive: "99"}, DefaultResolverOptions())
	if !errors.Is(err, ErrPositiveNotResolved) {
		t.Fatalf("Expected ErrPositiveNotResolved, got %v", err)
	}
}

func TestResolveMissesAreNotFatal(t *testing.T) {
	// no sampler at all, positive is mapped explicitly
	wf, err := NewWorkflowFromJsonString(`{
		"1": {"class_type": "CLIPTextEncode", "inputs": {"text": "x"}},
		"2": {"class_type": "EmptyLatentImage", "inputs": {"width": ["9", 0], "height": 512}}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	b, err := Resolve(wf, NodeMap{RolePositive: "1", RoleWidth: "2", RoleHeight: "2", RoleSteps: "7"}, DefaultResolverOptions())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []Role{RolePositive, RoleHeight}
	if diff := cmp.Diff(want, b.Resolved()); diff != "" {
		t.Errorf("resolved roles mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveOverride(t *testing.T) {
	opts := DefaultResolverOptions()
	opts.Override = true

	b, err := Resolve(nil, nil, opts)
	if err != nil {
		t.Fatalf("override mode must not fail: %v", err)
	}
	if len(b.Resolved()) != 0 {
		t.Errorf("Expected every role absent, got %v", b.Resolved())
	}
}

func TestResolveCustomSamplerClasses(t *testing.T) {
	wf, err := NewWorkflowFromJsonString(`{
		"1": {"class_type": "FancySampler", "inputs": {"seed": 1, "steps": 30, "positive": ["2", 0]}},
		"2": {"class_type": "CLIPTextEncode", "inputs": {"text": "x"}}
	}`)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Resolve(wf, nil, DefaultResolverOptions()); !errors.Is(err, ErrPositiveNotResolved) {
		t.Fatalf("unknown sampler type should leave positive unresolved, got %v", err)
	}

	opts := DefaultResolverOptions()
	opts.SamplerClasses = append(opts.SamplerClasses, "FancySampler")
	b, err := Resolve(wf, nil, opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id, _ := b.Get(RoleSteps); id != "1" {
		t.Errorf("Expected steps on node 1, got %q", id)
	}
}

func TestResolveSamplerCustomStepsClasses(t *testing.T) {
	wf := loadWorkflow(t, "samplercustom.json")

	b, err := Resolve(wf, nil, DefaultResolverOptions())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id, _ := b.Get(RoleSteps); id != "15" {
		t.Errorf("Expected steps on the sigmas node 15, got %q", id)
	}

	// with only CustomSampler following sigmas, steps are looked up on the
	// SamplerCustom node, which has no steps value
	opts := DefaultResolverOptions()
	opts.SigmasStepsClasses = []string{"CustomSampler"}
	b, err = Resolve(wf, nil, opts)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if b.Has(RoleSteps) {
		t.Errorf("Expected steps unresolved, got node %q", b.Table()["steps"])
	}
	if id, _ := b.Get(RoleSamplerName); id != "14" {
		t.Errorf("Expected sampler name on node 14, got %q", id)
	}
}
