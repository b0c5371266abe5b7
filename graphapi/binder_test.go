package graphapi

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T interface{}](v T) *T {
	return &v
}

func fixedSeed(v uint32) BindOption {
	return WithSeedSource(func() uint32 { return v })
}

func resolveFile(t *testing.T, name string) (*Workflow, *Bindings) {
	t.Helper()
	wf := loadWorkflow(t, name)
	b, err := Resolve(wf, nil, DefaultResolverOptions())
	require.NoError(t, err)
	return wf, b
}

func literal(t *testing.T, wf *Workflow, id, input string) interface{} {
	t.Helper()
	n, ok := wf.Node(id)
	require.True(t, ok, "node %s", id)
	v, ok := n.Literal(input)
	require.True(t, ok, "input %s.%s", id, input)
	return v
}

func TestBindWritesEveryResolvedRole(t *testing.T) {
	wf, b := resolveFile(t, "ksampler.json")

	req := &GenerationRequest{
		Prompt:         "a red fox in the snow",
		NegativePrompt: ptr("lowres"),
		Seed:           ptr(int64(1234)),
		Model:          ptr("sdxl_base.safetensors"),
		Width:          ptr(768),
		Height:         ptr(1024),
		Sampler:        ptr("dpmpp_2m"),
		Scheduler:      ptr("karras"),
		Cfg:            ptr(6),
		Steps:          ptr(30),
	}
	bound, err := Bind(wf, b, req)
	require.NoError(t, err)

	assert.Equal(t, "a red fox in the snow", literal(t, bound, "6", "text"))
	assert.Equal(t, "lowres", literal(t, bound, "7", "text"))
	assert.Equal(t, int64(1234), literal(t, bound, "3", "seed"))
	assert.Equal(t, "sdxl_base.safetensors", literal(t, bound, "4", "ckpt_name"))
	assert.Equal(t, int64(768), literal(t, bound, "5", "width"))
	assert.Equal(t, int64(1024), literal(t, bound, "5", "height"))
	assert.Equal(t, "dpmpp_2m", literal(t, bound, "3", "sampler_name"))
	assert.Equal(t, "karras", literal(t, bound, "3", "scheduler"))
	assert.Equal(t, int64(6), literal(t, bound, "3", "cfg"))
	assert.Equal(t, int64(30), literal(t, bound, "3", "steps"))

	// the template is untouched
	assert.Equal(t, "beautiful scenery nature glass bottle landscape", literal(t, wf, "6", "text"))
	assert.Equal(t, json.Number("512"), literal(t, wf, "5", "width"))
}

func TestBindLeavesUnrequestedFields(t *testing.T) {
	wf, b := resolveFile(t, "ksampler.json")

	bound, err := Bind(wf, b, &GenerationRequest{Prompt: "x"}, fixedSeed(7))
	require.NoError(t, err)

	assert.Equal(t, json.Number("20"), literal(t, bound, "3", "steps"))
	assert.Equal(t, "text, watermark", literal(t, bound, "7", "text"))
	assert.Equal(t, int64(7), literal(t, bound, "3", "seed"))
}

func TestBindIgnoresAbsentRoles(t *testing.T) {
	// SamplerCustom has no scheduler input, so the scheduler role is absent
	wf, b := resolveFile(t, "samplercustom.json")
	require.False(t, b.Has(RoleScheduler))

	without, err := Bind(wf, b, &GenerationRequest{Prompt: "x"}, fixedSeed(1))
	require.NoError(t, err)
	with, err := Bind(wf, b, &GenerationRequest{Prompt: "x", Scheduler: ptr("karras")}, fixedSeed(1))
	require.NoError(t, err)

	a, err := json.Marshal(without)
	require.NoError(t, err)
	c, err := json.Marshal(with)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(c))
}

func TestBindRandomSeed(t *testing.T) {
	wf, b := resolveFile(t, "samplercustom.json")

	first, err := Bind(wf, b, &GenerationRequest{Prompt: "x"})
	require.NoError(t, err)
	second, err := Bind(wf, b, &GenerationRequest{Prompt: "x"})
	require.NoError(t, err)

	s1 := literal(t, first, "13", "noise_seed").(int64)
	s2 := literal(t, second, "13", "noise_seed").(int64)
	assert.NotEqual(t, s1, s2)
	for _, s := range []int64{s1, s2} {
		assert.GreaterOrEqual(t, s, int64(0))
		assert.LessOrEqual(t, s, int64(math.MaxUint32))
	}
	_, hasSeed := mustNode(t, first, "13").Literal("seed")
	assert.False(t, hasSeed, "seed must be written to the detected input only")
}

func TestBindExplicitSeed(t *testing.T) {
	wf, b := resolveFile(t, "samplercustom.json")

	bound, err := Bind(wf, b, &GenerationRequest{Prompt: "x", Seed: ptr(int64(99))})
	require.NoError(t, err)
	assert.Equal(t, int64(99), literal(t, bound, "13", "noise_seed"))
}

func TestBindRoundtripThroughJSON(t *testing.T) {
	wf, b := resolveFile(t, "ksampler.json")

	bound, err := Bind(wf, b, &GenerationRequest{Prompt: "x", Width: ptr(1536), Cfg: ptr(0)}, fixedSeed(3))
	require.NoError(t, err)

	data, err := json.Marshal(bound)
	require.NoError(t, err)
	decoded, err := NewWorkflowFromJsonString(string(data))
	require.NoError(t, err)

	w, err := literal(t, decoded, "5", "width").(json.Number).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1536), w)
	assert.Equal(t, json.Number("0"), literal(t, decoded, "3", "cfg"))
}

func TestBindRejectsEmptyPrompt(t *testing.T) {
	wf, b := resolveFile(t, "ksampler.json")
	_, err := Bind(wf, b, &GenerationRequest{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestBindInconsistentTemplate(t *testing.T) {
	wf, b := resolveFile(t, "ksampler.json")

	tampered := wf.Clone()
	delete(tampered.Nodes, "5")

	_, err := Bind(tampered, b, &GenerationRequest{Prompt: "x", Width: ptr(1024)})
	assert.ErrorIs(t, err, ErrInconsistentBinding)

	// without a width there is nothing to write to the missing node
	_, err = Bind(tampered, b, &GenerationRequest{Prompt: "x"})
	assert.NoError(t, err)
}

func mustNode(t *testing.T, wf *Workflow, id string) *PromptNode {
	t.Helper()
	n, ok := wf.Node(id)
	require.True(t, ok)
	return n
}
