package tool

import (
	"encoding/json"
	"strconv"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/richinsley/comfymcp/graphapi"
)

// GenerateInput is the argument object of the generate tool
type GenerateInput struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt *string `json:"negativePrompt,omitempty"`
	Model          *string `json:"model,omitempty"`
	Sampler        *string `json:"sampler,omitempty"`
	Scheduler      *string `json:"scheduler,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
	Width          *int    `json:"width,omitempty"`
	Height         *int    `json:"height,omitempty"`
	Cfg            *int    `json:"cfg,omitempty"`
	Steps          *int    `json:"steps,omitempty"`
}

// Request converts the arguments into a binder request
func (in *GenerateInput) Request() *graphapi.GenerationRequest {
	return &graphapi.GenerationRequest{
		Prompt:         in.Prompt,
		NegativePrompt: in.NegativePrompt,
		Model:          in.Model,
		Sampler:        in.Sampler,
		Scheduler:      in.Scheduler,
		Seed:           in.Seed,
		Width:          in.Width,
		Height:         in.Height,
		Cfg:            in.Cfg,
		Steps:          in.Steps,
	}
}

// InfoInput is the argument object of the info tool
type InfoInput struct {
	InfoType InfoKind `json:"info_type"`
}

type property struct {
	name   string
	role   graphapi.Role
	schema func() *jsonschema.Schema
}

func stringProp(desc string) func() *jsonschema.Schema {
	return func() *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", Description: desc}
	}
}

func intProp(desc string, lo, hi *float64, def *int) func() *jsonschema.Schema {
	return func() *jsonschema.Schema {
		s := &jsonschema.Schema{Type: "integer", Description: desc, Minimum: lo, Maximum: hi}
		if def != nil {
			s.Default = json.RawMessage(strconv.Itoa(*def))
		}
		return s
	}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int { return &v }

// optional properties in schema order, each shown only when its role resolved
var properties = []property{
	{"negativePrompt", graphapi.RoleNegative, stringProp("Things the image should not contain")},
	{"model", graphapi.RoleModel, stringProp("Checkpoint file name, see comfyui_info models")},
	{"sampler", graphapi.RoleSamplerName, stringProp("Sampler name, see comfyui_info samplers")},
	{"scheduler", graphapi.RoleScheduler, stringProp("Scheduler name, see comfyui_info schedulers")},
	{"seed", graphapi.RoleSeed, intProp("Seed for reproducible output, random when omitted", floatPtr(0), floatPtr(4294967295), nil)},
	{"width", graphapi.RoleWidth, intProp("Image width in pixels", floatPtr(512), floatPtr(2048), intPtr(DefaultWidth))},
	{"height", graphapi.RoleHeight, intProp("Image height in pixels", floatPtr(512), floatPtr(2048), intPtr(DefaultHeight))},
	{"cfg", graphapi.RoleCfg, intProp("Classifier free guidance scale", floatPtr(0), floatPtr(20), intPtr(DefaultCfg))},
	{"steps", graphapi.RoleSteps, intProp("Number of sampling steps", floatPtr(5), floatPtr(40), nil)},
}

// RequestSchema is the input schema of the generate tool. Optional fields are
// present only when the workflow has a node for them.
func (t *ImageTool) RequestSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"prompt": {Type: "string", Description: "Description of the image to generate"},
		},
		Required: []string{"prompt"},
	}
	for _, p := range properties {
		if t.bindings.Has(p.role) {
			s.Properties[p.name] = p.schema()
		}
	}
	return s
}

// InfoSchema is the input schema of the info tool
func InfoSchema() *jsonschema.Schema {
	kinds := make([]interface{}, len(InfoKinds))
	for n, k := range InfoKinds {
		kinds[n] = string(k)
	}
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"info_type": {Type: "string", Enum: kinds, Description: "Which list of choices to return"},
		},
		Required: []string{"info_type"},
	}
}
