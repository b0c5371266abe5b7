package graphapi

import (
	"fmt"
	"math/rand/v2"
)

// GenerationRequest holds the values of a single image generation call.
// Optional fields left nil keep the template's value.
type GenerationRequest struct {
	Prompt         string
	NegativePrompt *string
	Seed           *int64
	Model          *string
	Width          *int
	Height         *int
	Sampler        *string
	Scheduler      *string
	Cfg            *int
	Steps          *int
}

type bindConfig struct {
	seedSource func() uint32
}

// BindOption customises Bind
type BindOption func(*bindConfig)

// WithSeedSource replaces the random generator used when a request carries no seed
func WithSeedSource(fn func() uint32) BindOption {
	return func(c *bindConfig) {
		c.seedSource = fn
	}
}

// Bind writes the request values onto a deep copy of template and returns the copy.
// The template is never modified. Values whose role is absent are ignored.
// When the seed role is present a seed is always written: the requested one,
// or a random unsigned 32 bit value.
func Bind(template *Workflow, b *Bindings, req *GenerationRequest, opts ...BindOption) (*Workflow, error) {
	cfg := &bindConfig{seedSource: rand.Uint32}
	for _, o := range opts {
		o(cfg)
	}
	if req == nil || req.Prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if !b.Has(RolePositive) {
		return nil, fmt.Errorf("%w: no positive prompt node", ErrInconsistentBinding)
	}

	wf := template.Clone()
	w := &writer{wf: wf, bindings: b}

	w.set(RolePositive, req.Prompt)
	if req.NegativePrompt != nil {
		w.set(RoleNegative, *req.NegativePrompt)
	}
	if req.Model != nil {
		w.set(RoleModel, *req.Model)
	}
	if req.Width != nil {
		w.set(RoleWidth, int64(*req.Width))
	}
	if req.Height != nil {
		w.set(RoleHeight, int64(*req.Height))
	}
	if req.Sampler != nil {
		w.set(RoleSamplerName, *req.Sampler)
	}
	if req.Scheduler != nil {
		w.set(RoleScheduler, *req.Scheduler)
	}
	if req.Cfg != nil {
		w.set(RoleCfg, int64(*req.Cfg))
	}
	if req.Steps != nil {
		w.set(RoleSteps, int64(*req.Steps))
	}

	if b.Has(RoleSeed) {
		var seed int64
		if req.Seed != nil {
			seed = *req.Seed
		} else {
			seed = int64(cfg.seedSource())
		}
		w.setInput(RoleSeed, b.SeedInput(), seed)
	}

	if w.err != nil {
		return nil, w.err
	}
	return wf, nil
}

// writer applies role values to a working copy and keeps the first failure
type writer struct {
	wf       *Workflow
	bindings *Bindings
	err      error
}

func (w *writer) set(role Role, value interface{}) {
	field, ok := role.Field()
	if !ok {
		return
	}
	w.setInput(role, field, value)
}

func (w *writer) setInput(role Role, field string, value interface{}) {
	if w.err != nil {
		return
	}
	id, ok := w.bindings.Get(role)
	if !ok {
		// the role did not resolve, the value has nowhere to go
		return
	}
	node, exists := w.wf.Node(id)
	if !exists {
		w.err = fmt.Errorf("%w: %s node %s missing", ErrInconsistentBinding, role, id)
		return
	}
	node.SetLiteral(field, value)
}
