package graphapi

import (
	"errors"
	"log/slog"
	"slices"
)

const (
	SeedInputName      = "seed"
	NoiseSeedInputName = "noise_seed"
)

// ResolverOptions carries the backend node type names that node discovery keys off.
// They describe ComfyUI's (versioned) node taxonomy, so they are configuration and
// new sampler types can be added without code changes.
type ResolverOptions struct {
	// SamplerClasses are the class types recognised as the sampler node
	SamplerClasses []string `yaml:"sampler_classes"`
	// SigmasStepsClasses are sampler class types whose steps live on the node feeding "sigmas".
	// A sampler class not listed here carries steps itself.
	SigmasStepsClasses []string `yaml:"sigmas_steps_classes"`
	// SamplerSelectClasses are sampler class types whose sampler_name lives on the node feeding "sampler"
	SamplerSelectClasses []string `yaml:"sampler_select_classes"`
	// Override skips resolution entirely; every role is absent
	Override bool `yaml:"-"`
}

// DefaultResolverOptions returns the node taxonomy of a stock ComfyUI install.
// Stock SamplerCustom has no steps input and takes its schedule from the
// "sigmas" node, so SamplerCustom is listed in SigmasStepsClasses next to the
// CustomSampler name. Drop it to bind steps on the sampler node only.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		SamplerClasses:       []string{"SamplerCustom", "KSampler", "KSamplerAdvanced"},
		SigmasStepsClasses:   []string{"CustomSampler", "SamplerCustom"},
		SamplerSelectClasses: []string{"SamplerCustom"},
	}
}

// Bindings is the resolved role to node id table for one workflow.
// It is computed once and never modified, so it is safe to share between requests.
type Bindings struct {
	ids       map[Role]string
	seedInput string
}

// Get returns the node id bound to a role
func (b *Bindings) Get(r Role) (string, bool) {
	if b == nil {
		return "", false
	}
	id, ok := b.ids[r]
	return id, ok
}

// Has reports whether the role resolved
func (b *Bindings) Has(r Role) bool {
	_, ok := b.Get(r)
	return ok
}

// SeedInput is the input name ("seed" or "noise_seed") the seed node uses.
// It is empty when the seed role is absent.
func (b *Bindings) SeedInput() string {
	if b == nil {
		return ""
	}
	return b.seedInput
}

// Resolved returns the roles that resolved, in AllRoles order
func (b *Bindings) Resolved() []Role {
	retv := make([]Role, 0)
	for _, r := range AllRoles {
		if b.Has(r) {
			retv = append(retv, r)
		}
	}
	return retv
}

// Table returns a copy of the role table keyed by role name
func (b *Bindings) Table() map[string]string {
	retv := make(map[string]string)
	if b == nil {
		return retv
	}
	for r, id := range b.ids {
		retv[string(r)] = id
	}
	return retv
}

// Resolve locates the node for every role in the workflow.
// Explicit nodeMap entries win over discovery. Every candidate must carry the
// literal input its role writes to, otherwise the role is absent. Only a missing
// positive prompt node is fatal.
func Resolve(wf *Workflow, nodeMap NodeMap, opts ResolverOptions) (*Bindings, error) {
	b := &Bindings{ids: make(map[Role]string)}
	if opts.Override {
		slog.Info("node resolution skipped, all workflow roles are absent")
		return b, nil
	}
	if wf == nil {
		return nil, &ConfigError{Field: "workflow", Err: errors.New("workflow is required")}
	}

	r := &resolver{wf: wf, nodeMap: nodeMap, opts: opts, bindings: b}

	// everything else hangs off the sampler node
	var sampler *PromptNode
	if id, ok := r.candidate(RoleSampler, r.findSampler); ok {
		if n, exists := wf.Node(id); exists {
			sampler = n
			b.ids[RoleSampler] = id
		} else {
			r.miss(RoleSampler, id, "node does not exist")
		}
	} else {
		slog.Info("workflow role not resolved", "role", RoleSampler, "reason", "no sampler node found")
	}

	r.resolve(RolePositive, sampler, r.follow("positive"))
	r.resolve(RoleNegative, sampler, r.follow("negative"))
	r.resolve(RoleModel, sampler, r.follow("model"))
	r.resolve(RoleWidth, sampler, r.follow("latent_image"))
	r.resolve(RoleHeight, sampler, r.follow("latent_image"))
	r.resolve(RoleSteps, sampler, r.followFor(opts.SigmasStepsClasses, "sigmas"))
	r.resolve(RoleSamplerName, sampler, r.followFor(opts.SamplerSelectClasses, "sampler"))
	r.resolve(RoleSeed, sampler, self)
	r.resolve(RoleScheduler, sampler, self)
	r.resolve(RoleCfg, sampler, self)

	if !b.Has(RolePositive) {
		return nil, &ConfigError{Field: "workflow", Err: ErrPositiveNotResolved}
	}
	return b, nil
}

// derivation finds the candidate node id of a role from the sampler node
type derivation func(sampler *PromptNode) (string, bool)

func self(sampler *PromptNode) (string, bool) {
	return sampler.ID, true
}

type resolver struct {
	wf       *Workflow
	nodeMap  NodeMap
	opts     ResolverOptions
	bindings *Bindings
}

// candidate returns the mapped id for a role, or falls back to derive
func (r *resolver) candidate(role Role, derive func() (string, bool)) (string, bool) {
	if id, ok := r.nodeMap[role]; ok && id != "" {
		return id, true
	}
	return derive()
}

// findSampler returns the first sampler family node in declared key order
func (r *resolver) findSampler() (string, bool) {
	for _, n := range r.wf.NodesInOrder() {
		if slices.Contains(r.opts.SamplerClasses, n.ClassType) {
			return n.ID, true
		}
	}
	return "", false
}

// follow derives a role from the node feeding the sampler's named input
func (r *resolver) follow(input string) derivation {
	return func(sampler *PromptNode) (string, bool) {
		ref, ok := sampler.Reference(input)
		if !ok {
			return "", false
		}
		return ref.NodeID, true
	}
}

// followFor follows input only for the given sampler classes, otherwise uses the sampler itself
func (r *resolver) followFor(classes []string, input string) derivation {
	return func(sampler *PromptNode) (string, bool) {
		if slices.Contains(classes, sampler.ClassType) {
			return r.follow(input)(sampler)
		}
		return sampler.ID, true
	}
}

func (r *resolver) resolve(role Role, sampler *PromptNode, derive derivation) {
	id, ok := r.candidate(role, func() (string, bool) {
		if sampler == nil {
			return "", false
		}
		return derive(sampler)
	})
	if !ok {
		r.miss(role, "", "no candidate node")
		return
	}

	node, exists := r.wf.Node(id)
	if !exists {
		r.miss(role, id, "node does not exist")
		return
	}

	if role == RoleSeed {
		switch {
		case node.HasLiteral(SeedInputName):
			r.bindings.seedInput = SeedInputName
		case node.HasLiteral(NoiseSeedInputName):
			r.bindings.seedInput = NoiseSeedInputName
		default:
			r.miss(role, id, "node has no seed or noise_seed value")
			return
		}
		r.bindings.ids[role] = id
		return
	}

	field, _ := role.Field()
	if !node.HasLiteral(field) {
		r.miss(role, id, "node has no "+field+" value")
		return
	}
	r.bindings.ids[role] = id
}

func (r *resolver) miss(role Role, id string, reason string) {
	slog.Info("workflow role not resolved", "role", role, "node", id, "reason", reason)
}
