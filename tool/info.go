package tool

import (
	"context"
	"log/slog"

	"github.com/richinsley/comfymcp/graphapi"
)

// InfoKind selects the choice list QueryChoices returns
type InfoKind string

const (
	InfoModels     InfoKind = "models"
	InfoSamplers   InfoKind = "samplers"
	InfoSchedulers InfoKind = "schedulers"
)

// InfoKinds lists every supported kind
var InfoKinds = []InfoKind{InfoModels, InfoSamplers, InfoSchedulers}

// the class type used when the workflow has no node for the role
const (
	fallbackModelClass   = "CheckpointLoaderSimple"
	fallbackSamplerClass = "KSampler"
)

type infoLookup struct {
	roles    []graphapi.Role
	fallback string
	input    string
}

var infoLookups = map[InfoKind]infoLookup{
	InfoModels:     {roles: []graphapi.Role{graphapi.RoleModel}, fallback: fallbackModelClass, input: "ckpt_name"},
	InfoSamplers:   {roles: []graphapi.Role{graphapi.RoleSamplerName}, fallback: fallbackSamplerClass, input: "sampler_name"},
	InfoSchedulers: {roles: []graphapi.Role{graphapi.RoleScheduler, graphapi.RoleSampler}, fallback: fallbackSamplerClass, input: "scheduler"},
}

// classFor returns the class type of the first bound role, or the fallback
func (t *ImageTool) classFor(l infoLookup) string {
	if t.template == nil {
		return l.fallback
	}
	for _, r := range l.roles {
		id, ok := t.bindings.Get(r)
		if !ok {
			continue
		}
		if n, ok := t.template.Node(id); ok {
			return n.ClassType
		}
	}
	return l.fallback
}

// QueryChoices lists the values the backend accepts for models, samplers or
// schedulers. It never fails: backend errors and unexpected metadata yield an
// empty list.
func (t *ImageTool) QueryChoices(ctx context.Context, kind InfoKind) []string {
	l, ok := infoLookups[kind]
	if !ok {
		return []string{}
	}
	class := t.classFor(l)

	objs, err := t.backend.GetObjectInfos(ctx)
	if err != nil {
		slog.Warn("object info query failed", "kind", kind, "error", err)
		return []string{}
	}
	return objs.GetNodeObjectByName(class).Choices(l.input)
}
