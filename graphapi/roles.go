package graphapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Role is one of the fixed semantic parameters located within a workflow
type Role string

const (
	RoleSampler     Role = "sampler"
	RoleModel       Role = "model"
	RolePositive    Role = "positive"
	RoleNegative    Role = "negative"
	RoleSeed        Role = "seed"
	RoleSamplerName Role = "samplerName"
	RoleSteps       Role = "steps"
	RoleWidth       Role = "width"
	RoleHeight      Role = "height"
	RoleScheduler   Role = "scheduler"
	RoleCfg         Role = "cfg"
)

// AllRoles lists every role in resolution order
var AllRoles = []Role{
	RoleSampler,
	RoleModel,
	RolePositive,
	RoleNegative,
	RoleSeed,
	RoleSamplerName,
	RoleSteps,
	RoleWidth,
	RoleHeight,
	RoleScheduler,
	RoleCfg,
}

// literal input names that must exist on the node bound to each role
var roleFields = map[Role]string{
	RoleModel:       "ckpt_name",
	RolePositive:    "text",
	RoleNegative:    "text",
	RoleSamplerName: "sampler_name",
	RoleSteps:       "steps",
	RoleWidth:       "width",
	RoleHeight:      "height",
	RoleScheduler:   "scheduler",
	RoleCfg:         "cfg",
}

// Field returns the literal input a role writes to. The seed role has no fixed
// field (see Bindings.SeedInput) and the sampler role writes nothing.
func (r Role) Field() (string, bool) {
	f, ok := roleFields[r]
	return f, ok
}

// ParseRole maps a node map key to a Role
func ParseRole(s string) (Role, bool) {
	if s == "sampler_name" {
		return RoleSamplerName, true
	}
	for _, r := range AllRoles {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// NodeMap is an explicit role to node id mapping that takes precedence over discovery
type NodeMap map[Role]string

// ParseNodeMap parses node map JSON text such as {"sampler": "3", "positive": 6}.
// Empty text yields an empty map.
func ParseNodeMap(text string) (NodeMap, error) {
	if text == "" {
		return NodeMap{}, nil
	}
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse node map: %w", err)
	}

	retv := make(NodeMap)
	for k, v := range raw {
		var id interface{}
		if err := json.Unmarshal(v, &id); err != nil {
			return nil, fmt.Errorf("parse node map %q: %w", k, err)
		}
		if err := retv.set(k, id); err != nil {
			return nil, err
		}
	}
	return retv, nil
}

func (m *NodeMap) UnmarshalYAML(value *yaml.Node) error {
	raw := make(map[string]interface{})
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if *m == nil {
		*m = make(NodeMap)
	}
	for k, v := range raw {
		if err := m.set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (m NodeMap) set(key string, id interface{}) error {
	role, ok := ParseRole(key)
	if !ok {
		slog.Warn("ignoring unknown role in node map", "role", key)
		return nil
	}

	switch v := id.(type) {
	case string:
		m[role] = v
	case float64:
		m[role] = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		m[role] = strconv.Itoa(v)
	case nil:
		// explicit null leaves the role to discovery
	default:
		return fmt.Errorf("node map %q: node id must be a string or number, got %T", key, id)
	}
	return nil
}
