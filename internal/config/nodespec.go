package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Effective configuration keys a node sets over the shared configuration.
const (
	KeySystemName   = "system.name"
	KeyClusterPort  = "cluster.port"
	KeyClusterRoles = "cluster.roles"
)

var (
	ErrInvalidNodeSpec  = errors.New("config: invalid node spec")
	ErrInvalidRoleEntry = errors.New("config: invalid role entry")
)

// RoleEntry is one declared role of a node: a bare name or a (name, config) pair.
type RoleEntry struct {
	Name   string
	Config Section
}

// NodeSpec declares one node instance to launch.
type NodeSpec struct {
	Port  int
	Roles []RoleEntry
}

// RoleNames returns the declared role names in order.
func (n NodeSpec) RoleNames() []string {
	names := make([]string, 0, len(n.Roles))
	for _, r := range n.Roles {
		names = append(names, r.Name)
	}
	return names
}

// ParseNodeSpec parses the single-line human form of a node spec, e.g.
//
//	{ port=3001, roles=[ "One", [ "Two", { id = 10 } ] ] }
func ParseNodeSpec(text string) (NodeSpec, error) {
	var doc struct {
		Node map[string]any `toml:"node"`
	}
	if _, err := toml.Decode("node = "+strings.TrimSpace(text), &doc); err != nil {
		return NodeSpec{}, fmt.Errorf("%w: %v", ErrInvalidNodeSpec, err)
	}
	return nodeSpecFromTable(doc.Node)
}

// MustParseNodeSpec panics on parse error; intended for tests and static tables.
func MustParseNodeSpec(text string) NodeSpec {
	spec, err := ParseNodeSpec(text)
	if err != nil {
		panic(err)
	}
	return spec
}

func nodeSpecFromTable(table map[string]any) (NodeSpec, error) {
	if table == nil {
		return NodeSpec{}, fmt.Errorf("%w: empty", ErrInvalidNodeSpec)
	}
	rawPort, ok := table["port"]
	if !ok {
		return NodeSpec{}, fmt.Errorf("%w: missing port", ErrInvalidNodeSpec)
	}
	port, ok := toInt(rawPort)
	if !ok || port < 0 || port > 65535 {
		return NodeSpec{}, fmt.Errorf("%w: bad port %v", ErrInvalidNodeSpec, rawPort)
	}

	spec := NodeSpec{Port: port}
	rawRoles, ok := table["roles"]
	if !ok {
		return spec, nil
	}
	list, ok := rawRoles.([]any)
	if !ok {
		return NodeSpec{}, fmt.Errorf("%w: roles is %T, want list", ErrInvalidNodeSpec, rawRoles)
	}
	for i, raw := range list {
		entry, err := roleEntryFromValue(raw)
		if err != nil {
			return NodeSpec{}, fmt.Errorf("port=%d roles[%d]: %w", port, i, err)
		}
		spec.Roles = append(spec.Roles, entry)
	}
	return spec, nil
}

func roleEntryFromValue(raw any) (RoleEntry, error) {
	switch v := raw.(type) {
	case string:
		name := strings.TrimSpace(v)
		if name == "" {
			return RoleEntry{}, fmt.Errorf("%w: empty name", ErrInvalidRoleEntry)
		}
		return RoleEntry{Name: name, Config: Section{}}, nil
	case []any:
		if len(v) == 0 || len(v) > 2 {
			return RoleEntry{}, fmt.Errorf("%w: want [name] or [name, {config}], got %d items", ErrInvalidRoleEntry, len(v))
		}
		name, ok := v[0].(string)
		if !ok || strings.TrimSpace(name) == "" {
			return RoleEntry{}, fmt.Errorf("%w: name is %T", ErrInvalidRoleEntry, v[0])
		}
		entry := RoleEntry{Name: strings.TrimSpace(name), Config: Section{}}
		if len(v) == 2 {
			table, ok := asTable(v[1])
			if !ok {
				return RoleEntry{}, fmt.Errorf("%w: config for %q is %T, want table", ErrInvalidRoleEntry, name, v[1])
			}
			entry.Config = Section(cloneTable(table))
		}
		return entry, nil
	default:
		return RoleEntry{}, fmt.Errorf("%w: unexpected %T", ErrInvalidRoleEntry, raw)
	}
}
