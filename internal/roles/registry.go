// Package roles maps role names to the workers that implement them.
package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/clusternode/internal/cluster"
	"github.com/danmuck/clusternode/internal/config"
)

var (
	ErrRoleExists  = errors.New("roles: role already registered")
	ErrInvalidRole = errors.New("roles: invalid role descriptor")
	ErrUnknownRole = errors.New("roles: unknown role")
)

// Worker is one started role inside a node. Start and Stop are each called at
// most once per lifecycle and must bound any blocking work themselves.
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Factory builds a worker for a node from its per-role configuration.
type Factory func(nctx cluster.NodeContext, cfg config.Section) (Worker, error)

// Descriptor declares one role.
type Descriptor struct {
	Role string
	New  Factory
}

// Resolved is a role entry bound to its factory.
type Resolved struct {
	Role   string
	New    Factory
	Config config.Section
}

// Registry is built once from an explicit descriptor list.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{factories: make(map[string]Factory, len(descs))}
	for i, d := range descs {
		name := strings.TrimSpace(d.Role)
		if name == "" {
			return nil, fmt.Errorf("%w: descriptor[%d] has no role name", ErrInvalidRole, i)
		}
		if d.New == nil {
			return nil, fmt.Errorf("%w: role %q has no factory", ErrInvalidRole, name)
		}
		if _, exists := r.factories[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrRoleExists, name)
		}
		r.factories[name] = d.New
	}
	return r, nil
}

func MustRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Resolve(name string) (Factory, error) {
	if r != nil {
		if f, ok := r.factories[strings.TrimSpace(name)]; ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// Roles lists the registered role names, sorted.
func (r *Registry) Roles() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveEntries binds every entry in order. A bare role name gets an empty
// configuration. The first unknown role fails the whole list.
func (r *Registry) ResolveEntries(entries []config.RoleEntry) ([]Resolved, error) {
	out := make([]Resolved, 0, len(entries))
	for _, e := range entries {
		f, err := r.Resolve(e.Name)
		if err != nil {
			return nil, err
		}
		cfg := e.Config
		if cfg == nil {
			cfg = config.Section{}
		}
		out = append(out, Resolved{Role: strings.TrimSpace(e.Name), New: f, Config: cfg})
	}
	return out, nil
}
