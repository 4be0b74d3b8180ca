package workers

import "github.com/danmuck/clusternode/internal/roles"

// Registry returns the built-in roles.
func Registry() *roles.Registry {
	return roles.MustRegistry(
		roles.Descriptor{Role: RoleAdmin, New: NewAdmin},
		roles.Descriptor{Role: RoleEcho, New: NewEcho},
	)
}
