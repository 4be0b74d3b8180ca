// Package binding declares how discovered references are written into the
// bound fields of a node context.
//
// A context type declares its bindings once, usually as a package variable:
//
//	var bindings = binding.MustRegistry(
//		binding.Ref("store", func(c *Context) *runtime.Ref { return &c.Store }),
//		binding.Adapted("admin", func(c *Context) **AdminRef { return &c.Admin }, NewAdminRef),
//		binding.Wrapped("cache", func(c *Context) *CacheClient { return &c.Cache }, NewCacheClient),
//		binding.Manual("leader"),
//	)
//
// Field accessors are typed, so a binding that does not fit its field fails to
// compile instead of being skipped at runtime.
package binding
