// Package workers provides the built-in roles of clusterctl nodes and the node
// context they share.
package workers

import (
	"github.com/danmuck/clusternode/internal/binding"
	"github.com/danmuck/clusternode/internal/cluster"
	"github.com/danmuck/clusternode/internal/runtime"
)

const (
	TagEcho  = "echo"
	TagAdmin = "admin"
)

// Context is the node context of clusterctl nodes. Echo and Admin follow the
// first echo and admin units discovered anywhere in the cluster.
type Context struct {
	cluster.ContextBase

	Echo  runtime.Ref
	Admin *AdminRef
}

var contextBindings = binding.MustRegistry(
	binding.Ref(TagEcho, func(c *Context) *runtime.Ref { return &c.Echo }),
	binding.Adapted(TagAdmin, func(c *Context) **AdminRef { return &c.Admin }, NewAdminRef),
)

func NewContext() cluster.NodeContext {
	return &Context{}
}

func (c *Context) Bindings() *binding.Registry {
	return contextBindings
}

// EchoRef returns the bound echo unit, or nil.
func (c *Context) EchoRef() runtime.Ref {
	var ref runtime.Ref
	c.Read(func() { ref = c.Echo })
	return ref
}

// AdminRef returns the bound admin unit, or nil.
func (c *Context) AdminRef() *AdminRef {
	var ref *AdminRef
	c.Read(func() { ref = c.Admin })
	return ref
}
