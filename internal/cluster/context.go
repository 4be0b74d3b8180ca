// Package cluster holds the node context and the binder unit that keeps its
// bound fields in step with discovery events.
package cluster

import (
	"sort"
	"sync"

	"github.com/danmuck/clusternode/internal/binding"
	"github.com/danmuck/clusternode/internal/runtime"
)

// NodeContext is the per-node application context. Custom contexts embed
// ContextBase and override the hooks or Bindings as needed.
type NodeContext interface {
	Base() *ContextBase
	Bindings() *binding.Registry
	// OnReferenceUp sees the constructed value for tag and returns the value to
	// store. Returning nil stores nothing.
	OnReferenceUp(tag string, ref runtime.Ref, value any) any
	OnReferenceDown(tag string, ref runtime.Ref)
}

// ContextBase carries the node handles and guards bound fields. The binder
// writes fields under the write lock; readers use Read.
type ContextBase struct {
	System    *runtime.System
	Discovery runtime.Ref
	Updater   runtime.Ref

	mu   sync.RWMutex
	refs map[string]runtime.Ref
}

func (b *ContextBase) Base() *ContextBase {
	return b
}

func (b *ContextBase) Bindings() *binding.Registry {
	return binding.Empty()
}

func (b *ContextBase) OnReferenceUp(_ string, _ runtime.Ref, value any) any {
	return value
}

func (b *ContextBase) OnReferenceDown(string, runtime.Ref) {}

// Read runs fn while bound fields cannot change.
func (b *ContextBase) Read(fn func()) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn()
}

// Update runs fn under the write lock.
func (b *ContextBase) Update(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// Reference returns the last reference seen up for tag.
func (b *ContextBase) Reference(tag string) (runtime.Ref, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ref, ok := b.refs[tag]
	return ref, ok
}

// References returns tag -> reference path for every tag currently up.
func (b *ContextBase) References() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.refs))
	for tag, ref := range b.refs {
		out[tag] = ref.Path()
	}
	return out
}

// UpTags lists the tags currently up, sorted.
func (b *ContextBase) UpTags() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tags := make([]string, 0, len(b.refs))
	for tag := range b.refs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Handles returns the node handles under the read lock.
func (b *ContextBase) Handles() (sys *runtime.System, disc runtime.Ref, updater runtime.Ref) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.System, b.Discovery, b.Updater
}

// SetHandles installs the node handles.
func (b *ContextBase) SetHandles(sys *runtime.System, disc runtime.Ref) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.System = sys
	b.Discovery = disc
}

func (b *ContextBase) setUpdater(ref runtime.Ref) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Updater = ref
}

func (b *ContextBase) trackLocked(tag string, ref runtime.Ref) {
	if b.refs == nil {
		b.refs = make(map[string]runtime.Ref)
	}
	b.refs[tag] = ref
}

func (b *ContextBase) untrackLocked(tag string) {
	delete(b.refs, tag)
}

// Default is the context used when no factory is supplied.
type Default struct {
	ContextBase
}

func NewDefault() NodeContext {
	return &Default{}
}
