package discovery

import (
	"sort"
	"sync"

	"github.com/danmuck/clusternode/internal/runtime"
)

type registration struct {
	tag   string
	ref   runtime.Ref
	owner runtime.Ref
}

type subscription struct {
	tag        string
	subscriber runtime.Ref
	owner      runtime.Ref
}

// Hub is the cluster view shared by every channel of one process. Events to a
// subscriber are told while the hub lock is held, so each subscriber observes
// ups and downs in the order the hub applied them.
type Hub struct {
	mu   sync.Mutex
	regs []registration
	subs []subscription
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) register(owner runtime.Ref, tag string, ref runtime.Ref) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.regs {
		if r.tag == tag && r.ref == ref {
			return false
		}
	}
	h.regs = append(h.regs, registration{tag: tag, ref: ref, owner: owner})
	for _, s := range h.subs {
		if s.tag == tag {
			s.subscriber.Tell(ReferenceUp{Tag: tag, Ref: ref}, owner)
		}
	}
	return true
}

func (h *Hub) unregister(ref runtime.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(func(r registration) bool { return r.ref == ref })
}

func (h *Hub) monitor(owner runtime.Ref, tag string, subscriber runtime.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.tag == tag && s.subscriber == subscriber {
			return
		}
	}
	h.subs = append(h.subs, subscription{tag: tag, subscriber: subscriber, owner: owner})
	for _, r := range h.regs {
		if r.tag == tag {
			subscriber.Tell(ReferenceUp{Tag: tag, Ref: r.ref}, r.owner)
		}
	}
}

func (h *Hub) unmonitor(tag string, subscriber runtime.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.subs[:0]
	for _, s := range h.subs {
		if s.tag == tag && s.subscriber == subscriber {
			continue
		}
		kept = append(kept, s)
	}
	h.subs = kept
}

// leave drops every subscription made through owner and withdraws every
// reference it registered.
func (h *Hub) leave(owner runtime.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.subs[:0]
	for _, s := range h.subs {
		if s.owner == owner {
			continue
		}
		kept = append(kept, s)
	}
	h.subs = kept
	h.removeLocked(func(r registration) bool { return r.owner == owner })
}

func (h *Hub) removeLocked(match func(registration) bool) {
	kept := h.regs[:0]
	var removed []registration
	for _, r := range h.regs {
		if match(r) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	h.regs = kept
	for _, r := range removed {
		for _, s := range h.subs {
			if s.tag == r.tag {
				s.subscriber.Tell(ReferenceDown{Tag: r.tag, Ref: r.ref}, r.owner)
			}
		}
	}
}

// Registered returns the paths registered under tag, sorted.
func (h *Hub) Registered(tag string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.regs {
		if r.tag == tag {
			out = append(out, r.ref.Path())
		}
	}
	sort.Strings(out)
	return out
}

// Tags returns every tag with at least one registration, sorted.
func (h *Hub) Tags() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	for _, r := range h.regs {
		seen[r.tag] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
