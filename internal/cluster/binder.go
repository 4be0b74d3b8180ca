package cluster

import (
	"errors"
	"strings"

	"github.com/danmuck/clusternode/internal/binding"
	"github.com/danmuck/clusternode/internal/discovery"
	"github.com/danmuck/clusternode/internal/observability"
	"github.com/danmuck/clusternode/internal/runtime"
	"github.com/rs/zerolog/log"
)

// BinderName is the unit name of the binder in every node system.
const BinderName = "cluster.node.updater"

const outcomeIgnored = "ignored"

var ErrNilContext = errors.New("cluster: nil node context")

// Binder subscribes to every tag its context binds and applies reference
// events to the context fields, one event at a time.
type Binder struct {
	nctx     NodeContext
	base     *ContextBase
	bindings *binding.Registry
}

func NewBinder(nctx NodeContext) (*Binder, error) {
	if nctx == nil || nctx.Base() == nil {
		return nil, ErrNilContext
	}
	return &Binder{
		nctx:     nctx,
		base:     nctx.Base(),
		bindings: nctx.Bindings(),
	}, nil
}

// SpawnBinder starts the binder for nctx in sys and records it as the updater.
func SpawnBinder(sys *runtime.System, nctx NodeContext) (runtime.Ref, error) {
	b, err := NewBinder(nctx)
	if err != nil {
		return nil, err
	}
	ref, err := sys.Spawn(BinderName, b)
	if err != nil {
		return nil, err
	}
	b.base.setUpdater(ref)
	return ref, nil
}

func (b *Binder) PreStart(self runtime.Ref) {
	_, disc, _ := b.base.Handles()
	tags := b.bindings.Tags()
	if disc == nil {
		if len(tags) > 0 {
			log.Warn().Str("binder", self.Path()).Strs("tags", tags).Msg("binder has no discovery channel")
		}
		return
	}
	for _, tag := range tags {
		disc.Tell(discovery.MonitorReference{Tag: tag}, self)
	}
	log.Debug().Str("binder", self.Path()).Strs("tags", tags).Msg("binder monitoring tags")
}

func (b *Binder) Receive(self runtime.Ref, env runtime.Envelope) {
	switch m := env.Message.(type) {
	case discovery.ReferenceUp:
		b.referenceUp(m.Tag, m.Ref)
	case discovery.ReferenceDown:
		b.referenceDown(m.Tag, m.Ref)
	default:
		log.Debug().Str("binder", self.Path()).Type("message", env.Message).Msg("binder ignored message")
	}
}

func (b *Binder) referenceUp(tag string, ref runtime.Ref) {
	tag = strings.TrimSpace(tag)
	if tag == "" || ref == nil {
		b.record("up", outcomeIgnored)
		return
	}
	f, ok := b.bindings.Lookup(tag)
	if !ok {
		b.record("up", outcomeIgnored)
		return
	}

	value := f.Construct(ref)
	if value == nil && !f.Manual() {
		log.Debug().Str("tag", tag).Str("field", f.FieldType()).Msg("no constructor for bound field")
	}
	value = b.nctx.OnReferenceUp(tag, ref, value)

	var err error
	b.base.Update(func() {
		b.base.trackLocked(tag, ref)
		if value == nil || f.Manual() {
			return
		}
		err = f.Set(b.nctx, value)
	})
	if err != nil {
		log.Warn().Err(err).Str("tag", tag).Str("ref", ref.Path()).Msg("drop reference value")
		b.record("up", observability.OutcomeError)
		return
	}
	log.Debug().Str("tag", tag).Str("ref", ref.Path()).Msg("reference up")
	b.record("up", observability.OutcomeOK)
}

func (b *Binder) referenceDown(tag string, ref runtime.Ref) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		b.record("down", outcomeIgnored)
		return
	}
	f, ok := b.bindings.Lookup(tag)
	if !ok {
		b.record("down", outcomeIgnored)
		return
	}

	b.nctx.OnReferenceDown(tag, ref)

	var err error
	b.base.Update(func() {
		b.base.untrackLocked(tag)
		if f.Manual() {
			return
		}
		err = f.Clear(b.nctx)
	})
	if err != nil {
		log.Warn().Err(err).Str("tag", tag).Msg("clear reference field")
		b.record("down", observability.OutcomeError)
		return
	}
	log.Debug().Str("tag", tag).Msg("reference down")
	b.record("down", observability.OutcomeOK)
}

func (b *Binder) record(kind, outcome string) {
	name := ""
	if sys, _, _ := b.base.Handles(); sys != nil {
		name = sys.Name()
	}
	observability.RecordBinderEvent(name, kind, outcome)
}
