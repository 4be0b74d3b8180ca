package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/danmuck/clusternode/internal/config"
	"github.com/rs/zerolog/log"
)

var (
	ErrNameTaken        = errors.New("runtime: unit name already taken")
	ErrInvalidName      = errors.New("runtime: invalid unit name")
	ErrNilHandler       = errors.New("runtime: nil handler")
	ErrSystemTerminated = errors.New("runtime: system terminated")
)

// System hosts the units of one node on its own actor system.
type System struct {
	name   string
	cfg    config.Section
	actors *actor.ActorSystem
	root   *actor.RootContext

	mu           sync.Mutex
	units        map[string]*unit
	interceptors []Interceptor
	terminating  bool
	anon         atomic.Uint64

	wg         sync.WaitGroup
	termOnce   sync.Once
	terminated chan struct{}
}

// NewSystem creates an empty runtime named name with its effective configuration.
func NewSystem(name string, cfg config.Section) *System {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "system"
	}
	if cfg == nil {
		cfg = config.Section{}
	}
	actors := actor.NewActorSystem()
	s := &System{
		name:       name,
		cfg:        cfg,
		actors:     actors,
		root:       actors.Root,
		units:      make(map[string]*unit),
		terminated: make(chan struct{}),
	}
	actors.EventStream.Subscribe(s.onEvent)
	return s
}

func (s *System) Name() string {
	return s.name
}

// Config returns the effective configuration the system was created from.
func (s *System) Config() config.Section {
	return s.cfg
}

// Use installs interceptors for cross-cutting runtime events.
func (s *System) Use(ics ...Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ic := range ics {
		if ic != nil {
			s.interceptors = append(s.interceptors, ic)
		}
	}
}

// Spawn starts a unit. An empty name gets a generated one.
func (s *System) Spawn(name string, h Handler) (Ref, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	name = strings.TrimSpace(name)
	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	if s.terminating {
		s.mu.Unlock()
		return nil, ErrSystemTerminated
	}
	if name == "" {
		name = "$" + strconv.FormatUint(s.anon.Add(1), 10)
	}
	if _, exists := s.units[name]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	u := newUnit(s, name, h)
	s.units[name] = u
	s.wg.Add(1)
	s.mu.Unlock()

	pid, err := s.root.SpawnNamed(actor.PropsFromFunc(u.receive), name)
	if err != nil {
		close(u.ready)
		s.remove(u)
		if errors.Is(err, actor.ErrNameExists) {
			return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
		}
		return nil, fmt.Errorf("spawn %s: %w", u.path, err)
	}
	u.pid = pid
	close(u.ready)
	return u, nil
}

// Lookup returns the running unit registered under name.
func (s *System) Lookup(name string) (Ref, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[name]
	if !ok {
		return nil, false
	}
	return u, true
}

// Stop asks the unit behind ref to stop after its queued messages.
func (s *System) Stop(ref Ref) {
	if u, ok := ref.(*unit); ok && u.sys == s {
		s.root.Poison(u.pid)
	}
}

// GracefulStop stops ref and waits until it is fully stopped or ctx ends.
func (s *System) GracefulStop(ctx context.Context, ref Ref) error {
	u, ok := ref.(*unit)
	if !ok || u.sys != s {
		return ErrForeignRef
	}
	s.root.Poison(u.pid)
	select {
	case <-u.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("graceful stop %s: %w", u.path, ctx.Err())
	}
}

// Terminate stops every unit and waits for all of them or for ctx.
func (s *System) Terminate(ctx context.Context) error {
	s.mu.Lock()
	s.terminating = true
	units := make([]*unit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, u)
	}
	s.mu.Unlock()

	for _, u := range units {
		<-u.ready
		if u.pid != nil {
			s.root.Poison(u.pid)
		}
	}

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return fmt.Errorf("terminate system %s: %w", s.name, ctx.Err())
	}
	s.termOnce.Do(func() {
		close(s.terminated)
		log.Debug().Str("system", s.name).Msg("runtime system terminated")
	})
	return nil
}

// Terminated is closed once Terminate has completed.
func (s *System) Terminated() <-chan struct{} {
	return s.terminated
}

// UnitCount returns the number of running units.
func (s *System) UnitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

func (s *System) remove(u *unit) {
	s.mu.Lock()
	if cur, ok := s.units[u.name]; ok && cur == u {
		delete(s.units, u.name)
	}
	s.mu.Unlock()
	s.wg.Done()
}

// onEvent turns actor dead letters for units into DeadLetter interceptor calls.
// Runtime-internal messages such as poison pills are not reported.
func (s *System) onEvent(evt any) {
	ev, ok := evt.(*actor.DeadLetterEvent)
	if !ok {
		return
	}
	env, ok := ev.Message.(Envelope)
	if !ok {
		return
	}
	if req, ok := env.Message.(syncRequest); ok {
		close(req.done)
		return
	}
	s.deadLetter(staleRef{sys: s, pid: ev.PID}, env)
}

func (s *System) deadLetter(target Ref, env Envelope) {
	s.mu.Lock()
	ics := append([]Interceptor(nil), s.interceptors...)
	s.mu.Unlock()
	dl := DeadLetter{Target: target, Envelope: env}
	for _, ic := range ics {
		ic.DeadLetter(s, dl)
	}
}
