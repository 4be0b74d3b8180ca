package runtime

import (
	"context"
	"errors"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
)

var ErrForeignRef = errors.New("runtime: ref not hosted by this runtime")

// syncRequest completes once every message queued before it has been handled.
type syncRequest struct {
	done chan struct{}
}

// unit is a named actor of one System. Tell always goes through the owning
// system's root context, so refs stay valid when handed to other systems.
type unit struct {
	sys     *System
	name    string
	path    string
	pid     *actor.PID
	handler Handler

	ready chan struct{}
	done  chan struct{}
}

func newUnit(sys *System, name string, h Handler) *unit {
	return &unit{
		sys:     sys,
		name:    name,
		path:    unitPath(sys.name, name),
		handler: h,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func unitPath(system, name string) string {
	return "/" + system + "/" + name
}

func (u *unit) Path() string {
	return u.path
}

func (u *unit) Done() <-chan struct{} {
	return u.done
}

func (u *unit) String() string {
	return u.path
}

func (u *unit) Tell(msg any, sender Ref) {
	u.sys.root.Send(u.pid, Envelope{Message: msg, Sender: sender})
}

func (u *unit) receive(c actor.Context) {
	switch m := c.Message().(type) {
	case *actor.Started:
		<-u.ready
		if s, ok := u.handler.(Starter); ok {
			u.safely(func() { s.PreStart(u) })
		}
	case *actor.Stopped:
		u.finish()
	case Envelope:
		if req, ok := m.Message.(syncRequest); ok {
			close(req.done)
			return
		}
		u.safely(func() { u.handler.Receive(u, m) })
	}
}

// safely keeps the unit alive when a handler panics; the message is dropped.
func (u *unit) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("unit", u.path).
				Interface("panic", r).
				Msg("runtime unit handler panicked")
		}
	}()
	fn()
}

func (u *unit) finish() {
	if s, ok := u.handler.(Stopper); ok {
		u.safely(func() { s.PostStop(u) })
	}
	u.sys.remove(u)
	close(u.done)
}

// futureRef is the reply address of one Ask. Its Done channel never closes.
type futureRef struct {
	sys *System
	pid *actor.PID
}

func (f futureRef) Path() string {
	return unitPath(f.sys.name, f.pid.Id)
}

func (f futureRef) Tell(msg any, _ Ref) {
	f.sys.root.Send(f.pid, msg)
}

func (f futureRef) Done() <-chan struct{} {
	return nil
}

// staleRef names a unit that is gone; telling it produces another dead letter.
type staleRef struct {
	sys *System
	pid *actor.PID
}

func (s staleRef) Path() string {
	return unitPath(s.sys.name, s.pid.Id)
}

func (s staleRef) Tell(msg any, sender Ref) {
	s.sys.root.Send(s.pid, Envelope{Message: msg, Sender: sender})
}

func (s staleRef) Done() <-chan struct{} {
	return closedDone
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Sync blocks until every message told to ref before the call has been handled,
// or ref has stopped.
func Sync(ctx context.Context, ref Ref) error {
	u, ok := ref.(*unit)
	if !ok {
		return ErrForeignRef
	}
	req := syncRequest{done: make(chan struct{})}
	u.Tell(req, nil)
	select {
	case <-req.done:
		return nil
	case <-u.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
