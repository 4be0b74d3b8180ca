package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/clusternode/internal/cluster"
	"github.com/danmuck/clusternode/internal/config"
	"github.com/danmuck/clusternode/internal/discovery"
	"github.com/danmuck/clusternode/internal/roles"
	"github.com/danmuck/clusternode/internal/runtime"
	"github.com/rs/zerolog/log"
)

const (
	RoleEcho = "echo"

	defaultStopTimeout = 5 * time.Second
)

var ErrNotStarted = errors.New("workers: worker not started")

// Ping asks an echo unit to answer with a Pong carrying the same text.
type Ping struct {
	Text string
}

type Pong struct {
	Text string
	From string
	// Dead is set when the echo unit had already stopped.
	Dead bool
}

func (p Ping) DeadLetterReply(target runtime.Ref) any {
	return Pong{Text: p.Text, From: target.Path(), Dead: true}
}

type echoUnit struct{}

func (echoUnit) Receive(self runtime.Ref, env runtime.Envelope) {
	ping, ok := env.Message.(Ping)
	if !ok || env.Sender == nil {
		return
	}
	env.Sender.Tell(Pong{Text: ping.Text, From: self.Path()}, self)
}

// Echo runs an echo unit and publishes it under a discovery tag.
type Echo struct {
	nctx        cluster.NodeContext
	name        string
	tag         string
	stopTimeout time.Duration

	ref runtime.Ref
}

func NewEcho(nctx cluster.NodeContext, cfg config.Section) (roles.Worker, error) {
	tag := cfg.StringOr("tag", TagEcho)
	if tag == "" {
		return nil, fmt.Errorf("echo: empty tag")
	}
	return &Echo{
		nctx:        nctx,
		name:        cfg.StringOr("name", "echo"),
		tag:         tag,
		stopTimeout: cfg.DurationOr("stop_timeout", defaultStopTimeout),
	}, nil
}

func (e *Echo) Start(context.Context) error {
	sys, disc, _ := e.nctx.Base().Handles()
	ref, err := sys.Spawn(e.name, echoUnit{})
	if err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	e.ref = ref
	disc.Tell(discovery.RegisterReference{Tag: e.tag, Ref: ref}, nil)
	log.Info().Str("unit", ref.Path()).Str("tag", e.tag).Msg("echo unit registered")
	return nil
}

func (e *Echo) Stop(ctx context.Context) error {
	if e.ref == nil {
		return ErrNotStarted
	}
	sys, disc, _ := e.nctx.Base().Handles()
	disc.Tell(discovery.UnregisterReference{Ref: e.ref}, nil)

	stopCtx, cancel := context.WithTimeout(ctx, e.stopTimeout)
	defer cancel()
	if err := sys.GracefulStop(stopCtx, e.ref); err != nil {
		return fmt.Errorf("echo: stop %s: %w", e.ref.Path(), err)
	}
	e.ref = nil
	return nil
}

// Ref returns the echo unit while the worker runs.
func (e *Echo) Ref() runtime.Ref {
	return e.ref
}

// Call pings ref and waits for the answer.
func Call(ctx context.Context, ref runtime.Ref, text string) (Pong, error) {
	reply, err := runtime.Ask(ctx, ref, Ping{Text: text})
	if err != nil {
		return Pong{}, err
	}
	pong, ok := reply.(Pong)
	if !ok {
		return Pong{}, fmt.Errorf("echo: unexpected reply %T", reply)
	}
	return pong, nil
}
