// Package runner launches cluster nodes from node specs and shuts them down in
// reverse order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/clusternode/internal/cluster"
	"github.com/danmuck/clusternode/internal/config"
	"github.com/danmuck/clusternode/internal/discovery"
	"github.com/danmuck/clusternode/internal/observability"
	"github.com/danmuck/clusternode/internal/roles"
	"github.com/danmuck/clusternode/internal/runtime"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const DefaultSystemName = "cluster"

var ErrNilContext = errors.New("runner: context factory returned nil")

type ContextFactory func() cluster.NodeContext

type SystemHook func(sys *runtime.System)

type Option func(*Runner)

// WithContextFactory replaces the default context constructor.
func WithContextFactory(f ContextFactory) Option {
	return func(r *Runner) {
		if f != nil {
			r.newContext = f
		}
	}
}

// WithSystemCreated registers a hook fired right after a node system is created.
func WithSystemCreated(h SystemHook) Option {
	return func(r *Runner) {
		if h != nil {
			r.onCreated = append(r.onCreated, h)
		}
	}
}

// WithSystemTerminating registers a hook fired before node systems terminate.
func WithSystemTerminating(h SystemHook) Option {
	return func(r *Runner) {
		if h != nil {
			r.onTerminating = append(r.onTerminating, h)
		}
	}
}

// WithHub joins every node discovery channel to hub.
func WithHub(hub *discovery.Hub) Option {
	return func(r *Runner) {
		if hub != nil {
			r.hub = hub
		}
	}
}

// WithInterceptors replaces the default interceptors installed in every node system.
func WithInterceptors(ics ...runtime.Interceptor) Option {
	return func(r *Runner) {
		r.interceptors = ics
	}
}

type startedWorker struct {
	role   string
	worker roles.Worker
}

type node struct {
	port    int
	roles   []string
	ctx     cluster.NodeContext
	system  *runtime.System
	workers []startedWorker
}

// NodeStatus is a point-in-time view of one launched node.
type NodeStatus struct {
	Port       int
	System     string
	Roles      []string
	References map[string]string
}

type Runner struct {
	common       config.Section
	roles        *roles.Registry
	newContext   ContextFactory
	hub          *discovery.Hub
	interceptors []runtime.Interceptor

	onCreated     []SystemHook
	onTerminating []SystemHook

	mu    sync.Mutex
	nodes []*node
}

func New(common config.Section, reg *roles.Registry, opts ...Option) *Runner {
	r := &Runner{
		common:       common,
		roles:        reg,
		newContext:   cluster.NewDefault,
		hub:          discovery.NewHub(),
		interceptors: []runtime.Interceptor{runtime.DeadLetterLogger(), runtime.DeadRequestReplier()},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Hub returns the discovery hub shared by the runner's nodes.
func (r *Runner) Hub() *discovery.Hub {
	return r.hub
}

// Launch starts nodes one after another in the given order. The first failing
// node aborts the launch; nodes launched before it stay up.
func (r *Runner) Launch(ctx context.Context, specs []config.NodeSpec) error {
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.LaunchNode(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

// LaunchNode starts one node and its workers in declared order.
func (r *Runner) LaunchNode(ctx context.Context, spec config.NodeSpec) error {
	resolved, err := r.roles.ResolveEntries(spec.Roles)
	if err != nil {
		return fmt.Errorf("launch node port=%d: %w", spec.Port, err)
	}
	names := make([]string, len(resolved))
	for i, res := range resolved {
		names[i] = res.Role
	}
	log.Info().Int("port", spec.Port).Strs("roles", names).Msg("launch node")

	eff := config.Section{}.
		Set(config.KeyClusterPort, spec.Port).
		Set(config.KeyClusterRoles, names).
		WithFallback(r.common)
	sys := runtime.NewSystem(eff.StringOr(config.KeySystemName, DefaultSystemName), eff)
	sys.Use(r.interceptors...)
	for _, h := range r.onCreated {
		h(sys)
	}

	n := &node{port: spec.Port, roles: names, system: sys}
	if err := r.setupContext(n); err != nil {
		r.abort(ctx, n)
		return fmt.Errorf("launch node port=%d: %w", spec.Port, err)
	}

	for _, res := range resolved {
		log.Info().Int("port", spec.Port).Str("role", res.Role).Msg("start role worker")
		if err := r.startWorker(ctx, n, res); err != nil {
			r.abort(ctx, n)
			return fmt.Errorf("launch node port=%d: start %s: %w", spec.Port, res.Role, err)
		}
	}

	r.mu.Lock()
	r.nodes = append(r.nodes, n)
	count := len(r.nodes)
	r.mu.Unlock()
	observability.SetNodes(count)
	return nil
}

func (r *Runner) setupContext(n *node) error {
	nctx := r.newContext()
	if nctx == nil || nctx.Base() == nil {
		return ErrNilContext
	}
	n.ctx = nctx
	disc, err := discovery.Spawn(n.system, r.hub)
	if err != nil {
		return err
	}
	nctx.Base().SetHandles(n.system, disc)
	_, err = cluster.SpawnBinder(n.system, nctx)
	return err
}

func (r *Runner) startWorker(ctx context.Context, n *node, res roles.Resolved) error {
	w, err := res.New(n.ctx, res.Config)
	if err != nil {
		return err
	}
	started := time.Now()
	err = w.Start(ctx)
	observability.RecordWorkerTransition(res.Role, "start", time.Since(started), err)
	if err != nil {
		return err
	}
	n.workers = append(n.workers, startedWorker{role: res.Role, worker: w})
	return nil
}

// abort unwinds a node whose launch failed part way.
func (r *Runner) abort(ctx context.Context, n *node) {
	if err := r.stopWorkers(ctx, n); err != nil {
		log.Warn().Err(err).Int("port", n.port).Msg("stop workers of failed node")
	}
	for _, h := range r.onTerminating {
		h(n.system)
	}
	if err := n.system.Terminate(ctx); err != nil {
		log.Warn().Err(err).Int("port", n.port).Msg("terminate failed node system")
	}
}

func (r *Runner) stopWorkers(ctx context.Context, n *node) error {
	var errs []error
	for i := len(n.workers) - 1; i >= 0; i-- {
		sw := n.workers[i]
		log.Info().Int("port", n.port).Str("role", sw.role).Msg("stop role worker")
		started := time.Now()
		err := sw.worker.Stop(ctx)
		observability.RecordWorkerTransition(sw.role, "stop", time.Since(started), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("stop %s on port %d: %w", sw.role, n.port, err))
		}
	}
	n.workers = nil
	return errors.Join(errs...)
}

// Shutdown stops every worker in reverse launch order, then terminates all
// node systems concurrently. Stop errors do not stop the sequence; they are
// returned joined.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	nodes := r.nodes
	r.nodes = nil
	r.mu.Unlock()
	if len(nodes) == 0 {
		return nil
	}

	var errs []error
	for i := len(nodes) - 1; i >= 0; i-- {
		if err := r.stopWorkers(ctx, nodes[i]); err != nil {
			errs = append(errs, err)
		}
	}

	for i := len(nodes) - 1; i >= 0; i-- {
		for _, h := range r.onTerminating {
			h(nodes[i].system)
		}
	}

	log.Info().Int("systems", len(nodes)).Msg("shutdown all systems")
	var (
		g       errgroup.Group
		termMu  sync.Mutex
		termErr []error
	)
	for i := len(nodes) - 1; i >= 0; i-- {
		sys := nodes[i].system
		g.Go(func() error {
			if err := sys.Terminate(ctx); err != nil {
				termMu.Lock()
				termErr = append(termErr, err)
				termMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	errs = append(errs, termErr...)
	observability.SetNodes(0)
	return errors.Join(errs...)
}

// Nodes returns the launched nodes in launch order.
func (r *Runner) Nodes() []NodeStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NodeStatus, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, NodeStatus{
			Port:       n.port,
			System:     n.system.Name(),
			Roles:      append([]string(nil), n.roles...),
			References: n.ctx.Base().References(),
		})
	}
	return out
}
