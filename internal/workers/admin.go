package workers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/clusternode/internal/auth"
	"github.com/danmuck/clusternode/internal/cluster"
	"github.com/danmuck/clusternode/internal/config"
	"github.com/danmuck/clusternode/internal/discovery"
	"github.com/danmuck/clusternode/internal/observability"
	"github.com/danmuck/clusternode/internal/roles"
	"github.com/danmuck/clusternode/internal/runtime"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	RoleAdmin = "admin"

	defaultAdminAddr = "127.0.0.1:0"
	adminUnitName    = "admin"
)

var (
	ErrNoAdmin      = errors.New("workers: admin not bound")
	ErrAdminStopped = errors.New("workers: admin stopped")
	ErrNoEcho       = errors.New("workers: echo not bound")
)

type addrRequest struct{}

type addrReply struct {
	Addr string
	Err  error
}

func (addrRequest) DeadLetterReply(runtime.Ref) any {
	return addrReply{Err: ErrAdminStopped}
}

// AdminRef is the typed reference to an admin unit.
type AdminRef struct {
	runtime.InterfacedRef
}

func NewAdminRef(ref runtime.InterfacedRef) *AdminRef {
	return &AdminRef{InterfacedRef: ref}
}

// Addr asks the admin unit for the address its HTTP server listens on.
func (r *AdminRef) Addr(ctx context.Context) (string, error) {
	target := r.Ref()
	if target == nil {
		return "", ErrNoAdmin
	}
	reply, err := runtime.Ask(ctx, target, addrRequest{})
	if err != nil {
		return "", err
	}
	out, ok := reply.(addrReply)
	if !ok {
		return "", fmt.Errorf("admin: unexpected reply %T", reply)
	}
	return out.Addr, out.Err
}

// Admin serves node health, readiness, metrics and the bound references over HTTP.
type Admin struct {
	nctx        cluster.NodeContext
	addr        string
	tag         string
	origins     []string
	stopTimeout time.Duration
	validator   auth.Validator

	router   *gin.Engine
	server   *http.Server
	unit     runtime.Ref
	appeared time.Time

	mu     sync.Mutex
	bound  string
	served chan struct{}
}

func NewAdmin(nctx cluster.NodeContext, cfg config.Section) (roles.Worker, error) {
	origins, err := cfg.Strings("cors_origins")
	if err != nil && !errors.Is(err, config.ErrMissingKey) {
		return nil, fmt.Errorf("admin: %w", err)
	}
	a := &Admin{
		nctx:        nctx,
		addr:        cfg.StringOr("addr", defaultAdminAddr),
		tag:         cfg.StringOr("tag", TagAdmin),
		origins:     normalizeOrigins(origins),
		stopTimeout: cfg.DurationOr("stop_timeout", defaultStopTimeout),
	}
	tokens, err := cfg.Strings("tokens")
	if err != nil && !errors.Is(err, config.ErrMissingKey) {
		return nil, fmt.Errorf("admin: %w", err)
	}
	if token := cfg.StringOr("token", ""); token != "" {
		tokens = append(tokens, token)
	}
	// Mutating routes need a token when any is configured.
	if len(tokens) > 0 {
		a.validator = auth.AnyToken(tokens...)
	}
	return a, nil
}

func (a *Admin) NodeID() string {
	sys, _, _ := a.nctx.Base().Handles()
	if sys == nil {
		return ""
	}
	return sys.Name() + ":" + strconv.Itoa(sys.Config().IntOr(config.KeyClusterPort, 0))
}

func (a *Admin) HTTPRouter() *gin.Engine {
	return a.router
}

// Addr returns the bound listen address once started.
func (a *Admin) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bound
}

func (a *Admin) Start(context.Context) error {
	a.appeared = time.Now()
	a.router = a.newRouter()
	a.RegisterRoutes()

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("admin: listen %s: %w", a.addr, err)
	}
	a.mu.Lock()
	a.bound = ln.Addr().String()
	a.mu.Unlock()

	a.server = &http.Server{Handler: a.router, ReadHeaderTimeout: 5 * time.Second}
	a.served = make(chan struct{})
	go func() {
		defer close(a.served)
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("node", a.NodeID()).Msg("admin server stopped")
		}
	}()

	sys, disc, _ := a.nctx.Base().Handles()
	unit, err := sys.Spawn(adminUnitName, runtime.HandlerFunc(a.receive))
	if err != nil {
		_ = a.server.Close()
		return fmt.Errorf("admin: %w", err)
	}
	a.unit = unit
	disc.Tell(discovery.RegisterReference{Tag: a.tag, Ref: unit}, nil)
	log.Info().Str("node", a.NodeID()).Str("addr", a.Addr()).Msg("admin listening")
	return nil
}

func (a *Admin) receive(self runtime.Ref, env runtime.Envelope) {
	if _, ok := env.Message.(addrRequest); ok && env.Sender != nil {
		env.Sender.Tell(addrReply{Addr: a.Addr()}, self)
	}
}

func (a *Admin) Stop(ctx context.Context) error {
	if a.server == nil {
		return ErrNotStarted
	}
	stopCtx, cancel := context.WithTimeout(ctx, a.stopTimeout)
	defer cancel()

	var errs []error
	sys, disc, _ := a.nctx.Base().Handles()
	if a.unit != nil {
		disc.Tell(discovery.UnregisterReference{Ref: a.unit}, nil)
		if err := sys.GracefulStop(stopCtx, a.unit); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.server.Shutdown(stopCtx); err != nil {
		errs = append(errs, err)
	}
	<-a.served
	a.server = nil
	return errors.Join(errs...)
}

func (a *Admin) newRouter() *gin.Engine {
	observability.RegisterMetrics()
	node := a.NodeID()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, node))
	r.Use(observability.RequestMetricsMiddleware(node))
	r.Use(cors.New(cors.Config{
		AllowOrigins: a.origins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	return r
}

func (a *Admin) RegisterRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(a.appeared).String(),
			"node":   a.NodeID(),
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/ready", func(c *gin.Context) {
		tags := a.nctx.Bindings().Tags()
		up := a.nctx.Base().References()
		missing := make([]string, 0, len(tags))
		for _, tag := range tags {
			if _, ok := up[tag]; !ok {
				missing = append(missing, tag)
			}
		}
		status := http.StatusOK
		if len(missing) > 0 {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   len(missing) == 0,
			"missing": missing,
			"node":    a.NodeID(),
		})
	})

	a.router.GET("/references", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node":       a.NodeID(),
			"references": a.nctx.Base().References(),
		})
	})

	a.router.POST("/echo", auth.Require(a.validator), func(c *gin.Context) {
		wctx, ok := a.nctx.(*Context)
		var echo runtime.Ref
		if ok {
			echo = wctx.EchoRef()
		}
		if echo == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": ErrNoEcho.Error()})
			return
		}
		pong, err := Call(c.Request.Context(), echo, c.Query("text"))
		if err != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
			return
		}
		status := http.StatusOK
		if pong.Dead {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"text": pong.Text, "from": pong.From, "dead": pong.Dead})
	})
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
