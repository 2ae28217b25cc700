// Package engine resolves CRUD operations and custom endpoints against a
// compiled schema and a backend pool.
//
// An Engine is built once from a configuration and is safe for concurrent
// use. Each top-level operation runs in its own backend transaction: input
// validation, before hooks, the backend queries, after hooks and result
// shaping all happen inside it, and any failure rolls it back.
//
//	eng, err := engine.New(ctx, cfg,
//		engine.WithEndpoint(ep),
//		engine.WithRegistry(reg),
//		engine.WithHandlers(hooks),
//	)
//	out, err := eng.Execute(ctx, md, engine.ReadNodes("Project", filter,
//		engine.Field("id"), engine.Field("name")))
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/resolver"
	"github.com/syssam/velograph/schema"
)

// Engine executes operations. Its schema, registry and hook list are
// immutable once New returns.
type Engine struct {
	schema   *schema.Schema
	pool     database.Pool
	caps     database.Capabilities
	registry *resolver.Registry
	handlers *event.Handlers
	newCtx   func() any
	global   any
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	pool     database.Pool
	endpoint database.Endpoint
	registry *resolver.Registry
	handlers *event.Handlers
	newCtx   func() any
	global   any
	logger   *slog.Logger
}

// WithPool sets the backend pool. It takes precedence over WithEndpoint.
func WithPool(p database.Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithEndpoint sets the endpoint the pool is obtained from.
func WithEndpoint(e database.Endpoint) Option {
	return func(o *options) { o.endpoint = e }
}

// WithRegistry sets the resolver and validator registry. It is frozen by New.
func WithRegistry(r *resolver.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithHandlers sets the hook list. It is frozen by New.
func WithHandlers(h *event.Handlers) Option {
	return func(o *options) { o.handlers = h }
}

// WithRequestContext sets the factory of the per-request application value
// handed to before_request hooks, resolvers and CRUD hooks.
func WithRequestContext(f func() any) Option {
	return func(o *options) { o.newCtx = f }
}

// WithGlobalContext sets the application value shared by every request.
func WithGlobalContext(v any) Option {
	return func(o *options) { o.global = v }
}

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds an engine. The configuration is cloned, handed to the
// before_engine_build hooks, and compiled against the registry; only then is
// the backend pool obtained. Any failure prevents construction.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = resolver.NewRegistry()
	}
	if o.handlers == nil {
		o.handlers = event.NewHandlers()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg == nil {
		return nil, velograph.NewConfigError("config", fmt.Errorf("%w: nil config", velograph.ErrConfigInvalid))
	}

	cfg = cfg.Clone()
	if err := o.handlers.RunBeforeEngineBuild(cfg); err != nil {
		return nil, err
	}
	s, err := schema.Compile(cfg, o.registry)
	if err != nil {
		return nil, err
	}
	o.registry.Freeze()
	o.handlers.Freeze()

	pool := o.pool
	if pool == nil {
		if o.endpoint == nil {
			return nil, velograph.NewConfigError("backend", fmt.Errorf("%w: no pool or endpoint", velograph.ErrConfigInvalid))
		}
		if pool, err = o.endpoint.Pool(ctx); err != nil {
			return nil, err
		}
	}
	caps := pool.Capabilities()
	o.logger.DebugContext(ctx, "engine built",
		"backend", caps.Backend,
		"types", len(s.Types()),
		"endpoints", len(s.Endpoints()),
	)
	return &Engine{
		schema:   s,
		pool:     pool,
		caps:     caps,
		registry: o.registry,
		handlers: o.handlers,
		newCtx:   o.newCtx,
		global:   o.global,
		logger:   o.logger,
	}, nil
}

// Schema returns the compiled schema.
func (e *Engine) Schema() *schema.Schema { return e.schema }

// Capabilities returns the capabilities of the backend.
func (e *Engine) Capabilities() database.Capabilities { return e.caps }

// Pool returns the backend pool.
func (e *Engine) Pool() database.Pool { return e.pool }

// Close closes the backend pool.
func (e *Engine) Close(ctx context.Context) error {
	return e.pool.Close(ctx)
}
