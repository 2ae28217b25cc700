package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/database/cypher"
	"github.com/syssam/velograph/database/gremlin"
	"github.com/syssam/velograph/database/sqlgraph"
	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/gql"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/server"
)

// Backends selectable with --backend.
const (
	backendCypher  = "cypher"
	backendGremlin = "gremlin"
	backendSQL     = "sql"
)

type rootOptions struct {
	configs  []string
	logLevel string
}

type serveOptions struct {
	backend         string
	addr            string
	watch           bool
	version         string
	shutdownTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "velograph",
		Short:         "GraphQL CRUD API over graph databases",
		Long:          `velograph generates a GraphQL API from YAML model configs and serves it over a Neo4j, Gremlin or SQL graph store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringArrayVarP(&opts.configs, "config", "c", nil, "model config file, repeatable")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	cmd.AddCommand(newServeCmd(opts), newValidateCmd(opts), newSDLCmd(opts))
	return cmd
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GraphQL API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.backend, "backend", backendSQL, "database backend: cypher, gremlin or sql")
	cmd.Flags().StringVar(&opts.addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "rebuild the engine when a config file changes")
	cmd.Flags().StringVar(&opts.version, "api-version", "", "value of the _version query field")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for requests in flight on shutdown")
	return cmd
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate model configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := compile(root.configs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d types, %d relationships, %d endpoints\n",
				len(s.Types()), len(s.Rels()), len(s.Endpoints()))
			return nil
		},
	}
}

func newSDLCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sdl",
		Short: "Print the generated GraphQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := compile(root.configs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), gql.SDL(s))
			return err
		},
	}
}

// anyName accepts every resolver and validator name. Resolvers are
// registered in Go code, which the CLI does not have.
type anyName struct{}

func (anyName) HasResolver(string) bool  { return true }
func (anyName) HasValidator(string) bool { return true }

func compile(paths []string) (*schema.Schema, error) {
	if len(paths) == 0 {
		return nil, errors.New("no config: pass --config")
	}
	cfg, err := config.LoadAll(paths...)
	if err != nil {
		return nil, err
	}
	return schema.Compile(cfg, anyName{})
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// endpoint returns the connection parameters of backend, read from the
// environment.
func endpoint(backend string) (database.Endpoint, error) {
	switch backend {
	case backendCypher:
		ep, err := cypher.EndpointFromEnv()
		if err != nil {
			return nil, err
		}
		return ep, nil
	case backendGremlin:
		ep, err := gremlin.EndpointFromEnv()
		if err != nil {
			return nil, err
		}
		return ep, nil
	case backendSQL:
		ep, err := sqlgraph.EndpointFromEnv()
		if err != nil {
			return nil, err
		}
		return ep, nil
	}
	return nil, fmt.Errorf("unknown backend %q: want %s, %s or %s", backend, backendCypher, backendGremlin, backendSQL)
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	if len(root.configs) == 0 {
		return errors.New("no config: pass --config")
	}
	logger, err := newLogger(root.logLevel)
	if err != nil {
		return err
	}
	ep, err := endpoint(opts.backend)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := func(cfg *config.Config) (*gql.Executor, error) {
		e, err := engine.New(ctx, cfg, engine.WithEndpoint(ep), engine.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		x, err := gql.NewExecutor(e, gql.WithVersion(opts.version), gql.WithLogger(logger))
		if err != nil {
			_ = e.Close(ctx)
			return nil, err
		}
		return x, nil
	}
	cfg, err := config.LoadAll(root.configs...)
	if err != nil {
		return err
	}
	x, err := build(cfg)
	if err != nil {
		return err
	}

	srv := server.New(x, server.WithAddr(opts.addr), server.WithLogger(logger))
	if err := srv.Start(); err != nil {
		_ = x.Engine().Close(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err := <-srv.Done():
			return err
		case <-gctx.Done():
			return nil
		}
	})
	if opts.watch {
		g.Go(func() error {
			return config.Watch(gctx, root.configs, 0, func(cfg *config.Config, err error) {
				var next *gql.Executor
				if err == nil {
					next, err = build(cfg)
				}
				if err != nil {
					logger.Error("config reload failed", "error", err)
					return
				}
				old := srv.Executor()
				srv.SetExecutor(next)
				logger.Info("config reloaded", "version", cfg.Version)
				// Requests in flight on the old engine get the shutdown
				// grace period to finish.
				time.AfterFunc(opts.shutdownTimeout, func() {
					_ = old.Engine().Close(context.Background())
				})
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		return errors.Join(err, srv.Executor().Engine().Close(sctx))
	})
	return g.Wait()
}
