// Package server serves a GraphQL executor over HTTP.
//
// Routes:
//
//	POST /graphql          - execute a GraphQL request (JSON body)
//	GET  /graphql          - execute a query from the query string
//	GET  /playground       - GraphQL playground
//	GET  /schema.graphql   - generated schema document
//	GET  /metrics          - Prometheus metrics
//	GET  /healthz          - liveness probe
//
// Request headers are handed to the before_request hooks as metadata, with
// lower-cased names.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/gql"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":5000"

// Server is an HTTP server for a GraphQL executor.
type Server struct {
	addr    string
	service string
	logger  *slog.Logger
	router  *gin.Engine
	exec    atomic.Pointer[gql.Executor]

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	done chan error
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithServiceName sets the service name reported in traces.
func WithServiceName(name string) Option {
	return func(s *Server) { s.service = name }
}

// WithLogger sets the request and lifecycle logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a server for x. It does not listen until Start.
func New(x *gql.Executor, opts ...Option) *Server {
	s := &Server{
		addr:    DefaultAddr,
		service: "velograph",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exec.Store(x)

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(s.service), s.logRequests)
	r.POST("/graphql", s.handlePost)
	r.GET("/graphql", s.handleGet)
	r.GET("/playground", gin.WrapH(playground.Handler("velograph", "/graphql")))
	r.GET("/schema.graphql", s.handleSchema)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Executor returns the executor serving requests.
func (s *Server) Executor() *gql.Executor { return s.exec.Load() }

// SetExecutor replaces the executor. Requests in flight finish on the
// previous one.
func (s *Server) SetExecutor(x *gql.Executor) { s.exec.Store(x) }

// Addr returns the address the server listens on, or the configured address
// when it is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Start binds the listen address and serves in the background. It returns
// once the address is bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return velograph.ErrServerAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &velograph.ServerStartupError{Err: err}
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}()
	s.srv, s.ln, s.done = srv, ln, done
	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Done returns a channel receiving the result of serving once the server
// stops, or nil when it is not running.
func (s *Server) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops the server gracefully, waiting for requests in flight
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.ln, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return velograph.ErrServerNotRunning
	}
	if err := srv.Shutdown(ctx); err != nil {
		return &velograph.ServerShutdownError{Err: err}
	}
	if err := <-done; err != nil {
		return &velograph.ServerShutdownError{Err: err}
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.DebugContext(c.Request.Context(), "http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (s *Server) handlePost(c *gin.Context) {
	var p gql.Params
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	s.execute(c, p)
}

func (s *Server) handleGet(c *gin.Context) {
	p := gql.Params{
		Query:         c.Query("query"),
		OperationName: c.Query("operationName"),
	}
	if vars := c.Query("variables"); vars != "" {
		dec := json.NewDecoder(strings.NewReader(vars))
		dec.UseNumber()
		if err := dec.Decode(&p.Variables); err != nil {
			badRequest(c, "invalid variables: %v", err)
			return
		}
	}
	s.execute(c, p)
}

func (s *Server) execute(c *gin.Context, p gql.Params) {
	if p.Query == "" {
		badRequest(c, "no query")
		return
	}
	p.Metadata = metadata(c.Request.Header)
	c.JSON(http.StatusOK, s.Executor().Execute(c.Request.Context(), p))
}

func (s *Server) handleSchema(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(s.Executor().SDL()))
}

func badRequest(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusBadRequest, &gql.Response{Errors: gqlerror.List{gqlerror.Errorf(format, args...)}})
}

// metadata returns the request headers with lower-cased names. Repeated
// headers are joined with commas.
func metadata(h http.Header) event.Metadata {
	md := make(event.Metadata, len(h))
	for k, vs := range h {
		md[strings.ToLower(k)] = strings.Join(vs, ",")
	}
	return md
}
