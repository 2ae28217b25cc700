// Package gremlin implements the database abstraction on Apache TinkerPop
// compatible servers, submitting Groovy scripts with bindings.
//
// Vertex properties come back from valueMap as lists, so the backend reports
// list-valued properties and the engine unwraps single-valued ones using the
// schema. Nested relationship filters compile into where() steps.
package gremlin

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
	"github.com/google/uuid"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
)

// Backend is the backend name reported in capabilities and errors.
const Backend = "gremlin"

// Environment variables read by EndpointFromEnv.
const (
	EnvHost      = "WG_GREMLIN_HOST"
	EnvPort      = "WG_GREMLIN_PORT"
	EnvUser      = "WG_GREMLIN_USER"
	EnvPass      = "WG_GREMLIN_PASS"
	EnvUseTLS    = "WG_GREMLIN_USE_TLS"
	EnvCert      = "WG_GREMLIN_CERT"
	EnvUUID      = "WG_GREMLIN_UUID"
	EnvPartition = "WG_GREMLIN_PARTITION"
	EnvSessions  = "WG_GREMLIN_SESSIONS"
)

// DefaultPort is the Gremlin Server port.
const DefaultPort = 8182

// PartitionKey is the vertex property set to the identifier when
// partitioning is enabled.
const PartitionKey = "partitionKey"

// Submitter submits a script with bindings and returns every result.
type Submitter interface {
	Submit(ctx context.Context, script string, bindings map[string]any) ([]any, error)
	Close()
}

// Dialer opens a submitter. A non-empty session opens a sessioned client
// whose scripts share one server transaction.
type Dialer func(session string) (Submitter, error)

// Options tunes the scripts generated for a server.
type Options struct {
	// UUID assigns a random UUID string identifier to every new vertex and
	// edge instead of letting the server choose.
	UUID bool
	// Partition sets PartitionKey on every new vertex.
	Partition bool
	// Sessions runs each transaction in its own session.
	Sessions bool
	// Logger receives warnings; nil means slog.Default().
	Logger *slog.Logger
}

// Pool is a database.Pool over a Gremlin server.
type Pool struct {
	dial   Dialer
	shared Submitter
	opts   Options
}

var _ database.Pool = (*Pool)(nil)

// NewPool returns a pool dialing through dial. Without sessions one shared
// client serves every transaction.
func NewPool(dial Dialer, opts Options) (*Pool, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Pool{dial: dial, opts: opts}
	if !opts.Sessions {
		s, err := dial("")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", velograph.ErrBackendUnavailable, err)
		}
		p.shared = s
	}
	return p, nil
}

// Transaction implements database.Pool.
func (p *Pool) Transaction(context.Context) (database.Transaction, error) {
	return &tx{pool: p, sub: p.shared}, nil
}

// Capabilities implements database.Pool.
func (p *Pool) Capabilities() database.Capabilities {
	return database.Capabilities{Backend: Backend, Traversal: true, ListValuedProps: true}
}

// Close implements database.Pool.
func (p *Pool) Close(context.Context) error {
	if p.shared != nil {
		p.shared.Close()
	}
	return nil
}

// Endpoint holds the parameters of a Gremlin server.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Pass     string
	UseTLS   bool
	Verify   bool
	PoolSize int
	Options
}

var _ database.Endpoint = (*Endpoint)(nil)

// EndpointFromEnv reads the WG_GREMLIN_* variables and WG_POOL_SIZE.
func EndpointFromEnv() (*Endpoint, error) {
	var (
		e   = &Endpoint{}
		err error
	)
	if e.Host, err = database.EnvString(EnvHost); err != nil {
		return nil, err
	}
	if e.Port, err = database.EnvIntOr(EnvPort, DefaultPort); err != nil {
		return nil, err
	}
	e.User = database.EnvStringOr(EnvUser, "")
	e.Pass = database.EnvStringOr(EnvPass, "")
	for _, b := range []struct {
		name string
		dst  *bool
		def  bool
	}{
		{EnvUseTLS, &e.UseTLS, true},
		{EnvCert, &e.Verify, true},
		{EnvUUID, &e.UUID, false},
		{EnvPartition, &e.Partition, false},
		{EnvSessions, &e.Sessions, false},
	} {
		if *b.dst, err = database.EnvBoolOr(b.name, b.def); err != nil {
			return nil, err
		}
	}
	if e.PoolSize, err = database.PoolSizeFromEnv(); err != nil {
		return nil, err
	}
	return e, nil
}

// URL returns the websocket URL of the server.
func (e *Endpoint) URL() string {
	scheme := "ws"
	if e.UseTLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/gremlin", scheme, e.Host, e.Port)
}

// Pool connects to the server.
func (e *Endpoint) Pool(context.Context) (database.Pool, error) {
	size := e.PoolSize
	if size <= 0 {
		size = database.DefaultPoolSize
	}
	dial := func(session string) (Submitter, error) {
		c, err := gremlingo.NewClient(e.URL(), func(s *gremlingo.ClientSettings) {
			if e.User != "" {
				s.AuthInfo = gremlingo.BasicAuthInfo(e.User, e.Pass)
			}
			if e.UseTLS {
				s.TlsConfig = &tls.Config{InsecureSkipVerify: !e.Verify} //nolint:gosec // verification is configurable
			}
			s.MaximumConcurrentConnections = size
			s.Session = session
		})
		if err != nil {
			return nil, err
		}
		return &client{c: c}, nil
	}
	pool, err := NewPool(dial, e.Options)
	if err != nil {
		return nil, err
	}
	return database.Limit(pool, size, 0), nil
}

type client struct {
	c *gremlingo.Client
}

func (c *client) Submit(ctx context.Context, script string, bindings map[string]any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs, err := c.c.Submit(script, bindings)
	if err != nil {
		return nil, err
	}
	results, err := rs.All()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r.GetInterface()
	}
	return out, nil
}

func (c *client) Close() { c.c.Close() }

func newID() string { return uuid.NewString() }
