// Package cypher implements the database abstraction on Neo4j and other
// Bolt servers speaking Cypher.
//
// Every intent compiles into a single Cypher statement, including nested
// relationship filters which become EXISTS subqueries, so the backend reports
// traversal support.
package cypher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
)

// Backend is the backend name reported in capabilities and errors.
const Backend = "cypher"

// Environment variables read by EndpointFromEnv.
const (
	EnvHost     = "WG_CYPHER_HOST"
	EnvPort     = "WG_CYPHER_PORT"
	EnvUser     = "WG_CYPHER_USER"
	EnvPass     = "WG_CYPHER_PASS"
	EnvDatabase = "WG_CYPHER_DATABASE"
)

// DefaultPort is the Bolt port.
const DefaultPort = 7687

// Record is one row of a result.
type Record struct {
	Keys   []string
	Values []any
}

// Get returns the value of column key.
func (r Record) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Session runs statements against the server. Run executes in autocommit
// mode.
type Session interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Record, error)
	BeginTransaction(ctx context.Context) (ExplicitTx, error)
	Close(ctx context.Context) error
}

// ExplicitTx is an open server transaction.
type ExplicitTx interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Record, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// SessionFunc opens a session.
type SessionFunc func(ctx context.Context) (Session, error)

// Pool is a database.Pool handing out one session per transaction.
type Pool struct {
	open  SessionFunc
	close func(ctx context.Context) error
}

var _ database.Pool = (*Pool)(nil)

// NewPool returns a pool over a Neo4j driver. Sessions target dbName, or the
// server default when empty.
func NewPool(drv neo4j.DriverWithContext, dbName string) *Pool {
	return &Pool{
		open: func(ctx context.Context) (Session, error) {
			s := drv.NewSession(ctx, neo4j.SessionConfig{
				AccessMode:   neo4j.AccessModeWrite,
				DatabaseName: dbName,
			})
			return &neoSession{s: s}, nil
		},
		close: drv.Close,
	}
}

// NewSessionPool returns a pool over an arbitrary session source.
func NewSessionPool(open SessionFunc) *Pool {
	return &Pool{open: open}
}

// Transaction implements database.Pool.
func (p *Pool) Transaction(ctx context.Context) (database.Transaction, error) {
	s, err := p.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", velograph.ErrBackendUnavailable, err)
	}
	return &tx{s: s}, nil
}

// Capabilities implements database.Pool.
func (p *Pool) Capabilities() database.Capabilities {
	return database.Capabilities{Backend: Backend, Traversal: true}
}

// Close implements database.Pool.
func (p *Pool) Close(ctx context.Context) error {
	if p.close == nil {
		return nil
	}
	return p.close(ctx)
}

// Endpoint holds the parameters of a Bolt server.
type Endpoint struct {
	Host     string
	Port     int
	User     string
	Pass     string
	Database string
	PoolSize int

	// AcquireTimeout bounds the wait for a pooled connection. Zero keeps
	// the driver default.
	AcquireTimeout time.Duration
}

var _ database.Endpoint = (*Endpoint)(nil)

// EndpointFromEnv reads WG_CYPHER_HOST, WG_CYPHER_PORT, WG_CYPHER_USER,
// WG_CYPHER_PASS, WG_CYPHER_DATABASE and WG_POOL_SIZE.
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
	if e.User, err = database.EnvString(EnvUser); err != nil {
		return nil, err
	}
	if e.Pass, err = database.EnvString(EnvPass); err != nil {
		return nil, err
	}
	e.Database = database.EnvStringOr(EnvDatabase, "")
	if e.PoolSize, err = database.PoolSizeFromEnv(); err != nil {
		return nil, err
	}
	return e, nil
}

// URL returns the Bolt URL of the endpoint.
func (e *Endpoint) URL() string {
	return fmt.Sprintf("bolt://%s:%d", e.Host, e.Port)
}

// Pool connects to the server and verifies connectivity.
func (e *Endpoint) Pool(ctx context.Context) (database.Pool, error) {
	size := e.PoolSize
	if size <= 0 {
		size = database.DefaultPoolSize
	}
	drv, err := neo4j.NewDriverWithContext(e.URL(), neo4j.BasicAuth(e.User, e.Pass, ""), func(c *neo4jconfig.Config) {
		c.MaxConnectionPoolSize = size
		if e.AcquireTimeout > 0 {
			c.ConnectionAcquisitionTimeout = e.AcquireTimeout
		}
	})
	if err != nil {
		return nil, velograph.NewBackendError(Backend, "connect", err)
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		_ = drv.Close(ctx)
		return nil, fmt.Errorf("%w: %v", velograph.ErrBackendUnavailable, err)
	}
	return NewPool(drv, e.Database), nil
}

// acquireFailed reports whether err means the driver found no connection
// to run a transaction on, either because the pool stayed exhausted for the
// acquisition timeout or because the server is unreachable. Errors caused by
// ctx itself are not.
func acquireFailed(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return neo4j.IsConnectivityError(err) ||
		strings.Contains(strings.ToLower(err.Error()), "waiting for connection")
}

type neoSession struct {
	s neo4j.SessionWithContext
}

func (s *neoSession) Run(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	res, err := s.s.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return collect(ctx, res)
}

func (s *neoSession) BeginTransaction(ctx context.Context) (ExplicitTx, error) {
	t, err := s.s.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &neoTx{t: t}, nil
}

func (s *neoSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type neoTx struct {
	t neo4j.ExplicitTransaction
}

func (t *neoTx) Run(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	res, err := t.t.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return collect(ctx, res)
}

func (t *neoTx) Commit(ctx context.Context) error   { return t.t.Commit(ctx) }
func (t *neoTx) Rollback(ctx context.Context) error { return t.t.Rollback(ctx) }
func (t *neoTx) Close(ctx context.Context) error    { return t.t.Close(ctx) }

func collect(ctx context.Context, res neo4j.ResultWithContext) ([]Record, error) {
	recs, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Record{Keys: r.Keys, Values: r.Values}
	}
	return out, nil
}
