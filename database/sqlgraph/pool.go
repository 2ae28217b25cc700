// Package sqlgraph stores the graph in two relational tables, one for nodes
// and one for relationships, on SQLite, PostgreSQL or MySQL.
//
// Properties are kept as msgpack-encoded value maps. Label, name and
// identifier restrictions run in SQL; property predicates are evaluated in
// process with database.Match. The store has no traversal support, so the
// engine resolves nested relationship filters hop by hop.
//
//	drv, err := sqlgraph.Open(sqlgraph.SQLite, "file:graph.db")
//	if err != nil {
//		return err
//	}
//	pool, err := sqlgraph.NewPool(ctx, drv)
package sqlgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
)

// Backend is the backend name reported in capabilities and errors.
const Backend = "sqlgraph"

// Environment variables read by EndpointFromEnv.
const (
	EnvDialect = "WG_SQL_DIALECT"
	EnvDSN     = "WG_SQL_DSN"
)

// Pool is a database.Pool over a Driver.
type Pool struct {
	drv *Driver
}

var _ database.Pool = (*Pool)(nil)

// NewPool checks the connection and creates the tables when missing.
func NewPool(ctx context.Context, drv *Driver) (*Pool, error) {
	if err := drv.DB().PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", velograph.ErrBackendUnavailable, err)
	}
	if err := drv.Migrate(ctx); err != nil {
		return nil, err
	}
	return &Pool{drv: drv}, nil
}

// Driver returns the driver of the pool.
func (p *Pool) Driver() *Driver { return p.drv }

// Transaction implements database.Pool.
func (p *Pool) Transaction(context.Context) (database.Transaction, error) {
	return &tx{drv: p.drv}, nil
}

// Capabilities implements database.Pool.
func (p *Pool) Capabilities() database.Capabilities {
	return database.Capabilities{Backend: Backend}
}

// Close implements database.Pool.
func (p *Pool) Close(context.Context) error {
	return p.drv.Close()
}

// Endpoint holds the parameters of a SQL graph store.
type Endpoint struct {
	Dialect  string
	DSN      string
	PoolSize int

	// AcquireTimeout bounds the wait for a free connection. Zero means
	// database.DefaultAcquireTimeout.
	AcquireTimeout time.Duration
}

var _ database.Endpoint = (*Endpoint)(nil)

// EndpointFromEnv reads WG_SQL_DIALECT, WG_SQL_DSN and WG_POOL_SIZE.
func EndpointFromEnv() (*Endpoint, error) {
	dialect, err := database.EnvString(EnvDialect)
	if err != nil {
		return nil, err
	}
	dsn, err := database.EnvString(EnvDSN)
	if err != nil {
		return nil, err
	}
	size, err := database.PoolSizeFromEnv()
	if err != nil {
		return nil, err
	}
	return &Endpoint{Dialect: dialect, DSN: dsn, PoolSize: size}, nil
}

// Pool opens the database and returns a pool bounded to PoolSize
// connections. A transaction waiting longer than AcquireTimeout for one
// fails with velograph.ErrBackendUnavailable.
func (e *Endpoint) Pool(ctx context.Context) (database.Pool, error) {
	drv, err := Open(e.Dialect, e.DSN)
	if err != nil {
		return nil, err
	}
	size := e.PoolSize
	if size <= 0 {
		size = database.DefaultPoolSize
	}
	drv.DB().SetMaxOpenConns(size)
	p, err := NewPool(ctx, drv)
	if err != nil {
		_ = drv.Close()
		return nil, err
	}
	return database.Limit(p, size, e.AcquireTimeout), nil
}
