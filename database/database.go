// Package database defines the backend capability abstraction: the
// transactional interface every supported graph database implements, the
// abstract query intents the engine compiles operations into, and the
// materialized Node and Rel results.
//
// Backends live in subpackages:
//
//   - cypher: Neo4j and other Bolt servers
//   - gremlin: Apache TinkerPop compatible servers
//   - sqlgraph: a node/relationship table store on SQLite, PostgreSQL or MySQL
//
// The engine never sees a driver's native value type; each backend bridges
// between its driver and value.Value.
package database

import (
	"context"

	"github.com/syssam/velograph/value"
)

// Capabilities describes what a backend can express natively.
type Capabilities struct {
	// Backend names the backend in errors, logs and metrics.
	Backend string

	// Traversal reports that nested relationship filters in a NodeQuery or
	// RelQuery compile into one composite query. When false the engine
	// resolves each hop with follow-up queries in the same transaction and
	// only passes flat queries.
	Traversal bool

	// ListValuedProps reports that the backend returns every property as a
	// list, as Gremlin valueMap does, so single-valued properties must be
	// unwrapped using the schema.
	ListValuedProps bool
}

// Pool hands out transactions over a bounded set of connections.
// Implementations must be safe for concurrent use.
type Pool interface {
	// Transaction returns a new, not yet begun, transaction. The caller
	// must Close it.
	Transaction(ctx context.Context) (Transaction, error)

	// Capabilities describes the backend.
	Capabilities() Capabilities

	// Close releases every connection of the pool.
	Close(ctx context.Context) error
}

// Endpoint produces a pool from connection parameters, typically read from
// the environment.
type Endpoint interface {
	Pool(ctx context.Context) (Pool, error)
}

// Transaction is one backend transaction. Transactions are not nested: Begin
// fails with velograph.ErrTxStarted when called twice, and every method fails
// with velograph.ErrTransactionFinished after Commit or Rollback.
//
// A Transaction is used by one goroutine at a time.
type Transaction interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Close releases the connection. An open transaction is rolled back.
	Close(ctx context.Context) error

	// Exec runs a backend-native query with parameters.
	Exec(ctx context.Context, query string, params map[string]value.Value) (QueryResult, error)

	// CreateNode creates one node with the given properties. A generated
	// identifier is assigned when the backend has no native one and props
	// carries none.
	CreateNode(ctx context.Context, label string, props map[string]value.Value) (*Node, error)
	ReadNodes(ctx context.Context, q *NodeQuery) ([]*Node, error)
	// UpdateNodes sets props on every matched node and returns them.
	UpdateNodes(ctx context.Context, q *NodeQuery, props map[string]value.Value) ([]*Node, error)
	// DeleteNodes removes the matched nodes with their relationships and
	// returns how many nodes were removed.
	DeleteNodes(ctx context.Context, q *NodeQuery) (int64, error)

	// CreateRels creates one relationship from every source to every
	// destination of c.
	CreateRels(ctx context.Context, c *RelCreate) ([]*Rel, error)
	ReadRels(ctx context.Context, q *RelQuery) ([]*Rel, error)
	UpdateRels(ctx context.Context, q *RelQuery, props map[string]value.Value) ([]*Rel, error)
	DeleteRels(ctx context.Context, q *RelQuery) (int64, error)
}

// QueryResult is the result of a native query.
type QueryResult interface {
	// Nodes returns the nodes of type label found in the result, in row
	// and column order.
	Nodes(label string) ([]*Node, error)

	// Rels returns the relationships with the given name whose source has
	// type srcLabel.
	Rels(name, srcLabel string) ([]*Rel, error)

	// IDs returns the identifiers held by column.
	IDs(column string) ([]value.Value, error)

	// Count returns the value of a single count column, or the number of
	// rows when the result has none.
	Count() (int64, error)

	// Len returns the number of rows.
	Len() int

	// IsEmpty reports whether the result has no rows.
	IsEmpty() bool
}
