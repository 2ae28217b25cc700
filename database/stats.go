package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/velograph/value"
)

// PoolStats holds backend usage statistics.
type PoolStats struct {
	// Transactions is the number of transactions opened.
	Transactions atomic.Int64
	// Commits is the number of committed transactions.
	Commits atomic.Int64
	// Rollbacks is the number of rolled back transactions.
	Rollbacks atomic.Int64
	// Queries is the number of queries and intents executed.
	Queries atomic.Int64
	// TotalDuration is the time spent executing queries.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of queries exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of failed queries.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *PoolStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		Transactions:  s.Transactions.Load(),
		Commits:       s.Commits.Load(),
		Rollbacks:     s.Rollbacks.Load(),
		Queries:       s.Queries.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *PoolStats) Reset() {
	s.Transactions.Store(0)
	s.Commits.Store(0)
	s.Rollbacks.Store(0)
	s.Queries.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of pool statistics.
type StatsSnapshot struct {
	Transactions  int64
	Commits       int64
	Rollbacks     int64
	Queries       int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average query duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	if s.Queries == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Queries)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"txs=%d commits=%d rollbacks=%d queries=%d duration=%s avg=%s slow=%d errors=%d",
		s.Transactions, s.Commits, s.Rollbacks, s.Queries, s.TotalDuration,
		s.AvgQueryDuration(), s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is called when a query exceeds the slow threshold. For
// abstract intents query is the intent name, such as "read nodes Project".
type SlowQueryHook func(ctx context.Context, backend, query string, duration time.Duration)

// StatsPool wraps a Pool with statistics collection.
type StatsPool struct {
	Pool
	stats         *PoolStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsPool.
type StatsOption func(*StatsPool)

// WithSlowThreshold sets the threshold for slow query detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsPool) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow queries.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsPool) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow queries to logger, or to the default logger
// when logger is nil.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, backend, query string, duration time.Duration) {
		logger.WarnContext(ctx, "slow query detected", "backend", backend, "duration", duration, "query", query)
	})
}

// NewStatsPool wraps p with statistics collection.
//
// Example:
//
//	pool := database.NewStatsPool(p,
//	    database.WithSlowThreshold(200*time.Millisecond),
//	    database.WithSlowQueryLog(logger),
//	)
//	eng, err := engine.New(ctx, cfg, engine.WithPool(pool))
//
//	// Later, check statistics:
//	fmt.Println(pool.PoolStats().Stats())
func NewStatsPool(p Pool, opts ...StatsOption) *StatsPool {
	s := &StatsPool{
		Pool:          p,
		stats:         &PoolStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PoolStats returns the underlying statistics.
func (p *StatsPool) PoolStats() *PoolStats {
	return p.stats
}

// SlowThreshold returns the current slow query threshold.
func (p *StatsPool) SlowThreshold() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slowThreshold
}

// SetSlowThreshold updates the slow query threshold.
func (p *StatsPool) SetSlowThreshold(threshold time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slowThreshold = threshold
}

// Transaction opens a transaction that records statistics.
func (p *StatsPool) Transaction(ctx context.Context) (Transaction, error) {
	tx, err := p.Pool.Transaction(ctx)
	if err != nil {
		p.stats.Errors.Add(1)
		return nil, err
	}
	p.stats.Transactions.Add(1)
	return &statsTx{Transaction: tx, pool: p}, nil
}

func (p *StatsPool) record(ctx context.Context, query string, start time.Time, err error) {
	duration := time.Since(start)
	p.stats.Queries.Add(1)
	p.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		p.stats.Errors.Add(1)
	}

	p.mu.RLock()
	threshold := p.slowThreshold
	hook := p.slowHook
	p.mu.RUnlock()

	if duration > threshold {
		p.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, p.Capabilities().Backend, query, duration)
		}
	}
}

// statsTx wraps a transaction with statistics collection.
type statsTx struct {
	Transaction
	pool *StatsPool
}

func (tx *statsTx) Commit(ctx context.Context) error {
	err := tx.Transaction.Commit(ctx)
	if err == nil {
		tx.pool.stats.Commits.Add(1)
	}
	return err
}

func (tx *statsTx) Rollback(ctx context.Context) error {
	err := tx.Transaction.Rollback(ctx)
	if err == nil {
		tx.pool.stats.Rollbacks.Add(1)
	}
	return err
}

func (tx *statsTx) Exec(ctx context.Context, query string, params map[string]value.Value) (QueryResult, error) {
	start := time.Now()
	res, err := tx.Transaction.Exec(ctx, query, params)
	tx.pool.record(ctx, query, start, err)
	return res, err
}

func (tx *statsTx) CreateNode(ctx context.Context, label string, props map[string]value.Value) (*Node, error) {
	start := time.Now()
	n, err := tx.Transaction.CreateNode(ctx, label, props)
	tx.pool.record(ctx, "create node "+label, start, err)
	return n, err
}

func (tx *statsTx) ReadNodes(ctx context.Context, q *NodeQuery) ([]*Node, error) {
	start := time.Now()
	ns, err := tx.Transaction.ReadNodes(ctx, q)
	tx.pool.record(ctx, "read nodes "+q.Label, start, err)
	return ns, err
}

func (tx *statsTx) UpdateNodes(ctx context.Context, q *NodeQuery, props map[string]value.Value) ([]*Node, error) {
	start := time.Now()
	ns, err := tx.Transaction.UpdateNodes(ctx, q, props)
	tx.pool.record(ctx, "update nodes "+q.Label, start, err)
	return ns, err
}

func (tx *statsTx) DeleteNodes(ctx context.Context, q *NodeQuery) (int64, error) {
	start := time.Now()
	n, err := tx.Transaction.DeleteNodes(ctx, q)
	tx.pool.record(ctx, "delete nodes "+q.Label, start, err)
	return n, err
}

func (tx *statsTx) CreateRels(ctx context.Context, c *RelCreate) ([]*Rel, error) {
	start := time.Now()
	rs, err := tx.Transaction.CreateRels(ctx, c)
	tx.pool.record(ctx, "create rels "+c.SrcLabel+"."+c.Name, start, err)
	return rs, err
}

func (tx *statsTx) ReadRels(ctx context.Context, q *RelQuery) ([]*Rel, error) {
	start := time.Now()
	rs, err := tx.Transaction.ReadRels(ctx, q)
	tx.pool.record(ctx, "read rels "+q.SrcLabel+"."+q.Name, start, err)
	return rs, err
}

func (tx *statsTx) UpdateRels(ctx context.Context, q *RelQuery, props map[string]value.Value) ([]*Rel, error) {
	start := time.Now()
	rs, err := tx.Transaction.UpdateRels(ctx, q, props)
	tx.pool.record(ctx, "update rels "+q.SrcLabel+"."+q.Name, start, err)
	return rs, err
}

func (tx *statsTx) DeleteRels(ctx context.Context, q *RelQuery) (int64, error) {
	start := time.Now()
	n, err := tx.Transaction.DeleteRels(ctx, q)
	tx.pool.record(ctx, "delete rels "+q.SrcLabel+"."+q.Name, start, err)
	return n, err
}

// Ensure interfaces are implemented.
var (
	_ Pool        = (*StatsPool)(nil)
	_ Pool        = (*LimitedPool)(nil)
	_ Transaction = (*statsTx)(nil)
)
