package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/syssam/velograph"
)

// DefaultPoolSize is the pool size used when none is configured.
const DefaultPoolSize = 8

// DefaultAcquireTimeout bounds how long Transaction waits for a free slot.
const DefaultAcquireTimeout = 30 * time.Second

// LimitedPool bounds the number of open transactions of a Pool. Waiting for a
// slot suspends only the calling goroutine and honours its context.
type LimitedPool struct {
	Pool
	sem     *semaphore.Weighted
	timeout time.Duration
}

// Limit wraps p so that at most size transactions are open at once. When no
// slot frees up within timeout, Transaction fails with
// velograph.ErrBackendUnavailable.
func Limit(p Pool, size int, timeout time.Duration) *LimitedPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &LimitedPool{Pool: p, sem: semaphore.NewWeighted(int64(size)), timeout: timeout}
}

// Transaction acquires a slot and opens a transaction holding it until Close.
func (p *LimitedPool) Transaction(ctx context.Context) (Transaction, error) {
	actx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: no connection within %s", velograph.ErrBackendUnavailable, p.timeout)
	}
	tx, err := p.Pool.Transaction(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return &limitedTx{Transaction: tx, release: sync.OnceFunc(func() { p.sem.Release(1) })}, nil
}

// Unwrap returns the wrapped pool.
func (p *LimitedPool) Unwrap() Pool { return p.Pool }

type limitedTx struct {
	Transaction
	release func()
}

func (tx *limitedTx) Close(ctx context.Context) error {
	defer tx.release()
	return tx.Transaction.Close(ctx)
}

// Run opens a transaction on p, calls fn inside it and commits. The
// transaction is rolled back when fn fails, panics or ctx is cancelled;
// rollback uses a context detached from ctx's cancellation so that it still
// reaches the backend.
func Run[T any](ctx context.Context, p Pool, fn func(context.Context, Transaction) (T, error)) (res T, err error) {
	tx, err := p.Transaction(ctx)
	if err != nil {
		return res, err
	}
	defer func() {
		cerr := tx.Close(context.WithoutCancel(ctx))
		if err == nil {
			err = cerr
		}
	}()
	if err := tx.Begin(ctx); err != nil {
		return res, err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(v)
		}
	}()
	res, err = fn(ctx, tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, velograph.ErrTransactionFinished) {
			err = errors.Join(err, &velograph.RollbackError{Err: rerr})
		}
		var zero T
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		var zero T
		return zero, err
	}
	return res, nil
}
