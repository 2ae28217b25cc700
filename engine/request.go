package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/value"
)

// Request is the scope of one client request. It carries the request
// context value produced by the factory and the before_request hooks. A
// request may execute several operations, each in its own transaction.
type Request struct {
	e    *Engine
	rctx any
}

// NewRequest starts a request: it creates the request context value and runs
// the before_request hooks with md.
func (e *Engine) NewRequest(ctx context.Context, md event.Metadata) (*Request, error) {
	var rctx any
	if e.newCtx != nil {
		rctx = e.newCtx()
	}
	rctx, err := e.handlers.RunBeforeRequest(ctx, rctx, md)
	if err != nil {
		return nil, err
	}
	return &Request{e: e, rctx: rctx}, nil
}

// Context returns the request context value.
func (r *Request) Context() any { return r.rctx }

// Execute runs one top-level operation in its own transaction.
func (r *Request) Execute(ctx context.Context, op *Operation) (out value.Value, err error) {
	kind, name := op.labels()
	backend := r.e.caps.Backend
	ctx, span := tracer.Start(ctx, "velograph.engine.execute",
		trace.WithAttributes(
			attribute.String("velograph.op", kind),
			attribute.String("velograph.name", name),
			attribute.String("velograph.backend", backend),
		),
	)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		operationsTotal.WithLabelValues(kind, name, backend, outcome).Inc()
		operationDuration.WithLabelValues(kind, name, backend).Observe(elapsed.Seconds())
		r.e.logger.DebugContext(ctx, "operation executed",
			"op", kind,
			"name", name,
			"backend", backend,
			"duration", elapsed,
			"error", err,
		)
		span.End()
	}()

	return database.Run(ctx, r.e.pool, func(ctx context.Context, tx database.Transaction) (value.Value, error) {
		return r.exec(tx).run(ctx, op)
	})
}

// Finish runs the after_request hooks on the request output.
func (r *Request) Finish(ctx context.Context, out value.Value) (value.Value, error) {
	return r.e.handlers.RunAfterRequest(ctx, r.rctx, out)
}

// Execute runs op as a request of its own.
func (e *Engine) Execute(ctx context.Context, md event.Metadata, op *Operation) (value.Value, error) {
	r, err := e.NewRequest(ctx, md)
	if err != nil {
		return value.Null(), err
	}
	out, err := r.Execute(ctx, op)
	if err != nil {
		return value.Null(), err
	}
	return r.Finish(ctx, out)
}
