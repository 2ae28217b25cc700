package cypher

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

type tx struct {
	s      Session
	t      ExplicitTx
	done   bool
	closed bool
}

var _ database.Transaction = (*tx)(nil)

func (t *tx) Begin(ctx context.Context) error {
	if t.done {
		return velograph.ErrTransactionFinished
	}
	if t.t != nil {
		return velograph.ErrTxStarted
	}
	et, err := t.s.BeginTransaction(ctx)
	if err != nil {
		if acquireFailed(ctx, err) {
			err = fmt.Errorf("%w: %w", velograph.ErrBackendUnavailable, err)
		}
		return velograph.NewBackendError(Backend, "begin", err)
	}
	t.t = et
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done || t.t == nil {
		return velograph.ErrTransactionFinished
	}
	t.done = true
	return velograph.NewBackendError(Backend, "commit", t.t.Commit(ctx))
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done || t.t == nil {
		return velograph.ErrTransactionFinished
	}
	t.done = true
	return velograph.NewBackendError(Backend, "rollback", t.t.Rollback(ctx))
}

// Close rolls back an open transaction and closes the session.
func (t *tx) Close(ctx context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true
	var errs []error
	if t.t != nil {
		if !t.done {
			errs = append(errs, t.Rollback(ctx))
		}
		errs = append(errs, t.t.Close(ctx))
	}
	errs = append(errs, t.s.Close(ctx))
	t.done = true
	return errors.Join(errs...)
}

func (t *tx) run(ctx context.Context, op string, b *builder) ([]Record, error) {
	if t.done {
		return nil, velograph.ErrTransactionFinished
	}
	var (
		recs []Record
		err  error
	)
	if t.t != nil {
		recs, err = t.t.Run(ctx, b.String(), b.params)
	} else {
		recs, err = t.s.Run(ctx, b.String(), b.params)
	}
	if err != nil {
		return nil, velograph.NewBackendError(Backend, op, err)
	}
	return recs, nil
}

func (t *tx) Exec(ctx context.Context, query string, params map[string]value.Value) (database.QueryResult, error) {
	b := newBuilder()
	native, err := nativeMap(params)
	if err != nil {
		return nil, err
	}
	b.params = native
	b.write(query)
	recs, err := t.run(ctx, "exec", b)
	if err != nil {
		return nil, err
	}
	var res *database.Result
	for _, r := range recs {
		if res == nil {
			res = database.NewResult(r.Keys...)
		}
		cells := make([]any, len(r.Values))
		for i, x := range r.Values {
			if cells[i], err = cell(x); err != nil {
				return nil, err
			}
		}
		res.Append(cells...)
	}
	if res == nil {
		res = database.NewResult()
	}
	return res, nil
}

func (t *tx) CreateNode(ctx context.Context, label string, props map[string]value.Value) (*database.Node, error) {
	fields := maps.Clone(props)
	if fields == nil {
		fields = map[string]value.Value{}
	}
	if id, ok := fields[database.IDField]; !ok || id.IsNull() {
		fields[database.IDField] = value.String(uuid.NewString())
	}
	b, err := createNode(label, fields)
	if err != nil {
		return nil, err
	}
	nodes, err := t.nodes(ctx, "create node", label, b)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, velograph.NewBackendError(Backend, "create node", fmt.Errorf("expected 1 node, got %d", len(nodes)))
	}
	return nodes[0], nil
}

func (t *tx) ReadNodes(ctx context.Context, q *database.NodeQuery) ([]*database.Node, error) {
	if q.ByID && len(q.IDs) == 0 {
		return nil, nil
	}
	b, err := readNodes(q)
	if err != nil {
		return nil, err
	}
	return t.nodes(ctx, "read nodes", q.Label, b)
}

func (t *tx) UpdateNodes(ctx context.Context, q *database.NodeQuery, props map[string]value.Value) ([]*database.Node, error) {
	if q.ByID && len(q.IDs) == 0 {
		return nil, nil
	}
	set := maps.Clone(props)
	delete(set, database.IDField)
	b, err := updateNodes(q, set)
	if err != nil {
		return nil, err
	}
	return t.nodes(ctx, "update nodes", q.Label, b)
}

func (t *tx) DeleteNodes(ctx context.Context, q *database.NodeQuery) (int64, error) {
	if q.ByID && len(q.IDs) == 0 {
		return 0, nil
	}
	b, err := deleteNodes(q)
	if err != nil {
		return 0, err
	}
	return t.count(ctx, "delete nodes", b)
}

func (t *tx) CreateRels(ctx context.Context, c *database.RelCreate) ([]*database.Rel, error) {
	if len(c.SrcIDs) == 0 || len(c.DstIDs) == 0 {
		return nil, nil
	}
	rc := *c
	rc.Props = maps.Clone(c.Props)
	delete(rc.Props, database.IDField)
	b, err := createRels(&rc)
	if err != nil {
		return nil, err
	}
	return t.rels(ctx, "create rels", c.SrcLabel, b)
}

func (t *tx) ReadRels(ctx context.Context, q *database.RelQuery) ([]*database.Rel, error) {
	if empty(q) {
		return nil, nil
	}
	b, err := readRels(q)
	if err != nil {
		return nil, err
	}
	return t.rels(ctx, "read rels", q.SrcLabel, b)
}

func (t *tx) UpdateRels(ctx context.Context, q *database.RelQuery, props map[string]value.Value) ([]*database.Rel, error) {
	if empty(q) {
		return nil, nil
	}
	set := maps.Clone(props)
	delete(set, database.IDField)
	b, err := updateRels(q, set)
	if err != nil {
		return nil, err
	}
	return t.rels(ctx, "update rels", q.SrcLabel, b)
}

func (t *tx) DeleteRels(ctx context.Context, q *database.RelQuery) (int64, error) {
	if empty(q) {
		return 0, nil
	}
	b, err := deleteRels(q)
	if err != nil {
		return 0, err
	}
	return t.count(ctx, "delete rels", b)
}

func empty(q *database.RelQuery) bool {
	return (q.ByID && len(q.IDs) == 0) || (q.BySrc && len(q.SrcIDs) == 0) || (q.ByDst && len(q.DstIDs) == 0)
}

func (t *tx) nodes(ctx context.Context, op, label string, b *builder) ([]*database.Node, error) {
	recs, err := t.run(ctx, op, b)
	if err != nil {
		return nil, err
	}
	out := make([]*database.Node, 0, len(recs))
	for _, r := range recs {
		x, _ := r.Get("n")
		n, ok := x.(dbtype.Node)
		if !ok {
			return nil, velograph.NewBackendError(Backend, op, fmt.Errorf("column n holds %T", x))
		}
		node, err := toNode(label, n)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (t *tx) rels(ctx context.Context, op, srcLabel string, b *builder) ([]*database.Rel, error) {
	recs, err := t.run(ctx, op, b)
	if err != nil {
		return nil, err
	}
	out := make([]*database.Rel, 0, len(recs))
	for _, r := range recs {
		x, _ := r.Get("r")
		rr, ok := x.(dbtype.Relationship)
		if !ok {
			return nil, velograph.NewBackendError(Backend, op, fmt.Errorf("column r holds %T", x))
		}
		rel, err := toRel(srcLabel, rr)
		if err != nil {
			return nil, err
		}
		if rel.Src.ID, err = column(r, "srcID"); err != nil {
			return nil, err
		}
		if rel.Dst.ID, err = column(r, "dstID"); err != nil {
			return nil, err
		}
		label, _ := r.Get("dstLabel")
		rel.Dst.Label, _ = label.(string)
		out = append(out, rel)
	}
	return out, nil
}

func (t *tx) count(ctx context.Context, op string, b *builder) (int64, error) {
	recs, err := t.run(ctx, op, b)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	x, _ := recs[0].Get("count")
	n, ok := x.(int64)
	if !ok {
		return 0, velograph.NewBackendError(Backend, op, fmt.Errorf("count holds %T", x))
	}
	return n, nil
}

func column(r Record, key string) (value.Value, error) {
	x, _ := r.Get(key)
	return fromNative(x)
}
