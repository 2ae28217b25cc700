package gremlin

import (
	"context"
	"fmt"
	"maps"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

type tx struct {
	pool    *Pool
	sub     Submitter
	session bool
	begun   bool
	done    bool
}

var _ database.Transaction = (*tx)(nil)

func (t *tx) Begin(context.Context) error {
	if t.done {
		return velograph.ErrTransactionFinished
	}
	if t.begun {
		return velograph.ErrTxStarted
	}
	if t.pool.opts.Sessions {
		s, err := t.pool.dial(newID())
		if err != nil {
			return fmt.Errorf("%w: %v", velograph.ErrBackendUnavailable, err)
		}
		t.sub, t.session = s, true
	}
	t.begun = true
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done || !t.begun {
		return velograph.ErrTransactionFinished
	}
	t.done = true
	if !t.session {
		return nil
	}
	_, err := t.sub.Submit(ctx, "g.tx().commit()", nil)
	return velograph.NewBackendError(Backend, "commit", err)
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done || !t.begun {
		return velograph.ErrTransactionFinished
	}
	t.done = true
	if !t.session {
		t.pool.opts.Logger.WarnContext(ctx, "rollback not possible without sessions", "backend", Backend)
		return nil
	}
	_, err := t.sub.Submit(ctx, "g.tx().rollback()", nil)
	return velograph.NewBackendError(Backend, "rollback", err)
}

func (t *tx) Close(ctx context.Context) error {
	var err error
	if t.begun && !t.done {
		err = t.Rollback(ctx)
	}
	t.done = true
	if t.session && t.sub != nil {
		t.sub.Close()
		t.sub = nil
	}
	return err
}

func (t *tx) submit(ctx context.Context, op string, s *script) ([]any, error) {
	if t.done {
		return nil, velograph.ErrTransactionFinished
	}
	if t.sub == nil {
		return nil, fmt.Errorf("%w: no client", velograph.ErrBackendUnavailable)
	}
	res, err := t.sub.Submit(ctx, s.String(), s.bindings)
	if err != nil {
		return nil, velograph.NewBackendError(Backend, op, err)
	}
	return res, nil
}

// Exec submits a native script. Each result becomes one row of column
// "result"; node and edge projections as produced by this package are
// decoded.
func (t *tx) Exec(ctx context.Context, query string, params map[string]value.Value) (database.QueryResult, error) {
	s := newScript()
	for _, k := range sortedKeys(params) {
		x, err := toNative(params[k])
		if err != nil {
			return nil, err
		}
		s.bindings[k] = x
	}
	s.write(query)
	rows, err := t.submit(ctx, "exec", s)
	if err != nil {
		return nil, err
	}
	res := database.NewResult("result")
	for _, x := range rows {
		if p, err := asProjected(x); err == nil {
			if _, ok := p["nID"]; ok {
				n, err := toNode(x)
				if err != nil {
					return nil, err
				}
				res.Append(n)
				continue
			}
		}
		v, err := fromNative(x)
		if err != nil {
			return nil, err
		}
		res.Append(v)
	}
	return res, nil
}

func (t *tx) CreateNode(ctx context.Context, label string, props map[string]value.Value) (*database.Node, error) {
	s := newScript()
	s.write("g.addV(", lit(label), ")")
	id, ok := props[database.IDField]
	if (!ok || id.IsNull()) && t.pool.opts.UUID {
		id, ok = value.String(newID()), true
	}
	if ok && !id.IsNull() {
		b, err := s.bind(id)
		if err != nil {
			return nil, err
		}
		s.write(".property(T.id,", b, ")")
		if t.pool.opts.Partition {
			s.write(".property(", lit(PartitionKey), ",", b, ")")
		}
	}
	if err := s.properties(props, true, false); err != nil {
		return nil, err
	}
	s.write(nodeProjection)
	nodes, err := t.nodes(ctx, "create node", s)
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
	s := newScript()
	if err := s.vertices(q); err != nil {
		return nil, err
	}
	s.write(nodeProjection)
	return t.nodes(ctx, "read nodes", s)
}

func (t *tx) UpdateNodes(ctx context.Context, q *database.NodeQuery, props map[string]value.Value) ([]*database.Node, error) {
	if q.ByID && len(q.IDs) == 0 {
		return nil, nil
	}
	s := newScript()
	if err := s.vertices(q); err != nil {
		return nil, err
	}
	if err := s.properties(props, true, true); err != nil {
		return nil, err
	}
	s.write(nodeProjection)
	return t.nodes(ctx, "update nodes", s)
}

func (t *tx) DeleteNodes(ctx context.Context, q *database.NodeQuery) (int64, error) {
	if q.ByID && len(q.IDs) == 0 {
		return 0, nil
	}
	s := newScript()
	if err := s.vertices(q); err != nil {
		return 0, err
	}
	s.write(".sideEffect(drop()).count()")
	return t.count(ctx, "delete nodes", s)
}

// CreateRels submits one traversal per source and destination pair so that
// every edge may carry its own identifier.
func (t *tx) CreateRels(ctx context.Context, c *database.RelCreate) ([]*database.Rel, error) {
	props := maps.Clone(c.Props)
	delete(props, database.IDField)
	var out []*database.Rel
	for _, src := range c.SrcIDs {
		for _, dst := range c.DstIDs {
			s := newScript()
			sb, err := s.bind(src)
			if err != nil {
				return nil, err
			}
			db, err := s.bind(dst)
			if err != nil {
				return nil, err
			}
			s.write("g.V(", sb, ").hasLabel(", lit(c.SrcLabel), ").as('src')",
				".V(", db, ").hasLabel(", lit(c.DstLabel), ")",
				".addE(", lit(c.Name), ").from('src')")
			if t.pool.opts.UUID {
				b, _ := s.bind(value.String(newID()))
				s.write(".property(T.id,", b, ")")
			}
			if err := s.properties(props, false, false); err != nil {
				return nil, err
			}
			s.write(relProjection)
			rels, err := t.rels(ctx, "create rels", c.Name, s)
			if err != nil {
				return nil, err
			}
			out = append(out, rels...)
		}
	}
	return out, nil
}

func (t *tx) ReadRels(ctx context.Context, q *database.RelQuery) ([]*database.Rel, error) {
	if empty(q) {
		return nil, nil
	}
	s := newScript()
	if err := s.edges(q); err != nil {
		return nil, err
	}
	s.write(relProjection)
	return t.rels(ctx, "read rels", q.Name, s)
}

func (t *tx) UpdateRels(ctx context.Context, q *database.RelQuery, props map[string]value.Value) ([]*database.Rel, error) {
	if empty(q) {
		return nil, nil
	}
	s := newScript()
	if err := s.edges(q); err != nil {
		return nil, err
	}
	if err := s.properties(props, false, true); err != nil {
		return nil, err
	}
	s.write(relProjection)
	return t.rels(ctx, "update rels", q.Name, s)
}

func (t *tx) DeleteRels(ctx context.Context, q *database.RelQuery) (int64, error) {
	if empty(q) {
		return 0, nil
	}
	s := newScript()
	if err := s.edges(q); err != nil {
		return 0, err
	}
	s.write(".sideEffect(drop()).count()")
	return t.count(ctx, "delete rels", s)
}

func empty(q *database.RelQuery) bool {
	return (q.ByID && len(q.IDs) == 0) || (q.BySrc && len(q.SrcIDs) == 0) || (q.ByDst && len(q.DstIDs) == 0)
}

func (t *tx) nodes(ctx context.Context, op string, s *script) ([]*database.Node, error) {
	rows, err := t.submit(ctx, op, s)
	if err != nil {
		return nil, err
	}
	out := make([]*database.Node, 0, len(rows))
	for _, x := range rows {
		n, err := toNode(x)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (t *tx) rels(ctx context.Context, op, name string, s *script) ([]*database.Rel, error) {
	rows, err := t.submit(ctx, op, s)
	if err != nil {
		return nil, err
	}
	out := make([]*database.Rel, 0, len(rows))
	for _, x := range rows {
		r, err := toRel(name, x)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *tx) count(ctx context.Context, op string, s *script) (int64, error) {
	rows, err := t.submit(ctx, op, s)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	v, err := fromNative(rows[0])
	if err != nil {
		return 0, err
	}
	n, err := v.AsInt64()
	if err != nil {
		return 0, velograph.NewBackendError(Backend, op, err)
	}
	return n, nil
}
