package engine

import (
	"context"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

func (x *exec) createRelsOp(ctx context.Context, r *schema.Rel, op *Operation) (value.Value, error) {
	if !r.Endpoints.Create {
		return value.Null(), notExposed(r.Names.CreateEndpoint)
	}
	m, err := asMap(op.Input, inputPath)
	if err != nil {
		return value.Null(), err
	}
	if err := onlyKeys(m, inputPath, KeywordMatch, KeywordCreate); err != nil {
		return value.Null(), err
	}
	cp := join(inputPath, KeywordCreate)
	if v, ok := m[KeywordCreate]; !ok || v.IsNull() {
		return value.Null(), velograph.NewInputError(cp, "CREATE is required")
	}
	es, err := elems(m[KeywordCreate], r.List, cp)
	if err != nil {
		return value.Null(), err
	}
	for _, e := range es {
		if err := x.checkRelCreate(r, e, cp); err != nil {
			return value.Null(), err
		}
	}

	f := x.facade(op.Op)
	in, err := x.e.handlers.RunBefore(ctx, op.Input, f)
	if err != nil {
		return value.Null(), err
	}
	if m, err = asMap(in, inputPath); err != nil {
		return value.Null(), err
	}
	st, err := x.e.schema.Type(r.Src)
	if err != nil {
		return value.Null(), err
	}
	srcs, err := x.matchNodes(ctx, st, m[KeywordMatch], join(inputPath, KeywordMatch))
	if err != nil {
		return value.Null(), err
	}
	ids, err := database.NodeIDs(srcs)
	if err != nil {
		return value.Null(), err
	}
	if es, err = elems(m[KeywordCreate], r.List, cp); err != nil {
		return value.Null(), err
	}
	var rels []*database.Rel
	for _, e := range es {
		created, err := x.createRels(ctx, r, ids, e, true, cp)
		if err != nil {
			return value.Null(), err
		}
		rels = append(rels, created...)
	}
	if rels, err = x.e.handlers.RunAfterRels(ctx, rels, f); err != nil {
		return value.Null(), err
	}
	return x.shapeRelList(ctx, r, rels, op.Selection)
}

func (x *exec) readRelsOp(ctx context.Context, r *schema.Rel, op *Operation) (value.Value, error) {
	if !r.Endpoints.Read {
		return value.Null(), notExposed(r.Names.ReadEndpoint)
	}
	f := x.facade(op.Op)
	filter, err := x.e.handlers.RunBefore(ctx, op.Input, f)
	if err != nil {
		return value.Null(), err
	}
	rels, err := x.matchRels(ctx, r, filter, inputPath)
	if err != nil {
		return value.Null(), err
	}
	if rels, err = x.e.handlers.RunAfterRels(ctx, rels, f); err != nil {
		return value.Null(), err
	}
	return x.shapeRelList(ctx, r, rels, op.Selection)
}

func (x *exec) updateRelsOp(ctx context.Context, r *schema.Rel, op *Operation) (value.Value, error) {
	if !r.Endpoints.Update {
		return value.Null(), notExposed(r.Names.UpdateEndpoint)
	}
	if err := x.checkRelUpdate(r, op.Input, inputPath); err != nil {
		return value.Null(), err
	}
	f := x.facade(op.Op)
	in, err := x.e.handlers.RunBefore(ctx, op.Input, f)
	if err != nil {
		return value.Null(), err
	}
	m, err := asMap(in, inputPath)
	if err != nil {
		return value.Null(), err
	}
	q, err := x.relQuery(ctx, r, m[KeywordMatch], join(inputPath, KeywordMatch))
	if err != nil {
		return value.Null(), err
	}
	rels, err := x.updateRels(ctx, r, q, m[KeywordSet], join(inputPath, KeywordSet))
	if err != nil {
		return value.Null(), err
	}
	if rels, err = x.e.handlers.RunAfterRels(ctx, rels, f); err != nil {
		return value.Null(), err
	}
	if rels, err = x.e.handlers.RunAfterRelSubgraph(ctx, rels, f); err != nil {
		return value.Null(), err
	}
	return x.shapeRelList(ctx, r, rels, op.Selection)
}

func (x *exec) deleteRelsOp(ctx context.Context, r *schema.Rel, op *Operation) (value.Value, error) {
	if !r.Endpoints.Delete {
		return value.Null(), notExposed(r.Names.DeleteEndpoint)
	}
	m, err := asMap(op.Input, inputPath)
	if err != nil {
		return value.Null(), err
	}
	if err := onlyKeys(m, inputPath, KeywordMatch); err != nil {
		return value.Null(), err
	}
	f := x.facade(op.Op)
	in, err := x.e.handlers.RunBefore(ctx, op.Input, f)
	if err != nil {
		return value.Null(), err
	}
	if m, err = asMap(in, inputPath); err != nil {
		return value.Null(), err
	}
	rels, err := x.matchRels(ctx, r, m[KeywordMatch], join(inputPath, KeywordMatch))
	if err != nil {
		return value.Null(), err
	}
	var n int64
	if len(rels) > 0 {
		ids, err := relIDs(r, rels)
		if err != nil {
			return value.Null(), err
		}
		if n, err = x.tx.DeleteRels(ctx, database.NewRelQuery(r.Src, r.Name).WithIDs(ids...)); err != nil {
			return value.Null(), err
		}
	}
	if _, err := x.e.handlers.RunAfterRels(ctx, rels, f); err != nil {
		return value.Null(), err
	}
	return value.Int64(n), nil
}

// createRels creates relationships of r from every source to the
// destination of a {props, dst} input: a NEW node created now, or every
// EXISTING node matching a filter. When replace is set, a single-node
// relationship drops the relationships its sources already hold.
func (x *exec) createRels(ctx context.Context, r *schema.Rel, srcIDs []value.Value, in value.Value, replace bool, path string) ([]*database.Rel, error) {
	if len(srcIDs) == 0 {
		return nil, nil
	}
	m, err := asMap(in, path)
	if err != nil {
		return nil, err
	}
	props, err := asMap(m[KeywordProps], join(path, KeywordProps))
	if err != nil {
		return nil, err
	}
	dt, dst, err := x.dst(r, m[KeywordDst], join(path, KeywordDst))
	if err != nil {
		return nil, err
	}
	p := join(join(path, KeywordDst), dt.Name)
	kw, err := choice(dst, p, KeywordNew, KeywordExisting)
	if err != nil {
		return nil, err
	}

	var dstIDs []value.Value
	if kw == KeywordNew {
		f := x.facade(event.Op(event.CreateNode, dt.Name))
		id, _, err := x.createNode(ctx, dt, dst[KeywordNew], f, join(p, KeywordNew))
		if err != nil {
			return nil, err
		}
		dstIDs = []value.Value{id}
	} else {
		nodes, err := x.matchExisting(ctx, dt, dst[KeywordExisting], join(p, KeywordExisting))
		if err != nil {
			return nil, err
		}
		if dstIDs, err = database.NodeIDs(nodes); err != nil {
			return nil, err
		}
	}
	if len(dstIDs) == 0 {
		return nil, nil
	}

	if !r.List {
		if len(dstIDs) > 1 {
			return nil, velograph.NewInputError(p, "matches %d nodes but %s holds one", len(dstIDs), r.FullName)
		}
		if replace {
			if _, err := x.tx.DeleteRels(ctx, database.NewRelQuery(r.Src, r.Name).WithSrcIDs(srcIDs...)); err != nil {
				return nil, err
			}
		}
	}
	rels, err := x.tx.CreateRels(ctx, &database.RelCreate{
		Name:     r.Name,
		SrcLabel: r.Src,
		SrcIDs:   srcIDs,
		DstLabel: dt.Name,
		DstIDs:   dstIDs,
		Props:    props,
	})
	if err != nil {
		return nil, err
	}
	x.normalizeRels(r, rels)
	return rels, nil
}

// createNestedRels creates the relationships of r declared inside a node
// create or update, running the relationship create hooks of r on the
// {props, dst} input.
func (x *exec) createNestedRels(ctx context.Context, r *schema.Rel, srcIDs []value.Value, in value.Value, replace bool, path string) error {
	f := x.facade(event.Op(event.CreateRel, r.FullName))
	in, err := x.e.handlers.RunBefore(ctx, in, f)
	if err != nil {
		return err
	}
	rels, err := x.createRels(ctx, r, srcIDs, in, replace, path)
	if err != nil {
		return err
	}
	_, err = x.e.handlers.RunAfterRels(ctx, rels, f)
	return err
}

// changeRels applies {ADD, UPDATE, DELETE} to the relationships of r
// starting at srcIDs. Each change runs the hooks of its own kind.
func (x *exec) changeRels(ctx context.Context, r *schema.Rel, srcIDs []value.Value, in value.Value, path string) error {
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	if v, ok := m[KeywordAdd]; ok {
		if err := x.createNestedRels(ctx, r, srcIDs, v, true, join(path, KeywordAdd)); err != nil {
			return err
		}
	}
	if v, ok := m[KeywordUpdate]; ok {
		p := join(path, KeywordUpdate)
		f := x.facade(event.Op(event.UpdateRel, r.FullName))
		if v, err = x.e.handlers.RunBefore(ctx, v, f); err != nil {
			return err
		}
		um, err := asMap(v, p)
		if err != nil {
			return err
		}
		q, err := x.relQuery(ctx, r, um[KeywordMatch], join(p, KeywordMatch))
		if err != nil {
			return err
		}
		restrictSrc(q, srcIDs)
		rels, err := x.updateRels(ctx, r, q, um[KeywordSet], join(p, KeywordSet))
		if err != nil {
			return err
		}
		if _, err := x.e.handlers.RunAfterRels(ctx, rels, f); err != nil {
			return err
		}
	}
	if v, ok := m[KeywordDelete]; ok {
		p := join(path, KeywordDelete)
		f := x.facade(event.Op(event.DeleteRel, r.FullName))
		if v, err = x.e.handlers.RunBefore(ctx, v, f); err != nil {
			return err
		}
		dm, err := asMap(v, p)
		if err != nil {
			return err
		}
		q, err := x.relQuery(ctx, r, dm[KeywordMatch], join(p, KeywordMatch))
		if err != nil {
			return err
		}
		restrictSrc(q, srcIDs)
		var rels []*database.Rel
		if x.e.handlers.HasAfter(f.Op()) {
			if rels, err = x.readRels(ctx, r, q); err != nil {
				return err
			}
		}
		if _, err := x.tx.DeleteRels(ctx, q); err != nil {
			return err
		}
		if _, err := x.e.handlers.RunAfterRels(ctx, rels, f); err != nil {
			return err
		}
	}
	return nil
}

// updateRels applies {props} to the relationships matching q.
func (x *exec) updateRels(ctx context.Context, r *schema.Rel, q *database.RelQuery, set value.Value, path string) ([]*database.Rel, error) {
	sm, err := asMap(set, path)
	if err != nil {
		return nil, err
	}
	props, err := asMap(sm[KeywordProps], join(path, KeywordProps))
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return x.readRels(ctx, r, q)
	}
	rels, err := x.tx.UpdateRels(ctx, q, props)
	if err != nil {
		return nil, err
	}
	x.normalizeRels(r, rels)
	return rels, nil
}
