package engine

import (
	"context"
	"slices"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

// nodeQuery compiles a node filter
//
//	{id: {OP: v}, prop: {OP: v}, rel: RelFilter}
//
// into a query on t. Relationship filters become nested queries on backends
// with traversal support; otherwise each is resolved now into the set of
// matching source identifiers.
func (x *exec) nodeQuery(ctx context.Context, t *schema.Type, filter value.Value, path string) (*database.NodeQuery, error) {
	q := database.NewNodeQuery(t.Name)
	m, err := asMap(filter, path)
	if err != nil {
		return nil, err
	}
	for _, k := range value.Map(m).Keys() {
		v, p := m[k], join(path, k)
		switch {
		case k == database.IDField:
			ids, by, preds, err := idFilter(v, true, p)
			if err != nil {
				return nil, err
			}
			if by {
				restrictNodes(q, ids)
			}
			q.Where(preds...)
		case t.HasRel(k):
			r, _ := t.Rel(k)
			rq, err := x.relQuery(ctx, r, v, p)
			if err != nil {
				return nil, err
			}
			if x.e.caps.Traversal {
				q.Rels = append(q.Rels, rq)
				continue
			}
			if q.ByID {
				rq.SrcIDs = intersect(rq.SrcIDs, rq.BySrc, q.IDs)
				rq.BySrc = true
			}
			rels, err := x.readRels(ctx, r, rq)
			if err != nil {
				return nil, err
			}
			srcs := make([]value.Value, len(rels))
			for i, rel := range rels {
				srcs[i] = rel.Src.ID
			}
			restrictNodes(q, srcs)
		default:
			prop, err := t.Prop(k)
			if err != nil {
				return nil, velograph.NewInputError(p, "unknown field")
			}
			preds, err := propFilter(prop, v, p)
			if err != nil {
				return nil, err
			}
			q.Where(preds...)
		}
	}
	return q, nil
}

// relQuery compiles a relationship filter
//
//	{id: {EQ|IN: v}, props: {prop: {OP: v}}, src: {SrcType: filter}, dst: {DstType: filter}}
//
// into a query on r. Several destination types match when any of them does.
func (x *exec) relQuery(ctx context.Context, r *schema.Rel, filter value.Value, path string) (*database.RelQuery, error) {
	q := database.NewRelQuery(r.Src, r.Name)
	m, err := asMap(filter, path)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(m, path, database.IDField, KeywordProps, KeywordSrc, KeywordDst); err != nil {
		return nil, err
	}

	if v, ok := m[database.IDField]; ok {
		ids, by, _, err := idFilter(v, false, join(path, database.IDField))
		if err != nil {
			return nil, err
		}
		if by {
			q.WithIDs(ids...)
		}
	}

	if v, ok := m[KeywordProps]; ok {
		pp := join(path, KeywordProps)
		pm, err := asMap(v, pp)
		if err != nil {
			return nil, err
		}
		for _, k := range value.Map(pm).Keys() {
			prop, err := r.Prop(k)
			if err != nil {
				return nil, velograph.NewInputError(join(pp, k), "unknown field")
			}
			preds, err := propFilter(prop, pm[k], join(pp, k))
			if err != nil {
				return nil, err
			}
			q.Predicates = append(q.Predicates, preds...)
		}
	}

	if v, ok := m[KeywordSrc]; ok {
		sp := join(path, KeywordSrc)
		sm, err := asMap(v, sp)
		if err != nil {
			return nil, err
		}
		for _, typ := range value.Map(sm).Keys() {
			if typ != r.Src {
				return nil, velograph.NewInputError(join(sp, typ), "%s is not the source of %s", typ, r.FullName)
			}
			st, err := x.e.schema.Type(typ)
			if err != nil {
				return nil, err
			}
			sq, err := x.nodeQuery(ctx, st, sm[typ], join(sp, typ))
			if err != nil {
				return nil, err
			}
			if x.e.caps.Traversal {
				q.Src = sq
				continue
			}
			ids, err := x.queryIDs(ctx, st, sq)
			if err != nil {
				return nil, err
			}
			q.SrcIDs = intersect(q.SrcIDs, q.BySrc, ids)
			q.BySrc = true
		}
	}

	if v, ok := m[KeywordDst]; ok {
		dp := join(path, KeywordDst)
		dm, err := asMap(v, dp)
		if err != nil {
			return nil, err
		}
		var ids []value.Value
		for _, typ := range value.Map(dm).Keys() {
			if !r.AllowsDst(typ) {
				return nil, velograph.NewInputError(join(dp, typ), "%s is not a destination of %s", typ, r.FullName)
			}
			dt, err := x.e.schema.Type(typ)
			if err != nil {
				return nil, err
			}
			dq, err := x.nodeQuery(ctx, dt, dm[typ], join(dp, typ))
			if err != nil {
				return nil, err
			}
			q.DstLabels = append(q.DstLabels, typ)
			if x.e.caps.Traversal {
				q.Dst = append(q.Dst, dq)
				continue
			}
			found, err := x.queryIDs(ctx, dt, dq)
			if err != nil {
				return nil, err
			}
			ids = append(ids, found...)
		}
		if !x.e.caps.Traversal && len(dm) > 0 {
			q.WithDstIDs(ids...)
		}
	}
	return q, nil
}

func (x *exec) queryIDs(ctx context.Context, t *schema.Type, q *database.NodeQuery) ([]value.Value, error) {
	nodes, err := x.tx.ReadNodes(ctx, q)
	if err != nil {
		return nil, err
	}
	x.normalizeNodes(t, nodes)
	return database.NodeIDs(nodes)
}

// idFilter compiles an identifier comparison. EQ and IN restrict the match
// to a set of identifiers; the other operators become predicates, which
// only node identifiers accept.
func idFilter(v value.Value, node bool, path string) ([]value.Value, bool, []database.Predicate, error) {
	m, err := asMap(v, path)
	if err != nil {
		return nil, false, nil, err
	}
	var (
		ids   []value.Value
		by    bool
		preds []database.Predicate
	)
	for _, k := range value.Map(m).Keys() {
		arg, p := m[k], join(path, k)
		switch op := config.Operator(k); op {
		case config.EQ:
			ids, by = intersect(ids, by, []value.Value{arg}), true
		case config.IN:
			arr, err := operandList(arg, p)
			if err != nil {
				return nil, false, nil, err
			}
			ids, by = intersect(ids, by, arr), true
		default:
			if !slices.Contains(config.Operators, op) {
				return nil, false, nil, velograph.NewInputError(p, "unknown operator")
			}
			if !node {
				return nil, false, nil, velograph.NewInputError(p, "relationship identifiers only support EQ and IN")
			}
			preds = append(preds, database.Predicate{Prop: database.IDField, Op: op, Value: arg})
		}
	}
	return ids, by, preds, nil
}

// propFilter compiles {OP: v} on prop into predicates.
func propFilter(prop *schema.Prop, v value.Value, path string) ([]database.Predicate, error) {
	if prop.Computed() {
		return nil, velograph.NewInputError(path, "%s is computed and cannot be filtered", prop.Name)
	}
	m, err := asMap(v, path)
	if err != nil {
		return nil, err
	}
	preds := make([]database.Predicate, 0, len(m))
	for _, k := range value.Map(m).Keys() {
		arg, p := m[k], join(path, k)
		op := config.Operator(k)
		if !slices.Contains(config.Operators, op) {
			return nil, velograph.NewInputError(p, "unknown operator")
		}
		if !prop.Allows(op) {
			return nil, velograph.NewInputError(p, "operator %s is not allowed on %s", op, prop.Name)
		}
		if err := checkOperand(prop, op, arg, p); err != nil {
			return nil, err
		}
		if op == config.IN || op == config.NOTIN {
			arr, _ := operandList(arg, p)
			arg = value.Array(arr...)
		}
		preds = append(preds, database.Predicate{Prop: prop.Name, Op: op, Value: arg})
	}
	return preds, nil
}

// checkOperand checks the value compared with prop. Scalar comparisons take
// an element of the property type; EQ and NOTEQ on a list property take a
// whole list.
func checkOperand(prop *schema.Prop, op config.Operator, arg value.Value, path string) error {
	scalar := func(v value.Value) error {
		if v.IsNull() || schema.AcceptsScalar(prop.Type, v) {
			return nil
		}
		return velograph.NewInputError(path, "expected %s, got %s", prop.Type, v.Kind())
	}
	switch op {
	case config.IN, config.NOTIN:
		arr, err := operandList(arg, path)
		if err != nil {
			return err
		}
		for _, e := range arr {
			if err := scalar(e); err != nil {
				return err
			}
		}
		return nil
	case config.EQ, config.NOTEQ:
		if prop.List && arg.Kind() == value.KindArray {
			if !prop.Accepts(arg) {
				return velograph.NewInputError(path, "expected %s, got %s", typeString(prop), arg)
			}
			return nil
		}
	}
	return scalar(arg)
}

func operandList(v value.Value, path string) ([]value.Value, error) {
	if v.IsNull() {
		return []value.Value{}, nil
	}
	arr, err := v.AsArray()
	if err != nil {
		return nil, velograph.NewInputError(path, "expected a list, got %s", v.Kind())
	}
	return arr, nil
}

// restrictNodes narrows q to ids, intersecting any earlier restriction.
func restrictNodes(q *database.NodeQuery, ids []value.Value) {
	q.WithIDs(intersect(q.IDs, q.ByID, ids)...)
}

// restrictSrc narrows q to relationships starting at ids.
func restrictSrc(q *database.RelQuery, ids []value.Value) {
	q.WithSrcIDs(intersect(q.SrcIDs, q.BySrc, ids)...)
}

// intersect returns ids when no restriction is in place, and the members of
// have also in ids otherwise. Duplicates are dropped.
func intersect(have []value.Value, by bool, ids []value.Value) []value.Value {
	seen := make(map[string]bool, len(ids))
	out := make([]value.Value, 0, len(ids))
	if !by {
		for _, id := range ids {
			if k := database.IDKey(id); !seen[k] {
				seen[k] = true
				out = append(out, id)
			}
		}
		return out
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[database.IDKey(id)] = true
	}
	for _, id := range have {
		if k := database.IDKey(id); keep[k] && !seen[k] {
			seen[k] = true
			out = append(out, id)
		}
	}
	return out
}
