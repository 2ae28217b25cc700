package engine

import (
	"context"
	"fmt"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/contrib/dataloader"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/resolver"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

const typename = "__typename"

func selectionPath(owner string) string { return join("selection", owner) }

func (x *exec) shapeList(ctx context.Context, t *schema.Type, nodes []*database.Node, sel []*Selection) (value.Value, error) {
	vs, err := x.shapeNodes(ctx, t, nodes, sel)
	if err != nil {
		return value.Null(), err
	}
	return value.Array(vs...), nil
}

// shapeNodes builds the result object of every node of type t. Relationship
// fields are loaded for all nodes at once.
func (x *exec) shapeNodes(ctx context.Context, t *schema.Type, nodes []*database.Node, sel []*Selection) ([]value.Value, error) {
	outs := make([]map[string]value.Value, len(nodes))
	for i := range outs {
		outs[i] = make(map[string]value.Value, len(sel))
	}
	for _, s := range sel {
		if !s.applies(t.Name) {
			continue
		}
		key := s.Key()
		switch {
		case s.Name == typename:
			for i := range outs {
				outs[i][key] = value.String(t.Name)
			}
		case s.Name == database.IDField:
			for i, n := range nodes {
				id, err := n.ID()
				if err != nil {
					return nil, err
				}
				outs[i][key] = id
			}
		case t.HasRel(s.Name):
			r, _ := t.Rel(s.Name)
			vs, err := x.shapeRelField(ctx, r, nodes, s)
			if err != nil {
				return nil, err
			}
			for i, v := range vs {
				outs[i][key] = v
			}
		default:
			p, err := t.Prop(s.Name)
			if err != nil || !p.Uses.Output {
				return nil, velograph.NewInputError(selectionPath(t.Name), "unknown field %q", s.Name)
			}
			for i, n := range nodes {
				v, err := x.propValue(ctx, t.Name, p, s, n.Fields, n, nil)
				if err != nil {
					return nil, err
				}
				outs[i][key] = v
			}
		}
	}
	vs := make([]value.Value, len(outs))
	for i, o := range outs {
		vs[i] = value.Map(o)
	}
	return vs, nil
}

// propValue returns the value of a stored or computed property. List
// properties stored as Null come out as empty lists.
func (x *exec) propValue(ctx context.Context, owner string, p *schema.Prop, s *Selection, fields map[string]value.Value, parent *database.Node, parentRel *database.Rel) (value.Value, error) {
	v := fields[p.Name]
	if p.Computed() {
		res, err := x.resolve(ctx, p.Resolver, &resolver.Facade{
			TypeName:  owner,
			FieldName: p.Name,
			Args:      s.Args,
			Parent:    parent,
			ParentRel: parentRel,
		})
		if err != nil {
			return value.Null(), err
		}
		if v, err = toValue(res); err != nil {
			return value.Null(), err
		}
	}
	if p.List {
		v = value.NormalizeList(v)
	}
	return v, nil
}

// shapeRelField resolves relationship field r of every node. Stored
// relationships are read in one query for all the nodes, filtered by the
// field's input argument, and run the relationship read hooks.
func (x *exec) shapeRelField(ctx context.Context, r *schema.Rel, nodes []*database.Node, s *Selection) ([]value.Value, error) {
	groups := make([][]*database.Rel, len(nodes))
	if r.Resolver != "" {
		for i, n := range nodes {
			res, err := x.resolve(ctx, r.Resolver, &resolver.Facade{
				TypeName:  r.Src,
				FieldName: r.Name,
				Args:      s.Args,
				Parent:    n,
			})
			if err != nil {
				return nil, err
			}
			if groups[i], err = toRels(res); err != nil {
				return nil, err
			}
		}
	} else if len(nodes) > 0 {
		ids, err := database.NodeIDs(nodes)
		if err != nil {
			return nil, err
		}
		f := x.facade(event.Op(event.ReadRel, r.FullName))
		filter, err := x.e.handlers.RunBefore(ctx, s.arg(inputPath), f)
		if err != nil {
			return nil, err
		}
		q, err := x.relQuery(ctx, r, filter, join(selectionPath(r.Src), r.Name))
		if err != nil {
			return nil, err
		}
		restrictSrc(q, ids)
		rels, err := x.readRels(ctx, r, q)
		if err != nil {
			return nil, err
		}
		if rels, err = x.e.handlers.RunAfterRels(ctx, rels, f); err != nil {
			return nil, err
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = database.IDKey(id)
		}
		bySrc := dataloader.GroupByKey(rels, func(rel *database.Rel) string { return database.IDKey(rel.Src.ID) })
		groups = dataloader.OrderGroupsByKeys(keys, bySrc)
	}

	var all []*database.Rel
	for _, g := range groups {
		all = append(all, g...)
	}
	shaped, err := x.shapeRels(ctx, r, all, s.Fields)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(nodes))
	off := 0
	for i, g := range groups {
		part := shaped[off : off+len(g)]
		off += len(g)
		switch {
		case r.List:
			out[i] = value.Array(part...)
		case len(part) > 0:
			out[i] = part[0]
		default:
			out[i] = value.Null()
		}
	}
	return out, nil
}

func (x *exec) shapeRelList(ctx context.Context, r *schema.Rel, rels []*database.Rel, sel []*Selection) (value.Value, error) {
	vs, err := x.shapeRels(ctx, r, rels, sel)
	if err != nil {
		return value.Null(), err
	}
	return value.Array(vs...), nil
}

// shapeRels builds the result object of every relationship:
// {__typename, id, props, src, dst}.
func (x *exec) shapeRels(ctx context.Context, r *schema.Rel, rels []*database.Rel, sel []*Selection) ([]value.Value, error) {
	outs := make([]map[string]value.Value, len(rels))
	for i := range outs {
		outs[i] = make(map[string]value.Value, len(sel))
	}
	for _, s := range sel {
		key := s.Key()
		switch s.Name {
		case typename:
			for i := range outs {
				outs[i][key] = value.String(r.Names.Object)
			}
		case database.IDField:
			for i, rel := range rels {
				if rel.ID.IsNull() {
					return nil, &velograph.MissingIdentifierError{Type: r.FullName}
				}
				outs[i][key] = rel.ID
			}
		case KeywordProps:
			for i, rel := range rels {
				v, err := x.shapeRelProps(ctx, r, rel, s.Fields)
				if err != nil {
					return nil, err
				}
				outs[i][key] = v
			}
		case KeywordSrc, KeywordDst:
			refs := make([]database.NodeRef, len(rels))
			for i, rel := range rels {
				if s.Name == KeywordSrc {
					refs[i] = rel.Src
				} else {
					refs[i] = rel.Dst
				}
			}
			vs, err := x.shapeRefs(ctx, refs, s.Fields)
			if err != nil {
				return nil, err
			}
			for i, v := range vs {
				outs[i][key] = v
			}
		default:
			return nil, velograph.NewInputError(selectionPath(r.Names.Object), "unknown field %q", s.Name)
		}
	}
	vs := make([]value.Value, len(outs))
	for i, o := range outs {
		vs[i] = value.Map(o)
	}
	return vs, nil
}

func (x *exec) shapeRelProps(ctx context.Context, r *schema.Rel, rel *database.Rel, sel []*Selection) (value.Value, error) {
	out := make(map[string]value.Value, len(sel))
	for _, s := range sel {
		if s.Name == typename {
			out[s.Key()] = value.String(r.Names.Props)
			continue
		}
		p, err := r.Prop(s.Name)
		if err != nil || !p.Uses.Output {
			return value.Null(), velograph.NewInputError(selectionPath(r.Names.Props), "unknown field %q", s.Name)
		}
		v, err := x.propValue(ctx, r.FullName, p, s, rel.Props, nil, rel)
		if err != nil {
			return value.Null(), err
		}
		out[s.Key()] = v
	}
	return value.Map(out), nil
}

// shapeRefs loads and shapes the nodes at the end of relationships, batched
// per type. A node hidden by a read hook, or gone, shapes to Null.
func (x *exec) shapeRefs(ctx context.Context, refs []database.NodeRef, sel []*Selection) ([]value.Value, error) {
	out := make([]value.Value, len(refs))
	var labels []string
	byLabel := make(map[string][]int)
	for i, ref := range refs {
		if _, ok := byLabel[ref.Label]; !ok {
			labels = append(labels, ref.Label)
		}
		byLabel[ref.Label] = append(byLabel[ref.Label], i)
	}
	for _, label := range labels {
		t, err := x.e.schema.Type(label)
		if err != nil {
			return nil, err
		}
		is := byLabel[label]
		keys := make([]string, len(is))
		for j, i := range is {
			k := database.IDKey(refs[i].ID)
			x.ids[k] = refs[i].ID
			keys[j] = k
		}
		got, _, err := x.loader(t).LoadMany(ctx, keys)
		if err != nil {
			return nil, err
		}
		var (
			nodes []*database.Node
			at    []int
		)
		for j, i := range is {
			n := refs[i].Node
			if n == nil {
				n = got[j]
			}
			if n != nil {
				nodes = append(nodes, n)
				at = append(at, i)
			}
		}
		vs, err := x.shapeNodes(ctx, t, nodes, sel)
		if err != nil {
			return nil, err
		}
		for j, i := range at {
			out[i] = vs[j]
		}
	}
	return out, nil
}

// loader returns the node loader of t. Loaded nodes run the node read hooks.
func (x *exec) loader(t *schema.Type) *dataloader.Loader[string, *database.Node] {
	if l, ok := x.loaders[t.Name]; ok {
		return l
	}
	f := x.facade(event.Op(event.ReadNode, t.Name))
	l := dataloader.NewLoader(func(ctx context.Context, keys []string) ([]*database.Node, error) {
		ids := make([]value.Value, len(keys))
		for i, k := range keys {
			ids[i] = x.ids[k]
		}
		nodes, err := x.tx.ReadNodes(ctx, database.NewNodeQuery(t.Name).WithIDs(ids...))
		if err != nil {
			return nil, err
		}
		x.normalizeNodes(t, nodes)
		return x.e.handlers.RunAfterNodes(ctx, nodes, f)
	}, func(n *database.Node) string {
		id, _ := n.ID()
		return database.IDKey(id)
	})
	x.loaders[t.Name] = l
	return l
}

// toValue converts a resolver result for a scalar or custom field.
func toValue(res any) (value.Value, error) {
	switch res.(type) {
	case *database.Node, []*database.Node, *database.Rel, []*database.Rel:
		return value.Null(), velograph.NewTypeConversionError(fmt.Sprintf("%T", res), "value")
	}
	return value.FromAny(res)
}

// toRels converts a resolver result for a relationship field.
func toRels(res any) ([]*database.Rel, error) {
	switch v := res.(type) {
	case nil:
		return nil, nil
	case *database.Rel:
		if v == nil {
			return nil, nil
		}
		return []*database.Rel{v}, nil
	case []*database.Rel:
		return v, nil
	case value.Value:
		if v.IsNull() {
			return nil, nil
		}
	}
	return nil, velograph.NewTypeConversionError(fmt.Sprintf("%T", res), "relationship")
}
