package engine

import (
	"context"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/contrib/dataloader"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

const inputPath = "input"

func (x *exec) createNodeOp(ctx context.Context, t *schema.Type, op *Operation) (value.Value, error) {
	if !t.Endpoints.Create {
		return value.Null(), notExposed(t.Names.CreateEndpoint)
	}
	if err := x.checkCreate(t, op.Input, inputPath); err != nil {
		return value.Null(), err
	}
	f := x.facade(op.Op)
	_, nodes, err := x.createNode(ctx, t, op.Input, f, inputPath)
	if err != nil {
		return value.Null(), err
	}
	if nodes, err = x.e.handlers.RunAfterNodeSubgraph(ctx, nodes, f); err != nil || len(nodes) == 0 {
		return value.Null(), err
	}
	out, err := x.shapeNodes(ctx, t, nodes[:1], op.Selection)
	if err != nil {
		return value.Null(), err
	}
	return out[0], nil
}

func (x *exec) readNodesOp(ctx context.Context, t *schema.Type, op *Operation) (value.Value, error) {
	if !t.Endpoints.Read {
		return value.Null(), notExposed(t.Names.ReadEndpoint)
	}
	f := x.facade(op.Op)
	filter, err := x.e.handlers.RunBefore(ctx, op.Input, f)
	if err != nil {
		return value.Null(), err
	}
	nodes, err := x.matchNodes(ctx, t, filter, inputPath)
	if err != nil {
		return value.Null(), err
	}
	if nodes, err = x.e.handlers.RunAfterNodes(ctx, nodes, f); err != nil {
		return value.Null(), err
	}
	return x.shapeList(ctx, t, nodes, op.Selection)
}

func (x *exec) updateNodesOp(ctx context.Context, t *schema.Type, op *Operation) (value.Value, error) {
	if !t.Endpoints.Update {
		return value.Null(), notExposed(t.Names.UpdateEndpoint)
	}
	m, err := asMap(op.Input, inputPath)
	if err != nil {
		return value.Null(), err
	}
	if err := onlyKeys(m, inputPath, KeywordMatch, KeywordSet); err != nil {
		return value.Null(), err
	}
	if err := x.checkSet(t, m[KeywordSet], join(inputPath, KeywordSet)); err != nil {
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
	nodes, err := x.matchNodes(ctx, t, m[KeywordMatch], join(inputPath, KeywordMatch))
	if err != nil {
		return value.Null(), err
	}
	if nodes, err = x.updateNodes(ctx, t, nodes, m[KeywordSet], f, join(inputPath, KeywordSet)); err != nil {
		return value.Null(), err
	}
	if nodes, err = x.e.handlers.RunAfterNodeSubgraph(ctx, nodes, f); err != nil {
		return value.Null(), err
	}
	return x.shapeList(ctx, t, nodes, op.Selection)
}

func (x *exec) deleteNodesOp(ctx context.Context, t *schema.Type, op *Operation) (value.Value, error) {
	if !t.Endpoints.Delete {
		return value.Null(), notExposed(t.Names.DeleteEndpoint)
	}
	m, err := asMap(op.Input, inputPath)
	if err != nil {
		return value.Null(), err
	}
	if err := onlyKeys(m, inputPath, KeywordMatch, KeywordDelete); err != nil {
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
	nodes, err := x.matchNodes(ctx, t, m[KeywordMatch], join(inputPath, KeywordMatch))
	if err != nil {
		return value.Null(), err
	}
	n, err := x.deleteNodes(ctx, t, nodes, m[KeywordDelete], join(inputPath, KeywordDelete))
	if err != nil {
		return value.Null(), err
	}
	if _, err := x.e.handlers.RunAfterNodes(ctx, nodes, f); err != nil {
		return value.Null(), err
	}
	return value.Int64(n), nil
}

// createNode runs the node create hooks of t through f around a create
// input: the after hooks see the node once its properties are stored, then
// every relationship the input declares is created from it. It returns the
// new identifier and the nodes left by the after hooks.
func (x *exec) createNode(ctx context.Context, t *schema.Type, in value.Value, f event.Facade, path string) (value.Value, []*database.Node, error) {
	in, err := x.e.handlers.RunBefore(ctx, in, f)
	if err != nil {
		return value.Null(), nil, err
	}
	m, err := asMap(in, path)
	if err != nil {
		return value.Null(), nil, err
	}
	props := stored(m, t.HasRel)
	for k := range props {
		if _, err := t.Prop(k); err != nil {
			return value.Null(), nil, velograph.NewInputError(join(path, k), "unknown field")
		}
	}
	n, err := x.tx.CreateNode(ctx, t.Name, props)
	if err != nil {
		return value.Null(), nil, err
	}
	x.normalizeNodes(t, []*database.Node{n})
	id, err := n.ID()
	if err != nil {
		return value.Null(), nil, err
	}
	nodes, err := x.e.handlers.RunAfterNodes(ctx, []*database.Node{n}, f)
	if err != nil {
		return value.Null(), nil, err
	}
	for _, k := range value.Map(m).Keys() {
		r, err := t.Rel(k)
		if err != nil {
			continue
		}
		es, err := elems(m[k], r.List, join(path, k))
		if err != nil {
			return value.Null(), nil, err
		}
		for _, e := range es {
			if err := x.createNestedRels(ctx, r, []value.Value{id}, e, false, join(path, k)); err != nil {
				return value.Null(), nil, err
			}
		}
	}
	return id, nodes, nil
}

// matchExisting reads the EXISTING destinations of a relationship, running
// the node read hooks of t. Nodes dropped by an after hook are not linked.
func (x *exec) matchExisting(ctx context.Context, t *schema.Type, filter value.Value, path string) ([]*database.Node, error) {
	f := x.facade(event.Op(event.ReadNode, t.Name))
	filter, err := x.e.handlers.RunBefore(ctx, filter, f)
	if err != nil {
		return nil, err
	}
	nodes, err := x.matchNodes(ctx, t, filter, path)
	if err != nil {
		return nil, err
	}
	return x.e.handlers.RunAfterNodes(ctx, nodes, f)
}

// updateNodes applies a SET clause to nodes: properties first, then the
// after hooks of f, then relationship changes.
func (x *exec) updateNodes(ctx context.Context, t *schema.Type, nodes []*database.Node, set value.Value, f event.Facade, path string) ([]*database.Node, error) {
	if len(nodes) == 0 {
		return x.e.handlers.RunAfterNodes(ctx, nodes, f)
	}
	ids, err := database.NodeIDs(nodes)
	if err != nil {
		return nil, err
	}
	m, err := asMap(set, path)
	if err != nil {
		return nil, err
	}
	if props := stored(m, t.HasRel); len(props) > 0 {
		if nodes, err = x.tx.UpdateNodes(ctx, database.NewNodeQuery(t.Name).WithIDs(ids...), props); err != nil {
			return nil, err
		}
		x.normalizeNodes(t, nodes)
	}
	if nodes, err = x.e.handlers.RunAfterNodes(ctx, nodes, f); err != nil {
		return nil, err
	}
	for _, k := range value.Map(m).Keys() {
		r, err := t.Rel(k)
		if err != nil {
			continue
		}
		es, err := elems(m[k], true, join(path, k))
		if err != nil {
			return nil, err
		}
		for _, e := range es {
			if err := x.changeRels(ctx, r, ids, e, join(path, k)); err != nil {
				return nil, err
			}
		}
	}
	return nodes, nil
}

// deleteNodes removes nodes with their relationships. The DELETE clause
// {rel: {MATCH, DELETE}} first removes the destinations of the matching
// relationships of each listed rel, recursively. It returns the number of
// nodes removed, not counting cascaded ones.
func (x *exec) deleteNodes(ctx context.Context, t *schema.Type, nodes []*database.Node, del value.Value, path string) (int64, error) {
	if len(nodes) == 0 {
		return 0, nil
	}
	ids, err := database.NodeIDs(nodes)
	if err != nil {
		return 0, err
	}
	dm, err := asMap(del, path)
	if err != nil {
		return 0, err
	}
	for _, k := range value.Map(dm).Keys() {
		p := join(path, k)
		r, err := t.Rel(k)
		if err != nil {
			return 0, velograph.NewInputError(p, "unknown field")
		}
		es, err := elems(dm[k], true, p)
		if err != nil {
			return 0, err
		}
		for _, e := range es {
			if err := x.cascade(ctx, r, ids, e, p); err != nil {
				return 0, err
			}
		}
	}
	return x.tx.DeleteNodes(ctx, database.NewNodeQuery(t.Name).WithIDs(ids...))
}

// cascade deletes the destinations of the relationships of r starting at
// srcIDs and matching {MATCH, DELETE}.
func (x *exec) cascade(ctx context.Context, r *schema.Rel, srcIDs []value.Value, in value.Value, path string) error {
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	if err := onlyKeys(m, path, KeywordMatch, KeywordDelete); err != nil {
		return err
	}
	q, err := x.relQuery(ctx, r, m[KeywordMatch], join(path, KeywordMatch))
	if err != nil {
		return err
	}
	restrictSrc(q, srcIDs)
	rels, err := x.readRels(ctx, r, q)
	if err != nil {
		return err
	}
	byLabel := dataloader.GroupByKey(rels, func(rel *database.Rel) string { return rel.Dst.Label })
	for _, label := range r.Nodes {
		group, ok := byLabel[label]
		if !ok {
			continue
		}
		dt, err := x.e.schema.Type(label)
		if err != nil {
			return err
		}
		dstIDs := make([]value.Value, len(group))
		for i, rel := range group {
			dstIDs[i] = rel.Dst.ID
		}
		if err := x.deleteCascaded(ctx, dt, intersect(nil, false, dstIDs), m[KeywordDelete], path); err != nil {
			return err
		}
	}
	return nil
}

// deleteCascaded deletes the destination nodes of t with the given
// identifiers, running the node delete hooks of t. The hooks see the input
// {MATCH: {id: {IN: ids}}, DELETE: del}.
func (x *exec) deleteCascaded(ctx context.Context, t *schema.Type, ids []value.Value, del value.Value, path string) error {
	in := value.Map(map[string]value.Value{
		KeywordMatch: value.Map(map[string]value.Value{
			database.IDField: value.Map(map[string]value.Value{string(config.IN): value.Array(ids...)}),
		}),
		KeywordDelete: del,
	})
	f := x.facade(event.Op(event.DeleteNode, t.Name))
	in, err := x.e.handlers.RunBefore(ctx, in, f)
	if err != nil {
		return err
	}
	m, err := asMap(in, path)
	if err != nil {
		return err
	}
	nodes, err := x.matchNodes(ctx, t, m[KeywordMatch], join(path, KeywordMatch))
	if err != nil {
		return err
	}
	if _, err := x.deleteNodes(ctx, t, nodes, m[KeywordDelete], join(path, KeywordDelete)); err != nil {
		return err
	}
	_, err = x.e.handlers.RunAfterNodes(ctx, nodes, f)
	return err
}
