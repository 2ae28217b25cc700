package engine

import (
	"context"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/contrib/dataloader"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/resolver"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

// exec is the state of one top-level operation. It is used by one goroutine.
type exec struct {
	e    *Engine
	rctx any
	tx   database.Transaction

	// loaders memoize destination nodes per type for the operation.
	loaders map[string]*dataloader.Loader[string, *database.Node]
	// ids maps loader keys back to identifiers.
	ids map[string]value.Value
}

func (r *Request) exec(tx database.Transaction) *exec {
	return &exec{
		e:       r.e,
		rctx:    r.rctx,
		tx:      tx,
		loaders: make(map[string]*dataloader.Loader[string, *database.Node]),
		ids:     make(map[string]value.Value),
	}
}

func (x *exec) run(ctx context.Context, op *Operation) (value.Value, error) {
	if op.Endpoint != "" {
		return x.endpoint(ctx, op)
	}
	s := x.e.schema
	if op.Op.Kind.IsRel() {
		r, err := s.RelByFullName(op.Op.Name)
		if err != nil {
			return value.Null(), err
		}
		switch op.Op.Kind {
		case event.CreateRel:
			return x.createRelsOp(ctx, r, op)
		case event.ReadRel:
			return x.readRelsOp(ctx, r, op)
		case event.UpdateRel:
			return x.updateRelsOp(ctx, r, op)
		default:
			return x.deleteRelsOp(ctx, r, op)
		}
	}
	t, err := s.Type(op.Op.Name)
	if err != nil {
		return value.Null(), err
	}
	switch op.Op.Kind {
	case event.CreateNode:
		return x.createNodeOp(ctx, t, op)
	case event.ReadNode:
		return x.readNodesOp(ctx, t, op)
	case event.UpdateNode:
		return x.updateNodesOp(ctx, t, op)
	default:
		return x.deleteNodesOp(ctx, t, op)
	}
}

// facade returns the event facade of op.
func (x *exec) facade(op event.CrudOperation) event.Facade {
	return &hookFacade{x: x, op: op}
}

// hookFacade gives hooks read access to the transaction of the operation
// they intercept. Its reads do not run hooks.
type hookFacade struct {
	x  *exec
	op event.CrudOperation
}

func (f *hookFacade) Op() event.CrudOperation { return f.op }
func (f *hookFacade) RequestContext() any     { return f.x.rctx }
func (f *hookFacade) GlobalContext() any      { return f.x.e.global }

func (f *hookFacade) ReadNodes(ctx context.Context, typeName string, filter value.Value) ([]*database.Node, error) {
	t, err := f.x.e.schema.Type(typeName)
	if err != nil {
		return nil, err
	}
	return f.x.matchNodes(ctx, t, filter, "filter")
}

func (f *hookFacade) ReadRels(ctx context.Context, relFullName string, filter value.Value) ([]*database.Rel, error) {
	r, err := f.x.e.schema.RelByFullName(relFullName)
	if err != nil {
		return nil, err
	}
	return f.x.matchRels(ctx, r, filter, "filter")
}

// resolve calls the resolver registered under name.
func (x *exec) resolve(ctx context.Context, name string, f *resolver.Facade) (any, error) {
	res, err := x.e.registry.Resolver(name)
	if err != nil {
		return nil, err
	}
	f.Tx = x.tx
	f.RequestContext = x.rctx
	f.GlobalContext = x.e.global
	return res.Resolve(ctx, f)
}

// validate runs the validator registered under name on input.
func (x *exec) validate(name string, input value.Value) error {
	v, err := x.e.registry.Validator(name)
	if err != nil {
		return err
	}
	return resolver.Check(name, v, input)
}

// matchNodes reads the nodes of t matching filter.
func (x *exec) matchNodes(ctx context.Context, t *schema.Type, filter value.Value, path string) ([]*database.Node, error) {
	q, err := x.nodeQuery(ctx, t, filter, path)
	if err != nil {
		return nil, err
	}
	nodes, err := x.tx.ReadNodes(ctx, q)
	if err != nil {
		return nil, err
	}
	x.normalizeNodes(t, nodes)
	return nodes, nil
}

// matchRels reads the relationships of r matching filter.
func (x *exec) matchRels(ctx context.Context, r *schema.Rel, filter value.Value, path string) ([]*database.Rel, error) {
	q, err := x.relQuery(ctx, r, filter, path)
	if err != nil {
		return nil, err
	}
	return x.readRels(ctx, r, q)
}

func (x *exec) readRels(ctx context.Context, r *schema.Rel, q *database.RelQuery) ([]*database.Rel, error) {
	rels, err := x.tx.ReadRels(ctx, q)
	if err != nil {
		return nil, err
	}
	x.normalizeRels(r, rels)
	return rels, nil
}

// normalizeNodes unwraps single-valued properties of backends returning
// every property as a list.
func (x *exec) normalizeNodes(t *schema.Type, nodes []*database.Node) {
	if !x.e.caps.ListValuedProps {
		return
	}
	for _, n := range nodes {
		unwrap(n.Fields, t.Prop)
	}
}

func (x *exec) normalizeRels(r *schema.Rel, rels []*database.Rel) {
	if !x.e.caps.ListValuedProps {
		return
	}
	for _, rel := range rels {
		unwrap(rel.Props, r.Prop)
	}
}

func unwrap(fields map[string]value.Value, prop func(string) (*schema.Prop, error)) {
	for k, v := range fields {
		if k == database.IDField {
			continue
		}
		p, err := prop(k)
		if err != nil || p.List {
			continue
		}
		arr, err := v.AsArray()
		if err != nil {
			continue
		}
		if len(arr) == 0 {
			fields[k] = value.Null()
		} else {
			fields[k] = arr[0]
		}
	}
}

func relIDs(r *schema.Rel, rels []*database.Rel) ([]value.Value, error) {
	ids := make([]value.Value, 0, len(rels))
	for _, rel := range rels {
		if rel.ID.IsNull() {
			return nil, &velograph.MissingIdentifierError{Type: r.FullName}
		}
		ids = append(ids, rel.ID)
	}
	return ids, nil
}

func notExposed(name string) error {
	return velograph.NewNotFoundError("endpoint", name)
}
