package engine

import (
	"context"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/resolver"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

const outputPath = "output"

// endpoint calls the resolver of a custom endpoint and shapes its result
// after the endpoint output type.
func (x *exec) endpoint(ctx context.Context, op *Operation) (value.Value, error) {
	ep, err := x.e.schema.Endpoint(op.Endpoint)
	if err != nil {
		return value.Null(), err
	}
	if err := checkEndpointInput(ep.Input, op.Input, inputPath); err != nil {
		return value.Null(), err
	}
	res, err := x.resolve(ctx, ep.Name, &resolver.Facade{
		TypeName:  ep.Name,
		FieldName: ep.Name,
		Args:      op.Input,
	})
	if err != nil {
		return value.Null(), err
	}
	return x.shapeOutput(ctx, ep.Output, res, op.Selection)
}

func checkEndpointInput(t *schema.EndpointType, in value.Value, path string) error {
	if t == nil {
		if !in.IsNull() {
			return velograph.NewInputError(path, "endpoint takes no input")
		}
		return nil
	}
	if in.IsNull() {
		if t.Required {
			return velograph.NewInputError(path, "input is required")
		}
		return nil
	}
	es := []value.Value{in}
	if t.List {
		arr, err := in.AsArray()
		if err != nil {
			return velograph.NewInputError(path, "expected a list, got %s", in.Kind())
		}
		es = arr
	}
	for _, e := range es {
		switch t.Kind {
		case config.TypeDefScalar:
			if !e.IsNull() && !schema.AcceptsScalar(t.Name, e) {
				return velograph.NewInputError(path, "expected %s, got %s", t.Name, e.Kind())
			}
		case config.TypeDefExisting:
			if _, err := asMap(e, path); err != nil {
				return err
			}
		case config.TypeDefCustom:
			m, err := asMap(e, path)
			if err != nil {
				return err
			}
			for _, k := range value.Map(m).Keys() {
				p, err := t.Type.Prop(k)
				if err != nil {
					return velograph.NewInputError(join(path, k), "unknown field")
				}
				if !p.Accepts(m[k]) {
					return velograph.NewInputError(join(path, k), "expected %s, got %s", typeString(p), m[k].Kind())
				}
			}
			if err := checkRequired(t.Type.Props, m, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// shapeOutput shapes a resolver result. Scalars pass through, nodes of an
// existing type are shaped like CRUD results, and objects select their
// keys.
func (x *exec) shapeOutput(ctx context.Context, t *schema.EndpointType, res any, sel []*Selection) (value.Value, error) {
	if t.Kind == config.TypeDefExisting {
		switch n := res.(type) {
		case *database.Node:
			if n == nil {
				return value.Null(), nil
			}
			vs, err := x.shapeNodes(ctx, t.Type, []*database.Node{n}, sel)
			if err != nil {
				return value.Null(), err
			}
			return vs[0], nil
		case []*database.Node:
			return x.shapeList(ctx, t.Type, n, sel)
		}
	}
	v, err := toValue(res)
	if err != nil || t.IsScalar() {
		return v, err
	}
	if !t.List || v.IsNull() {
		return selectKeys(t.Type, v, sel)
	}
	arr, err := v.AsArray()
	if err != nil {
		return value.Null(), velograph.NewTypeConversionError(v.Kind().String(), "list")
	}
	out := make([]value.Value, len(arr))
	for i, e := range arr {
		if out[i], err = selectKeys(t.Type, e, sel); err != nil {
			return value.Null(), err
		}
	}
	return value.Array(out...), nil
}

// selectKeys shapes an object returned by a resolver.
func selectKeys(t *schema.Type, v value.Value, sel []*Selection) (value.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	m, err := v.AsMap()
	if err != nil {
		return value.Null(), velograph.NewTypeConversionError(v.Kind().String(), t.Name)
	}
	out := make(map[string]value.Value, len(sel))
	for _, s := range sel {
		if !s.applies(t.Name) {
			continue
		}
		if s.Name == typename {
			out[s.Key()] = value.String(t.Name)
			continue
		}
		if s.Name == database.IDField {
			out[s.Key()] = m[s.Name]
			continue
		}
		p, err := t.Prop(s.Name)
		if err != nil {
			return value.Null(), velograph.NewInputError(selectionPath(t.Name), "unknown field %q", s.Name)
		}
		fv := m[s.Name]
		if p.List {
			fv = value.NormalizeList(fv)
		}
		out[s.Key()] = fv
	}
	return value.Map(out), nil
}
