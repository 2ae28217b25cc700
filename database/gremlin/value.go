package gremlin

import (
	"fmt"
	"maps"
	"slices"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

// toNative converts a value into a script binding.
func toNative(v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindUInt64:
		u, _ := v.AsUInt64()
		if err := intRange(u); err != nil {
			return nil, err
		}
		return int64(u), nil
	case value.KindUuid:
		u, _ := v.AsUUID()
		return u.String(), nil
	case value.KindArray:
		arr, _ := v.AsArray()
		out := make([]any, len(arr))
		for i, e := range arr {
			x, err := toNative(e)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case value.KindMap:
		return nil, velograph.NewUnsupportedOperationError(Backend, "map-valued property")
	}
	return v.Any(), nil
}

func fromNative(x any) (value.Value, error) {
	v, err := value.FromAny(x)
	if err != nil {
		return value.Null(), velograph.NewUnsupportedOperationError(Backend, fmt.Sprintf("value of type %T", x))
	}
	return v, nil
}

func sortedKeys(m map[string]value.Value) []string {
	return slices.Sorted(maps.Keys(m))
}

// projected reads a project() result row.
type projected map[any]any

func asProjected(x any) (projected, error) {
	switch m := x.(type) {
	case map[any]any:
		return projected(m), nil
	case map[string]any:
		out := make(projected, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	return nil, velograph.NewBackendError(Backend, "decode", fmt.Errorf("unexpected result of type %T", x))
}

func (p projected) value(key string) (value.Value, error) {
	return fromNative(p[key])
}

func (p projected) string(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p projected) props(key string) (map[string]value.Value, error) {
	v, err := p.value(key)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return map[string]value.Value{}, nil
	}
	m, err := v.AsMap()
	if err != nil {
		return nil, velograph.NewBackendError(Backend, "decode", err)
	}
	return m, nil
}

// toNode decodes a node projection. Properties stay list-valued; the
// identifier is single-valued.
func toNode(x any) (*database.Node, error) {
	p, err := asProjected(x)
	if err != nil {
		return nil, err
	}
	fields, err := p.props("nProps")
	if err != nil {
		return nil, err
	}
	id, err := p.value("nID")
	if err != nil {
		return nil, err
	}
	fields[database.IDField] = id
	return database.NewNode(p.string("nLabel"), fields), nil
}

func toRel(name string, x any) (*database.Rel, error) {
	p, err := asProjected(x)
	if err != nil {
		return nil, err
	}
	props, err := p.props("rProps")
	if err != nil {
		return nil, err
	}
	delete(props, database.IDField)
	id, err := p.value("rID")
	if err != nil {
		return nil, err
	}
	src, err := p.value("srcID")
	if err != nil {
		return nil, err
	}
	dst, err := p.value("dstID")
	if err != nil {
		return nil, err
	}
	return &database.Rel{
		ID:    id,
		Name:  name,
		Props: props,
		Src:   database.NodeRef{ID: src, Label: p.string("srcLabel")},
		Dst:   database.NodeRef{ID: dst, Label: p.string("dstLabel")},
	}, nil
}
