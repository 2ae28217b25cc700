package cypher

import (
	"fmt"
	"math"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

// toNative converts a value into a Bolt parameter. Bolt integers are signed,
// so a UInt64 above math.MaxInt64 cannot be sent.
func toNative(v value.Value) (any, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindUInt64:
		u, _ := v.AsUInt64()
		if u > math.MaxInt64 {
			return nil, velograph.NewUnsupportedOperationError(Backend, fmt.Sprintf("integer %d out of range", u))
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
		m, _ := v.AsMap()
		out := make(map[string]any, len(m))
		for k, e := range m {
			x, err := toNative(e)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	}
	return v.Any(), nil
}

func nativeMap(props map[string]value.Value) (map[string]any, error) {
	x, err := toNative(value.Map(props))
	if err != nil {
		return nil, err
	}
	return x.(map[string]any), nil
}

// fromNative converts a Bolt value. Temporal and spatial types are not part
// of the value model.
func fromNative(x any) (value.Value, error) {
	v, err := value.FromAny(x)
	if err != nil {
		return value.Null(), velograph.NewUnsupportedOperationError(Backend, fmt.Sprintf("value of type %T", x))
	}
	return v, nil
}

func fromProps(props map[string]any) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(props))
	for k, x := range props {
		v, err := fromNative(x)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func toNode(label string, n dbtype.Node) (*database.Node, error) {
	fields, err := fromProps(n.Props)
	if err != nil {
		return nil, err
	}
	if label == "" && len(n.Labels) > 0 {
		label = n.Labels[0]
	}
	return database.NewNode(label, fields), nil
}

func toRel(srcLabel string, r dbtype.Relationship) (*database.Rel, error) {
	props, err := fromProps(r.Props)
	if err != nil {
		return nil, err
	}
	id := props[database.IDField]
	delete(props, database.IDField)
	return &database.Rel{
		ID:    id,
		Name:  r.Type,
		Props: props,
		Src:   database.NodeRef{Label: srcLabel},
	}, nil
}

// cell converts one column of a native query result.
func cell(x any) (any, error) {
	switch x := x.(type) {
	case dbtype.Node:
		return toNode("", x)
	case dbtype.Relationship:
		return toRel("", x)
	}
	return fromNative(x)
}
