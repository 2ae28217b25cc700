package value

import (
	"math"

	"github.com/google/uuid"

	"github.com/syssam/velograph"
)

func mismatch(v Value, dst string) error {
	return velograph.NewTypeConversionError(v.kind.String(), dst)
}

// AsBool projects v into a bool.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, mismatch(v, "bool")
	}
	return v.b, nil
}

// AsInt64 projects v into an int64. UInt64 values within range are accepted.
func (v Value) AsInt64() (int64, error) {
	switch v.kind {
	case KindInt64:
		return v.i, nil
	case KindUInt64:
		if v.u <= math.MaxInt64 {
			return int64(v.u), nil
		}
	}
	return 0, mismatch(v, "int64")
}

// AsUInt64 projects v into a uint64. Non-negative Int64 values are accepted.
func (v Value) AsUInt64() (uint64, error) {
	switch v.kind {
	case KindUInt64:
		return v.u, nil
	case KindInt64:
		if v.i >= 0 {
			return uint64(v.i), nil
		}
	}
	return 0, mismatch(v, "uint64")
}

// AsFloat64 projects v into a float64. Integer variants are widened.
func (v Value) AsFloat64() (float64, error) {
	switch v.kind {
	case KindFloat64:
		return v.f, nil
	case KindInt64:
		return float64(v.i), nil
	case KindUInt64:
		return float64(v.u), nil
	}
	return 0, mismatch(v, "float64")
}

// AsString projects v into a string. Uuid values yield their string form.
func (v Value) AsString() (string, error) {
	switch v.kind {
	case KindString:
		return v.s, nil
	case KindUuid:
		return v.id.String(), nil
	}
	return "", mismatch(v, "string")
}

// AsUUID projects v into a UUID. Strings holding a valid UUID are accepted.
func (v Value) AsUUID() (uuid.UUID, error) {
	switch v.kind {
	case KindUuid:
		return v.id, nil
	case KindString:
		id, err := uuid.Parse(v.s)
		if err == nil {
			return id, nil
		}
	}
	return uuid.Nil, mismatch(v, "uuid")
}

// AsArray returns the elements of an Array value.
func (v Value) AsArray() ([]Value, error) {
	if v.kind != KindArray {
		return nil, mismatch(v, "array")
	}
	return v.arr, nil
}

// AsMap returns the entries of a Map value.
func (v Value) AsMap() (map[string]Value, error) {
	if v.kind != KindMap {
		return nil, mismatch(v, "map")
	}
	return v.m, nil
}

// IsEmptyList reports whether v stands for an empty list: Null, an empty
// Array, or an Array holding a single Null.
func (v Value) IsEmptyList() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindArray:
		return len(v.arr) == 0 || (len(v.arr) == 1 && v.arr[0].IsNull())
	}
	return false
}

// List projects a homogeneous Array with the given element projection.
//
// Null and an Array holding a single Null both yield an empty list. A single
// non-array scalar is not wrapped into a list and fails.
func List[T any](v Value, elem func(Value) (T, error)) ([]T, error) {
	if v.IsEmptyList() {
		return []T{}, nil
	}
	if v.kind != KindArray {
		return nil, mismatch(v, "list")
	}
	out := make([]T, len(v.arr))
	for i, e := range v.arr {
		t, err := elem(e)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// AsBoolList projects v into a []bool.
func (v Value) AsBoolList() ([]bool, error) { return List(v, Value.AsBool) }

// AsInt64List projects v into a []int64.
func (v Value) AsInt64List() ([]int64, error) { return List(v, Value.AsInt64) }

// AsFloat64List projects v into a []float64.
func (v Value) AsFloat64List() ([]float64, error) { return List(v, Value.AsFloat64) }

// AsStringList projects v into a []string.
func (v Value) AsStringList() ([]string, error) { return List(v, Value.AsString) }

// NormalizeList returns the materialized form of a list-typed field: the
// empty-list cases collapse to an empty Array and everything else is
// returned unchanged.
func NormalizeList(v Value) Value {
	if v.IsEmptyList() {
		return Array()
	}
	return v
}
