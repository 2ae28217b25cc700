package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/syssam/velograph"
)

// FromAny converts a generic structured-data tree into a Value.
//
// Accepted leaves are nil, bool, every Go integer and float type,
// json.Number, string, []byte, uuid.UUID and Value itself. Containers may be
// map[string]any, map[any]any with string keys, or any slice. Unsigned
// integers keep the UInt64 tag; non-finite floats fail with a
// TypeConversionError.
func FromAny(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Value:
		if x == nil {
			return Null(), nil
		}
		return *x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int64(int64(x)), nil
	case int8:
		return Int64(int64(x)), nil
	case int16:
		return Int64(int64(x)), nil
	case int32:
		return Int64(int64(x)), nil
	case int64:
		return Int64(x), nil
	case uint:
		return UInt64(uint64(x)), nil
	case uint8:
		return UInt64(uint64(x)), nil
	case uint16:
		return UInt64(uint64(x)), nil
	case uint32:
		return UInt64(uint64(x)), nil
	case uint64:
		return UInt64(x), nil
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case json.Number:
		return fromNumber(x)
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case uuid.UUID:
		return UUID(x), nil
	case []Value:
		return Array(x...), nil
	case map[string]Value:
		return Map(x), nil
	case []any:
		arr := make([]Value, len(x))
		for i, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Null(), err
			}
			arr[i] = v
		}
		return Array(arr...), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Null(), err
			}
			m[k] = v
		}
		return Map(m), nil
	case map[any]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ks, ok := k.(string)
			if !ok {
				return Null(), velograph.NewTypeConversionError(fmt.Sprintf("map key %T", k), "String")
			}
			v, err := FromAny(e)
			if err != nil {
				return Null(), err
			}
			m[ks] = v
		}
		return Map(m), nil
	}
	return fromReflect(x)
}

// fromReflect handles typed slices such as []string or []int64.
func fromReflect(x any) (Value, error) {
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		arr := make([]Value, rv.Len())
		for i := range arr {
			v, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Null(), err
			}
			arr[i] = v
		}
		return Array(arr...), nil
	}
	return Null(), velograph.NewTypeConversionError(fmt.Sprintf("%T", x), "Value")
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null(), velograph.NewTypeConversionError(strconv.FormatFloat(f, 'g', -1, 64), "Float64")
	}
	return Float64(f), nil
}

func fromNumber(n json.Number) (Value, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return Int64(i), nil
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return UInt64(u), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Null(), velograph.NewTypeConversionError("Number "+n.String(), "Float64")
	}
	return fromFloat(f)
}

// Any converts v into a generic tree of map[string]any, []any, bool, int64,
// uint64, float64, string, uuid.UUID and nil. FromAny(v.Any()) equals v.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt64:
		return v.i
	case KindUInt64:
		return v.u
	case KindFloat64:
		return v.f
	case KindString:
		return v.s
	case KindUuid:
		return v.id
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Any()
		}
		return out
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Uuid is encoded as its string form
// and non-finite floats fail.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat64:
		if _, err := fromFloat(v.f); err != nil {
			return nil, err
		}
	case KindArray:
		return json.Marshal(v.arr)
	case KindMap:
		return json.Marshal(v.m)
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler. Integral numbers become Int64,
// or UInt64 when they exceed the int64 range; other numbers become Float64.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	parsed, err := FromAny(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromJSON parses a JSON document into a Value.
func FromJSON(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Null(), err
	}
	return v, nil
}

// MustFromAny is like FromAny but panics on error. It is intended for
// literals in tests and examples.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}
