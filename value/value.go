// Package value provides the self-describing runtime value that flows between
// the wire layer, hooks, resolvers and database backends.
package value

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies the variant held by a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUInt64
	KindFloat64
	KindString
	KindUuid
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindNull:    "Null",
	KindBool:    "Bool",
	KindInt64:   "Int64",
	KindUInt64:  "UInt64",
	KindFloat64: "Float64",
	KindString:  "String",
	KindUuid:    "Uuid",
	KindArray:   "Array",
	KindMap:     "Map",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is a tagged union over Array, Bool, Float64, Int64, Map, Null,
// String, UInt64 and Uuid. The zero Value is Null.
//
// Values are treated as immutable: the slices and maps returned by AsArray
// and AsMap must not be modified in place.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	id   uuid.UUID
	arr  []Value
	m    map[string]Value
}

// Null returns the Null value.
func Null() Value { return Value{} }

// Bool returns a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int64 returns an Int64 value.
func Int64(i int64) Value { return Value{kind: KindInt64, i: i} }

// UInt64 returns a UInt64 value.
func UInt64(u uint64) Value { return Value{kind: KindUInt64, u: u} }

// Float64 returns a Float64 value. Non-finite floats are accepted here but
// fail generic and JSON conversion.
func Float64(f float64) Value { return Value{kind: KindFloat64, f: f} }

// String returns a String value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// UUID returns a Uuid value.
func UUID(id uuid.UUID) Value { return Value{kind: KindUuid, id: id} }

// Array returns an Array value holding the given elements.
func Array(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindArray, arr: vs}
}

// Map returns a Map value. A nil map yields an empty Map.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Len returns the number of elements of an Array or entries of a Map,
// and zero for every other kind.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindMap:
		return len(v.m)
	}
	return 0
}

// Get returns the entry under key when v is a Map.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	e, ok := v.m[key]
	return e, ok
}

// Keys returns the sorted keys of a Map value.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	return slices.Sorted(maps.Keys(v.m))
}

// With returns a copy of the Map v with key set to e. Calling With on Null
// starts a new Map.
func (v Value) With(key string, e Value) Value {
	m := make(map[string]Value, v.Len()+1)
	if v.kind == KindMap {
		maps.Copy(m, v.m)
	}
	m[key] = e
	return Value{kind: KindMap, m: m}
}

// Without returns a copy of the Map v with key removed.
func (v Value) Without(key string) Value {
	if v.kind != KindMap {
		return v
	}
	m := maps.Clone(v.m)
	delete(m, key)
	return Value{kind: KindMap, m: m}
}

// Equal reports structural, variant-typed equality: the variants must match
// and so must the payloads. Int64(1) and UInt64(1) are not equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt64:
		return v.i == o.i
	case KindUInt64:
		return v.u == o.u
	case KindFloat64:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindUuid:
		return v.id == o.id
	case KindArray:
		return slices.EqualFunc(v.arr, o.arr, Value.Equal)
	case KindMap:
		return maps.EqualFunc(v.m, o.m, Value.Equal)
	}
	return false
}

// String implements fmt.Stringer with a compact, deterministic rendering.
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v Value) write(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		fmt.Fprint(sb, v.b)
	case KindInt64:
		fmt.Fprint(sb, v.i)
	case KindUInt64:
		fmt.Fprintf(sb, "%du", v.u)
	case KindFloat64:
		fmt.Fprint(sb, v.f)
	case KindString:
		fmt.Fprintf(sb, "%q", v.s)
	case KindUuid:
		sb.WriteString(v.id.String())
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.write(sb)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%q:", k)
			v.m[k].write(sb)
		}
		sb.WriteByte('}')
	}
}
