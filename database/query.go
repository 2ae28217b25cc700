package database

import (
	"cmp"
	"strings"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/value"
)

// Operator is a comparison operator of a predicate.
type Operator = config.Operator

// Predicate compares one property with a value. IN and NOTIN take an Array.
type Predicate struct {
	Prop  string
	Op    Operator
	Value value.Value
}

// NodeQuery selects nodes of one type.
type NodeQuery struct {
	Label string

	// IDs restricts the match to these identifiers when ByID is set. ByID
	// with no IDs matches nothing.
	IDs  []value.Value
	ByID bool

	// Predicates must all hold.
	Predicates []Predicate

	// Rels requires, for each entry, at least one matching outgoing
	// relationship. Only passed to backends with traversal support.
	Rels []*RelQuery
}

// NewNodeQuery returns a query matching every node of type label.
func NewNodeQuery(label string) *NodeQuery {
	return &NodeQuery{Label: label}
}

// WithIDs restricts q to ids.
func (q *NodeQuery) WithIDs(ids ...value.Value) *NodeQuery {
	q.IDs, q.ByID = ids, true
	return q
}

// Where adds predicates to q.
func (q *NodeQuery) Where(ps ...Predicate) *NodeQuery {
	q.Predicates = append(q.Predicates, ps...)
	return q
}

// IsFlat reports whether q has no nested relationship filters.
func (q *NodeQuery) IsFlat() bool { return len(q.Rels) == 0 }

// RelQuery selects relationships with one name declared on type SrcLabel.
type RelQuery struct {
	Name     string
	SrcLabel string

	IDs  []value.Value
	ByID bool

	// Predicates apply to relationship properties.
	Predicates []Predicate

	// SrcIDs restricts sources when BySrc is set.
	SrcIDs []value.Value
	BySrc  bool
	// Src filters sources. Only passed to backends with traversal support.
	Src *NodeQuery

	// DstLabels restricts destination types; empty means any.
	DstLabels []string
	DstIDs    []value.Value
	ByDst     bool
	// Dst filters destinations, one query per destination type, any of
	// which may match. Only passed to backends with traversal support.
	Dst []*NodeQuery
}

// NewRelQuery returns a query matching every relationship name of srcLabel.
func NewRelQuery(srcLabel, name string) *RelQuery {
	return &RelQuery{Name: name, SrcLabel: srcLabel}
}

// WithSrcIDs restricts the sources of q.
func (q *RelQuery) WithSrcIDs(ids ...value.Value) *RelQuery {
	q.SrcIDs, q.BySrc = ids, true
	return q
}

// WithDstIDs restricts the destinations of q.
func (q *RelQuery) WithDstIDs(ids ...value.Value) *RelQuery {
	q.DstIDs, q.ByDst = ids, true
	return q
}

// WithIDs restricts q to relationship identifiers.
func (q *RelQuery) WithIDs(ids ...value.Value) *RelQuery {
	q.IDs, q.ByID = ids, true
	return q
}

// IsFlat reports whether q has no nested node filters.
func (q *RelQuery) IsFlat() bool { return q.Src == nil && len(q.Dst) == 0 }

// RelCreate creates a relationship from every source to every destination.
type RelCreate struct {
	Name     string
	SrcLabel string
	SrcIDs   []value.Value
	DstLabel string
	DstIDs   []value.Value
	Props    map[string]value.Value
}

// Match reports whether fields satisfy every predicate. Backends that cannot
// filter properties natively evaluate predicates with it.
//
// Missing fields are Null. Numeric comparisons accept any mix of Int64, UInt64
// and Float64; ordering also applies to strings. CONTAINS tests for a
// substring of a String field or an element of an Array field.
func Match(preds []Predicate, fields map[string]value.Value) bool {
	for _, p := range preds {
		if !matchOne(p, fields[p.Prop]) {
			return false
		}
	}
	return true
}

func matchOne(p Predicate, f value.Value) bool {
	switch p.Op {
	case config.EQ:
		return equal(f, p.Value)
	case config.NOTEQ:
		return !equal(f, p.Value)
	case config.IN:
		return in(f, p.Value)
	case config.NOTIN:
		return !in(f, p.Value)
	case config.CONTAINS:
		return contains(f, p.Value)
	case config.NOTCONTAINS:
		return !contains(f, p.Value)
	case config.GT, config.GTE, config.LT, config.LTE:
		c, ok := compare(f, p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case config.GT:
			return c > 0
		case config.GTE:
			return c >= 0
		case config.LT:
			return c < 0
		default:
			return c <= 0
		}
	}
	return false
}

func equal(a, b value.Value) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return a.Equal(b)
}

func in(f, set value.Value) bool {
	arr, err := set.AsArray()
	if err != nil {
		return equal(f, set)
	}
	for _, e := range arr {
		if equal(f, e) {
			return true
		}
	}
	return false
}

func contains(f, v value.Value) bool {
	if arr, err := f.AsArray(); err == nil {
		for _, e := range arr {
			if equal(e, v) {
				return true
			}
		}
		return false
	}
	fs, err1 := f.AsString()
	vs, err2 := v.AsString()
	return err1 == nil && err2 == nil && strings.Contains(fs, vs)
}

// compare orders two numbers or two strings. Int64 and UInt64 compare
// exactly; a Float64 on either side compares as float64.
func compare(a, b value.Value) (int, bool) {
	isNum := func(v value.Value) bool {
		k := v.Kind()
		return k == value.KindInt64 || k == value.KindUInt64 || k == value.KindFloat64
	}
	switch {
	case isNum(a) && isNum(b):
		if a.Kind() == value.KindFloat64 || b.Kind() == value.KindFloat64 {
			af, _ := a.AsFloat64()
			bf, _ := b.AsFloat64()
			return cmp.Compare(af, bf), true
		}
		return compareInts(a, b), true
	case a.Kind() == value.KindString && b.Kind() == value.KindString:
		as, _ := a.AsString()
		bs, _ := b.AsString()
		return cmp.Compare(as, bs), true
	}
	return 0, false
}

func compareInts(a, b value.Value) int {
	ai, aerr := a.AsInt64()
	bi, berr := b.AsInt64()
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr != nil && berr != nil:
		au, _ := a.AsUInt64()
		bu, _ := b.AsUInt64()
		return cmp.Compare(au, bu)
	case aerr != nil:
		// a is a UInt64 above the int64 range.
		return 1
	default:
		return -1
	}
}
