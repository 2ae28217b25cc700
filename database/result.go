package database

import (
	"fmt"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/value"
)

// Result is a QueryResult over rows whose cells hold a value.Value, a *Node
// or a *Rel. Backends bridge their native records into it.
type Result struct {
	Columns []string
	Rows    [][]any
}

var _ QueryResult = (*Result)(nil)

// NewResult returns an empty result with the given columns.
func NewResult(columns ...string) *Result {
	return &Result{Columns: columns}
}

// Append adds a row. Cells are matched to columns by position.
func (r *Result) Append(cells ...any) {
	r.Rows = append(r.Rows, cells)
}

// Nodes implements QueryResult.
func (r *Result) Nodes(label string) ([]*Node, error) {
	var out []*Node
	for _, row := range r.Rows {
		for _, c := range row {
			if n, ok := c.(*Node); ok && n.TypeName == label {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// Rels implements QueryResult.
func (r *Result) Rels(name, srcLabel string) ([]*Rel, error) {
	var out []*Rel
	for _, row := range r.Rows {
		for _, c := range row {
			if rel, ok := c.(*Rel); ok && rel.Name == name && rel.Src.Label == srcLabel {
				out = append(out, rel)
			}
		}
	}
	return out, nil
}

// IDs implements QueryResult.
func (r *Result) IDs(column string) ([]value.Value, error) {
	i, err := r.column(column)
	if err != nil {
		return nil, err
	}
	ids := make([]value.Value, 0, len(r.Rows))
	for _, row := range r.Rows {
		if i >= len(row) {
			continue
		}
		switch c := row[i].(type) {
		case *Node:
			id, err := c.ID()
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		case *Rel:
			ids = append(ids, c.ID)
		case value.Value:
			ids = append(ids, c)
		default:
			return nil, velograph.NewTypeConversionError(fmt.Sprintf("%T", c), "identifier")
		}
	}
	return ids, nil
}

// Values returns the plain values held by column.
func (r *Result) Values(column string) ([]value.Value, error) {
	i, err := r.column(column)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, 0, len(r.Rows))
	for _, row := range r.Rows {
		if i >= len(row) {
			continue
		}
		v, ok := row[i].(value.Value)
		if !ok {
			return nil, velograph.NewTypeConversionError(fmt.Sprintf("%T", row[i]), "Value")
		}
		out = append(out, v)
	}
	return out, nil
}

// Count implements QueryResult.
func (r *Result) Count() (int64, error) {
	if len(r.Columns) == 1 && len(r.Rows) == 1 && len(r.Rows[0]) == 1 {
		if v, ok := r.Rows[0][0].(value.Value); ok {
			if n, err := v.AsInt64(); err == nil {
				return n, nil
			}
		}
	}
	return int64(len(r.Rows)), nil
}

// Len implements QueryResult.
func (r *Result) Len() int { return len(r.Rows) }

// IsEmpty implements QueryResult.
func (r *Result) IsEmpty() bool { return len(r.Rows) == 0 }

func (r *Result) column(name string) (int, error) {
	for i, c := range r.Columns {
		if c == name {
			return i, nil
		}
	}
	return 0, velograph.NewNotFoundError("column", name)
}
