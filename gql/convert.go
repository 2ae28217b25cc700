package gql

import (
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/value"
)

const typenameField = "__typename"

// converter turns validated selection sets into engine selections.
type converter struct {
	schema *ast.Schema
	doc    *ast.QueryDocument
	vars   map[string]any
}

// fields converts set, selected on type parent. Fragments are flattened:
// a fragment on a concrete type other than parent restricts its fields to
// that type.
func (c *converter) fields(set ast.SelectionSet, parent string) ([]*engine.Selection, error) {
	var out []*engine.Selection
	if err := c.collect(set, parent, "", &out); err != nil {
		return nil, err
	}
	return merge(out), nil
}

func (c *converter) collect(set ast.SelectionSet, parent, on string, out *[]*engine.Selection) error {
	for _, s := range set {
		switch s := s.(type) {
		case *ast.Field:
			if !c.included(s.Directives) {
				continue
			}
			sel, err := c.field(s)
			if err != nil {
				return err
			}
			sel.On = on
			*out = append(*out, sel)
		case *ast.InlineFragment:
			if !c.included(s.Directives) {
				continue
			}
			if err := c.collect(s.SelectionSet, parent, c.restrict(parent, on, s.TypeCondition), out); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			if !c.included(s.Directives) {
				continue
			}
			f := s.Definition
			if f == nil {
				f = c.doc.Fragments.ForName(s.Name)
			}
			if f == nil {
				continue
			}
			if err := c.collect(f.SelectionSet, parent, c.restrict(parent, on, f.TypeCondition), out); err != nil {
				return err
			}
		}
	}
	return nil
}

// restrict returns the type restriction of a fragment on cond.
func (c *converter) restrict(parent, on, cond string) string {
	if cond == "" || cond == parent {
		return on
	}
	if d := c.schema.Types[cond]; d != nil && d.Kind == ast.Object {
		return cond
	}
	return on
}

func (c *converter) field(f *ast.Field) (*engine.Selection, error) {
	sel := &engine.Selection{Name: f.Name, Args: value.Null()}
	if f.Alias != "" && f.Alias != f.Name {
		sel.Alias = f.Alias
	}
	if args := f.ArgumentMap(c.vars); len(args) > 0 {
		v, err := value.FromAny(args)
		if err != nil {
			return nil, err
		}
		sel.Args = v
	}
	if len(f.SelectionSet) > 0 {
		parent := ""
		if f.Definition != nil {
			parent = f.Definition.Type.Name()
		}
		fields, err := c.fields(f.SelectionSet, parent)
		if err != nil {
			return nil, err
		}
		sel.Fields = fields
	}
	return sel, nil
}

// included evaluates @skip and @include.
func (c *converter) included(ds ast.DirectiveList) bool {
	if d := ds.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(c.vars)["if"].(bool); skip {
			return false
		}
	}
	if d := ds.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(c.vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}

// merge folds the selections sharing a response key and type restriction
// into the first of them.
func merge(sels []*engine.Selection) []*engine.Selection {
	type key struct{ resp, on string }
	first := make(map[key]*engine.Selection, len(sels))
	out := sels[:0:0]
	for _, s := range sels {
		k := key{s.Key(), s.On}
		if prev, ok := first[k]; ok {
			prev.Fields = append(prev.Fields, s.Fields...)
			continue
		}
		first[k] = s
		out = append(out, s)
	}
	for _, s := range out {
		if len(s.Fields) > 0 {
			s.Fields = merge(s.Fields)
		}
	}
	return out
}
