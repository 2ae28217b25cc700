package engine

import (
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/value"
)

// Selection is one selected field of a result. Fields holds the
// sub-selection of object-valued fields. On restricts the field to one
// concrete type, as a GraphQL inline fragment does.
type Selection struct {
	Name   string
	Alias  string
	Args   value.Value
	On     string
	Fields []*Selection
}

// Field returns a selection of name with a sub-selection.
func Field(name string, fields ...*Selection) *Selection {
	return &Selection{Name: name, Fields: fields}
}

// As sets the response key of s.
func (s *Selection) As(alias string) *Selection {
	s.Alias = alias
	return s
}

// WithArgs sets the field arguments of s.
func (s *Selection) WithArgs(args value.Value) *Selection {
	s.Args = args
	return s
}

// OnType restricts s to nodes of type typ.
func (s *Selection) OnType(typ string) *Selection {
	s.On = typ
	return s
}

// Key returns the response key: the alias when set, the name otherwise.
func (s *Selection) Key() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

func (s *Selection) applies(typ string) bool {
	return s.On == "" || s.On == typ
}

// arg returns the named argument, or Null.
func (s *Selection) arg(name string) value.Value {
	v, _ := s.Args.Get(name)
	return v
}

// Operation is one top-level operation: a CRUD primitive on a type or
// relationship, or a call of the custom endpoint named Endpoint.
type Operation struct {
	Op        event.CrudOperation
	Endpoint  string
	Input     value.Value
	Selection []*Selection
}

func (o *Operation) String() string {
	if o.Endpoint != "" {
		return "Endpoint(" + o.Endpoint + ")"
	}
	return o.Op.String()
}

// labels returns the op and name metric labels.
func (o *Operation) labels() (string, string) {
	if o.Endpoint != "" {
		return "Endpoint", o.Endpoint
	}
	return o.Op.Kind.String(), o.Op.Name
}

func crud(kind event.OpKind, name string, input value.Value, sel []*Selection) *Operation {
	return &Operation{Op: event.Op(kind, name), Input: input, Selection: sel}
}

// CreateNode creates one node of typ from {prop: v, rel: RelCreateInput}.
func CreateNode(typ string, input value.Value, sel ...*Selection) *Operation {
	return crud(event.CreateNode, typ, input, sel)
}

// ReadNodes reads the nodes of typ matching filter.
func ReadNodes(typ string, filter value.Value, sel ...*Selection) *Operation {
	return crud(event.ReadNode, typ, filter, sel)
}

// UpdateNodes updates the nodes of typ from {MATCH: filter, SET: {...}}.
func UpdateNodes(typ string, input value.Value, sel ...*Selection) *Operation {
	return crud(event.UpdateNode, typ, input, sel)
}

// DeleteNodes deletes the nodes of typ from {MATCH: filter, DELETE: {...}}
// and yields their count.
func DeleteNodes(typ string, input value.Value) *Operation {
	return crud(event.DeleteNode, typ, input, nil)
}

// CreateRels creates relationships from {MATCH: srcFilter, CREATE: ...}.
// rel is the relationship full name, such as ProjectOwner.
func CreateRels(rel string, input value.Value, sel ...*Selection) *Operation {
	return crud(event.CreateRel, rel, input, sel)
}

// ReadRels reads the relationships matching filter.
func ReadRels(rel string, filter value.Value, sel ...*Selection) *Operation {
	return crud(event.ReadRel, rel, filter, sel)
}

// UpdateRels updates relationship properties from {MATCH, SET: {props}}.
func UpdateRels(rel string, input value.Value, sel ...*Selection) *Operation {
	return crud(event.UpdateRel, rel, input, sel)
}

// DeleteRels deletes the relationships matching {MATCH} and yields their
// count.
func DeleteRels(rel string, input value.Value) *Operation {
	return crud(event.DeleteRel, rel, input, nil)
}

// CallEndpoint calls the custom endpoint name.
func CallEndpoint(name string, input value.Value, sel ...*Selection) *Operation {
	return &Operation{Endpoint: name, Input: input, Selection: sel}
}
