// Package schema compiles a validated config.Config into the immutable model
// consumed by the engine: stored and computed properties, per-property filter
// operators, relationship tables, endpoint visibility and generated API names.
//
// A Schema is safe for concurrent use once Compile returns.
package schema

import (
	"slices"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/value"
)

// Schema is a compiled data model.
type Schema struct {
	cfg       *config.Config
	types     []*Type
	byName    map[string]*Type
	rels      map[string]*Rel
	endpoints []*Endpoint
	byEp      map[string]*Endpoint
}

// Config returns the config the schema was compiled from. It must not be
// modified.
func (s *Schema) Config() *config.Config { return s.cfg }

// Types returns the model types in declaration order.
func (s *Schema) Types() []*Type { return s.types }

// Type returns the model type with the given name.
func (s *Schema) Type(name string) (*Type, error) {
	if t, ok := s.byName[name]; ok && !t.Custom {
		return t, nil
	}
	return nil, velograph.NewNotFoundError("type", name)
}

// Rel returns relationship rel of type typ.
func (s *Schema) Rel(typ, rel string) (*Rel, error) {
	t, err := s.Type(typ)
	if err != nil {
		return nil, err
	}
	return t.Rel(rel)
}

// RelByFullName returns the relationship with the given full name, such as
// ProjectOwner.
func (s *Schema) RelByFullName(full string) (*Rel, error) {
	if r, ok := s.rels[full]; ok {
		return r, nil
	}
	return nil, velograph.NewNotFoundError("relationship", full)
}

// Rels returns every relationship of the model in declaration order.
func (s *Schema) Rels() []*Rel {
	var out []*Rel
	for _, t := range s.types {
		out = append(out, t.Rels...)
	}
	return out
}

// Endpoints returns the custom endpoints in declaration order.
func (s *Schema) Endpoints() []*Endpoint { return s.endpoints }

// Endpoint returns the custom endpoint with the given name.
func (s *Schema) Endpoint(name string) (*Endpoint, error) {
	if e, ok := s.byEp[name]; ok {
		return e, nil
	}
	return nil, velograph.NewNotFoundError("endpoint", name)
}

// Type is a compiled node type. Custom is set for inline endpoint types,
// which have properties but no storage or CRUD surface.
type Type struct {
	Name      string
	Props     []*Prop
	Rels      []*Rel
	Endpoints config.EndpointsFilter
	Custom    bool
	Names     TypeNames

	props map[string]*Prop
	rels  map[string]*Rel
}

// Prop returns the property with the given name.
func (t *Type) Prop(name string) (*Prop, error) {
	if p, ok := t.props[name]; ok {
		return p, nil
	}
	return nil, velograph.NewNotFoundError("property", t.Name+"."+name)
}

// Rel returns the relationship with the given name.
func (t *Type) Rel(name string) (*Rel, error) {
	if r, ok := t.rels[name]; ok {
		return r, nil
	}
	return nil, velograph.NewNotFoundError("relationship", t.Name+"."+name)
}

// HasRel reports whether name is a relationship of t.
func (t *Type) HasRel(name string) bool {
	_, ok := t.rels[name]
	return ok
}

// Stored returns the backend-stored properties.
func (t *Type) Stored() []*Prop {
	return slices.DeleteFunc(slices.Clone(t.Props), (*Prop).Computed)
}

// Prop is a compiled property.
type Prop struct {
	Name      string
	Type      string
	Required  bool
	List      bool
	Resolver  string
	Validator string
	Uses      config.UsesFilter

	ops []config.Operator
}

// Computed reports whether the property is resolver-backed.
func (p *Prop) Computed() bool { return p.Resolver != "" }

// Operators returns the comparison operators the property accepts in a filter.
func (p *Prop) Operators() []config.Operator { return p.ops }

// Allows reports whether op may be used to filter on the property.
func (p *Prop) Allows(op config.Operator) bool {
	return p.Uses.Query && slices.Contains(p.ops, op)
}

// Accepts reports whether v fits the property type. Null is accepted for
// optional properties and, for list properties, as an empty list.
func (p *Prop) Accepts(v value.Value) bool {
	if v.IsNull() {
		return !p.Required || p.List
	}
	if p.List {
		arr, err := v.AsArray()
		if err != nil {
			return false
		}
		for _, e := range arr {
			if !e.IsNull() && !AcceptsScalar(p.Type, e) {
				return false
			}
		}
		return true
	}
	return AcceptsScalar(p.Type, v)
}

// AcceptsScalar reports whether v is a value of the given scalar type.
func AcceptsScalar(scalar string, v value.Value) bool {
	switch v.Kind() {
	case value.KindBool:
		return scalar == config.Boolean
	case value.KindInt64, value.KindUInt64:
		return scalar == config.Int || scalar == config.Float
	case value.KindFloat64:
		return scalar == config.Float
	case value.KindString, value.KindUuid:
		return scalar == config.String || scalar == config.ID
	}
	return false
}

// Rel is a compiled relationship declared on type Src. Nodes lists the
// destination type names.
type Rel struct {
	Name      string
	FullName  string
	Src       string
	List      bool
	Nodes     []string
	Props     []*Prop
	Endpoints config.EndpointsFilter
	Resolver  string
	Names     RelNames

	props map[string]*Prop
}

// Prop returns the relationship property with the given name.
func (r *Rel) Prop(name string) (*Prop, error) {
	if p, ok := r.props[name]; ok {
		return p, nil
	}
	return nil, velograph.NewNotFoundError("property", r.FullName+"."+name)
}

// Polymorphic reports whether the relationship has more than one destination type.
func (r *Rel) Polymorphic() bool { return len(r.Nodes) > 1 }

// AllowsDst reports whether typ is a destination type of the relationship.
func (r *Rel) AllowsDst(typ string) bool { return slices.Contains(r.Nodes, typ) }

// Endpoint is a compiled custom endpoint. The resolver has the endpoint name.
type Endpoint struct {
	Name   string
	Class  config.EndpointClass
	Input  *EndpointType
	Output *EndpointType
}

// EndpointType is the compiled input or output of an endpoint. Type is set for
// existing and custom types.
type EndpointType struct {
	Kind     config.TypeDefKind
	Name     string
	Type     *Type
	List     bool
	Required bool
}

// IsScalar reports whether the endpoint type is a scalar.
func (t *EndpointType) IsScalar() bool { return t.Kind == config.TypeDefScalar }
