// Package config holds the declarative data model that an engine is built
// from: types, their properties and relationships, and custom endpoints.
//
// A model is usually written in YAML:
//
//	version: 1
//	model:
//	  - name: Project
//	    props:
//	      - name: name
//	        type: String
//	        required: true
//	      - name: points
//	        type: Int
//	        resolver: ProjectPoints
//	    rels:
//	      - name: owner
//	        nodes: [User]
//	endpoints:
//	  - name: TopProject
//	    class: Query
//	    output:
//	      type: Project
package config

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// LatestVersion is the newest configuration format understood by this package.
const LatestVersion = 1

// Scalar type names. They are reserved and may not be used as type names.
const (
	Boolean = "Boolean"
	Float   = "Float"
	ID      = "ID"
	Int     = "Int"
	String  = "String"
)

// Scalars lists the scalar type names.
var Scalars = []string{Int, Float, Boolean, String, ID}

// IsScalar reports whether name is a scalar type name.
func IsScalar(name string) bool {
	return slices.Contains(Scalars, name)
}

// Config is the root of a data model.
type Config struct {
	Version   int         `yaml:"version" json:"version" validate:"gte=1"`
	Model     []*Type     `yaml:"model,omitempty" json:"model,omitempty" validate:"dive"`
	Endpoints []*Endpoint `yaml:"endpoints,omitempty" json:"endpoints,omitempty" validate:"dive"`
}

// New returns a Config at the given version.
func New(version int, model []*Type, endpoints []*Endpoint) *Config {
	return &Config{Version: version, Model: model, Endpoints: endpoints}
}

// Type returns the model type with the given name, or nil.
func (c *Config) Type(name string) *Type {
	for _, t := range c.Model {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Endpoint returns the custom endpoint with the given name, or nil.
func (c *Config) Endpoint(name string) *Endpoint {
	for _, e := range c.Endpoints {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{Version: c.Version}
	for _, t := range c.Model {
		out.Model = append(out.Model, t.Clone())
	}
	for _, e := range c.Endpoints {
		out.Endpoints = append(out.Endpoints, e.Clone())
	}
	return out
}

// Type describes a node type of the model.
type Type struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	Props     []*Property      `yaml:"props,omitempty" json:"props,omitempty" validate:"dive"`
	Rels      []*Relationship  `yaml:"rels,omitempty" json:"rels,omitempty" validate:"dive"`
	Endpoints *EndpointsFilter `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
}

// Prop returns the property with the given name, or nil.
func (t *Type) Prop(name string) *Property {
	for _, p := range t.Props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Rel returns the relationship with the given name, or nil.
func (t *Type) Rel(name string) *Relationship {
	for _, r := range t.Rels {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Filter returns the endpoints exposed for the type. All of them are
// exposed when the filter is absent.
func (t *Type) Filter() EndpointsFilter {
	if t.Endpoints == nil {
		return AllEndpoints()
	}
	return *t.Endpoints
}

// Clone returns a deep copy of t.
func (t *Type) Clone() *Type {
	if t == nil {
		return nil
	}
	out := &Type{Name: t.Name}
	for _, p := range t.Props {
		out.Props = append(out.Props, p.Clone())
	}
	for _, r := range t.Rels {
		out.Rels = append(out.Rels, r.Clone())
	}
	if t.Endpoints != nil {
		f := *t.Endpoints
		out.Endpoints = &f
	}
	return out
}

// Property describes a scalar or list field of a type or relationship.
// A property with a Resolver is computed and never stored.
type Property struct {
	Name      string      `yaml:"name" json:"name" validate:"required"`
	Type      string      `yaml:"type" json:"type" validate:"required,oneof=Boolean Float ID Int String"`
	Required  bool        `yaml:"required,omitempty" json:"required,omitempty"`
	List      bool        `yaml:"list,omitempty" json:"list,omitempty"`
	Resolver  string      `yaml:"resolver,omitempty" json:"resolver,omitempty"`
	Validator string      `yaml:"validator,omitempty" json:"validator,omitempty"`
	Uses      *UsesFilter `yaml:"uses,omitempty" json:"uses,omitempty"`
}

// Filter returns the usage flags of the property, defaulting to all uses.
func (p *Property) Filter() UsesFilter {
	if p.Uses == nil {
		return AllUses()
	}
	return *p.Uses
}

// Computed reports whether the property is resolver-backed.
func (p *Property) Computed() bool { return p.Resolver != "" }

// Clone returns a deep copy of p.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	out := *p
	if p.Uses != nil {
		u := *p.Uses
		u.Operators = slices.Clone(p.Uses.Operators)
		out.Uses = &u
	}
	return &out
}

// Relationship describes an outgoing relationship of a type. Nodes lists the
// allowed destination types; more than one makes the relationship polymorphic.
type Relationship struct {
	Name      string           `yaml:"name" json:"name" validate:"required"`
	List      bool             `yaml:"list,omitempty" json:"list,omitempty"`
	Nodes     []string         `yaml:"nodes" json:"nodes" validate:"required,min=1"`
	Props     []*Property      `yaml:"props,omitempty" json:"props,omitempty" validate:"dive"`
	Endpoints *EndpointsFilter `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
	Resolver  string           `yaml:"resolver,omitempty" json:"resolver,omitempty"`
}

// Prop returns the relationship property with the given name, or nil.
func (r *Relationship) Prop(name string) *Property {
	for _, p := range r.Props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Filter returns the endpoints exposed for the relationship.
func (r *Relationship) Filter() EndpointsFilter {
	if r.Endpoints == nil {
		return AllEndpoints()
	}
	return *r.Endpoints
}

// Clone returns a deep copy of r.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	out := *r
	out.Nodes = slices.Clone(r.Nodes)
	out.Props = nil
	for _, p := range r.Props {
		out.Props = append(out.Props, p.Clone())
	}
	if r.Endpoints != nil {
		f := *r.Endpoints
		out.Endpoints = &f
	}
	return &out
}

// EndpointsFilter selects which of the generated CRUD endpoints are exposed.
// Fields missing from a YAML mapping default to true.
type EndpointsFilter struct {
	Read   bool `yaml:"read" json:"read"`
	Create bool `yaml:"create" json:"create"`
	Update bool `yaml:"update" json:"update"`
	Delete bool `yaml:"delete" json:"delete"`
}

// AllEndpoints exposes every CRUD endpoint.
func AllEndpoints() EndpointsFilter {
	return EndpointsFilter{Read: true, Create: true, Update: true, Delete: true}
}

// NoEndpoints exposes none of the CRUD endpoints.
func NoEndpoints() EndpointsFilter { return EndpointsFilter{} }

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *EndpointsFilter) UnmarshalYAML(n *yaml.Node) error {
	type raw EndpointsFilter
	r := raw(AllEndpoints())
	if err := n.Decode(&r); err != nil {
		return err
	}
	*f = EndpointsFilter(r)
	return nil
}

// UsesFilter controls where a property appears in the generated API and which
// comparison operators its query input accepts. The booleans default to true
// and an empty Operators list means the default set for the property type.
type UsesFilter struct {
	Create    bool       `yaml:"create" json:"create"`
	Query     bool       `yaml:"query" json:"query"`
	Update    bool       `yaml:"update" json:"update"`
	Output    bool       `yaml:"output" json:"output"`
	Operators []Operator `yaml:"operators,omitempty" json:"operators,omitempty"`
}

// AllUses enables a property everywhere.
func AllUses() UsesFilter {
	return UsesFilter{Create: true, Query: true, Update: true, Output: true}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *UsesFilter) UnmarshalYAML(n *yaml.Node) error {
	type raw UsesFilter
	r := raw(AllUses())
	if err := n.Decode(&r); err != nil {
		return err
	}
	*f = UsesFilter(r)
	return nil
}

// Operator is a comparison operator of a query input.
type Operator string

// Comparison operators.
const (
	EQ          Operator = "EQ"
	NOTEQ       Operator = "NOTEQ"
	IN          Operator = "IN"
	NOTIN       Operator = "NOTIN"
	CONTAINS    Operator = "CONTAINS"
	NOTCONTAINS Operator = "NOTCONTAINS"
	GT          Operator = "GT"
	GTE         Operator = "GTE"
	LT          Operator = "LT"
	LTE         Operator = "LTE"
)

// Operators lists every comparison operator.
var Operators = []Operator{EQ, NOTEQ, IN, NOTIN, CONTAINS, NOTCONTAINS, GT, GTE, LT, LTE}

// DefaultOperators returns the operators enabled for a scalar type when the
// uses filter does not list any.
func DefaultOperators(scalar string) []Operator {
	switch scalar {
	case String, ID:
		return slices.Clone(Operators)
	case Int, Float:
		return []Operator{EQ, NOTEQ, IN, NOTIN, GT, GTE, LT, LTE}
	default:
		return []Operator{EQ, NOTEQ}
	}
}

// EndpointClass tells whether a custom endpoint is a query or a mutation.
type EndpointClass string

// Endpoint classes.
const (
	Query    EndpointClass = "Query"
	Mutation EndpointClass = "Mutation"
)

// Endpoint describes a custom root operation backed by a resolver of the same
// name.
type Endpoint struct {
	Name   string        `yaml:"name" json:"name" validate:"required"`
	Class  EndpointClass `yaml:"class" json:"class" validate:"required,oneof=Query Mutation"`
	Input  *EndpointType `yaml:"input,omitempty" json:"input,omitempty"`
	Output *EndpointType `yaml:"output" json:"output" validate:"required"`
}

// Clone returns a deep copy of e.
func (e *Endpoint) Clone() *Endpoint {
	if e == nil {
		return nil
	}
	out := *e
	out.Input = e.Input.Clone()
	out.Output = e.Output.Clone()
	return &out
}

// EndpointType is the input or output shape of a custom endpoint.
type EndpointType struct {
	Type     TypeDef `yaml:"type" json:"type"`
	List     bool    `yaml:"list,omitempty" json:"list,omitempty"`
	Required bool    `yaml:"required,omitempty" json:"required,omitempty"`
}

// Clone returns a deep copy of t.
func (t *EndpointType) Clone() *EndpointType {
	if t == nil {
		return nil
	}
	out := *t
	out.Type.Custom = t.Type.Custom.Clone()
	return &out
}

// TypeDefKind tells which variant a TypeDef holds.
type TypeDefKind int

// TypeDef variants.
const (
	TypeDefScalar TypeDefKind = iota
	TypeDefExisting
	TypeDefCustom
)

// TypeDef names the type of an endpoint input or output: a scalar, an
// existing model type, or an inline custom type. In YAML the first two are
// written as a plain name and the last as a type mapping.
type TypeDef struct {
	Kind   TypeDefKind
	Name   string
	Custom *Type
}

// ScalarDef returns a scalar TypeDef.
func ScalarDef(name string) TypeDef { return TypeDef{Kind: TypeDefScalar, Name: name} }

// ExistingDef returns a TypeDef referring to a model type.
func ExistingDef(name string) TypeDef { return TypeDef{Kind: TypeDefExisting, Name: name} }

// CustomDef returns a TypeDef holding an inline type.
func CustomDef(t *Type) TypeDef { return TypeDef{Kind: TypeDefCustom, Name: t.Name, Custom: t} }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TypeDef) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var name string
		if err := n.Decode(&name); err != nil {
			return err
		}
		if IsScalar(name) {
			*d = ScalarDef(name)
		} else {
			*d = ExistingDef(name)
		}
		return nil
	case yaml.MappingNode:
		t := &Type{}
		if err := n.Decode(t); err != nil {
			return err
		}
		*d = CustomDef(t)
		return nil
	}
	return fmt.Errorf("config: line %d: type must be a name or a type definition", n.Line)
}

// MarshalYAML implements yaml.Marshaler.
func (d TypeDef) MarshalYAML() (any, error) {
	if d.Kind == TypeDefCustom {
		return d.Custom, nil
	}
	return d.Name, nil
}
