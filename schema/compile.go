package schema

import (
	"slices"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
)

// Registry reports which resolvers and validators are registered.
type Registry interface {
	HasResolver(name string) bool
	HasValidator(name string) bool
}

// Compile validates cfg, resolves every resolver and validator name against
// reg and builds the schema. Unresolved names fail with
// velograph.ResolverNotFoundError or velograph.ValidatorNotFoundError, and
// every other problem with a velograph.ConfigError. All errors found are
// returned together.
//
// cfg must not be modified after Compile returns.
func Compile(cfg *config.Config, reg Registry) (*Schema, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Schema{
		cfg:    cfg,
		byName: make(map[string]*Type, len(cfg.Model)),
		rels:   make(map[string]*Rel),
		byEp:   make(map[string]*Endpoint, len(cfg.Endpoints)),
	}
	c := &compiler{reg: reg}
	for _, ct := range cfg.Model {
		t := c.typ(ct, false)
		s.types = append(s.types, t)
		s.byName[t.Name] = t
		for _, r := range t.Rels {
			s.rels[r.FullName] = r
		}
	}
	for _, ce := range cfg.Endpoints {
		if !reg.HasResolver(ce.Name) {
			c.errs = append(c.errs, &velograph.ResolverNotFoundError{Name: ce.Name})
		}
		e := &Endpoint{Name: ce.Name, Class: ce.Class}
		e.Input = c.endpointType(s, ce.Input)
		e.Output = c.endpointType(s, ce.Output)
		s.endpoints = append(s.endpoints, e)
		s.byEp[e.Name] = e
	}
	c.checkNames(s)
	if err := velograph.NewAggregateError(c.errs...); err != nil {
		return nil, err
	}
	return s, nil
}

type compiler struct {
	reg  Registry
	errs []error
}

func (c *compiler) typ(ct *config.Type, custom bool) *Type {
	t := &Type{
		Name:      ct.Name,
		Endpoints: ct.Filter(),
		Custom:    custom,
		Names:     typeNames(ct.Name),
		props:     make(map[string]*Prop, len(ct.Props)),
		rels:      make(map[string]*Rel, len(ct.Rels)),
	}
	if custom {
		t.Endpoints = config.NoEndpoints()
	}
	t.Props = c.props(ct.Props, t.props)
	for _, cr := range ct.Rels {
		full := FullName(ct.Name, cr.Name)
		r := &Rel{
			Name:      cr.Name,
			FullName:  full,
			Src:       ct.Name,
			List:      cr.List,
			Nodes:     slices.Clone(cr.Nodes),
			Endpoints: cr.Filter(),
			Resolver:  cr.Resolver,
			Names:     relNames(full),
			props:     make(map[string]*Prop, len(cr.Props)),
		}
		r.Props = c.props(cr.Props, r.props)
		c.resolver(r.Resolver)
		t.Rels = append(t.Rels, r)
		t.rels[r.Name] = r
	}
	return t
}

func (c *compiler) props(cps []*config.Property, index map[string]*Prop) []*Prop {
	out := make([]*Prop, 0, len(cps))
	for _, cp := range cps {
		uses := cp.Filter()
		ops := uses.Operators
		if len(ops) == 0 {
			ops = config.DefaultOperators(cp.Type)
		}
		p := &Prop{
			Name:      cp.Name,
			Type:      cp.Type,
			Required:  cp.Required,
			List:      cp.List,
			Resolver:  cp.Resolver,
			Validator: cp.Validator,
			Uses:      uses,
			ops:       slices.Clone(ops),
		}
		if p.Computed() {
			// Computed properties cannot be written or filtered on.
			p.Uses.Create, p.Uses.Update, p.Uses.Query = false, false, false
		}
		c.resolver(p.Resolver)
		c.validator(p.Validator)
		out = append(out, p)
		index[p.Name] = p
	}
	return out
}

func (c *compiler) resolver(name string) {
	if name != "" && !c.reg.HasResolver(name) {
		c.errs = append(c.errs, &velograph.ResolverNotFoundError{Name: name})
	}
}

func (c *compiler) validator(name string) {
	if name != "" && !c.reg.HasValidator(name) {
		c.errs = append(c.errs, &velograph.ValidatorNotFoundError{Name: name})
	}
}

func (c *compiler) endpointType(s *Schema, ct *config.EndpointType) *EndpointType {
	if ct == nil {
		return nil
	}
	et := &EndpointType{Kind: ct.Type.Kind, Name: ct.Type.Name, List: ct.List, Required: ct.Required}
	switch ct.Type.Kind {
	case config.TypeDefExisting:
		et.Type = s.byName[ct.Type.Name]
	case config.TypeDefCustom:
		if t, ok := s.byName[ct.Type.Name]; ok && t.Custom {
			et.Type = t
			break
		}
		et.Type = c.typ(ct.Type.Custom, true)
		s.byName[et.Type.Name] = et.Type
	}
	return et
}

// checkNames rejects model types whose names collide with a generated name of
// another type or relationship.
func (c *compiler) checkNames(s *Schema) {
	generated := make(map[string]bool)
	for _, t := range s.types {
		for _, n := range t.Names.variants() {
			generated[n] = true
		}
		for _, r := range t.Rels {
			for _, n := range r.Names.variants() {
				generated[n] = true
			}
		}
	}
	for _, t := range s.byName {
		if generated[t.Name] {
			c.errs = append(c.errs, velograph.NewConfigError(t.Name, velograph.ErrConfigItemDuplicated))
		}
	}
}
