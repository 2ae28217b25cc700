// Package gql exposes a compiled schema over GraphQL: it generates the schema
// document and executes GraphQL requests against an engine.
//
// The generated surface has one object type per model type, a <Full>Rel type
// per relationship, the filter and mutation input types of every CRUD
// operation, and the Query and Mutation root fields allowed by each type's
// endpoints filter. Custom endpoints become root fields of their class.
// Types left without fields, such as the props type of a relationship that
// declares none, are pruned along with the fields that refer to them.
package gql

import (
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/schema"
)

// Root field arguments and fields of the generated surface.
const (
	inputArg     = "input"
	versionField = "_version"
)

// SDL returns the GraphQL schema document of s.
func SDL(s *schema.Schema) string {
	var sb strings.Builder
	formatter.NewFormatter(&sb).FormatSchemaDocument(Document(s))
	return sb.String()
}

// Document builds the GraphQL schema document of s.
func Document(s *schema.Schema) *ast.SchemaDocument {
	b := &builder{s: s, index: make(map[string]*ast.Definition)}
	b.query = b.def(ast.Object, "Query")
	b.mutation = b.def(ast.Object, "Mutation")
	b.query.Fields = append(b.query.Fields, field(versionField, named(config.String)))

	for _, t := range s.Types() {
		b.nodeType(t)
	}
	for _, r := range s.Rels() {
		b.relType(r)
	}
	for _, t := range s.Types() {
		b.nodeRoots(t)
	}
	for _, r := range s.Rels() {
		b.relRoots(r)
	}
	for _, ep := range s.Endpoints() {
		b.endpoint(ep)
	}
	b.prune()
	b.sortScalarInputs()
	return &ast.SchemaDocument{Definitions: b.defs}
}

type builder struct {
	s     *schema.Schema
	defs  ast.DefinitionList
	index map[string]*ast.Definition

	query    *ast.Definition
	mutation *ast.Definition
}

// def returns the definition called name, adding an empty one first.
func (b *builder) def(kind ast.DefinitionKind, name string) *ast.Definition {
	if d, ok := b.index[name]; ok {
		return d
	}
	d := &ast.Definition{Kind: kind, Name: name}
	b.defs = append(b.defs, d)
	b.index[name] = d
	return d
}

func named(name string) *ast.Type   { return ast.NamedType(name, nil) }
func nonNull(name string) *ast.Type { return ast.NonNullNamedType(name, nil) }
func listOf(name string) *ast.Type  { return ast.ListType(named(name), nil) }
func orList(name string, list bool) *ast.Type {
	if list {
		return listOf(name)
	}
	return named(name)
}

func field(name string, typ *ast.Type, args ...*ast.ArgumentDefinition) *ast.FieldDefinition {
	return &ast.FieldDefinition{Name: name, Type: typ, Arguments: args}
}

func arg(name string, typ *ast.Type) *ast.ArgumentDefinition {
	return &ast.ArgumentDefinition{Name: name, Type: typ}
}

func isBuiltin(name string) bool {
	switch name {
	case config.Boolean, config.Float, config.ID, config.Int, config.String:
		return true
	}
	return false
}

// propType is the GraphQL type of a property. Required single values are
// non-null when strict is set.
func propType(p *schema.Prop, strict bool) *ast.Type {
	if p.List {
		return listOf(p.Type)
	}
	if strict && p.Required {
		return nonNull(p.Type)
	}
	return named(p.Type)
}

// scalarQuery returns the name of the comparison input of scalar, adding
// the fields of ops to it.
func (b *builder) scalarQuery(scalar string, ops []config.Operator) string {
	d := b.def(ast.InputObject, schema.ScalarQueryInput(scalar))
	for _, op := range ops {
		if d.Fields.ForName(string(op)) != nil {
			continue
		}
		typ := named(scalar)
		if op == config.IN || op == config.NOTIN {
			typ = listOf(scalar)
		}
		d.Fields = append(d.Fields, field(string(op), typ))
	}
	return d.Name
}

func (b *builder) idQuery() string {
	return b.scalarQuery(config.ID, config.DefaultOperators(config.ID))
}

// propFilters appends a comparison field for every filterable stored
// property.
func (b *builder) propFilters(d *ast.Definition, props []*schema.Prop) {
	for _, p := range props {
		if !p.Uses.Query || p.Computed() {
			continue
		}
		d.Fields = append(d.Fields, field(p.Name, named(b.scalarQuery(p.Type, p.Operators()))))
	}
}

func stored(rels []*schema.Rel) []*schema.Rel {
	return slices.DeleteFunc(slices.Clone(rels), func(r *schema.Rel) bool { return r.Resolver != "" })
}

// nodeType adds the object type of t and its input types.
func (b *builder) nodeType(t *schema.Type) {
	n := t.Names
	obj := b.def(ast.Object, n.Object)
	obj.Fields = append(obj.Fields, field(database.IDField, nonNull(config.ID)))
	for _, p := range t.Props {
		if p.Uses.Output {
			obj.Fields = append(obj.Fields, field(p.Name, propType(p, true)))
		}
	}
	for _, r := range t.Rels {
		obj.Fields = append(obj.Fields, field(r.Name, orList(r.Names.Object, r.List),
			arg(inputArg, named(r.Names.QueryInput))))
	}

	q := b.def(ast.InputObject, n.QueryInput)
	q.Fields = append(q.Fields, field(database.IDField, named(b.idQuery())))
	b.propFilters(q, t.Props)
	for _, r := range stored(t.Rels) {
		q.Fields = append(q.Fields, field(r.Name, named(r.Names.QueryInput)))
	}

	in := b.def(ast.InputObject, n.Input)
	in.Fields = append(in.Fields,
		field(engine.KeywordExisting, named(n.QueryInput)),
		field(engine.KeywordNew, named(n.CreateMutationInput)),
	)

	create := b.def(ast.InputObject, n.CreateMutationInput)
	update := b.def(ast.InputObject, n.UpdateMutationInput)
	for _, p := range t.Props {
		if p.Computed() {
			continue
		}
		if p.Uses.Create {
			create.Fields = append(create.Fields, field(p.Name, propType(p, true)))
		}
		if p.Uses.Update {
			update.Fields = append(update.Fields, field(p.Name, propType(p, false)))
		}
	}
	del := b.def(ast.InputObject, n.DeleteMutationInput)
	for _, r := range stored(t.Rels) {
		create.Fields = append(create.Fields, field(r.Name, orList(r.Names.CreateMutationInput, r.List)))
		update.Fields = append(update.Fields, field(r.Name, listOf(r.Names.ChangeInput)))
		del.Fields = append(del.Fields, field(r.Name, listOf(r.Names.DeleteMutationInput)))
	}

	b.def(ast.InputObject, n.UpdateInput).Fields = ast.FieldList{
		field(engine.KeywordMatch, named(n.QueryInput)),
		field(engine.KeywordSet, named(n.UpdateMutationInput)),
	}
	b.def(ast.InputObject, n.DeleteInput).Fields = ast.FieldList{
		field(engine.KeywordMatch, named(n.QueryInput)),
		field(engine.KeywordDelete, named(n.DeleteMutationInput)),
	}
}

// relType adds the object, union and input types of r.
func (b *builder) relType(r *schema.Rel) {
	n := r.Names
	src, err := b.s.Type(r.Src)
	if err != nil {
		return
	}

	b.def(ast.Object, n.Object).Fields = ast.FieldList{
		field(database.IDField, nonNull(config.ID)),
		field(engine.KeywordProps, named(n.Props)),
		field(engine.KeywordSrc, nonNull(src.Names.Object)),
		field(engine.KeywordDst, nonNull(n.NodesUnion)),
	}
	b.def(ast.Union, n.NodesUnion).Types = slices.Clone(r.Nodes)

	props := b.def(ast.Object, n.Props)
	propsIn := b.def(ast.InputObject, n.PropsInput)
	for _, p := range r.Props {
		if p.Uses.Output {
			props.Fields = append(props.Fields, field(p.Name, propType(p, true)))
		}
		if !p.Computed() && (p.Uses.Create || p.Uses.Update) {
			propsIn.Fields = append(propsIn.Fields, field(p.Name, propType(p, false)))
		}
	}
	b.propFilters(b.def(ast.InputObject, n.PropsQueryInput), r.Props)

	b.def(ast.InputObject, n.QueryInput).Fields = ast.FieldList{
		field(database.IDField, named(b.idQuery())),
		field(engine.KeywordProps, named(n.PropsQueryInput)),
		field(engine.KeywordSrc, named(n.SrcQueryInput)),
		field(engine.KeywordDst, named(n.DstQueryInput)),
	}
	b.def(ast.InputObject, n.SrcQueryInput).Fields = ast.FieldList{
		field(src.Name, named(src.Names.QueryInput)),
	}
	dstQ := b.def(ast.InputObject, n.DstQueryInput)
	dstIn := b.def(ast.InputObject, n.NodesMutationInputUnion)
	for _, name := range r.Nodes {
		dt, err := b.s.Type(name)
		if err != nil {
			continue
		}
		dstQ.Fields = append(dstQ.Fields, field(dt.Name, named(dt.Names.QueryInput)))
		dstIn.Fields = append(dstIn.Fields, field(dt.Name, named(dt.Names.Input)))
	}

	b.def(ast.InputObject, n.CreateMutationInput).Fields = ast.FieldList{
		field(engine.KeywordProps, named(n.PropsInput)),
		field(engine.KeywordDst, nonNull(n.NodesMutationInputUnion)),
	}
	b.def(ast.InputObject, n.CreateInput).Fields = ast.FieldList{
		field(engine.KeywordMatch, named(src.Names.QueryInput)),
		field(engine.KeywordCreate, orList(n.CreateMutationInput, r.List)),
	}
	b.def(ast.InputObject, n.UpdateMutationInput).Fields = ast.FieldList{
		field(engine.KeywordProps, named(n.PropsInput)),
	}
	b.def(ast.InputObject, n.UpdateInput).Fields = ast.FieldList{
		field(engine.KeywordMatch, named(n.QueryInput)),
		field(engine.KeywordSet, named(n.UpdateMutationInput)),
	}
	b.def(ast.InputObject, n.DeleteInput).Fields = ast.FieldList{
		field(engine.KeywordMatch, named(n.QueryInput)),
	}
	b.def(ast.InputObject, n.ChangeInput).Fields = ast.FieldList{
		field(engine.KeywordAdd, named(n.CreateMutationInput)),
		field(engine.KeywordUpdate, named(n.UpdateInput)),
		field(engine.KeywordDelete, named(n.DeleteInput)),
	}

	// A cascade DELETE applies to every destination type alike, so it is
	// typed for single-type relationships only.
	cascade := b.def(ast.InputObject, n.DeleteMutationInput)
	cascade.Fields = ast.FieldList{field(engine.KeywordMatch, named(n.QueryInput))}
	if !r.Polymorphic() {
		if dt, err := b.s.Type(r.Nodes[0]); err == nil {
			cascade.Fields = append(cascade.Fields, field(engine.KeywordDelete, named(dt.Names.DeleteMutationInput)))
		}
	}
}

func (b *builder) nodeRoots(t *schema.Type) {
	n := t.Names
	if t.Endpoints.Read {
		b.query.Fields = append(b.query.Fields, field(n.ReadEndpoint, listOf(n.Object),
			arg(inputArg, named(n.QueryInput))))
	}
	if t.Endpoints.Create {
		b.mutation.Fields = append(b.mutation.Fields, field(n.CreateEndpoint, named(n.Object),
			arg(inputArg, nonNull(n.CreateMutationInput))))
	}
	if t.Endpoints.Update {
		b.mutation.Fields = append(b.mutation.Fields, field(n.UpdateEndpoint, listOf(n.Object),
			arg(inputArg, nonNull(n.UpdateInput))))
	}
	if t.Endpoints.Delete {
		b.mutation.Fields = append(b.mutation.Fields, field(n.DeleteEndpoint, named(config.Int),
			arg(inputArg, nonNull(n.DeleteInput))))
	}
}

func (b *builder) relRoots(r *schema.Rel) {
	if r.Resolver != "" {
		return
	}
	n := r.Names
	if r.Endpoints.Read {
		b.query.Fields = append(b.query.Fields, field(n.ReadEndpoint, listOf(n.Object),
			arg(inputArg, named(n.QueryInput))))
	}
	if r.Endpoints.Create {
		b.mutation.Fields = append(b.mutation.Fields, field(n.CreateEndpoint, listOf(n.Object),
			arg(inputArg, nonNull(n.CreateInput))))
	}
	if r.Endpoints.Update {
		b.mutation.Fields = append(b.mutation.Fields, field(n.UpdateEndpoint, listOf(n.Object),
			arg(inputArg, nonNull(n.UpdateInput))))
	}
	if r.Endpoints.Delete {
		b.mutation.Fields = append(b.mutation.Fields, field(n.DeleteEndpoint, named(config.Int),
			arg(inputArg, nonNull(n.DeleteInput))))
	}
}

// endpoint adds the root field of a custom endpoint and its inline types.
func (b *builder) endpoint(ep *schema.Endpoint) {
	root := b.query
	if ep.Class == config.Mutation {
		root = b.mutation
	}
	f := field(ep.Name, b.endpointType(ep.Output, false))
	if ep.Input != nil {
		f.Arguments = ast.ArgumentDefinitionList{arg(inputArg, b.endpointType(ep.Input, true))}
	}
	root.Fields = append(root.Fields, f)
}

func (b *builder) endpointType(t *schema.EndpointType, input bool) *ast.Type {
	name := t.Name
	switch t.Kind {
	case config.TypeDefExisting:
		if input {
			name = t.Type.Names.QueryInput
		}
	case config.TypeDefCustom:
		kind := ast.Object
		if input {
			kind = ast.InputObject
		}
		d := b.def(kind, t.Type.Name)
		if len(d.Fields) == 0 {
			for _, p := range t.Type.Props {
				d.Fields = append(d.Fields, field(p.Name, propType(p, true)))
			}
		}
	}
	typ := named(name)
	if t.List {
		typ = ast.ListType(typ, nil)
	}
	typ.NonNull = t.Required
	return typ
}

// prune drops the definitions without fields, then the fields and arguments
// referring to dropped definitions, until nothing changes.
func (b *builder) prune() {
	for changed := true; changed; {
		changed = false
		for _, d := range b.defs {
			if d.Kind != ast.Object && d.Kind != ast.InputObject {
				continue
			}
			n := len(d.Fields)
			d.Fields = slices.DeleteFunc(d.Fields, func(f *ast.FieldDefinition) bool {
				return !b.known(f.Type)
			})
			for _, f := range d.Fields {
				f.Arguments = slices.DeleteFunc(f.Arguments, func(a *ast.ArgumentDefinition) bool {
					return !b.known(a.Type)
				})
			}
			if len(d.Fields) != n {
				changed = true
			}
		}
		for _, d := range b.defs {
			empty := (d.Kind == ast.Object || d.Kind == ast.InputObject) && len(d.Fields) == 0
			empty = empty || d.Kind == ast.Union && len(d.Types) == 0
			if empty {
				delete(b.index, d.Name)
				changed = true
			}
		}
		b.defs = slices.DeleteFunc(b.defs, func(d *ast.Definition) bool { return b.index[d.Name] != d })
	}
}

func (b *builder) known(t *ast.Type) bool {
	name := t.Name()
	_, ok := b.index[name]
	return ok || isBuiltin(name)
}

// sortScalarInputs orders the operators of the comparison inputs.
func (b *builder) sortScalarInputs() {
	for _, scalar := range []string{config.Boolean, config.Float, config.ID, config.Int, config.String} {
		d, ok := b.index[schema.ScalarQueryInput(scalar)]
		if !ok {
			continue
		}
		slices.SortFunc(d.Fields, func(x, y *ast.FieldDefinition) int {
			return slices.Index(config.Operators, config.Operator(x.Name)) - slices.Index(config.Operators, config.Operator(y.Name))
		})
	}
}
