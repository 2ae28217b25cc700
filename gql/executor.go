package gql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/value"
)

// Params are the parameters of a GraphQL request.
type Params struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`

	// Metadata is passed to the before_request hooks, e.g. HTTP headers.
	Metadata event.Metadata `json:"-"`
}

// Response is the result of a GraphQL request.
type Response struct {
	Data   value.Value   `json:"data"`
	Errors gqlerror.List `json:"errors,omitempty"`
}

// rootFunc builds the engine operation of a root field.
type rootFunc func(input value.Value, sel []*engine.Selection) *engine.Operation

// Executor executes GraphQL documents against an engine. It is safe for
// concurrent use.
type Executor struct {
	engine  *engine.Engine
	schema  *ast.Schema
	sdl     string
	roots   map[string]rootFunc
	version string
	logger  *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithVersion sets the value of the _version query field.
func WithVersion(v string) Option {
	return func(x *Executor) { x.version = v }
}

// WithLogger sets the logger of the executor.
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) { x.logger = l }
}

// NewExecutor generates the GraphQL schema of e and returns an executor for
// it.
func NewExecutor(e *engine.Engine, opts ...Option) (*Executor, error) {
	x := &Executor{
		engine: e,
		sdl:    SDL(e.Schema()),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	s, err := gqlparser.LoadSchema(&ast.Source{Name: "velograph.graphql", Input: x.sdl})
	if err != nil {
		return nil, fmt.Errorf("gql: load generated schema: %w", err)
	}
	x.schema = s
	x.roots = roots(e)
	return x, nil
}

// SDL returns the generated schema document.
func (x *Executor) SDL() string { return x.sdl }

// Schema returns the parsed schema.
func (x *Executor) Schema() *ast.Schema { return x.schema }

// Engine returns the engine the executor runs on.
func (x *Executor) Engine() *engine.Engine { return x.engine }

func roots(e *engine.Engine) map[string]rootFunc {
	m := make(map[string]rootFunc)
	for _, t := range e.Schema().Types() {
		name, n := t.Name, t.Names
		m[n.ReadEndpoint] = func(in value.Value, sel []*engine.Selection) *engine.Operation {
			return engine.ReadNodes(name, in, sel...)
		}
		m[n.CreateEndpoint] = func(in value.Value, sel []*engine.Selection) *engine.Operation {
			return engine.CreateNode(name, in, sel...)
		}
		m[n.UpdateEndpoint] = func(in value.Value, sel []*engine.Selection) *engine.Operation {
			return engine.UpdateNodes(name, in, sel...)
		}
		m[n.DeleteEndpoint] = func(in value.Value, _ []*engine.Selection) *engine.Operation {
			return engine.DeleteNodes(name, in)
		}
	}
	for _, r := range e.Schema().Rels() {
		full, n := r.FullName, r.Names
		m[n.ReadEndpoint] = func(in value.Value, sel []*engine.Selection) *engine.Operation {
			return engine.ReadRels(full, in, sel...)
		}
		m[n.CreateEndpoint] = func(in value.Value, sel []*engine.Selection) *engine.Operation {
			return engine.CreateRels(full, in, sel...)
		}
		m[n.UpdateEndpoint] = func(in value.Value, sel []*engine.Selection) *engine.Operation {
			return engine.UpdateRels(full, in, sel...)
		}
		m[n.DeleteEndpoint] = func(in value.Value, _ []*engine.Selection) *engine.Operation {
			return engine.DeleteRels(full, in)
		}
	}
	for _, ep := range e.Schema().Endpoints() {
		name := ep.Name
		m[name] = func(in value.Value, sel []*engine.Selection) *engine.Operation {
			return engine.CallEndpoint(name, in, sel...)
		}
	}
	return m
}

// Execute runs a GraphQL request. Errors of a root field null the field
// and are reported with its path. Errors that prevent execution leave the
// data null.
func (x *Executor) Execute(ctx context.Context, p Params) *Response {
	doc, errs := gqlparser.LoadQuery(x.schema, p.Query)
	if len(errs) > 0 {
		return &Response{Errors: errs}
	}
	op := doc.Operations.ForName(p.OperationName)
	if op == nil {
		if p.OperationName == "" {
			return fail(gqlerror.Errorf("an operation name is required when the document has several operations"))
		}
		return fail(gqlerror.Errorf("operation %q not found", p.OperationName))
	}
	if op.Operation == ast.Subscription {
		return fail(gqlerror.Errorf("subscriptions are not supported"))
	}
	vars, err := validator.VariableValues(x.schema, op, p.Variables)
	if err != nil {
		return fail(gqlerror.WrapPath(nil, err))
	}

	req, err := x.engine.NewRequest(ctx, p.Metadata)
	if err != nil {
		return fail(gqlerror.WrapPath(nil, err))
	}

	c := &converter{schema: x.schema, doc: doc, vars: vars}
	root := x.schema.Query
	if op.Operation == ast.Mutation {
		root = x.schema.Mutation
	}
	fields, err := c.fields(op.SelectionSet, root.Name)
	if err != nil {
		return fail(gqlerror.WrapPath(nil, err))
	}

	// Root fields share the request context and its hooks, so they run one
	// after the other in document order.
	results := make([]value.Value, len(fields))
	fieldErrs := make([]error, len(fields))
	for i, f := range fields {
		results[i], fieldErrs[i] = x.rootField(ctx, req, root.Name, f)
	}

	resp := &Response{}
	data := make(map[string]value.Value, len(fields))
	for i, f := range fields {
		data[f.Key()] = results[i]
		if fieldErrs[i] != nil {
			x.logger.DebugContext(ctx, "graphql field failed", "field", f.Key(), "error", fieldErrs[i])
			resp.Errors = append(resp.Errors, fieldError(f.Key(), fieldErrs[i]))
		}
	}
	out, err := req.Finish(ctx, value.Map(data))
	if err != nil {
		resp.Errors = append(resp.Errors, gqlerror.WrapPath(nil, err))
		return resp
	}
	resp.Data = out
	return resp
}

func fail(err *gqlerror.Error) *Response {
	return &Response{Errors: gqlerror.List{err}}
}

func fieldError(key string, err error) *gqlerror.Error {
	var gerr *gqlerror.Error
	if errors.As(err, &gerr) && gerr.Path == nil {
		gerr.Path = ast.Path{ast.PathName(key)}
		return gerr
	}
	return gqlerror.WrapPath(ast.Path{ast.PathName(key)}, err)
}

// rootField resolves one field of the Query or Mutation type.
func (x *Executor) rootField(ctx context.Context, req *engine.Request, root string, f *engine.Selection) (value.Value, error) {
	switch f.Name {
	case typenameField:
		return value.String(root), nil
	case versionField:
		if x.version == "" {
			return value.Null(), nil
		}
		return value.String(x.version), nil
	case "__schema", "__type":
		return value.Null(), gqlerror.Errorf("introspection is not supported")
	}
	build, ok := x.roots[f.Name]
	if !ok {
		return value.Null(), gqlerror.Errorf("unknown field %q on %s", f.Name, root)
	}
	in, _ := f.Args.Get(inputArg)
	return req.Execute(ctx, build(in, f.Fields))
}
