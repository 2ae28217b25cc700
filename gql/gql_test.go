package gql_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	_ "modernc.org/sqlite"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/database/sqlgraph"
	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/gql"
	"github.com/syssam/velograph/resolver"
	"github.com/syssam/velograph/value"
)

func registry() *resolver.Registry {
	return resolver.NewRegistry().
		MustRegisterResolver("ProjectCount", resolver.ResolverFunc(func(ctx context.Context, f *resolver.Facade) (any, error) {
			nodes, err := f.Tx.ReadNodes(ctx, database.NewNodeQuery("Project"))
			return value.Int64(int64(len(nodes))), err
		})).
		MustRegisterResolver("Rename", resolver.ResolverFunc(func(ctx context.Context, f *resolver.Facade) (any, error) {
			from, _ := f.Args.Get("from")
			to, _ := f.Args.Get("to")
			if from.Equal(to) {
				return nil, errors.New("nothing to rename")
			}
			q := database.NewNodeQuery("Project").Where(database.Predicate{Prop: "name", Op: config.EQ, Value: from})
			return f.Tx.UpdateNodes(ctx, q, map[string]value.Value{"name": to})
		}))
}

func newEngine(t *testing.T, h *event.Handlers) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	cfg, err := config.Load(filepath.Join("testdata", "model.yml"))
	require.NoError(t, err)
	drv, err := sqlgraph.Open(sqlgraph.SQLite, "file:"+filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	pool, err := sqlgraph.NewPool(ctx, drv)
	require.NoError(t, err)
	opts := []engine.Option{engine.WithPool(pool), engine.WithRegistry(registry())}
	if h != nil {
		opts = append(opts, engine.WithHandlers(h))
	}
	e, err := engine.New(ctx, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func newExecutor(t *testing.T, h *event.Handlers, opts ...gql.Option) *gql.Executor {
	t.Helper()
	x, err := gql.NewExecutor(newEngine(t, h), opts...)
	require.NoError(t, err)
	return x
}

// data runs a request that must succeed and returns its data as JSON.
func data(t *testing.T, x *gql.Executor, query string, vars map[string]any) string {
	t.Helper()
	resp := x.Execute(context.Background(), gql.Params{Query: query, Variables: vars})
	require.Empty(t, resp.Errors)
	b, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	return string(b)
}

func TestSDL(t *testing.T) {
	e := newEngine(t, nil)
	sdl := gql.SDL(e.Schema())
	s, err := gqlparser.LoadSchema(&ast.Source{Name: "model.graphql", Input: sdl})
	require.NoError(t, err, sdl)

	fieldType := func(typ, field string) string {
		t.Helper()
		d := s.Types[typ]
		require.NotNil(t, d, typ)
		f := d.Fields.ForName(field)
		require.NotNil(t, f, "%s.%s", typ, field)
		return f.Type.String()
	}

	t.Run("Objects", func(t *testing.T) {
		assert.Equal(t, "ID!", fieldType("Project", "id"))
		assert.Equal(t, "String!", fieldType("Project", "name"))
		assert.Equal(t, "[String]", fieldType("Project", "tags"))
		assert.Equal(t, "ProjectOwnerRel", fieldType("Project", "owner"))
		assert.Equal(t, "[ProjectIssuesRel]", fieldType("Project", "issues"))
		assert.Equal(t, "ProjectOwnerQueryInput", s.Types["Project"].Fields.ForName("owner").Arguments.ForName("input").Type.String())

		assert.Equal(t, "ProjectOwnerProps", fieldType("ProjectOwnerRel", "props"))
		assert.Equal(t, "Project!", fieldType("ProjectOwnerRel", "src"))
		assert.Equal(t, "ProjectIssuesNodesUnion!", fieldType("ProjectIssuesRel", "dst"))
		assert.Equal(t, []string{"Bug", "Feature"}, s.Types["ProjectIssuesNodesUnion"].Types)
		assert.Nil(t, s.Types["ProjectIssuesProps"], "relationships without props have no props type")
		assert.Nil(t, s.Types["ProjectIssuesRel"].Fields.ForName("props"))
	})

	t.Run("Inputs", func(t *testing.T) {
		assert.Equal(t, "StringQueryInput", fieldType("ProjectQueryInput", "name"))
		assert.Equal(t, "IDQueryInput", fieldType("ProjectQueryInput", "id"))
		assert.Equal(t, "ProjectOwnerQueryInput", fieldType("ProjectQueryInput", "owner"))
		assert.Equal(t, "[String]", fieldType("StringQueryInput", "IN"))
		assert.Equal(t, "String", fieldType("StringQueryInput", "CONTAINS"))
		assert.Equal(t, "IntQueryInput", fieldType("ProjectOwnerPropsQueryInput", "since"))
		assert.Nil(t, fieldTypeDef(s, "IntQueryInput", "CONTAINS"), "Int takes no CONTAINS")
		assert.Nil(t, s.Types["BooleanQueryInput"], "no Boolean property is filterable")

		assert.Equal(t, "String!", fieldType("ProjectCreateMutationInput", "name"))
		assert.Equal(t, "String", fieldType("ProjectUpdateMutationInput", "name"))
		assert.Equal(t, "[ProjectIssuesCreateMutationInput]", fieldType("ProjectCreateMutationInput", "issues"))
		assert.Equal(t, "[ProjectOwnerChangeInput]", fieldType("ProjectUpdateMutationInput", "owner"))
		assert.Equal(t, "ProjectOwnerNodesMutationInputUnion!", fieldType("ProjectOwnerCreateMutationInput", "dst"))
		assert.Equal(t, "UserInput", fieldType("ProjectOwnerNodesMutationInputUnion", "User"))
		assert.Equal(t, "UserCreateMutationInput", fieldType("UserInput", "NEW"))
		assert.Equal(t, "ProjectQueryInput", fieldType("ProjectOwnerSrcQueryInput", "Project"))
		assert.Equal(t, "FeatureQueryInput", fieldType("ProjectIssuesDstQueryInput", "Feature"))

		assert.Equal(t, "[ProjectIssuesDeleteMutationInput]", fieldType("ProjectDeleteMutationInput", "issues"))
		assert.Nil(t, s.Types["ProjectIssuesDeleteMutationInput"].Fields.ForName("DELETE"), "polymorphic cascades take no nested DELETE")
		assert.Nil(t, s.Types["UserDeleteMutationInput"], "User has nothing to cascade to")
		assert.Nil(t, s.Types["UserDeleteInput"].Fields.ForName("DELETE"))
	})

	t.Run("Roots", func(t *testing.T) {
		assert.Equal(t, "[Project]", fieldType("Query", "Project"))
		assert.Equal(t, "[ProjectOwnerRel]", fieldType("Query", "ProjectOwner"))
		assert.Equal(t, "Int!", fieldType("Query", "ProjectCount"))
		assert.Equal(t, "String", fieldType("Query", "_version"))

		assert.Equal(t, "Project", fieldType("Mutation", "ProjectCreate"))
		assert.Equal(t, "[Project]", fieldType("Mutation", "ProjectUpdate"))
		assert.Equal(t, "Int", fieldType("Mutation", "ProjectDelete"))
		assert.Equal(t, "[ProjectIssuesRel]", fieldType("Mutation", "ProjectIssuesCreate"))
		assert.Equal(t, "FeatureCreateMutationInput!", s.Mutation.Fields.ForName("FeatureCreate").Arguments.ForName("input").Type.String())
		assert.Nil(t, s.Mutation.Fields.ForName("FeatureDelete"))
		assert.NotNil(t, s.Mutation.Fields.ForName("BugDelete"))

		assert.Equal(t, "[Project]", fieldType("Mutation", "Rename"))
		assert.Equal(t, "RenameInput!", s.Mutation.Fields.ForName("Rename").Arguments.ForName("input").Type.String())
		assert.Equal(t, "String!", fieldType("RenameInput", "from"))
		assert.Equal(t, ast.InputObject, s.Types["RenameInput"].Kind)
	})
}

func fieldTypeDef(s *ast.Schema, typ, field string) *ast.FieldDefinition {
	if d := s.Types[typ]; d != nil {
		return d.Fields.ForName(field)
	}
	return nil
}

const createProject = `mutation {
	ProjectCreate(input: {
		name: "alpha", tags: ["a"],
		owner: {props: {since: 2020}, dst: {User: {NEW: {name: "ann"}}}},
		issues: [
			{dst: {Bug: {NEW: {title: "crash"}}}},
			{dst: {Feature: {NEW: {title: "dark mode"}}}}
		]
	}) {
		name
		tags
		owner { props { since } dst { ... on User { name } } }
	}
}`

func TestExecute(t *testing.T) {
	x := newExecutor(t, nil, gql.WithVersion("1.2.3"))

	assert.JSONEq(t, `{"ProjectCreate": {
		"name": "alpha",
		"tags": ["a"],
		"owner": {"props": {"since": 2020}, "dst": {"name": "ann"}}
	}}`, data(t, x, createProject, nil))

	const query = `query Projects($name: String!, $withOwner: Boolean!) {
		active: Project(input: {name: {EQ: $name}}) {
			...projectFields
			owner @include(if: $withOwner) { dst { __typename } }
		}
		count: ProjectCount
		_version
	}
	fragment projectFields on Project {
		name
		issues(input: {dst: {Bug: {title: {EQ: "crash"}}}}) {
			dst { ... on Bug { title } ... on Feature { title } }
		}
	}`

	t.Run("Fragments", func(t *testing.T) {
		assert.JSONEq(t, `{
			"active": [{"name": "alpha", "issues": [{"dst": {"title": "crash"}}], "owner": {"dst": {"__typename": "User"}}}],
			"count": 1,
			"_version": "1.2.3"
		}`, data(t, x, query, map[string]any{"name": "alpha", "withOwner": true}))
	})

	t.Run("Directives", func(t *testing.T) {
		assert.JSONEq(t, `{
			"active": [{"name": "alpha", "issues": [{"dst": {"title": "crash"}}]}],
			"count": 1,
			"_version": "1.2.3"
		}`, data(t, x, query, map[string]any{"name": "alpha", "withOwner": false}))
	})

	t.Run("MergedFields", func(t *testing.T) {
		assert.JSONEq(t, `{"Project": [{"owner": {"props": {"since": 2020}, "dst": {"name": "ann"}}}]}`,
			data(t, x, `{
				Project { owner { props { since } } }
				Project { owner { dst { ... on User { name } } } }
			}`, nil))
	})

	t.Run("RelEndpoints", func(t *testing.T) {
		assert.JSONEq(t, `{"ProjectIssues": [{"src": {"name": "alpha"}, "dst": {"__typename": "Feature"}}]}`,
			data(t, x, `{
				ProjectIssues(input: {dst: {Feature: {}}}) { src { name } dst { __typename } }
			}`, nil))
		assert.JSONEq(t, `{"ProjectOwnerUpdate": [{"props": {"since": 2021}}]}`,
			data(t, x, `mutation {
				ProjectOwnerUpdate(input: {MATCH: {}, SET: {props: {since: 2021}}}) { props { since } }
			}`, nil))
	})

	t.Run("UpdateAndDelete", func(t *testing.T) {
		assert.JSONEq(t, `{"ProjectUpdate": [{"name": "alpha", "status": "ACTIVE"}]}`,
			data(t, x, `mutation {
				ProjectUpdate(input: {MATCH: {name: {EQ: "alpha"}}, SET: {status: "ACTIVE"}}) { name status }
			}`, nil))
		assert.JSONEq(t, `{"ProjectDelete": 1, "ProjectCount": 0}`,
			data(t, x, `mutation {
				ProjectDelete(input: {MATCH: {status: {IN: ["ACTIVE"]}}, DELETE: {issues: [{MATCH: {}}]}})
				ProjectCount: ProjectDelete(input: {MATCH: {name: {EQ: "alpha"}}})
			}`, nil))
		assert.JSONEq(t, `{"Bug": [], "User": [{"name": "ann"}]}`,
			data(t, x, `{ Bug { title } User { name } }`, nil))
	})
}

func TestSerialMutations(t *testing.T) {
	x := newExecutor(t, nil)
	assert.JSONEq(t, `{
		"first": {"name": "one"},
		"rename": [{"name": "two"}],
		"count": 1
	}`, data(t, x, `mutation {
		first: ProjectCreate(input: {name: "one"}) { name }
		rename: Rename(input: {from: "one", to: "two"}) { name }
		count: ProjectDelete(input: {MATCH: {name: {EQ: "two"}}})
	}`, nil))
}

func TestSerialQueries(t *testing.T) {
	var inFlight, peak atomic.Int32
	h := event.NewHandlers().OnBeforeNodeRead(nil, func(_ context.Context, in value.Value, _ event.Facade) (value.Value, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(20 * time.Millisecond)
		return in, nil
	})
	x := newExecutor(t, h)
	assert.JSONEq(t, `{"a": [], "b": [], "c": []}`,
		data(t, x, `{ a: Project { id } b: Project { id } c: User { id } }`, nil))
	assert.EqualValues(t, 1, peak.Load(), "hooks of one request never overlap")
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	x := newExecutor(t, nil)

	t.Run("FieldError", func(t *testing.T) {
		resp := x.Execute(ctx, gql.Params{Query: `mutation {
			a: Rename(input: {from: "x", to: "x"}) { name }
			b: ProjectCreate(input: {name: "beta"}) { name }
		}`})
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, ast.Path{ast.PathName("a")}, resp.Errors[0].Path)
		assert.Contains(t, resp.Errors[0].Message, "nothing to rename")
		b, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a": null, "b": {"name": "beta"}}`, string(b))
	})

	t.Run("InputError", func(t *testing.T) {
		resp := x.Execute(ctx, gql.Params{Query: `{ Project(input: {status: {CONTAINS: "x"}}) { name } }`})
		require.NotEmpty(t, resp.Errors, "status does not allow CONTAINS")
	})

	t.Run("Validation", func(t *testing.T) {
		for name, p := range map[string]gql.Params{
			"unknown field":     {Query: `{ Nope }`},
			"syntax":            {Query: `{ Project { name }`},
			"missing variable":  {Query: `query($n: String!) { Project(input: {name: {EQ: $n}}) { name } }`},
			"unknown operation": {Query: `query A { ProjectCount }`, OperationName: "B"},
			"ambiguous":         {Query: `query A { ProjectCount } query B { ProjectCount }`},
			"subscription":      {Query: `subscription { ProjectCount }`},
		} {
			t.Run(name, func(t *testing.T) {
				resp := x.Execute(ctx, p)
				assert.NotEmpty(t, resp.Errors)
				assert.True(t, resp.Data.IsNull())
			})
		}
	})

	t.Run("Introspection", func(t *testing.T) {
		resp := x.Execute(ctx, gql.Params{Query: `{ __schema { types { name } } }`})
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, ast.Path{ast.PathName("__schema")}, resp.Errors[0].Path)
	})

	t.Run("Typename", func(t *testing.T) {
		assert.JSONEq(t, `{"__typename": "Query", "_version": null}`, data(t, x, `{ __typename _version }`, nil))
	})
}

func TestRequestHooks(t *testing.T) {
	ctx := context.Background()
	h := event.NewHandlers().
		OnBeforeRequest(func(_ context.Context, _ any, md event.Metadata) (any, error) {
			if md["authorization"] == "" {
				return nil, errors.New("unauthenticated")
			}
			return md["authorization"], nil
		}).
		OnAfterRequest(func(_ context.Context, rctx any, out value.Value) (value.Value, error) {
			return out.With("viewer", value.String(rctx.(string))), nil
		})
	x := newExecutor(t, h)

	resp := x.Execute(ctx, gql.Params{Query: `{ ProjectCount }`})
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "unauthenticated")
	assert.True(t, resp.Data.IsNull())

	resp = x.Execute(ctx, gql.Params{Query: `{ ProjectCount }`, Metadata: event.Metadata{"authorization": "ann"}})
	require.Empty(t, resp.Errors)
	assert.Equal(t, value.MustFromAny(map[string]any{"ProjectCount": 0, "viewer": "ann"}), resp.Data)
}
