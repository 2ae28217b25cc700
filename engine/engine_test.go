package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/database/sqlgraph"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/resolver"
	"github.com/syssam/velograph/value"
)

func loadModel(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join("testdata", "model.yml"))
	require.NoError(t, err)
	return cfg
}

func openPool(t *testing.T) *sqlgraph.Pool {
	t.Helper()
	drv, err := sqlgraph.Open(sqlgraph.SQLite, "file:"+filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	p, err := sqlgraph.NewPool(context.Background(), drv)
	require.NoError(t, err)
	return p
}

// registry returns the resolvers and validators of the test model, with
// overrides replacing defaults of the same name.
func registry(overrides map[string]resolver.Resolver) *resolver.Registry {
	reg := resolver.NewRegistry().MustRegisterValidator("EmailAddress", resolver.Tag("email", "email"))
	defaults := map[string]resolver.Resolver{
		"ProjectPoints": resolver.Static(value.Int64(138)),
		"ProjectCount": resolver.ResolverFunc(func(ctx context.Context, f *resolver.Facade) (any, error) {
			nodes, err := f.Tx.ReadNodes(ctx, database.NewNodeQuery("Project"))
			return value.Int64(int64(len(nodes))), err
		}),
		"TopProject": resolver.ResolverFunc(func(ctx context.Context, f *resolver.Facade) (any, error) {
			nodes, err := f.Tx.ReadNodes(ctx, database.NewNodeQuery("Project"))
			if err != nil || len(nodes) == 0 {
				return nil, err
			}
			return nodes[0], nil
		}),
		"ProjectSummary": resolver.ResolverFunc(func(ctx context.Context, f *resolver.Facade) (any, error) {
			status, _ := f.Args.Get("status")
			nodes, err := f.Tx.ReadNodes(ctx, database.NewNodeQuery("Project").Where(database.Predicate{Prop: "status", Op: config.EQ, Value: status}))
			if err != nil {
				return nil, err
			}
			out := map[string]any{"total": len(nodes), "names": nil}
			if len(nodes) > 0 {
				var names []any
				for _, n := range nodes {
					names = append(names, n.Field("name").Any())
				}
				out["names"] = names
			}
			return out, nil
		}),
	}
	for name, r := range overrides {
		defaults[name] = r
	}
	for name, r := range defaults {
		reg.MustRegisterResolver(name, r)
	}
	return reg
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	ctx := context.Background()
	opts = append([]Option{WithPool(openPool(t)), WithRegistry(registry(nil))}, opts...)
	e, err := New(ctx, loadModel(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func obj(m map[string]any) value.Value {
	return value.MustFromAny(m)
}

func run(t *testing.T, e *Engine, op *Operation) value.Value {
	t.Helper()
	out, err := e.Execute(context.Background(), nil, op)
	require.NoError(t, err)
	return out
}

// at walks map keys and array indexes of v.
func at(v value.Value, path ...any) value.Value {
	for _, p := range path {
		switch k := p.(type) {
		case string:
			v, _ = v.Get(k)
		case int:
			arr, _ := v.AsArray()
			if k >= len(arr) {
				return value.Null()
			}
			v = arr[k]
		}
	}
	return v
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingResolver", func(t *testing.T) {
		reg := resolver.NewRegistry().MustRegisterValidator("EmailAddress", resolver.Tag("email", "email"))
		_, err := New(ctx, loadModel(t), WithRegistry(reg), WithPool(openPool(t)))
		require.Error(t, err)
		assert.True(t, velograph.IsResolverNotFound(err))
		assert.False(t, reg.Frozen(), "registry stays open when the build fails")
	})

	t.Run("NoBackend", func(t *testing.T) {
		_, err := New(ctx, loadModel(t), WithRegistry(registry(nil)))
		require.Error(t, err)
		assert.True(t, velograph.IsConfigError(err))
	})

	t.Run("NilConfig", func(t *testing.T) {
		_, err := New(ctx, nil)
		assert.True(t, velograph.IsConfigError(err))
	})

	t.Run("BeforeEngineBuild", func(t *testing.T) {
		cfg := loadModel(t)
		var calls int
		h := event.NewHandlers().OnBeforeEngineBuild(func(c *config.Config) error {
			calls++
			c.Type("Bug").Props = append(c.Type("Bug").Props, &config.Property{Name: "severity", Type: config.Int})
			return nil
		})
		reg := registry(nil)
		e, err := New(ctx, cfg, WithHandlers(h), WithRegistry(reg), WithPool(openPool(t)))
		require.NoError(t, err)
		t.Cleanup(func() { _ = e.Close(ctx) })
		assert.Equal(t, 1, calls)
		bug, err := e.Schema().Type("Bug")
		require.NoError(t, err)
		_, err = bug.Prop("severity")
		assert.NoError(t, err)
		assert.Nil(t, cfg.Type("Bug").Prop("severity"), "the caller's config is not modified")
		assert.True(t, reg.Frozen())
		assert.True(t, h.Frozen())
	})

	t.Run("BeforeEngineBuildError", func(t *testing.T) {
		h := event.NewHandlers().OnBeforeEngineBuild(func(*config.Config) error { return errors.New("nope") })
		_, err := New(ctx, loadModel(t), WithHandlers(h), WithRegistry(registry(nil)), WithPool(openPool(t)))
		assert.EqualError(t, err, "velograph: before_engine_build hook: nope")
	})

	t.Run("Endpoint", func(t *testing.T) {
		p := openPool(t)
		e, err := New(ctx, loadModel(t), WithRegistry(registry(nil)), WithEndpoint(endpointFunc(func(context.Context) (database.Pool, error) {
			return p, nil
		})))
		require.NoError(t, err)
		assert.Equal(t, sqlgraph.Backend, e.Capabilities().Backend)
		assert.Same(t, p, e.Pool())
	})
}

type endpointFunc func(context.Context) (database.Pool, error)

func (f endpointFunc) Pool(ctx context.Context) (database.Pool, error) { return f(ctx) }

func TestRequest(t *testing.T) {
	ctx := context.Background()
	h := event.NewHandlers().
		OnBeforeRequest(func(_ context.Context, rctx any, md event.Metadata) (any, error) {
			if md["user"] == "" {
				return nil, errors.New("unauthenticated")
			}
			rctx.(map[string]string)["user"] = md["user"]
			return rctx, nil
		}).
		OnAfterRequest(func(_ context.Context, rctx any, out value.Value) (value.Value, error) {
			return value.Map(map[string]value.Value{
				"data":   out,
				"viewer": value.String(rctx.(map[string]string)["user"]),
			}), nil
		})
	e := newEngine(t, WithHandlers(h), WithRequestContext(func() any { return map[string]string{} }))

	out, err := e.Execute(ctx, event.Metadata{"user": "alice"}, CallEndpoint("ProjectCount", value.Null()))
	require.NoError(t, err)
	assert.Equal(t, value.Int64(0), at(out, "data"))
	assert.Equal(t, value.String("alice"), at(out, "viewer"))

	_, err = e.Execute(ctx, nil, CallEndpoint("ProjectCount", value.Null()))
	assert.EqualError(t, err, "velograph: before_request hook: unauthenticated")

	r, err := e.NewRequest(ctx, event.Metadata{"user": "bob"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"user": "bob"}, r.Context())
	for range 2 {
		_, err := r.Execute(ctx, CreateNode("Bug", obj(map[string]any{"title": "b"})))
		require.NoError(t, err)
	}
	out, err = r.Execute(ctx, ReadNodes("Bug", value.Null(), Field("title")))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "CreateNode(Project)", CreateNode("Project", value.Null()).String())
	assert.Equal(t, "DeleteRel(ProjectOwner)", DeleteRels("ProjectOwner", value.Null()).String())
	assert.Equal(t, "Endpoint(ProjectCount)", CallEndpoint("ProjectCount", value.Null()).String())
	assert.Equal(t, "owner", Field("name").As("owner").Key())
	assert.Equal(t, "name", Field("name").Key())
}
