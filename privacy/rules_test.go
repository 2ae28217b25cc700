package privacy_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/database/sqlgraph"
	"github.com/syssam/velograph/engine"
	"github.com/syssam/velograph/event"
	"github.com/syssam/velograph/privacy"
	"github.com/syssam/velograph/value"
)

func project(owner, tenant string) *database.Node {
	return database.NewNode("Project", map[string]value.Value{
		"id":        value.String(owner + "-" + tenant),
		"owner_id":  value.String(owner),
		"tenant_id": value.String(tenant),
	})
}

func TestViewer(t *testing.T) {
	ctx := context.Background()
	r := request(event.ReadNode, nil)
	assert.Nil(t, r.Viewer(ctx))

	fromRequest := &privacy.SimpleViewer{UserID: "r"}
	r.Facade.(*fakeFacade).rctx = fromRequest
	assert.Same(t, fromRequest, r.Viewer(ctx))

	fromCtx := &privacy.SimpleViewer{UserID: "c"}
	assert.Same(t, fromCtx, r.Viewer(privacy.WithViewer(ctx, fromCtx)), "the context takes precedence")

	assert.Nil(t, (&privacy.Request{}).Viewer(ctx))
}

func TestRoleRules(t *testing.T) {
	r := request(event.ReadNode, nil)
	tests := []struct {
		name   string
		viewer privacy.Viewer
		rule   privacy.QueryRule
		want   error
	}{
		{"DenyIfNoViewer/Missing", nil, privacy.DenyIfNoViewer(), privacy.Deny},
		{"DenyIfNoViewer/Present", &privacy.SimpleViewer{}, privacy.DenyIfNoViewer(), privacy.Skip},
		{"HasRole/Match", &privacy.SimpleViewer{Roles: []string{"user", "admin"}}, privacy.HasRole("admin"), privacy.Allow},
		{"HasRole/NoMatch", &privacy.SimpleViewer{Roles: []string{"user"}}, privacy.HasRole("admin"), privacy.Skip},
		{"HasRole/NoViewer", nil, privacy.HasRole("admin"), privacy.Skip},
		{"HasAnyRole/Match", &privacy.SimpleViewer{Roles: []string{"moderator"}}, privacy.HasAnyRole("admin", "moderator"), privacy.Allow},
		{"HasAnyRole/NoMatch", &privacy.SimpleViewer{Roles: []string{"user"}}, privacy.HasAnyRole("admin", "moderator"), privacy.Skip},
		{"OwnerQueryRule/NoViewer", nil, privacy.OwnerQueryRule(), privacy.Deny},
		{"TenantQueryRule/NoTenant", &privacy.SimpleViewer{UserID: "u1"}, privacy.TenantQueryRule(), privacy.Deny},
		{"TenantQueryRule/Tenant", &privacy.SimpleViewer{TenantID: "t1"}, privacy.TenantQueryRule(), privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.viewer != nil {
				ctx = privacy.WithViewer(ctx, tt.viewer)
			}
			assert.ErrorIs(t, tt.rule.EvalQuery(ctx, r), tt.want)
		})
	}
}

func TestIsOwner(t *testing.T) {
	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1"})
	rule := privacy.IsOwner("owner_id")

	t.Run("Create", func(t *testing.T) {
		assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateNode, map[string]any{"owner_id": "u1"})), privacy.Allow)
		assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateNode, map[string]any{"owner_id": "u2"})), privacy.Skip)
		assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateNode, map[string]any{"name": "x"})), privacy.Skip)
	})

	t.Run("UpdateOwned", func(t *testing.T) {
		r := request(event.UpdateNode, map[string]any{"MATCH": nil, "SET": map[string]any{"name": "x"}})
		f := r.Facade.(*fakeFacade)
		f.nodes = []*database.Node{project("u1", "t1"), project("u1", "t2")}
		assert.ErrorIs(t, rule.EvalMutation(ctx, r), privacy.Allow)
		assert.Equal(t, 1, f.reads)
	})

	t.Run("UpdateHandsOver", func(t *testing.T) {
		r := request(event.UpdateNode, map[string]any{"MATCH": nil, "SET": map[string]any{"owner_id": "u2"}})
		r.Facade.(*fakeFacade).nodes = []*database.Node{project("u1", "t1")}
		assert.ErrorIs(t, rule.EvalMutation(ctx, r), privacy.Skip)
	})

	t.Run("DeleteMixed", func(t *testing.T) {
		r := request(event.DeleteNode, map[string]any{"MATCH": nil})
		r.Facade.(*fakeFacade).nodes = []*database.Node{project("u1", "t1"), project("u2", "t1")}
		assert.ErrorIs(t, rule.EvalMutation(ctx, r), privacy.Skip)
	})

	t.Run("NoMatch", func(t *testing.T) {
		assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.DeleteNode, map[string]any{"MATCH": nil})), privacy.Skip)
	})

	t.Run("Rel", func(t *testing.T) {
		assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateRel, map[string]any{"owner_id": "u1"})), privacy.Skip)
	})

	t.Run("NumericIdentifier", func(t *testing.T) {
		ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "42"})
		assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateNode, map[string]any{"owner_id": 42})), privacy.Allow)
	})
}

func TestTenantRule(t *testing.T) {
	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1", TenantID: "t1"})
	rule := privacy.TenantRule("tenant_id")

	assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateNode, map[string]any{"tenant_id": "t1"})), privacy.Allow)
	assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateNode, map[string]any{"tenant_id": "t2"})), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(ctx, request(event.CreateNode, map[string]any{})), privacy.Skip)

	r := request(event.UpdateNode, map[string]any{"MATCH": nil, "SET": map[string]any{"tenant_id": "t2"}})
	assert.ErrorIs(t, rule.EvalMutation(ctx, r), privacy.Deny, "moving a node to another tenant")

	r = request(event.DeleteNode, map[string]any{"MATCH": nil})
	r.Facade.(*fakeFacade).nodes = []*database.Node{project("u1", "t1"), project("u2", "t2")}
	assert.ErrorIs(t, rule.EvalMutation(ctx, r), privacy.Deny)

	r.Facade.(*fakeFacade).nodes = []*database.Node{project("u2", "t1")}
	assert.ErrorIs(t, rule.EvalMutation(ctx, r), privacy.Allow)

	noTenant := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1"})
	assert.ErrorIs(t, rule.EvalMutation(noTenant, r), privacy.Skip)
}

func TestFilterOwned(t *testing.T) {
	ctx := context.Background()
	f := &fakeFacade{op: event.Op(event.ReadNode, "Project")}
	nodes := func() []*database.Node {
		return []*database.Node{project("u1", "t1"), project("u2", "t1"), project("u1", "t2")}
	}

	out, err := privacy.FilterOwned("owner_id")(ctx, nodes(), f)
	require.NoError(t, err)
	assert.Empty(t, out, "no viewer sees nothing")

	f.rctx = &privacy.SimpleViewer{UserID: "u1", TenantID: "t1"}
	out, err = privacy.FilterOwned("owner_id")(ctx, nodes(), f)
	require.NoError(t, err)
	assert.Equal(t, []*database.Node{project("u1", "t1"), project("u1", "t2")}, out)

	out, err = privacy.FilterTenant("tenant_id")(ctx, nodes(), f)
	require.NoError(t, err)
	assert.Equal(t, []*database.Node{project("u1", "t1"), project("u2", "t1")}, out)
}

// TestEngine runs a policy inside the engine pipeline.
func TestEngine(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Load(filepath.Join("testdata", "model.yml"))
	require.NoError(t, err)
	drv, err := sqlgraph.Open(sqlgraph.SQLite, "file:"+filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	pool, err := sqlgraph.NewPool(ctx, drv)
	require.NoError(t, err)

	h := privacy.Policy{
		Query: privacy.QueryPolicy{privacy.DenyIfNoViewer()},
		Mutation: privacy.MutationPolicy{
			privacy.DenyIfNoViewer(),
			privacy.HasRole("admin"),
			privacy.IsOwner("owner_id"),
			privacy.AlwaysDenyRule(),
		},
	}.Register(event.NewHandlers(), "Project")
	h.OnAfterNodeRead([]string{"Project"}, privacy.FilterOwned("owner_id"))
	h.OnBeforeRequest(func(_ context.Context, _ any, md event.Metadata) (any, error) {
		if md["user"] == "" {
			return nil, nil
		}
		return &privacy.SimpleViewer{UserID: md["user"], Roles: []string{md["role"]}}, nil
	})

	e, err := engine.New(ctx, cfg, engine.WithPool(pool), engine.WithHandlers(h))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })

	as := func(user string) event.Metadata { return event.Metadata{"user": user} }
	create := func(md event.Metadata, name, owner string) error {
		_, err := e.Execute(ctx, md, engine.CreateNode("Project", value.MustFromAny(map[string]any{"name": name, "owner_id": owner}), engine.Field("id")))
		return err
	}
	names := func(md event.Metadata) []string {
		out, err := e.Execute(ctx, md, engine.ReadNodes("Project", value.Null(), engine.Field("name")))
		require.NoError(t, err)
		arr, _ := out.AsArray()
		var ns []string
		for _, v := range arr {
			n, _ := v.Get("name")
			s, _ := n.AsString()
			ns = append(ns, s)
		}
		return ns
	}

	require.NoError(t, create(as("u1"), "mine", "u1"))
	require.NoError(t, create(event.Metadata{"user": "root", "role": "admin"}, "theirs", "u2"))

	err = create(as("u1"), "forged", "u2")
	require.Error(t, err)
	assert.True(t, velograph.IsPrivacyError(err))

	err = create(nil, "anonymous", "u1")
	assert.True(t, velograph.IsPrivacyError(err))

	_, err = e.Execute(ctx, nil, engine.ReadNodes("Project", value.Null(), engine.Field("name")))
	assert.True(t, velograph.IsPrivacyError(err))

	assert.Equal(t, []string{"mine"}, names(as("u1")))
	assert.Equal(t, []string{"theirs"}, names(as("u2")))

	_, err = e.Execute(ctx, as("u1"), engine.DeleteNodes("Project", value.MustFromAny(map[string]any{
		"MATCH": map[string]any{"name": map[string]any{"EQ": "theirs"}},
	})))
	assert.True(t, velograph.IsPrivacyError(err))
	assert.Equal(t, []string{"theirs"}, names(as("u2")), "a denied delete leaves the node")

	out, err := e.Execute(ctx, as("u1"), engine.DeleteNodes("Project", value.MustFromAny(map[string]any{
		"MATCH": map[string]any{"name": map[string]any{"EQ": "mine"}},
	})))
	require.NoError(t, err)
	assert.Equal(t, value.Int64(1), out)
}

// TestNestedCreate checks that a policy on a type also guards nodes of that
// type created through a relationship of another type.
func TestNestedCreate(t *testing.T) {
	ctx := context.Background()
	cfg := config.New(1, []*config.Type{
		{Name: "Team", Props: []*config.Property{{Name: "name", Type: config.String, Required: true}}},
		{
			Name:  "Project",
			Props: []*config.Property{{Name: "name", Type: config.String, Required: true}},
			Rels:  []*config.Relationship{{Name: "team", Nodes: []string{"Team"}}},
		},
	}, nil)
	drv, err := sqlgraph.Open(sqlgraph.SQLite, "file:"+filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	pool, err := sqlgraph.NewPool(ctx, drv)
	require.NoError(t, err)

	h := privacy.Policy{
		Mutation: privacy.MutationPolicy{privacy.HasRole("admin"), privacy.AlwaysDenyRule()},
	}.Register(event.NewHandlers(), "Team")
	h.OnBeforeRequest(func(_ context.Context, _ any, md event.Metadata) (any, error) {
		return &privacy.SimpleViewer{UserID: md["user"], Roles: []string{md["role"]}}, nil
	})
	e, err := engine.New(ctx, cfg, engine.WithPool(pool), engine.WithHandlers(h))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })

	input := value.MustFromAny(map[string]any{
		"name": "alpha",
		"team": map[string]any{"dst": map[string]any{"Team": map[string]any{"NEW": map[string]any{"name": "core"}}}},
	})
	teams := func() int {
		out, err := e.Execute(ctx, nil, engine.ReadNodes("Team", value.Null(), engine.Field("id")))
		require.NoError(t, err)
		return out.Len()
	}

	_, err = e.Execute(ctx, event.Metadata{"user": "u1"}, engine.CreateNode("Project", input, engine.Field("id")))
	require.Error(t, err)
	assert.True(t, velograph.IsPrivacyError(err))
	assert.Equal(t, 0, teams())

	_, err = e.Execute(ctx, event.Metadata{"user": "root", "role": "admin"}, engine.CreateNode("Project", input, engine.Field("id")))
	require.NoError(t, err)
	assert.Equal(t, 1, teams())
}
