package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

type facade struct {
	op   CrudOperation
	rctx any
}

func (f facade) Op() CrudOperation   { return f.op }
func (f facade) RequestContext() any { return f.rctx }
func (f facade) GlobalContext() any  { return nil }

func (facade) ReadNodes(context.Context, string, value.Value) ([]*database.Node, error) {
	return nil, nil
}

func (facade) ReadRels(context.Context, string, value.Value) ([]*database.Rel, error) {
	return nil, nil
}

func appendTag(tag string) BeforeFunc {
	return func(_ context.Context, in value.Value, _ Facade) (value.Value, error) {
		v, _ := in.Get("tags")
		tags, _ := v.AsArray()
		return in.With("tags", value.Array(append(tags, value.String(tag))...)), nil
	}
}

func TestCrudOperation(t *testing.T) {
	tests := []struct {
		op     CrudOperation
		before Point
		after  Point
		rel    bool
	}{
		{Op(CreateNode, "Project"), "before_node_create", "after_node_create", false},
		{Op(ReadNode, "Project"), "before_node_read", "after_node_read", false},
		{Op(UpdateRel, "ProjectOwner"), "before_rel_update", "after_rel_update", true},
		{Op(DeleteRel, "ProjectOwner"), "before_rel_delete", "after_rel_delete", true},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			assert.Equal(t, tt.before, tt.op.Before())
			assert.Equal(t, tt.after, tt.op.After())
			assert.Contains(t, string(tt.op.AfterSubgraph()), "_subgraph_")
			assert.Equal(t, tt.rel, tt.op.Kind.IsRel())
		})
	}
	assert.True(t, ReadRel.IsRead())
	assert.True(t, DeleteNode.IsMutation())
	assert.Equal(t, "CreateNode(Project)", Op(CreateNode, "Project").String())
	assert.Equal(t, "OpKind(42)", OpKind(42).String())
	assert.Equal(t, Point("after_node_subgraph_create"), Op(CreateNode, "Project").AfterSubgraph())
	assert.Equal(t, Point("after_rel_subgraph_update"), Op(UpdateRel, "ProjectOwner").AfterSubgraph())
}

func TestRunBefore(t *testing.T) {
	ctx := context.Background()
	input := value.Map(map[string]value.Value{"name": value.String("alpha")})

	t.Run("Order", func(t *testing.T) {
		h := NewHandlers().
			OnBeforeNodeCreate(nil, appendTag("global")).
			OnBeforeNodeCreate([]string{"Project"}, appendTag("project")).
			OnBeforeNodeCreate([]string{"User"}, appendTag("user")).
			OnBeforeNodeCreate([]string{"User", "Project"}, appendTag("both"))
		out, err := h.RunBefore(ctx, input, facade{op: Op(CreateNode, "Project")})
		require.NoError(t, err)
		v, _ := out.Get("tags")
		tags, err := v.AsStringList()
		require.NoError(t, err)
		assert.Equal(t, []string{"global", "project", "both"}, tags)
	})

	t.Run("Passthrough", func(t *testing.T) {
		h := NewHandlers().OnBeforeNodeUpdate(nil, appendTag("update"))
		op := Op(CreateNode, "Project")
		assert.False(t, h.HasBefore(op))
		out, err := h.RunBefore(ctx, input, facade{op: op})
		require.NoError(t, err)
		assert.True(t, out.Equal(input))
	})

	t.Run("AbortsOnError", func(t *testing.T) {
		boom := errors.New("boom")
		var ran bool
		h := NewHandlers().
			OnBeforeRelDelete(nil, func(context.Context, value.Value, Facade) (value.Value, error) {
				return value.Null(), boom
			}).
			OnBeforeRelDelete(nil, func(_ context.Context, in value.Value, _ Facade) (value.Value, error) {
				ran = true
				return in, nil
			})
		_, err := h.RunBefore(ctx, input, facade{op: Op(DeleteRel, "ProjectOwner")})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.True(t, IsHookError(err))
		var he *HookError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, Point("before_rel_delete"), he.Point)
		assert.Equal(t, "ProjectOwner", he.Name)
		assert.Contains(t, err.Error(), "before_rel_delete hook on ProjectOwner")
		assert.False(t, ran)
	})
}

func TestRunAfter(t *testing.T) {
	ctx := context.Background()
	nodes := []*database.Node{
		database.NewNode("Project", map[string]value.Value{"owner": value.String("alice")}),
		database.NewNode("Project", map[string]value.Value{"owner": value.String("bob")}),
	}

	t.Run("FiltersByRequestContext", func(t *testing.T) {
		h := NewHandlers().OnAfterNodeRead([]string{"Project"}, func(_ context.Context, ns []*database.Node, f Facade) ([]*database.Node, error) {
			me := f.RequestContext().(string)
			var out []*database.Node
			for _, n := range ns {
				if s, _ := n.Field("owner").AsString(); s == me {
					out = append(out, n)
				}
			}
			return out, nil
		})
		assert.True(t, h.HasAfter(Op(ReadNode, "Project")))
		out, err := h.RunAfterNodes(ctx, nodes, facade{op: Op(ReadNode, "Project"), rctx: "bob"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, value.String("bob"), out[0].Field("owner"))
	})

	t.Run("Rels", func(t *testing.T) {
		h := NewHandlers().OnAfterRelCreate([]string{"ProjectOwner"}, func(_ context.Context, rs []*database.Rel, _ Facade) ([]*database.Rel, error) {
			return rs[:1], nil
		})
		rels := []*database.Rel{{Name: "owner"}, {Name: "owner"}}
		out, err := h.RunAfterRels(ctx, rels, facade{op: Op(CreateRel, "ProjectOwner")})
		require.NoError(t, err)
		assert.Len(t, out, 1)
		out, err = h.RunAfterRels(ctx, rels, facade{op: Op(CreateRel, "ProjectIssues")})
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("Error", func(t *testing.T) {
		h := NewHandlers().OnAfterNodeDelete(nil, func(context.Context, []*database.Node, Facade) ([]*database.Node, error) {
			return nil, errors.New("denied")
		})
		_, err := h.RunAfterNodes(ctx, nodes, facade{op: Op(DeleteNode, "Project")})
		assert.EqualError(t, err, "velograph: after_node_delete hook on Project: denied")
	})

	t.Run("Subgraph", func(t *testing.T) {
		var calls []string
		h := NewHandlers().
			OnAfterNodeCreate(nil, func(_ context.Context, ns []*database.Node, _ Facade) ([]*database.Node, error) {
				calls = append(calls, "node")
				return ns, nil
			}).
			OnAfterNodeSubgraphCreate([]string{"Project"}, func(_ context.Context, ns []*database.Node, _ Facade) ([]*database.Node, error) {
				calls = append(calls, "subgraph")
				return ns[:1], nil
			})
		f := facade{op: Op(CreateNode, "Project")}
		assert.True(t, h.HasAfter(f.op), "the subgraph hook does not count as an after hook")

		out, err := h.RunAfterNodeSubgraph(ctx, nodes, f)
		require.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, []string{"subgraph"}, calls)

		out, err = h.RunAfterNodeSubgraph(ctx, nodes, facade{op: Op(UpdateNode, "Project")})
		require.NoError(t, err)
		assert.Len(t, out, 2, "create subgraph hooks do not run on updates")
	})

	t.Run("SubgraphError", func(t *testing.T) {
		h := NewHandlers().
			OnAfterNodeSubgraphUpdate(nil, func(context.Context, []*database.Node, Facade) ([]*database.Node, error) {
				return nil, errors.New("stale")
			}).
			OnAfterRelSubgraphUpdate([]string{"ProjectOwner"}, func(context.Context, []*database.Rel, Facade) ([]*database.Rel, error) {
				return nil, errors.New("locked")
			})
		_, err := h.RunAfterNodeSubgraph(ctx, nodes, facade{op: Op(UpdateNode, "Project")})
		assert.EqualError(t, err, "velograph: after_node_subgraph_update hook on Project: stale")
		_, err = h.RunAfterRelSubgraph(ctx, []*database.Rel{{Name: "owner"}}, facade{op: Op(UpdateRel, "ProjectOwner")})
		assert.EqualError(t, err, "velograph: after_rel_subgraph_update hook on ProjectOwner: locked")
		assert.True(t, IsHookError(err))
	})
}

func TestRequestHooks(t *testing.T) {
	ctx := context.Background()
	h := NewHandlers().
		OnBeforeRequest(func(_ context.Context, _ any, md Metadata) (any, error) {
			return md["Authorization"], nil
		}).
		OnBeforeRequest(func(_ context.Context, rctx any, _ Metadata) (any, error) {
			return "user:" + rctx.(string), nil
		}).
		OnAfterRequest(func(_ context.Context, rctx any, out value.Value) (value.Value, error) {
			return out.With("viewer", value.String(rctx.(string))), nil
		})

	rctx, err := h.RunBeforeRequest(ctx, nil, Metadata{"Authorization": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "user:alice", rctx)

	out, err := h.RunAfterRequest(ctx, rctx, value.Map(nil))
	require.NoError(t, err)
	viewer, ok := out.Get("viewer")
	require.True(t, ok)
	assert.Equal(t, value.String("user:alice"), viewer)

	h2 := NewHandlers().OnBeforeRequest(func(context.Context, any, Metadata) (any, error) {
		return nil, errors.New("unauthenticated")
	})
	_, err = h2.RunBeforeRequest(ctx, nil, nil)
	assert.EqualError(t, err, "velograph: before_request hook: unauthenticated")
}

func TestBeforeEngineBuild(t *testing.T) {
	cfg := config.New(1, []*config.Type{{Name: "Project"}}, nil)
	h := NewHandlers().OnBeforeEngineBuild(func(c *config.Config) error {
		c.Model[0].Props = append(c.Model[0].Props, &config.Property{Name: "createdAt", Type: config.String})
		return nil
	})
	require.NoError(t, h.RunBeforeEngineBuild(cfg))
	assert.NotNil(t, cfg.Type("Project").Prop("createdAt"))
}

func TestFreeze(t *testing.T) {
	h := NewHandlers()
	h.Freeze()
	assert.True(t, h.Frozen())
	assert.Panics(t, func() { h.OnBeforeNodeRead(nil, appendTag("late")) })
}
