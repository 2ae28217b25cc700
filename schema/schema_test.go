package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/schema"
	"github.com/syssam/velograph/value"
)

type names map[string]bool

type registry struct {
	resolvers, validators names
}

func (r registry) HasResolver(name string) bool  { return r.resolvers[name] }
func (r registry) HasValidator(name string) bool { return r.validators[name] }

func fullRegistry() registry {
	return registry{
		resolvers:  names{"ProjectPoints": true, "ProjectCount": true, "TopProject": true, "ProjectSummary": true},
		validators: names{"EmailAddress": true},
	}
}

func compile(t *testing.T) *schema.Schema {
	t.Helper()
	cfg, err := config.Load("../config/testdata/project.yml")
	require.NoError(t, err)
	s, err := schema.Compile(cfg, fullRegistry())
	require.NoError(t, err)
	return s
}

func TestCompile(t *testing.T) {
	s := compile(t)

	require.Len(t, s.Types(), 4)
	project, err := s.Type("Project")
	require.NoError(t, err)

	t.Run("StoredAndComputed", func(t *testing.T) {
		points, err := project.Prop("points")
		require.NoError(t, err)
		assert.True(t, points.Computed())
		assert.False(t, points.Uses.Create)
		assert.False(t, points.Uses.Query)
		assert.True(t, points.Uses.Output)

		var stored []string
		for _, p := range project.Stored() {
			stored = append(stored, p.Name)
		}
		assert.Equal(t, []string{"name", "status", "tags"}, stored)
		assert.Len(t, project.Props, 4)
	})

	t.Run("Operators", func(t *testing.T) {
		status, _ := project.Prop("status")
		assert.True(t, status.Allows(config.EQ))
		assert.True(t, status.Allows(config.IN))
		assert.False(t, status.Allows(config.GT))

		name, _ := project.Prop("name")
		assert.True(t, name.Allows(config.CONTAINS))

		points, _ := project.Prop("points")
		assert.False(t, points.Allows(config.EQ))
	})

	t.Run("Rels", func(t *testing.T) {
		owner, err := s.Rel("Project", "owner")
		require.NoError(t, err)
		assert.Equal(t, "ProjectOwner", owner.FullName)
		assert.Equal(t, "Project", owner.Src)
		assert.False(t, owner.Polymorphic())
		assert.True(t, owner.AllowsDst("User"))
		assert.False(t, owner.AllowsDst("Bug"))
		_, err = owner.Prop("since")
		assert.NoError(t, err)

		issues, err := s.RelByFullName("ProjectIssues")
		require.NoError(t, err)
		assert.True(t, issues.Polymorphic())
		assert.True(t, issues.List)
		assert.Equal(t, "ProjectIssuesNodesUnion", issues.Names.NodesUnion)
		assert.Equal(t, "ProjectIssuesCreateMutationInput", issues.Names.CreateMutationInput)

		assert.Len(t, s.Rels(), 2)
	})

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, "ProjectQueryInput", project.Names.QueryInput)
		assert.Equal(t, "ProjectCreate", project.Names.CreateEndpoint)
		assert.Equal(t, "StringQueryInput", schema.ScalarQueryInput(config.String))
		assert.Equal(t, "ProjectCreatedBy", schema.FullName("Project", "created_by"))
	})

	t.Run("EndpointsFilter", func(t *testing.T) {
		feature, err := s.Type("Feature")
		require.NoError(t, err)
		assert.False(t, feature.Endpoints.Delete)
		assert.True(t, feature.Endpoints.Create)
	})

	t.Run("CustomEndpoints", func(t *testing.T) {
		require.Len(t, s.Endpoints(), 3)

		count, err := s.Endpoint("ProjectCount")
		require.NoError(t, err)
		assert.True(t, count.Output.IsScalar())
		assert.Nil(t, count.Input)

		top, _ := s.Endpoint("TopProject")
		assert.Same(t, project, top.Output.Type)

		summary, _ := s.Endpoint("ProjectSummary")
		require.NotNil(t, summary.Input.Type)
		assert.True(t, summary.Input.Type.Custom)
		assert.Equal(t, "Summary", summary.Output.Type.Name)

		_, err = s.Type("Summary")
		assert.True(t, velograph.IsNotFound(err))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := s.Type("Nope")
		assert.ErrorIs(t, err, velograph.ErrNotFound)
		_, err = project.Prop("nope")
		assert.True(t, velograph.IsNotFound(err))
		_, err = s.RelByFullName("ProjectNope")
		assert.True(t, velograph.IsNotFound(err))
		_, err = s.Endpoint("Nope")
		assert.True(t, velograph.IsNotFound(err))
	})
}

func TestCompileErrors(t *testing.T) {
	cfg, err := config.Load("../config/testdata/project.yml")
	require.NoError(t, err)

	t.Run("MissingResolver", func(t *testing.T) {
		reg := fullRegistry()
		delete(reg.resolvers, "ProjectPoints")
		_, err := schema.Compile(cfg.Clone(), reg)
		assert.True(t, velograph.IsResolverNotFound(err))
	})

	t.Run("MissingEndpointResolver", func(t *testing.T) {
		reg := fullRegistry()
		delete(reg.resolvers, "TopProject")
		_, err := schema.Compile(cfg.Clone(), reg)
		var rnf *velograph.ResolverNotFoundError
		require.ErrorAs(t, err, &rnf)
		assert.Equal(t, "TopProject", rnf.Name)
	})

	t.Run("MissingValidator", func(t *testing.T) {
		reg := fullRegistry()
		reg.validators = names{}
		_, err := schema.Compile(cfg.Clone(), reg)
		assert.True(t, velograph.IsValidatorNotFound(err))
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		bad := config.New(1, []*config.Type{{Name: "String"}}, nil)
		_, err := schema.Compile(bad, fullRegistry())
		assert.ErrorIs(t, err, velograph.ErrConfigItemReserved)
	})

	t.Run("GeneratedNameCollision", func(t *testing.T) {
		bad := config.New(1, []*config.Type{{Name: "A"}, {Name: "ACreate"}}, nil)
		_, err := schema.Compile(bad, fullRegistry())
		assert.ErrorIs(t, err, velograph.ErrConfigItemDuplicated)

		bad = config.New(1, []*config.Type{
			{Name: "A", Rels: []*config.Relationship{{Name: "b", Nodes: []string{"A"}}}},
			{Name: "ABRel"},
		}, nil)
		_, err = schema.Compile(bad, fullRegistry())
		assert.ErrorIs(t, err, velograph.ErrConfigItemDuplicated)
	})
}

func TestAccepts(t *testing.T) {
	str := &schema.Prop{Name: "s", Type: config.String}
	req := &schema.Prop{Name: "r", Type: config.Int, Required: true}
	list := &schema.Prop{Name: "l", Type: config.Float, List: true, Required: true}
	id := &schema.Prop{Name: "i", Type: config.ID}

	assert.True(t, str.Accepts(value.String("x")))
	assert.True(t, str.Accepts(value.Null()))
	assert.False(t, str.Accepts(value.Int64(1)))
	assert.False(t, str.Accepts(value.Array(value.String("x"))))

	assert.True(t, req.Accepts(value.Int64(1)))
	assert.True(t, req.Accepts(value.UInt64(1)))
	assert.False(t, req.Accepts(value.Null()))
	assert.False(t, req.Accepts(value.Float64(1.5)))

	assert.True(t, list.Accepts(value.Array(value.Float64(1), value.Int64(2))))
	assert.True(t, list.Accepts(value.Null()))
	assert.True(t, list.Accepts(value.Array(value.Null())))
	assert.False(t, list.Accepts(value.Float64(1)))
	assert.False(t, list.Accepts(value.Array(value.String("x"))))

	assert.True(t, id.Accepts(value.String("abc")))
	assert.False(t, id.Accepts(value.Bool(true)))
}
