package cypher

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/config"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

type call struct {
	query  string
	params map[string]any
	inTx   bool
}

// fakeSession records statements and answers them with canned records.
type fakeSession struct {
	calls     []call
	records   [][]Record
	err       error
	beginErr  error
	committed bool
	rolled    bool
	closed    bool
}

func (s *fakeSession) next(q string, params map[string]any, inTx bool) ([]Record, error) {
	s.calls = append(s.calls, call{q, params, inTx})
	if s.err != nil {
		return nil, s.err
	}
	if len(s.records) == 0 {
		return nil, nil
	}
	r := s.records[0]
	s.records = s.records[1:]
	return r, nil
}

func (s *fakeSession) Run(_ context.Context, q string, params map[string]any) ([]Record, error) {
	return s.next(q, params, false)
}

func (s *fakeSession) BeginTransaction(context.Context) (ExplicitTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &fakeTx{s: s}, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type fakeTx struct{ s *fakeSession }

func (t *fakeTx) Run(_ context.Context, q string, params map[string]any) ([]Record, error) {
	return t.s.next(q, params, true)
}

func (t *fakeTx) Commit(context.Context) error {
	t.s.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.s.rolled = true
	return nil
}

func (t *fakeTx) Close(context.Context) error { return nil }

func newTx(t *testing.T, s *fakeSession) database.Transaction {
	t.Helper()
	p := NewSessionPool(func(context.Context) (Session, error) { return s, nil })
	tx, err := p.Transaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Begin(context.Background()))
	return tx
}

func nodeRecord(props map[string]any) Record {
	return Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Labels: []string{"Project"}, Props: props}}}
}

func TestCreateNode(t *testing.T) {
	s := &fakeSession{records: [][]Record{{nodeRecord(map[string]any{"id": "p1", "name": "alpha"})}}}
	tx := newTx(t, s)
	n, err := tx.CreateNode(context.Background(), "Project", map[string]value.Value{"name": value.String("alpha")})
	require.NoError(t, err)
	assert.Equal(t, "Project", n.TypeName)
	assert.Equal(t, value.String("p1"), n.Field("id"))

	require.Len(t, s.calls, 1)
	c := s.calls[0]
	assert.True(t, c.inTx)
	assert.Equal(t, "CREATE (n:`Project`) SET n = $p0 RETURN n", c.query)
	props := c.params["p0"].(map[string]any)
	assert.Equal(t, "alpha", props["name"])
	assert.NotEmpty(t, props["id"], "identifier is generated")
}

func TestReadNodesQuery(t *testing.T) {
	s := &fakeSession{records: [][]Record{{
		nodeRecord(map[string]any{"id": "p1", "points": int64(3), "tags": []any{"a", "b"}}),
	}}}
	tx := newTx(t, s)

	q := database.NewNodeQuery("Project").
		WithIDs(value.String("p1")).
		Where(database.Predicate{Prop: "points", Op: config.GTE, Value: value.Int64(2)})
	owner := database.NewRelQuery("Project", "owner")
	owner.Dst = []*database.NodeQuery{
		database.NewNodeQuery("User").Where(database.Predicate{Prop: "name", Op: config.EQ, Value: value.String("ann")}),
	}
	q.Rels = []*database.RelQuery{owner}

	ns, err := tx.ReadNodes(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, value.Int64(3), ns[0].Field("points"))
	assert.Equal(t, value.Array(value.String("a"), value.String("b")), ns[0].Field("tags"))

	assert.Equal(t,
		"MATCH (n:`Project`) WHERE n.id IN $p0 AND n.`points` >= $p1 AND "+
			"EXISTS { MATCH (n)-[r1:`owner`]->(d2) WHERE ((d2:`User` AND d2.`name` = $p2)) } RETURN n",
		s.calls[0].query)
	assert.Equal(t, []any{"p1"}, s.calls[0].params["p0"])
	assert.Equal(t, int64(2), s.calls[0].params["p1"])
	assert.Equal(t, "ann", s.calls[0].params["p2"])
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		op   config.Operator
		want string
	}{
		{config.EQ, "n.`x` = $p0"},
		{config.NOTEQ, "n.`x` <> $p0"},
		{config.IN, "n.`x` IN $p0"},
		{config.NOTIN, "NOT n.`x` IN $p0"},
		{config.CONTAINS, "(CASE WHEN n.`x` IS :: STRING THEN n.`x` CONTAINS $p0 ELSE $p0 IN n.`x` END)"},
		{config.NOTCONTAINS, "NOT (CASE WHEN n.`x` IS :: STRING THEN n.`x` CONTAINS $p0 ELSE $p0 IN n.`x` END)"},
		{config.GT, "n.`x` > $p0"},
		{config.GTE, "n.`x` >= $p0"},
		{config.LT, "n.`x` < $p0"},
		{config.LTE, "n.`x` <= $p0"},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			b := newBuilder()
			got, err := b.predicate("n", database.Predicate{Prop: "x", Op: tt.op, Value: value.String("v")})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRels(t *testing.T) {
	relRecord := Record{
		Keys: []string{"r", "srcID", "dstID", "dstLabel"},
		Values: []any{
			dbtype.Relationship{Type: "owner", Props: map[string]any{"id": "r1", "since": "2020"}},
			"p1", "u1", "User",
		},
	}

	t.Run("Create", func(t *testing.T) {
		s := &fakeSession{records: [][]Record{{relRecord}}}
		tx := newTx(t, s)
		rels, err := tx.CreateRels(context.Background(), &database.RelCreate{
			Name: "owner", SrcLabel: "Project", SrcIDs: []value.Value{value.String("p1")},
			DstLabel: "User", DstIDs: []value.Value{value.String("u1")},
			Props: map[string]value.Value{"since": value.String("2020")},
		})
		require.NoError(t, err)
		require.Len(t, rels, 1)
		r := rels[0]
		assert.Equal(t, value.String("r1"), r.ID)
		assert.Equal(t, "owner", r.Name)
		assert.Equal(t, value.String("2020"), r.Prop("since"))
		assert.NotContains(t, r.Props, "id")
		assert.Equal(t, database.NodeRef{ID: value.String("p1"), Label: "Project"}, r.Src)
		assert.Equal(t, database.NodeRef{ID: value.String("u1"), Label: "User"}, r.Dst)
		assert.Equal(t,
			"MATCH (src:`Project`) WHERE src.id IN $p0 MATCH (dst:`User`) WHERE dst.id IN $p1 "+
				"CREATE (src)-[r:`owner`]->(dst) SET r = $p2, r.id = randomUUID()"+returnRel,
			s.calls[0].query)
	})

	t.Run("Read", func(t *testing.T) {
		s := &fakeSession{records: [][]Record{{relRecord}}}
		tx := newTx(t, s)
		q := database.NewRelQuery("Project", "owner").WithSrcIDs(value.String("p1"))
		q.DstLabels = []string{"User"}
		rels, err := tx.ReadRels(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, rels, 1)
		assert.Equal(t,
			"MATCH (src:`Project`)-[r:`owner`]->(dst) WHERE src.id IN $p0 AND (dst:`User`)"+returnRel,
			s.calls[0].query)
	})

	t.Run("Delete", func(t *testing.T) {
		s := &fakeSession{records: [][]Record{{{Keys: []string{"count"}, Values: []any{int64(2)}}}}}
		tx := newTx(t, s)
		n, err := tx.DeleteRels(context.Background(), database.NewRelQuery("Project", "owner"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, "MATCH (src:`Project`)-[r:`owner`]->(dst) DELETE r RETURN count(r) AS count", s.calls[0].query)
	})

	t.Run("EmptyRestrictionSkipsQuery", func(t *testing.T) {
		s := &fakeSession{}
		tx := newTx(t, s)
		rels, err := tx.ReadRels(context.Background(), database.NewRelQuery("Project", "owner").WithSrcIDs())
		require.NoError(t, err)
		assert.Empty(t, rels)
		assert.Empty(t, s.calls)
	})
}

func TestDeleteNodes(t *testing.T) {
	s := &fakeSession{records: [][]Record{{{Keys: []string{"count"}, Values: []any{int64(1)}}}}}
	tx := newTx(t, s)
	n, err := tx.DeleteNodes(context.Background(), database.NewNodeQuery("Project").WithIDs(value.String("p1")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "MATCH (n:`Project`) WHERE n.id IN $p0 DETACH DELETE n RETURN count(n) AS count", s.calls[0].query)
}

func TestUpdateNodesKeepsIdentifier(t *testing.T) {
	s := &fakeSession{records: [][]Record{{nodeRecord(map[string]any{"id": "p1", "name": "beta"})}}}
	tx := newTx(t, s)
	_, err := tx.UpdateNodes(context.Background(), database.NewNodeQuery("Project"),
		map[string]value.Value{"id": value.String("x"), "name": value.String("beta")})
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:`Project`) SET n += $p0 RETURN n", s.calls[0].query)
	assert.Equal(t, map[string]any{"name": "beta"}, s.calls[0].params["p0"])
}

func TestValueBridge(t *testing.T) {
	_, err := toNative(value.UInt64(math.MaxUint64))
	assert.True(t, velograph.IsUnsupportedOperation(err))

	x, err := toNative(value.UInt64(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), x)

	_, err = fromNative(struct{}{})
	assert.True(t, velograph.IsUnsupportedOperation(err))

	s := &fakeSession{}
	tx := newTx(t, s)
	_, err = tx.ReadNodes(context.Background(), database.NewNodeQuery("Project").
		Where(database.Predicate{Prop: "n", Op: config.EQ, Value: value.UInt64(math.MaxUint64)}))
	assert.True(t, velograph.IsUnsupportedOperation(err))
	assert.Empty(t, s.calls)
}

func TestTransactionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		s := &fakeSession{}
		tx := newTx(t, s)
		assert.ErrorIs(t, tx.Begin(ctx), velograph.ErrTxStarted)
		require.NoError(t, tx.Commit(ctx))
		assert.True(t, s.committed)
		_, err := tx.ReadNodes(ctx, database.NewNodeQuery("Project"))
		assert.ErrorIs(t, err, velograph.ErrTransactionFinished)
		require.NoError(t, tx.Close(ctx))
		assert.True(t, s.closed)
	})

	t.Run("CloseRollsBack", func(t *testing.T) {
		s := &fakeSession{}
		tx := newTx(t, s)
		require.NoError(t, tx.Close(ctx))
		assert.True(t, s.rolled)
		assert.False(t, s.committed)
	})

	t.Run("DriverErrorWrapped", func(t *testing.T) {
		s := &fakeSession{err: errors.New("connection reset")}
		tx := newTx(t, s)
		_, err := tx.ReadNodes(ctx, database.NewNodeQuery("Project"))
		assert.True(t, velograph.IsBackendError(err))
	})

	t.Run("Exec", func(t *testing.T) {
		s := &fakeSession{records: [][]Record{{
			{Keys: []string{"n", "c"}, Values: []any{dbtype.Node{Labels: []string{"User"}, Props: map[string]any{"id": "u1"}}, int64(4)}},
		}}}
		p := NewSessionPool(func(context.Context) (Session, error) { return s, nil })
		tx, err := p.Transaction(ctx)
		require.NoError(t, err)
		res, err := tx.Exec(ctx, "MATCH (n:User) RETURN n, 4 AS c", map[string]value.Value{"x": value.Int64(1)})
		require.NoError(t, err)
		assert.False(t, s.calls[0].inTx, "autocommit before Begin")
		users, err := res.Nodes("User")
		require.NoError(t, err)
		require.Len(t, users, 1)
		vs, err := res.IDs("c")
		require.NoError(t, err)
		assert.Equal(t, []value.Value{value.Int64(4)}, vs)
	})
}

func TestBeginUnavailable(t *testing.T) {
	ctx := context.Background()
	begin := func(ctx context.Context, err error) error {
		p := NewSessionPool(func(context.Context) (Session, error) { return &fakeSession{beginErr: err}, nil })
		tx, terr := p.Transaction(ctx)
		require.NoError(t, terr)
		defer func() { _ = tx.Close(context.Background()) }()
		return tx.Begin(ctx)
	}

	err := begin(ctx, errors.New("Timeout while waiting for connection to any of [neo:7687]: context deadline exceeded"))
	assert.ErrorIs(t, err, velograph.ErrBackendUnavailable)
	assert.True(t, velograph.IsBackendError(err))

	err = begin(ctx, errors.New("syntax error"))
	assert.NotErrorIs(t, err, velograph.ErrBackendUnavailable)
	assert.True(t, velograph.IsBackendError(err))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = begin(canceled, errors.New("Timeout while waiting for connection: context canceled"))
	assert.NotErrorIs(t, err, velograph.ErrBackendUnavailable, "the caller gave up, the backend did not")
}

func TestEndpointFromEnv(t *testing.T) {
	t.Setenv(EnvHost, "neo")
	t.Setenv(EnvUser, "neo4j")
	t.Setenv(EnvPass, "secret")
	e, err := EndpointFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "bolt://neo:7687", e.URL())
	assert.Equal(t, database.DefaultPoolSize, e.PoolSize)

	t.Setenv(EnvPort, "abc")
	_, err = EndpointFromEnv()
	assert.ErrorIs(t, err, velograph.ErrEnvNotParsed)
}

func TestEndpointFromEnvMissing(t *testing.T) {
	t.Setenv(EnvHost, "neo")
	t.Setenv(EnvUser, "neo4j")
	// t.Setenv restores the variable afterwards; unset it for this test.
	t.Setenv(EnvPass, "")
	require.NoError(t, os.Unsetenv(EnvPass))
	_, err := EndpointFromEnv()
	assert.ErrorIs(t, err, velograph.ErrEnvNotFound)
}
