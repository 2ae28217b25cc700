package sqlgraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/database"
	"github.com/syssam/velograph/value"
)

type txState int

const (
	txIdle txState = iota
	txOpen
	txDone
)

// tx runs intents on the driver. Before Begin, statements run in autocommit
// mode.
type tx struct {
	drv   *Driver
	sqlTx *Tx
	state txState
}

var _ database.Transaction = (*tx)(nil)

func (t *tx) conn() (Conn, error) {
	switch t.state {
	case txOpen:
		return t.sqlTx.Conn, nil
	case txDone:
		return Conn{}, velograph.ErrTransactionFinished
	}
	return t.drv.Conn, nil
}

func (t *tx) Begin(ctx context.Context) error {
	switch t.state {
	case txOpen:
		return velograph.ErrTxStarted
	case txDone:
		return velograph.ErrTransactionFinished
	}
	stx, err := t.drv.BeginTx(ctx, nil)
	if err != nil {
		return velograph.NewBackendError(Backend, "begin", err)
	}
	t.sqlTx, t.state = stx, txOpen
	return nil
}

func (t *tx) Commit(context.Context) error {
	if t.state != txOpen {
		return velograph.ErrTransactionFinished
	}
	t.state = txDone
	if err := t.sqlTx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return velograph.ErrTransactionFinished
		}
		return velograph.NewBackendError(Backend, "commit", err)
	}
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.state != txOpen {
		return velograph.ErrTransactionFinished
	}
	t.state = txDone
	if err := t.sqlTx.Rollback(); err != nil {
		// database/sql rolls back on its own when the begin context ends.
		if errors.Is(err, sql.ErrTxDone) {
			return velograph.ErrTransactionFinished
		}
		return velograph.NewBackendError(Backend, "rollback", err)
	}
	return nil
}

func (t *tx) Close(ctx context.Context) error {
	if t.state == txOpen {
		if err := t.Rollback(ctx); err != nil && !errors.Is(err, velograph.ErrTransactionFinished) {
			return err
		}
	}
	t.state = txDone
	return nil
}

// Exec runs native SQL. Parameters are bound by name, so the placeholder
// syntax is the one of the database driver (":name" or "@name" for SQLite).
// Every column of every row is returned as a value.
func (t *tx) Exec(ctx context.Context, query string, params map[string]value.Value) (database.QueryResult, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(params))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		args = append(args, sql.Named(k, params[k].Any()))
	}
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, velograph.NewBackendError(Backend, "exec", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, velograph.NewBackendError(Backend, "exec", err)
	}
	res := database.NewResult(cols...)
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, velograph.NewBackendError(Backend, "exec", err)
		}
		cells := make([]any, len(cols))
		for i, x := range raw {
			v, err := value.FromAny(x)
			if err != nil {
				return nil, velograph.NewUnsupportedOperationError(Backend, fmt.Sprintf("column %s of type %T", cols[i], x))
			}
			cells[i] = v
		}
		res.Append(cells...)
	}
	if err := rows.Err(); err != nil {
		return nil, velograph.NewBackendError(Backend, "exec", err)
	}
	return res, nil
}

func (t *tx) CreateNode(ctx context.Context, label string, props map[string]value.Value) (*database.Node, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	fields := maps.Clone(props)
	if fields == nil {
		fields = map[string]value.Value{}
	}
	id, ok := fields[database.IDField]
	if !ok || id.IsNull() {
		id = value.String(uuid.NewString())
	}
	k, err := key(id)
	if err != nil {
		return nil, err
	}
	fields[database.IDField] = value.String(k)
	blob, err := value.EncodeFields(fields)
	if err != nil {
		return nil, err
	}
	if _, err := c.Exec(ctx, "INSERT INTO graph_nodes (id, label, props) VALUES (?, ?, ?)", k, label, blob); err != nil {
		if IsUniqueConstraintError(err) {
			err = fmt.Errorf("node %s already exists: %w", k, err)
		}
		return nil, velograph.NewBackendError(Backend, "create node", err)
	}
	return database.NewNode(label, fields), nil
}

func (t *tx) ReadNodes(ctx context.Context, q *database.NodeQuery) ([]*database.Node, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	if !q.IsFlat() {
		return nil, velograph.NewUnsupportedOperationError(Backend, "nested relationship filter")
	}
	if q.ByID && len(q.IDs) == 0 {
		return nil, nil
	}
	var w where
	w.eq("label", q.Label)
	if q.ByID {
		if err := w.in("id", q.IDs); err != nil {
			return nil, err
		}
	}
	rows, err := c.Query(ctx, "SELECT id, props FROM graph_nodes"+w.String(), w.args...)
	if err != nil {
		return nil, velograph.NewBackendError(Backend, "read nodes", err)
	}
	defer rows.Close()
	var nodes []*database.Node
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, velograph.NewBackendError(Backend, "read nodes", err)
		}
		fields, err := value.DecodeFields(blob)
		if err != nil {
			return nil, velograph.NewBackendError(Backend, "read nodes", err)
		}
		fields[database.IDField] = value.String(id)
		if database.Match(q.Predicates, fields) {
			nodes = append(nodes, database.NewNode(q.Label, fields))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, velograph.NewBackendError(Backend, "read nodes", err)
	}
	return nodes, nil
}

func (t *tx) UpdateNodes(ctx context.Context, q *database.NodeQuery, props map[string]value.Value) ([]*database.Node, error) {
	nodes, err := t.ReadNodes(ctx, q)
	if err != nil {
		return nil, err
	}
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		merge(n.Fields, props)
		blob, err := value.EncodeFields(n.Fields)
		if err != nil {
			return nil, err
		}
		k, _ := key(n.Fields[database.IDField])
		if _, err := c.Exec(ctx, "UPDATE graph_nodes SET props = ? WHERE id = ?", blob, k); err != nil {
			return nil, velograph.NewBackendError(Backend, "update nodes", err)
		}
	}
	return nodes, nil
}

// DeleteNodes removes the matched nodes together with every relationship
// starting or ending at them.
func (t *tx) DeleteNodes(ctx context.Context, q *database.NodeQuery) (int64, error) {
	nodes, err := t.ReadNodes(ctx, q)
	if err != nil || len(nodes) == 0 {
		return 0, err
	}
	c, err := t.conn()
	if err != nil {
		return 0, err
	}
	ids, err := database.NodeIDs(nodes)
	if err != nil {
		return 0, err
	}
	var src, dst, nw where
	for _, w := range []*where{&src, &dst, &nw} {
		if err := w.in("id", ids); err != nil {
			return 0, err
		}
	}
	rels := "DELETE FROM graph_rels WHERE src_id IN (" + placeholders(len(ids)) + ") OR dst_id IN (" + placeholders(len(ids)) + ")"
	if _, err := c.Exec(ctx, rels, append(src.args, dst.args...)...); err != nil {
		return 0, velograph.NewBackendError(Backend, "delete nodes", err)
	}
	n, err := c.Exec(ctx, "DELETE FROM graph_nodes"+nw.String(), nw.args...)
	if err != nil {
		return 0, velograph.NewBackendError(Backend, "delete nodes", err)
	}
	return n, nil
}

// CreateRels creates a relationship from every existing source to every
// existing destination. Identifiers that match no node are skipped.
func (t *tx) CreateRels(ctx context.Context, rc *database.RelCreate) ([]*database.Rel, error) {
	if len(rc.SrcIDs) == 0 || len(rc.DstIDs) == 0 {
		return nil, nil
	}
	srcs, err := t.ReadNodes(ctx, database.NewNodeQuery(rc.SrcLabel).WithIDs(rc.SrcIDs...))
	if err != nil {
		return nil, err
	}
	dsts, err := t.ReadNodes(ctx, database.NewNodeQuery(rc.DstLabel).WithIDs(rc.DstIDs...))
	if err != nil {
		return nil, err
	}
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	props := maps.Clone(rc.Props)
	if props == nil {
		props = map[string]value.Value{}
	}
	delete(props, database.IDField)
	blob, err := value.EncodeFields(props)
	if err != nil {
		return nil, err
	}
	rels := make([]*database.Rel, 0, len(srcs)*len(dsts))
	for _, src := range srcs {
		for _, dst := range dsts {
			sid, did := src.Field(database.IDField), dst.Field(database.IDField)
			ss, _ := sid.AsString()
			ds, _ := did.AsString()
			id := uuid.NewString()
			_, err := c.Exec(ctx,
				"INSERT INTO graph_rels (id, name, src_id, src_label, dst_id, dst_label, props) VALUES (?, ?, ?, ?, ?, ?, ?)",
				id, rc.Name, ss, rc.SrcLabel, ds, rc.DstLabel, blob,
			)
			if err != nil {
				return nil, velograph.NewBackendError(Backend, "create rels", err)
			}
			rels = append(rels, &database.Rel{
				ID:    value.String(id),
				Name:  rc.Name,
				Props: maps.Clone(props),
				Src:   database.NodeRef{ID: sid, Label: rc.SrcLabel},
				Dst:   database.NodeRef{ID: did, Label: rc.DstLabel},
			})
		}
	}
	return rels, nil
}

func (t *tx) ReadRels(ctx context.Context, q *database.RelQuery) ([]*database.Rel, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	if !q.IsFlat() {
		return nil, velograph.NewUnsupportedOperationError(Backend, "nested node filter")
	}
	if (q.ByID && len(q.IDs) == 0) || (q.BySrc && len(q.SrcIDs) == 0) || (q.ByDst && len(q.DstIDs) == 0) {
		return nil, nil
	}
	var w where
	w.eq("src_label", q.SrcLabel)
	w.eq("name", q.Name)
	for _, r := range []struct {
		col string
		on  bool
		ids []value.Value
	}{
		{"id", q.ByID, q.IDs},
		{"src_id", q.BySrc, q.SrcIDs},
		{"dst_id", q.ByDst, q.DstIDs},
	} {
		if !r.on {
			continue
		}
		if err := w.in(r.col, r.ids); err != nil {
			return nil, err
		}
	}
	if len(q.DstLabels) > 0 {
		labels := make([]value.Value, len(q.DstLabels))
		for i, l := range q.DstLabels {
			labels[i] = value.String(l)
		}
		_ = w.in("dst_label", labels)
	}
	rows, err := c.Query(ctx, "SELECT id, src_id, dst_id, dst_label, props FROM graph_rels"+w.String(), w.args...)
	if err != nil {
		return nil, velograph.NewBackendError(Backend, "read rels", err)
	}
	defer rows.Close()
	var rels []*database.Rel
	for rows.Next() {
		var (
			id, src, dst, dstLabel string
			blob                   []byte
		)
		if err := rows.Scan(&id, &src, &dst, &dstLabel, &blob); err != nil {
			return nil, velograph.NewBackendError(Backend, "read rels", err)
		}
		props, err := value.DecodeFields(blob)
		if err != nil {
			return nil, velograph.NewBackendError(Backend, "read rels", err)
		}
		if !database.Match(q.Predicates, props) {
			continue
		}
		rels = append(rels, &database.Rel{
			ID:    value.String(id),
			Name:  q.Name,
			Props: props,
			Src:   database.NodeRef{ID: value.String(src), Label: q.SrcLabel},
			Dst:   database.NodeRef{ID: value.String(dst), Label: dstLabel},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, velograph.NewBackendError(Backend, "read rels", err)
	}
	return rels, nil
}

func (t *tx) UpdateRels(ctx context.Context, q *database.RelQuery, props map[string]value.Value) ([]*database.Rel, error) {
	rels, err := t.ReadRels(ctx, q)
	if err != nil {
		return nil, err
	}
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	for _, r := range rels {
		merge(r.Props, props)
		blob, err := value.EncodeFields(r.Props)
		if err != nil {
			return nil, err
		}
		k, _ := r.ID.AsString()
		if _, err := c.Exec(ctx, "UPDATE graph_rels SET props = ? WHERE id = ?", blob, k); err != nil {
			return nil, velograph.NewBackendError(Backend, "update rels", err)
		}
	}
	return rels, nil
}

func (t *tx) DeleteRels(ctx context.Context, q *database.RelQuery) (int64, error) {
	rels, err := t.ReadRels(ctx, q)
	if err != nil || len(rels) == 0 {
		return 0, err
	}
	c, err := t.conn()
	if err != nil {
		return 0, err
	}
	ids := make([]value.Value, len(rels))
	for i, r := range rels {
		ids[i] = r.ID
	}
	var w where
	if err := w.in("id", ids); err != nil {
		return 0, err
	}
	n, err := c.Exec(ctx, "DELETE FROM graph_rels"+w.String(), w.args...)
	if err != nil {
		return 0, velograph.NewBackendError(Backend, "delete rels", err)
	}
	return n, nil
}

// merge copies props into fields. The identifier is immutable.
func merge(fields, props map[string]value.Value) {
	for k, v := range props {
		if k == database.IDField {
			continue
		}
		fields[k] = v
	}
}

// key returns the column form of an identifier. The store keeps string
// identifiers only; UUIDs are stored in their canonical text form.
func key(id value.Value) (string, error) {
	switch id.Kind() {
	case value.KindString:
		return id.AsString()
	case value.KindUuid:
		u, err := id.AsUUID()
		if err != nil {
			return "", err
		}
		return u.String(), nil
	}
	return "", velograph.NewUnsupportedOperationError(Backend, "identifier of kind "+id.Kind().String())
}

// where accumulates conjunctive SQL conditions with '?' placeholders.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(col string, v any) {
	w.conds = append(w.conds, col+" = ?")
	w.args = append(w.args, v)
}

func (w *where) in(col string, ids []value.Value) error {
	for _, id := range ids {
		k, err := key(id)
		if err != nil {
			return err
		}
		w.args = append(w.args, k)
	}
	w.conds = append(w.conds, col+" IN ("+placeholders(len(ids))+")")
	return nil
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
