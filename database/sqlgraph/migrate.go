package sqlgraph

import (
	"context"
	"fmt"
)

// Table names.
const (
	NodesTable = "graph_nodes"
	RelsTable  = "graph_rels"
)

var ddl = map[string][]string{
	SQLite: {
		`CREATE TABLE IF NOT EXISTS graph_nodes (id TEXT PRIMARY KEY, label TEXT NOT NULL, props BLOB NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS graph_nodes_label ON graph_nodes (label)`,
		`CREATE TABLE IF NOT EXISTS graph_rels (id TEXT PRIMARY KEY, name TEXT NOT NULL, src_id TEXT NOT NULL, src_label TEXT NOT NULL, dst_id TEXT NOT NULL, dst_label TEXT NOT NULL, props BLOB NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS graph_rels_src ON graph_rels (src_label, name, src_id)`,
		`CREATE INDEX IF NOT EXISTS graph_rels_dst ON graph_rels (dst_id)`,
	},
	Postgres: {
		`CREATE TABLE IF NOT EXISTS graph_nodes (id TEXT PRIMARY KEY, label TEXT NOT NULL, props BYTEA NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS graph_nodes_label ON graph_nodes (label)`,
		`CREATE TABLE IF NOT EXISTS graph_rels (id TEXT PRIMARY KEY, name TEXT NOT NULL, src_id TEXT NOT NULL, src_label TEXT NOT NULL, dst_id TEXT NOT NULL, dst_label TEXT NOT NULL, props BYTEA NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS graph_rels_src ON graph_rels (src_label, name, src_id)`,
		`CREATE INDEX IF NOT EXISTS graph_rels_dst ON graph_rels (dst_id)`,
	},
	// MySQL has no CREATE INDEX IF NOT EXISTS; indexes are declared inline.
	MySQL: {
		"CREATE TABLE IF NOT EXISTS graph_nodes (id VARCHAR(191) PRIMARY KEY, label VARCHAR(191) NOT NULL, props LONGBLOB NOT NULL, INDEX graph_nodes_label (label))",
		"CREATE TABLE IF NOT EXISTS graph_rels (id VARCHAR(191) PRIMARY KEY, name VARCHAR(191) NOT NULL, src_id VARCHAR(191) NOT NULL, src_label VARCHAR(191) NOT NULL, dst_id VARCHAR(191) NOT NULL, dst_label VARCHAR(191) NOT NULL, props LONGBLOB NOT NULL, INDEX graph_rels_src (src_label, name, src_id), INDEX graph_rels_dst (dst_id))",
	},
}

// Migrate creates the node and relationship tables when they do not exist.
func (d *Driver) Migrate(ctx context.Context) error {
	stmts, ok := ddl[d.dialect]
	if !ok {
		return fmt.Errorf("sqlgraph: unsupported dialect %q", d.dialect)
	}
	for _, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlgraph: migrate: %w", err)
		}
	}
	return nil
}
