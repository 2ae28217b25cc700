package sqlgraph

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Driver wraps a database/sql connection pool with its dialect.
type Driver struct {
	Conn
	db *sql.DB
}

// Open wraps the database/sql.Open method and returns a Driver. The database
// driver itself must be registered by the caller, for example with a blank
// import of modernc.org/sqlite, github.com/lib/pq or
// github.com/go-sql-driver/mysql.
func Open(dialect, source string) (*Driver, error) {
	d, err := normalize(dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, err
	}
	return &Driver{Conn: Conn{db, d}, db: db}, nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(dialect string, db *sql.DB) *Driver {
	d, err := normalize(dialect)
	if err != nil {
		d = dialect
	}
	return &Driver{Conn: Conn{db, d}, db: db}
}

// normalize maps a registered driver name onto one of the dialects.
func normalize(dialect string) (string, error) {
	// The driver may be wrapped, for example "sqlite3" or "postgres-otel".
	for _, name := range []string{MySQL, SQLite, Postgres} {
		if strings.HasPrefix(dialect, name) {
			return name, nil
		}
	}
	if dialect == "pgx" {
		return Postgres, nil
	}
	return "", fmt.Errorf("sqlgraph: unsupported dialect %q", dialect)
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect returns the dialect of the driver.
func (d *Driver) Dialect() string { return d.dialect }

// BeginTx starts a transaction.
func (d *Driver) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Conn: Conn{tx, d.dialect}, Tx: tx}, nil
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error { return d.db.Close() }

// Tx is a transaction of a Driver.
type Tx struct {
	Conn
	*sql.Tx
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn runs statements written with '?' placeholders, rebinding them for the
// dialect.
type Conn struct {
	ExecQuerier
	dialect string
}

// Exec runs a statement and returns the number of affected rows.
func (c Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.ExecContext(ctx, c.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlgraph: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlgraph: rows affected: %w", err)
	}
	return n, nil
}

// Query runs a query. The caller must close the rows.
func (c Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlgraph: query: %w", err)
	}
	return rows, nil
}

// rebind replaces '?' placeholders with '$n' for PostgreSQL. Queries built
// by this package never contain a literal '?'.
func (c Conn) rebind(query string) string {
	if c.dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
