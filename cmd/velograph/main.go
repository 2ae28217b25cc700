// Command velograph serves a GraphQL API over a graph database from YAML
// model configs.
//
// Usage:
//
//	velograph serve --config model.yml --backend sql --addr :5000 --watch
//	velograph validate --config model.yml --config extra.yml
//	velograph sdl --config model.yml
//
// The backend connection is read from the environment: WG_CYPHER_* for
// cypher, WG_GREMLIN_* for gremlin, and WG_SQL_DIALECT and WG_SQL_DSN for
// sql. WG_POOL_SIZE bounds the connections of every backend.
package main

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
