package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a schema-qualified table using the
// PostgreSQL COPY protocol. An empty schema targets the search path.
func CopyFrom(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ident := pgx.Identifier{table}
	name := table
	if schema != "" {
		ident = pgx.Identifier{schema, table}
		name = schema + "." + table
	}

	n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", name)
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: COPY INTO %s wrote %d of %d rows", name, n, len(rows))
	}

	return n, nil
}
