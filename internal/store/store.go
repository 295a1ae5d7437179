// Package store holds the Postgres-backed stores. Each call runs in its own
// transaction under the caller's JWT claims, so the row-level policies in
// migrations/002_policies.sql are the final word on every read and write.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

type base struct {
	db database.Beginner
}

func (b base) run(ctx context.Context, fn func(pgx.Tx) error) error {
	return database.AsCaller(ctx, b.db, tenant.ClaimsFromContext(ctx), fn)
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
