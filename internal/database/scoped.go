package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner is satisfied by *pgxpool.Pool and pgx.Tx.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AsCaller runs fn inside a transaction that Postgres evaluates with the
// caller's JWT claims, the same way the hosted REST layer does, so row-level
// policies see auth.uid() for the signed-in user. With no claims fn runs with
// the pool's own role.
func AsCaller(ctx context.Context, db Beginner, claims []byte, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(claims) > 0 {
		_, err := tx.Exec(ctx,
			`SELECT set_config('request.jwt.claims', $1, true), set_config('role', 'authenticated', true)`,
			string(claims),
		)
		if err != nil {
			return fmt.Errorf("apply caller claims: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
