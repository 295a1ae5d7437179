// Package dbtest connects integration tests to the Postgres database named by
// TEST_DATABASE_URL. The hosted auth schema (auth.users, auth.uid, auth.jwt)
// and the authenticated role are stubbed, then the repository migrations are
// applied. Setup is idempotent and safe for packages running in parallel;
// drop the public and auth schemas by hand after editing an applied migration.
package dbtest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/toolate/internal/database"
	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

const setupLockKey = 7_341_220_119

const authStub = `
CREATE SCHEMA IF NOT EXISTS auth;

CREATE TABLE IF NOT EXISTS auth.users (
    id                  UUID PRIMARY KEY,
    email               TEXT NOT NULL,
    raw_user_meta_data  JSONB NOT NULL DEFAULT '{}',
    email_confirmed_at  TIMESTAMPTZ
);

CREATE OR REPLACE FUNCTION auth.jwt() RETURNS JSONB LANGUAGE sql STABLE AS $$
    SELECT coalesce(nullif(current_setting('request.jwt.claims', true), ''), '{}')::jsonb
$$;

CREATE OR REPLACE FUNCTION auth.uid() RETURNS UUID LANGUAGE sql STABLE AS $$
    SELECT nullif(auth.jwt() ->> 'sub', '')::uuid
$$;

DO $$ BEGIN
    CREATE ROLE authenticated NOLOGIN;
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;

DO $$ BEGIN
    EXECUTE format('GRANT authenticated TO %I', current_user);
EXCEPTION WHEN others THEN NULL;
END $$;

GRANT USAGE ON SCHEMA public, auth TO authenticated;
`

const grants = `
GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO authenticated;
GRANT EXECUTE ON ALL FUNCTIONS IN SCHEMA public, auth TO authenticated;
`

// Open returns a pool on the migrated test database, skipping the test when
// TEST_DATABASE_URL is unset.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := prepare(ctx, pool); err != nil {
		t.Fatalf("prepare test database: %v", err)
	}
	return pool
}

func prepare(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", setupLockKey); err != nil {
		return err
	}
	defer conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", setupLockKey)

	if _, err := conn.Exec(ctx, authStub); err != nil {
		return err
	}
	if err := database.RunMigrations(ctx, pool, migrationsDir()); err != nil {
		return err
	}
	_, err = conn.Exec(ctx, grants)
	return err
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// User is an account in the stubbed auth schema.
type User struct {
	ID    uuid.UUID
	Email string
}

// Context returns a context signed in as u, carrying the JWT claims the
// row-level policies read.
func (u User) Context() context.Context {
	claims, _ := json.Marshal(map[string]string{
		"sub":   u.ID.String(),
		"email": u.Email,
		"role":  "authenticated",
	})
	ctx := tenant.WithUser(context.Background(), &models.User{ID: u.ID, Email: u.Email})
	return tenant.WithClaims(ctx, claims)
}

// CreateUser inserts a confirmed account with a unique address built from
// local. The profile and invitation triggers fire as they do in production.
func CreateUser(t testing.TB, pool *pgxpool.Pool, local string) User {
	t.Helper()
	return createUser(t, pool, UniqueEmail(local), true)
}

// CreateUnconfirmedUser inserts an account for email that has not followed
// its confirmation link yet.
func CreateUnconfirmedUser(t testing.TB, pool *pgxpool.Pool, email string) User {
	t.Helper()
	return createUser(t, pool, email, false)
}

// CreateUserWithEmail inserts a confirmed account for an exact address.
func CreateUserWithEmail(t testing.TB, pool *pgxpool.Pool, email string) User {
	t.Helper()
	return createUser(t, pool, email, true)
}

func createUser(t testing.TB, pool *pgxpool.Pool, email string, confirmed bool) User {
	t.Helper()
	u := User{ID: uuid.New(), Email: email}
	var confirmedAt *time.Time
	if confirmed {
		now := time.Now()
		confirmedAt = &now
	}
	_, err := pool.Exec(context.Background(),
		"INSERT INTO auth.users (id, email, email_confirmed_at) VALUES ($1, $2, $3)",
		u.ID, u.Email, confirmedAt)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// Confirm marks u's address as confirmed.
func Confirm(t testing.TB, pool *pgxpool.Pool, u User) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"UPDATE auth.users SET email_confirmed_at = now() WHERE id = $1", u.ID)
	if err != nil {
		t.Fatalf("confirm %s: %v", u.Email, err)
	}
}

func UniqueEmail(local string) string {
	return local + "-" + uuid.NewString()[:8] + "@acme.test"
}

func UniqueSlug(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
