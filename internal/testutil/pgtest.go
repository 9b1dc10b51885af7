// Package testutil holds helpers shared across the Postgres-backed
// integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// PGTest connects to the database named by POSTGRES_URL, brings the
// schema up to date with goose, and hands the test a *sql.DB together
// with a cleanup that wipes every application table:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// Tests that call it are skipped entirely when POSTGRES_URL is unset,
// so the unit suite runs without a database.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	ctx := context.Background()
	applyMigrations(ctx, t, db)

	return db, func() {
		wipeTables(ctx, db)
		_ = db.Close()
	}
}

// applyMigrations runs the goose migrations from the repository's
// migrations/ directory, located by walking up from the test's cwd
// (package tests run from their own directory).
func applyMigrations(ctx context.Context, t *testing.T, db *sql.DB) {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
			dir = candidate
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("pgtest: no migrations/ directory above the test's working directory")
		}
		dir = parent
	}

	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: set dialect: %v", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}
}

// wipeTables truncates every table in the public schema except goose's
// version bookkeeping, leaving the schema in place for the next test.
// Best effort: teardown never fails the test.
func wipeTables(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND tablename NOT LIKE 'pg_%'
		  AND tablename NOT LIKE 'sql_%'
		  AND tablename <> 'goose_db_version'
	`)
	if err != nil {
		return
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	if len(tables) == 0 {
		return
	}

	// Names come from pg_tables, and CASCADE covers FK ordering.
	stmt := "TRUNCATE " + strings.Join(tables, ", ") + " CASCADE" // #nosec G202 -- identifiers from the system catalog
	_, _ = db.ExecContext(ctx, stmt)                              // #nosec G104 -- best-effort teardown
}
