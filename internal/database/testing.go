package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
)

// testLockKey serializes database tests across packages, which go test runs in parallel.
const testLockKey = 727001

// OpenForTest connects to the Postgres instance described by the PG* environment variables,
// applies the schema and empties every table. The test holds an advisory lock until it ends.
// It skips the test when no database is reachable.
func OpenForTest(t testing.TB) *sql.DB {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("PGHOST", "localhost"),
		envOr("PGPORT", "5432"),
		envOr("PGUSER", "user"),
		envOr("PGPASSWORD", "password"),
		envOr("PGDATABASE", "testdb"),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping database tests: could not connect to postgres: %v", err)
	}

	ctx := context.Background()
	lock, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("failed to reserve connection: %v", err)
	}
	if _, err := lock.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, testLockKey); err != nil {
		t.Fatalf("failed to take test lock: %v", err)
	}
	t.Cleanup(func() {
		lock.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, testLockKey)
		lock.Close()
		db.Close()
	})

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE TABLE events, bookmarks, reviews, order_items, orders, cart_items, books, users CASCADE`); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}

	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
