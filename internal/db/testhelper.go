package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite creates a demo database in t.TempDir(), runs all
// migrations and returns a read pool over it. Cleanup is registered on t.
func OpenTestSQLite(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")

	writeDB, err := OpenSQLite(path, "write", 0)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	if err := RunMigrations(context.Background(), writeDB, DriverSQLite); err != nil {
		_ = writeDB.Close()
		t.Fatalf("run migrations: %v", err)
	}
	_ = writeDB.Close()

	readDB, err := OpenSQLite(path, "read", 4)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() { _ = readDB.Close() })
	return readDB
}

// OpenTestDuckDB returns an in-memory DuckDB database with the demo
// schema loaded.
func OpenTestDuckDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := OpenDuckDB("")
	if err != nil {
		t.Fatalf("open test duckdb: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(context.Background(), db, DriverDuckDB); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}
