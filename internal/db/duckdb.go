package db

import (
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
)

// OpenDuckDB opens a DuckDB database file. An empty path opens a private
// in-memory database; its pool is pinned to one connection so every
// query sees the same catalog.
func OpenDuckDB(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if path == "" {
		db.SetMaxOpenConns(1)
	}
	if err := ping(db, "duckdb"); err != nil {
		return nil, err
	}
	return db, nil
}
