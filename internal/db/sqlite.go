// Package db opens the SQLite and DuckDB databases counts run against and
// loads the demo schema into them.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // register sqlite3 driver
)

// SQLite DSN parameters.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverDuckDB = "duckdb"
)

// Open opens dsn with the named driver. mode is only meaningful for
// SQLite; see OpenSQLite.
func Open(driver, dsn, mode string) (*sql.DB, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return OpenSQLite(dsn, mode, 0)
	case DriverDuckDB:
		return OpenDuckDB(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q (expected %s or %s)", driver, DriverSQLite, DriverDuckDB)
	}
}

// OpenSQLite opens a *sql.DB pool for the given SQLite file path.
//
// mode controls write-safety and pool sizing:
//   - "write": MaxOpenConns=1, includes _txlock=immediate; used to load
//     the schema
//   - "read":  MaxOpenConns=maxOpen (0 defaults to 4) so original and
//     optimized counts can run side by side
//
// Both modes set WAL journal, busy_timeout=5000ms, synchronous=NORMAL,
// and foreign_keys=on.
func OpenSQLite(path string, mode string, maxOpen int) (*sql.DB, error) {
	if mode != "read" && mode != "write" {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be \"read\" or \"write\"", mode)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case "write":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case "read":
		if maxOpen <= 0 {
			maxOpen = 4
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := ping(db, "sqlite ("+mode+")"); err != nil {
		return nil, err
	}
	return db, nil
}

// buildDSN constructs a SQLite DSN with hardened parameters.
func buildDSN(path string, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")

	if mode == "write" {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}

func ping(db *sql.DB, what string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %s: %w", what, err)
	}
	return nil
}
