package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"
)

// RunMigrations brings the database up to the latest demo schema.
// SQLite is migrated with goose; goose has no DuckDB dialect, so DuckDB
// gets the Up section of every migration applied in order.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		return runGoose(ctx, db)
	case DriverDuckDB:
		return applyUpSections(ctx, db)
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
}

func runGoose(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(EmbedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

func applyUpSections(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(EmbedMigrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(EmbedMigrations, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		for _, stmt := range upStatements(string(data)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
		}
	}
	return nil
}

// upStatements returns the statements between "-- +goose Up" and
// "-- +goose Down". Statements end with a semicolon at the end of a line.
func upStatements(migration string) []string {
	var (
		stmts []string
		cur   strings.Builder
		inUp  bool
	)
	for _, line := range strings.Split(migration, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-- +goose Up"):
			inUp = true
			continue
		case strings.HasPrefix(trimmed, "-- +goose Down"):
			inUp = false
			continue
		case !inUp, trimmed == "", strings.HasPrefix(trimmed, "--"):
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
