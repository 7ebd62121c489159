package sqlgen

import (
	"fmt"
	"strings"
)

// Dialect selects placeholder syntax and pagination quirks.
type Dialect int

// SQLite and DuckDB are the supported dialects.
const (
	SQLite Dialect = iota
	DuckDB
)

func (d Dialect) String() string {
	if d == DuckDB {
		return "duckdb"
	}
	return "sqlite"
}

// ParseDialect maps a driver name to a dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "duckdb":
		return DuckDB, nil
	default:
		return SQLite, fmt.Errorf("unsupported dialect %q (expected sqlite or duckdb)", name)
	}
}

func (d Dialect) placeholder(name string) string {
	if d == DuckDB {
		return "$" + name
	}
	return ":" + name
}

// limitOffset renders a pagination suffix. SQLite needs a LIMIT before
// OFFSET; -1 means unbounded.
func (d Dialect) limitOffset(first, max int) string {
	var b strings.Builder
	if max > 0 {
		fmt.Fprintf(&b, " LIMIT %d", max)
	} else if first > 0 && d == SQLite {
		b.WriteString(" LIMIT -1")
	}
	if first > 0 {
		fmt.Fprintf(&b, " OFFSET %d", first)
	}
	return b.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
