package cli

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"countopt/internal/config"
	"countopt/internal/counter"
	"countopt/internal/countopt"
	"countopt/internal/db"
	"countopt/internal/dql"
	"countopt/internal/metadata"
	"countopt/internal/sqlgen"
)

// app holds the resolved configuration and builds the components a
// command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) registry() (*metadata.Registry, error) {
	if a.cfg.UsesDemoMapping() {
		return metadata.Demo()
	}
	return metadata.Load(a.cfg.MetadataPath)
}

func (a *app) optimizer(reg *metadata.Registry) *countopt.Optimizer {
	return countopt.New(countopt.Options{
		Logger:                     a.logger,
		Identifiers:                reg,
		Associations:               reg,
		DisableAssociationInlining: !a.cfg.AssociationInlining,
	})
}

// counter wires the optimizer and generator. conn may be nil for commands
// that do not execute SQL.
func (a *app) counter(conn *sql.DB) (*counter.Counter, error) {
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	dialect, err := sqlgen.ParseDialect(a.cfg.Driver)
	if err != nil {
		return nil, err
	}
	return counter.New(a.optimizer(reg), sqlgen.New(reg, dialect), conn, a.logger), nil
}

// openReadDB opens the configured database for counting. The file must
// already exist.
func (a *app) openReadDB() (*sql.DB, error) {
	if a.cfg.DSN != "" {
		if _, err := os.Stat(a.cfg.DSN); err != nil {
			return nil, fmt.Errorf("database %s: %w (run 'countopt demo init' to create it)", a.cfg.DSN, err)
		}
	}
	return db.Open(a.cfg.Driver, a.cfg.DSN, "read")
}

// readQuery returns the query text from args, or from in when the only
// argument is "-" or no argument is given and in is not a terminal.
func readQuery(args []string, in io.Reader) (string, error) {
	if len(args) == 0 && isTerminal(in) {
		return "", fmt.Errorf("no query given: pass it as an argument or pipe it on stdin")
	}
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("read query: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

// parseQuery parses the query text and attaches bound parameters and
// pagination.
func parseQuery(text string, params paramFlag, first, max int) (*dql.QuerySpec, error) {
	q, err := dql.Parse(text)
	if err != nil {
		return nil, err
	}
	for k, v := range params.values {
		q.Params[k] = v
	}
	q.FirstResult = first
	q.MaxResults = max
	return q, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
