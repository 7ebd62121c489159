// Package counter executes count queries: it optimizes an entity query,
// renders it to SQL and runs it against a database.
package counter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"countopt/internal/countopt"
	"countopt/internal/dql"
	"countopt/internal/sqlgen"
)

// Plan is an optimized count query ready to execute.
type Plan struct {
	Optimized *dql.QuerySpec
	DQL       string
	Statement *sqlgen.Statement
}

// Verification compares the count of a query with the count of its
// optimized form.
type Verification struct {
	RunID        string        `json:"run_id"`
	OriginalDQL  string        `json:"original_dql"`
	OptimizedDQL string        `json:"optimized_dql"`
	Original     int64         `json:"original"`
	Optimized    int64         `json:"optimized"`
	Match        bool          `json:"match"`
	Elapsed      time.Duration `json:"elapsed_ns"`
}

// Counter is safe for concurrent use; it shares only the *sql.DB.
type Counter struct {
	optimizer *countopt.Optimizer
	generator *sqlgen.Generator
	db        *sql.DB
	logger    *slog.Logger
}

// New creates a Counter. db may be nil when only Assemble is used.
func New(optimizer *countopt.Optimizer, generator *sqlgen.Generator, db *sql.DB, logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{
		optimizer: optimizer,
		generator: generator,
		db:        db,
		logger:    logger,
	}
}

// Assemble optimizes q and renders the count statement.
func (c *Counter) Assemble(q *dql.QuerySpec) (*Plan, error) {
	optimized, err := c.optimizer.Optimize(q)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	stmt, err := c.generator.Count(optimized)
	if err != nil {
		return nil, fmt.Errorf("generate sql: %w", err)
	}
	return &Plan{Optimized: optimized, DQL: dql.Format(optimized), Statement: stmt}, nil
}

// Count returns the number of rows q produces, computed with the optimized
// query.
func (c *Counter) Count(ctx context.Context, q *dql.QuerySpec) (int64, error) {
	plan, err := c.Assemble(q)
	if err != nil {
		return 0, err
	}
	return c.exec(ctx, plan.Statement)
}

// CountOriginal counts the rows of q without optimizing it.
func (c *Counter) CountOriginal(ctx context.Context, q *dql.QuerySpec) (int64, error) {
	stmt, err := c.generator.Count(q)
	if err != nil {
		return 0, fmt.Errorf("generate sql: %w", err)
	}
	return c.exec(ctx, stmt)
}

// Verify counts q both as written and optimized, concurrently, and
// reports whether the counts agree.
func (c *Counter) Verify(ctx context.Context, q *dql.QuerySpec) (*Verification, error) {
	plan, err := c.Assemble(q)
	if err != nil {
		return nil, err
	}
	original, err := c.generator.Count(q)
	if err != nil {
		return nil, fmt.Errorf("generate original sql: %w", err)
	}

	v := &Verification{
		RunID:        uuid.New().String(),
		OriginalDQL:  dql.Format(q),
		OptimizedDQL: plan.DQL,
	}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.exec(gctx, original)
		if err != nil {
			return fmt.Errorf("original: %w", err)
		}
		v.Original = n
		return nil
	})
	g.Go(func() error {
		n, err := c.exec(gctx, plan.Statement)
		if err != nil {
			return fmt.Errorf("optimized: %w", err)
		}
		v.Optimized = n
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("count verification failed", "run_id", v.RunID, "error", err)
		return nil, fmt.Errorf("verify: %w", err)
	}

	v.Elapsed = time.Since(start)
	v.Match = v.Original == v.Optimized
	if v.Match {
		c.logger.Info("count verified", "run_id", v.RunID, "count", v.Optimized, "elapsed", v.Elapsed)
	} else {
		c.logger.Warn("count mismatch", "run_id", v.RunID,
			"original", v.Original, "optimized", v.Optimized, "query", v.OriginalDQL)
	}
	return v, nil
}

func (c *Counter) exec(ctx context.Context, stmt *sqlgen.Statement) (int64, error) {
	if c.db == nil {
		return 0, fmt.Errorf("no database configured")
	}
	var n int64
	if err := c.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("execute count: %w", err)
	}
	return n, nil
}
