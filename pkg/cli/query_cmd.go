package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"countopt/internal/dql"
)

// queryOptions are the flags shared by commands that take a query.
type queryOptions struct {
	params      paramFlag
	firstResult int
	maxResults  int
}

func (o *queryOptions) register(cmd *cobra.Command) {
	cmd.Flags().Var(&o.params, "param", "Bind a parameter (name=value, repeatable; [a,b] binds a list)")
	cmd.Flags().IntVar(&o.firstResult, "first-result", 0, "Pagination offset of the original query")
	cmd.Flags().IntVar(&o.maxResults, "max-results", 0, "Pagination limit of the original query")
}

func (o *queryOptions) query(cmd *cobra.Command, args []string) (*dql.QuerySpec, error) {
	text, err := readQuery(args, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	return parseQuery(text, o.params, o.firstResult, o.maxResults)
}

const queryExample = `  countopt %s "SELECT u.id, o.name FROM User u LEFT JOIN u.owner o WHERE u.enabled = :on" --param on=true
  echo "SELECT u.id FROM User u" | countopt %s`

func newOptimizeCmd(a *app) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:     "optimize [query|-]",
		Short:   "Print the count-optimized form of a query",
		Example: fmt.Sprintf(queryExample, "optimize", "optimize"),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd, args)
			if err != nil {
				return err
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}
			optimized, err := a.optimizer(reg).Optimize(q)
			if err != nil {
				return err
			}

			text := dql.Format(optimized)
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"original":     dql.Format(q),
					"optimized":    text,
					"pruned_joins": prunedJoins(q, optimized),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	opts.register(cmd)
	return annotate(cmd, dbNone, inputQuery)
}

func newSQLCmd(a *app) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:     "sql [query|-]",
		Short:   "Print the SQL count statement for a query",
		Example: fmt.Sprintf(queryExample, "sql", "sql"),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd, args)
			if err != nil {
				return err
			}
			c, err := a.counter(nil)
			if err != nil {
				return err
			}
			plan, err := c.Assemble(q)
			if err != nil {
				return err
			}

			stmtArgs := namedArgs(plan.Statement.Args)
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"dialect": a.cfg.Driver,
					"sql":     plan.Statement.SQL,
					"args":    stmtArgs,
				})
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, plan.Statement.SQL); err != nil {
				return err
			}
			if len(stmtArgs) == 0 {
				return nil
			}
			rows := make([][]string, len(stmtArgs))
			for i, arg := range stmtArgs {
				rows[i] = []string{arg.Name, fmt.Sprintf("%v", arg.Value)}
			}
			printTable(out, []string{"param", "value"}, rows)
			return nil
		},
	}
	opts.register(cmd)
	return annotate(cmd, dbNone, inputQuery)
}

func newCountCmd(a *app) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:     "count [query|-]",
		Short:   "Count the rows of a query using its optimized form",
		Example: fmt.Sprintf(queryExample, "count", "count"),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd, args)
			if err != nil {
				return err
			}
			conn, err := a.openReadDB()
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			c, err := a.counter(conn)
			if err != nil {
				return err
			}
			n, err := c.Count(cmdContext(cmd), q)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]int64{"count": n})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	opts.register(cmd)
	return annotate(cmd, dbRead, inputQuery)
}

func newVerifyCmd(a *app) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "verify [query|-]",
		Short: "Count a query as written and optimized and compare the results",
		Long: `Runs the original query and its optimized form side by side against the
configured database. Exits non-zero when the counts differ.`,
		Example: fmt.Sprintf(queryExample, "verify", "verify"),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd, args)
			if err != nil {
				return err
			}
			conn, err := a.openReadDB()
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			c, err := a.counter(conn)
			if err != nil {
				return err
			}
			v, err := c.Verify(cmdContext(cmd), q)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				if err := printJSON(cmd.OutOrStdout(), v); err != nil {
					return err
				}
			} else {
				printTable(cmd.OutOrStdout(), []string{"field", "value"}, [][]string{
					{"run_id", v.RunID},
					{"original", strconv.FormatInt(v.Original, 10)},
					{"optimized", strconv.FormatInt(v.Optimized, 10)},
					{"match", strconv.FormatBool(v.Match)},
					{"optimized_dql", v.OptimizedDQL},
				})
			}
			if !v.Match {
				return fmt.Errorf("count mismatch: original %d, optimized %d", v.Original, v.Optimized)
			}
			return nil
		},
	}
	opts.register(cmd)
	return annotate(cmd, dbRead, inputQuery)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// prunedJoins lists the join aliases of original that optimized dropped.
func prunedJoins(original, optimized *dql.QuerySpec) []string {
	out := []string{}
	for _, j := range original.Joins {
		if _, kept := optimized.JoinByAlias(j.Alias); !kept {
			out = append(out, j.Alias)
		}
	}
	return out
}
