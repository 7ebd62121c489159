package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"countopt/internal/counter"
)

func newVerifySuiteCmd(a *app) *cobra.Command {
	var batch counter.BatchConfig
	cmd := &cobra.Command{
		Use:   "verify-suite <file>",
		Short: "Verify every query of a QuerySuite YAML file",
		Long: `Loads a QuerySuite document and verifies each query against the configured
database. Exits non-zero when any query fails or its counts differ.`,
		Example: `  countopt verify-suite queries.yaml
  countopt verify-suite queries.yaml --concurrency 8 --rate 50 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := counter.LoadSuite(args[0])
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
			report, err := c.VerifySuite(cmdContext(cmd), doc, batch)
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(report.Results))
				for _, r := range report.Results {
					if r.Error != "" {
						rows = append(rows, []string{r.Name, "", "", "error: " + r.Error})
						continue
					}
					v := r.Verification
					status := "ok"
					if !v.Match {
						status = "mismatch"
					}
					rows = append(rows, []string{r.Name,
						strconv.FormatInt(v.Original, 10), strconv.FormatInt(v.Optimized, 10), status})
				}
				printTable(cmd.OutOrStdout(), []string{"query", "original", "optimized", "status"}, rows)
			}
			if !report.OK() {
				return fmt.Errorf("suite failed: %d mismatched, %d failed of %d",
					report.Mismatched, report.Failed, len(report.Results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batch.Concurrency, "concurrency", 4, "Queries verified at once")
	cmd.Flags().Float64Var(&batch.QueriesPerSecond, "rate", 0, "Maximum queries started per second (0 = unlimited)")
	return annotate(cmd, dbRead, inputSuite)
}
