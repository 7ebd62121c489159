package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"countopt/internal/db"
	"countopt/internal/metadata"
)

func newDemoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Create and inspect the demo database",
	}
	cmd.AddCommand(newDemoInitCmd(a))
	cmd.AddCommand(newDemoMappingCmd())
	return cmd
}

func newDemoInitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the demo schema and seed data in the configured database",
		Example: `  countopt demo init
  countopt demo init --driver duckdb --dsn /tmp/demo.duckdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			var (
				conn *sql.DB
				err  error
			)
			switch cfg.Driver {
			case db.DriverDuckDB:
				// DuckDB migrations are not versioned; only fresh files are loaded.
				if _, statErr := os.Stat(cfg.DSN); statErr == nil {
					return fmt.Errorf("%s already exists; remove it to recreate the demo database", cfg.DSN)
				}
				conn, err = db.OpenDuckDB(cfg.DSN)
			default:
				conn, err = db.OpenSQLite(cfg.DSN, "write", 0)
			}
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck

			if err := db.RunMigrations(cmdContext(cmd), conn, cfg.Driver); err != nil {
				return err
			}
			a.logger.Info("demo database ready", "driver", cfg.Driver, "dsn", cfg.DSN)

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"driver": cfg.Driver,
					"dsn":    cfg.DSN,
					"status": "ready",
				})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "demo database ready: %s (%s)\n", cfg.DSN, cfg.Driver)
			return err
		},
	}
	return annotate(cmd, dbWrite, inputNone)
}

func newDemoMappingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mapping",
		Short: "Print the entity mapping of the demo schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(metadata.DemoMapping())
			return err
		},
	}
}
