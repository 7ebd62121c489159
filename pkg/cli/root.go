// Package cli implements the countopt command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"countopt/internal/config"
	"countopt/internal/countopt"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			var unresolvable *countopt.UnresolvableAliasError
			if errors.As(err, &unresolvable) {
				errObj["alias"] = unresolvable.Alias
				errObj["clause"] = unresolvable.Clause
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		output    string
		driver    string
		dsn       string
		metadata  string
		logLevel  string
		noInline  bool
		dotenv    string
		appConfig = &app{}
	)

	rootCmd := &cobra.Command{
		Use:   "countopt",
		Short: "Entity query count optimizer",
		Long: `Rewrites entity select queries into the smallest query that returns the
same number of rows, renders it to SQL and runs it against SQLite or DuckDB.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			if err := config.LoadDotEnv(dotenv); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			// Apply precedence: flag > env > default
			flags := cmd.Flags()
			if flags.Changed("driver") {
				cfg.Driver = driver
				if !flags.Changed("dsn") && os.Getenv("COUNTOPT_DSN") == "" {
					cfg.DSN = config.DefaultDSN(driver)
				}
			}
			if flags.Changed("dsn") {
				cfg.DSN = dsn
			}
			if flags.Changed("metadata") {
				cfg.MetadataPath = metadata
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("no-inline") {
				cfg.AssociationInlining = !noInline
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			appConfig.cfg = cfg
			appConfig.logger = newLogger(cmd.ErrOrStderr(), cfg)
			for _, w := range cfg.Warnings {
				appConfig.logger.Debug(w)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	pf.StringVar(&driver, "driver", config.DefaultDriver, "Database driver (sqlite, duckdb)")
	pf.StringVar(&dsn, "dsn", "", "Database file (default depends on --driver)")
	pf.StringVar(&metadata, "metadata", "", "Entity mapping YAML (default: bundled demo mapping)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	pf.BoolVar(&noInline, "no-inline", false, "Keep join conditions that reference association join aliases as written")
	pf.StringVar(&dotenv, "env-file", ".env", "Environment file loaded before reading configuration")

	rootCmd.AddCommand(newOptimizeCmd(appConfig))
	rootCmd.AddCommand(newSQLCmd(appConfig))
	rootCmd.AddCommand(newCountCmd(appConfig))
	rootCmd.AddCommand(newVerifyCmd(appConfig))
	rootCmd.AddCommand(newVerifySuiteCmd(appConfig))
	rootCmd.AddCommand(newDemoCmd(appConfig))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// newLogger builds the slog handler selected by LOG_FORMAT. Logs go to
// stderr so command output stays parseable.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
