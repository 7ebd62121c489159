package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command annotations read by the commands listing.
const (
	annotationDatabase = "countopt/database"
	annotationInput    = "countopt/input"
)

// Database access of a command.
const (
	dbNone  = "none"
	dbRead  = "read"
	dbWrite = "write"
)

// Input a command consumes.
const (
	inputNone  = "none"
	inputQuery = "query"
	inputSuite = "suite"
)

// annotate records how cmd uses the database and what it reads.
func annotate(cmd *cobra.Command, database, input string) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationDatabase] = database
	cmd.Annotations[annotationInput] = input
	return cmd
}

// CommandInfo describes one runnable command.
type CommandInfo struct {
	Path     string     `json:"path"`
	Short    string     `json:"short"`
	Database string     `json:"database"`
	Input    string     `json:"input"`
	Flags    []FlagInfo `json:"flags,omitempty"`
}

// FlagInfo is a flag local to a command.
type FlagInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default string `json:"default,omitempty"`
	Usage   string `json:"usage,omitempty"`
}

func newCommandsCmd() *cobra.Command {
	var (
		database string
		input    string
	)

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List commands with the database access and input they need",
		Long: `Lists every runnable command with whether it reads or writes the configured
database and whether it takes a query or a suite file. Commands with database
"none" work without running 'countopt demo init'.`,
		Example: `  countopt commands
  countopt commands --database none
  countopt commands --input query -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkChoice("database", database, dbNone, dbRead, dbWrite); err != nil {
				return err
			}
			if err := checkChoice("input", input, inputNone, inputQuery, inputSuite); err != nil {
				return err
			}

			var infos []CommandInfo
			for _, info := range listCommands(cmd.Root()) {
				if database != "" && info.Database != database {
					continue
				}
				if input != "" && info.Input != input {
					continue
				}
				infos = append(infos, info)
			}

			if getOutputFormat(cmd) == "json" {
				if infos == nil {
					infos = []CommandInfo{}
				}
				return printJSON(cmd.OutOrStdout(), infos)
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{info.Path, info.Database, info.Input, info.Short})
			}
			printTable(cmd.OutOrStdout(), []string{"command", "database", "input", "description"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&database, "database", "", "Only commands with this database access (none, read, write)")
	cmd.Flags().StringVar(&input, "input", "", "Only commands taking this input (none, query, suite)")
	return annotate(cmd, dbNone, inputNone)
}

func checkChoice(flag, value string, choices ...string) error {
	if value == "" {
		return nil
	}
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("--%s must be one of %s, got %q", flag, strings.Join(choices, ", "), value)
}

// listCommands returns the runnable commands below root sorted by path.
// Help and shell completion are left out.
func listCommands(root *cobra.Command) []CommandInfo {
	var infos []CommandInfo
	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		for _, child := range cmd.Commands() {
			if child.Hidden || child.Name() == "help" || child.Name() == "completion" {
				continue
			}
			if child.Runnable() {
				infos = append(infos, CommandInfo{
					Path:     strings.TrimPrefix(child.CommandPath(), root.Name()+" "),
					Short:    child.Short,
					Database: annotationOr(child, annotationDatabase, dbNone),
					Input:    annotationOr(child, annotationInput, inputNone),
					Flags:    localFlags(child),
				})
			}
			walk(child)
		}
	}
	walk(root)
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

func annotationOr(cmd *cobra.Command, key, fallback string) string {
	if v, ok := cmd.Annotations[key]; ok {
		return v
	}
	return fallback
}

// localFlags returns the flags a command defines itself; persistent root
// flags are shared by every command and left out.
func localFlags(cmd *cobra.Command) []FlagInfo {
	var flags []FlagInfo
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden || f.Name == "help" {
			return
		}
		flags = append(flags, FlagInfo{
			Name:    f.Name,
			Type:    f.Value.Type(),
			Default: f.DefValue,
			Usage:   f.Usage,
		})
	})
	return flags
}
