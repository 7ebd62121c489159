package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countopt/internal/countopt"
)

// runCLI executes a fresh root command with an isolated environment and
// returns what it wrote to stdout. stdin feeds commands reading "-".
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{
		"COUNTOPT_DRIVER", "COUNTOPT_DSN", "COUNTOPT_METADATA",
		"COUNTOPT_ASSOCIATION_INLINING", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), ".env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// initDemo creates a demo database and returns the flags selecting it.
func initDemo(t *testing.T, driver string) []string {
	t.Helper()
	ext := ".sqlite"
	if driver == "duckdb" {
		ext = ".duckdb"
	}
	flags := []string{"--driver", driver, "--dsn", filepath.Join(t.TempDir(), "demo"+ext)}
	out, err := runCLI(t, "", append(flags, "demo", "init")...)
	require.NoError(t, err)
	require.Contains(t, out, "demo database ready")
	return flags
}

const ownerQuery = "SELECT u.id, o.name FROM User u LEFT JOIN u.owner o ORDER BY o.name"

const inliningQuery = "SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = u " +
	"LEFT JOIN e.user eu LEFT JOIN Status s WITH s.user = eu WHERE s.status = :st"

func TestCLI_Optimize(t *testing.T) {
	out, err := runCLI(t, "", "optimize", ownerQuery)
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.id FROM User u\n", out)
}

func TestCLI_OptimizeJSON(t *testing.T) {
	out, err := runCLI(t, "", "--output", "json", "optimize", ownerQuery)
	require.NoError(t, err)

	var got struct {
		Original    string   `json:"original"`
		Optimized   string   `json:"optimized"`
		PrunedJoins []string `json:"pruned_joins"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "SELECT u.id FROM User u", got.Optimized)
	assert.Equal(t, []string{"o"}, got.PrunedJoins)
	assert.Contains(t, got.Original, "LEFT JOIN u.owner o")
}

func TestCLI_OptimizeFromStdin(t *testing.T) {
	out, err := runCLI(t, ownerQuery, "optimize", "-")
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.id FROM User u\n", out)
}

func TestCLI_AssociationInliningFlag(t *testing.T) {
	out, err := runCLI(t, "", "optimize", inliningQuery)
	require.NoError(t, err)
	assert.NotContains(t, out, " eu")
	assert.Contains(t, out, "s.user = e.user")

	out, err = runCLI(t, "", "--no-inline", "optimize", inliningQuery)
	require.NoError(t, err)
	assert.Contains(t, out, "LEFT JOIN e.user eu")
}

func TestCLI_SQL(t *testing.T) {
	out, err := runCLI(t, "", "sql", "SELECT u.id FROM User u WHERE u.username = :n", "--param", "n=alice")
	require.NoError(t, err)
	assert.Contains(t, out, `SELECT COUNT(*) FROM (SELECT "u"."id" FROM "users" AS "u" WHERE "u"."username" = :n) AS count_query`)
	assert.Contains(t, out, "alice")
}

func TestCLI_SQLDuckDBJSON(t *testing.T) {
	out, err := runCLI(t, "", "--driver", "duckdb", "-o", "json",
		"sql", "SELECT u.id FROM User u WHERE u.id IN (:ids)", "--param", "ids=[1,2]")
	require.NoError(t, err)

	var got struct {
		Dialect string     `json:"dialect"`
		SQL     string     `json:"sql"`
		Args    []namedArg `json:"args"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "duckdb", got.Dialect)
	assert.Contains(t, got.SQL, `"u"."id" IN ($ids_0, $ids_1)`)
	require.Len(t, got.Args, 2)
	assert.Equal(t, "ids_0", got.Args[0].Name)
}

func TestCLI_CountAndVerify_SQLite(t *testing.T) {
	flags := initDemo(t, "sqlite")

	out, err := runCLI(t, "", append(flags, "count",
		"SELECT u.id FROM User u LEFT JOIN u.owner o WHERE o.id IN (:units)", "--param", "units=[1,3]")...)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = runCLI(t, "", append(flags, "-o", "json", "verify", inliningQuery, "--param", "st=active")...)
	require.NoError(t, err)
	var v struct {
		Original  int64 `json:"original"`
		Optimized int64 `json:"optimized"`
		Match     bool  `json:"match"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.Match)
	assert.Equal(t, v.Original, v.Optimized)

	out, err = runCLI(t, "", append(flags, "verify", ownerQuery)...)
	require.NoError(t, err)
	assert.Contains(t, out, "match")
	assert.Contains(t, out, "true")
}

func TestCLI_DemoInitTwice_SQLite(t *testing.T) {
	flags := initDemo(t, "sqlite")
	_, err := runCLI(t, "", append(flags, "demo", "init")...)
	require.NoError(t, err, "goose migrations are idempotent")
}

func TestCLI_CountAndVerify_DuckDB(t *testing.T) {
	flags := initDemo(t, "duckdb")

	out, err := runCLI(t, "", append(flags, "count", ownerQuery)...)
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	_, err = runCLI(t, "", append(flags, "demo", "init")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCLI_CountWithoutDatabase(t *testing.T) {
	_, err := runCLI(t, "", "--dsn", filepath.Join(t.TempDir(), "missing.sqlite"), "count", ownerQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "countopt demo init")
}

func TestCLI_UnresolvableAlias(t *testing.T) {
	_, err := runCLI(t, "", "optimize", "SELECT u.id FROM User u WHERE x.id = 1")
	require.Error(t, err)

	var unresolvable *countopt.UnresolvableAliasError
	require.True(t, errors.As(err, &unresolvable))
	assert.Equal(t, "x", unresolvable.Alias)
}

func TestCLI_ParseError(t *testing.T) {
	_, err := runCLI(t, "", "optimize", "SELECT FROM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

func TestCLI_MissingMappingFile(t *testing.T) {
	out, err := runCLI(t, "", "--metadata", filepath.Join(t.TempDir(), "missing.yaml"), "optimize", ownerQuery)
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestCLI_InvalidOutputFormat(t *testing.T) {
	_, err := runCLI(t, "", "--output", "yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestCLI_InvalidDriver(t *testing.T) {
	_, err := runCLI(t, "", "--driver", "postgres", "optimize", ownerQuery)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be sqlite or duckdb")
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "countopt version dev (commit: none)\n", out)

	out, err = runCLI(t, "", "-o", "json", "version")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"dev","commit":"none"}`, out)
}

func TestCLI_DemoMapping(t *testing.T) {
	out, err := runCLI(t, "", "demo", "mapping")
	require.NoError(t, err)
	assert.Contains(t, out, "kind: EntityMapping")
	assert.Contains(t, out, "name: User")
}

func TestCLI_OptimizeFromPipedStdinWithoutArgs(t *testing.T) {
	out, err := runCLI(t, ownerQuery+"\n", "optimize")
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.id FROM User u\n", out)
}

func TestCLI_VerifySuite(t *testing.T) {
	flags := initDemo(t, "sqlite")
	suite := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(suite, []byte(`apiVersion: countopt/v1
kind: QuerySuite
queries:
  - name: owners
    dql: SELECT u.id, o.name FROM User u LEFT JOIN u.owner o
  - name: enabled
    dql: SELECT u.id FROM User u WHERE u.enabled = :on
    params:
      on: true
`), 0o600))

	out, err := runCLI(t, "", append(flags, "-o", "json", "verify-suite", suite, "--rate", "100")...)
	require.NoError(t, err)

	var report struct {
		Passed  int `json:"passed"`
		Failed  int `json:"failed"`
		Results []struct {
			Name string `json:"name"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Passed)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "enabled", report.Results[1].Name)
}

func TestCLI_VerifySuiteReportsFailures(t *testing.T) {
	flags := initDemo(t, "sqlite")
	suite := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(suite, []byte(`apiVersion: countopt/v1
kind: QuerySuite
queries:
  - name: broken
    dql: SELECT u.id FROM User u WHERE x.id = 1
`), 0o600))

	out, err := runCLI(t, "", append(flags, "verify-suite", suite)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 failed of 1")
	assert.Contains(t, out, "broken")
	assert.Contains(t, out, "error: ")
}

func TestCLI_OptimizeDoesNotNeedSQLMapping(t *testing.T) {
	const query = "SELECT u.id FROM User u INNER JOIN Ghost g WITH g.user = u"

	out, err := runCLI(t, "", "optimize", query)
	require.NoError(t, err)
	assert.Equal(t, query+"\n", out)

	_, err = runCLI(t, "", "sql", query)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not mapped")
}

func TestCLI_OptimizeKeepsToManyAliasInJoinCondition(t *testing.T) {
	const query = "SELECT u.id FROM User u LEFT JOIN u.apiKeys k LEFT JOIN UserApi a WITH a = k WHERE a.apiKey IS NOT NULL"

	out, err := runCLI(t, "", "optimize", query)
	require.NoError(t, err)
	assert.Equal(t, query+"\n", out)

	_, err = runCLI(t, "", "sql", query)
	require.NoError(t, err)
}
