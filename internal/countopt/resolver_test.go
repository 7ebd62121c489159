package countopt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countopt/internal/dql"
)

func selectItems(t *testing.T, query string) []*dql.SelectItem {
	t.Helper()
	q, err := dql.Parse(query)
	require.NoError(t, err)
	return q.Select
}

func TestResolveAliasRefs(t *testing.T) {
	items := selectItems(t, `SELECT u.id, u.username AS login, SUBSTRING(u.username, 1, 3) AS prefix,
		LOWER(login) AS lowered, api.apiKey AS aKey FROM User u`)

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"plain", "login = :test", "u.username = :test"},
		{"function_argument", "UPPER(login) LIKE 'A%'", "UPPER(u.username) LIKE 'A%'"},
		{"computed", "prefix = 'abc'", "SUBSTRING(u.username, 1, 3) = 'abc'"},
		{"chained", "lowered = 'x'", "LOWER(u.username) = 'x'"},
		{"in_list", "u.id IN (login, aKey)", "u.id IN (u.username, api.apiKey)"},
		{"is_null", "login IS NOT NULL", "u.username IS NOT NULL"},
		{"nested_boolean", "NOT (login = 'a' OR prefix = 'b')", "NOT (u.username = 'a' OR SUBSTRING(u.username, 1, 3) = 'b')"},
		{"member_path_untouched", "login.x = 1", "login.x = 1"},
		{"unknown_untouched", "other = 1", "other = 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveAliasRefs(dql.MustParseExpr(tc.expr), items)
			require.NoError(t, err)
			assert.Equal(t, tc.want, dql.FormatExpr(got))
		})
	}
}

func TestResolveAliasRefs_NilAndNoAliases(t *testing.T) {
	got, err := ResolveAliasRefs(nil, selectItems(t, "SELECT u.id AS i FROM User u"))
	require.NoError(t, err)
	assert.Nil(t, got)

	expr := dql.MustParseExpr("u.id = 1")
	got, err = ResolveAliasRefs(expr, selectItems(t, "SELECT u.id FROM User u"))
	require.NoError(t, err)
	assert.Equal(t, expr, got)
	assert.NotSame(t, expr, got, "result must be a copy")
}

func TestResolveAliasRefs_DoesNotShareSelectExpressions(t *testing.T) {
	items := selectItems(t, "SELECT u.username AS login FROM User u")

	got, err := ResolveAliasRefs(dql.MustParseExpr("login = 1"), items)
	require.NoError(t, err)

	got.(*dql.BinaryExpr).Left.(*dql.PathExpr).Alias = "changed"
	assert.Equal(t, "u.username", dql.FormatExpr(items[0].Expr))
}

func TestResolveAliasRefs_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		query string
		expr  string
	}{
		{"self_reference", "SELECT u.id + a AS a FROM User u", "a > 1"},
		{"two_cycle", "SELECT u.id + b AS a, u.id + a AS b FROM User u", "a = 1"},
		{"three_cycle", "SELECT b AS a, c AS b, a AS c FROM User u", "c = 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			items := selectItems(t, tc.query)
			_, err := ResolveAliasRefs(dql.MustParseExpr(tc.expr), items)
			require.Error(t, err)

			var divErr *AliasResolutionError
			require.True(t, errors.As(err, &divErr), "expected AliasResolutionError, got %T", err)
			assert.NotEmpty(t, divErr.Alias)
			assert.Contains(t, err.Error(), "cyclic")
		})
	}
}

func TestInlineAssociationAliases(t *testing.T) {
	q := dql.MustParse(`SELECT u.id FROM User u
		LEFT JOIN Email e WITH e.user = u
		LEFT JOIN e.user eu
		INNER JOIN e.owner eo
		LEFT JOIN e.sender es WITH es.active = true
		LEFT JOIN u.apiKeys k
		LEFT JOIN Status s WITH s.user = eu AND s.owner = eo AND s.sender = es AND s.email = e AND s.key = k`)

	cond, ok := q.JoinByAlias("s")
	require.True(t, ok)

	opt := New(Options{Associations: testAssociations})
	paths := opt.inlinableJoins(q, q.Joins)
	require.Len(t, paths, 1)

	got := inlineAssociationAliases(cond.Condition, paths)
	// Only the unconditioned left join over a to-one association is inlined.
	assert.Equal(t, "s.user = e.user AND s.owner = eo AND s.sender = es AND s.email = e AND s.key = k", dql.FormatExpr(got))
}
