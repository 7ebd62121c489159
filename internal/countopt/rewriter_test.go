package countopt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"countopt/internal/dql"
)

type optimizeCase struct {
	name  string
	query string
	want  string
}

// optimizeCases covers the documented count-query shapes. Each case also
// has a golden file under testdata/golden.
var optimizeCases = []optimizeCase{
	{
		name:  "simple",
		query: "SELECT u.id, u.username FROM OroUserBundle:User u",
		want:  "SELECT u.id FROM OroUserBundle:User u",
	},
	{
		name:  "group_by_select_alias",
		query: "SELECT u.id, u.username AS uName FROM OroUserBundle:User u GROUP BY uName",
		want:  "SELECT u.username AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0",
	},
	{
		name:  "group_by_path_with_alias_in_select",
		query: "SELECT u.id, u.username AS uName FROM User u GROUP BY u.username",
		want:  "SELECT u.username AS groupPart0 FROM User u GROUP BY groupPart0",
	},
	{
		name:  "function_having",
		query: "SELECT u.id, SUBSTRING(u.username, 1, 3) AS uName FROM OroUserBundle:User u GROUP BY u.id HAVING SUBSTRING(u.username, 1, 3) LIKE 'A%'",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0 HAVING SUBSTRING(u.username, 1, 3) LIKE 'A%'",
	},
	{
		name:  "function_group",
		query: "SELECT u.id, SUBSTRING(u.username, 1, 3) AS uName FROM OroUserBundle:User u GROUP BY uName",
		want:  "SELECT SUBSTRING(u.username, 1, 3) AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0",
	},
	{
		name:  "complex_group_by",
		query: "SELECT u.id, SUBSTRING(u.username, 1, 3) AS uName FROM OroUserBundle:User u GROUP BY u.id, uName",
		want:  "SELECT u.id AS groupPart0, SUBSTRING(u.username, 1, 3) AS groupPart1 FROM OroUserBundle:User u GROUP BY groupPart0, groupPart1",
	},
	{
		name:  "one_table",
		query: "SELECT u.id, u.username FROM OroUserBundle:User u WHERE u.id = 10 AND LOWER(u.username) LIKE :testParameter GROUP BY u.id HAVING u.username = :testParameter",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u WHERE u.id = 10 AND LOWER(u.username) LIKE :testParameter GROUP BY groupPart0 HAVING u.username = :testParameter",
	},
	{
		name:  "unused_left_join",
		query: "SELECT u.id, u.username, api.apiKey FROM OroUserBundle:User u LEFT JOIN OroUserBundle:UserApi api",
		want:  "SELECT u.id FROM OroUserBundle:User u",
	},
	{
		name:  "unused_left_join_with_select_alias",
		query: "SELECT u.id, u.username AS login, api.apiKey FROM User u LEFT JOIN UserApi api",
		want:  "SELECT u.id FROM User u",
	},
	{
		name:  "unused_left_join_without_conditions",
		query: "SELECT u.id, o.name FROM OroUserBundle:User u LEFT JOIN u.owner o",
		want:  "SELECT u.id FROM OroUserBundle:User u",
	},
	{
		name:  "unused_left_join_with_condition",
		query: "SELECT u.id, o.name FROM OroUserBundle:User u LEFT JOIN u.owner o WITH o.id = 123",
		want:  "SELECT u.id FROM OroUserBundle:User u",
	},
	{
		name:  "unused_left_join_with_condition_in_several_joins",
		query: "SELECT u.id, o.name FROM OroUserBundle:User u LEFT JOIN u.owner o WITH o.id = 123 LEFT JOIN o.businessUnits bu WITH bu.id = 456",
		want:  "SELECT u.id FROM OroUserBundle:User u",
	},
	{
		name:  "used_left_join",
		query: "SELECT u.id, u.username, api.apiKey AS aKey FROM OroUserBundle:User u LEFT JOIN OroUserBundle:UserApi api WHERE aKey = :test",
		want:  "SELECT u.id FROM OroUserBundle:User u LEFT JOIN OroUserBundle:UserApi api WHERE api.apiKey = :test",
	},
	{
		name:  "with_inner_join",
		query: "SELECT u.id, u.username, api.apiKey AS aKey FROM OroUserBundle:User u INNER JOIN u.businessUnits bu LEFT JOIN bu.organization o",
		want:  "SELECT u.id FROM OroUserBundle:User u INNER JOIN u.businessUnits bu",
	},
	{
		name:  "with_inner_join_with_condition",
		query: "SELECT u.id, u.username, api.apiKey AS aKey FROM OroUserBundle:User u INNER JOIN OroOrganizationBundle:BusinessUnit bu WITH u.owner = bu.id LEFT JOIN OroUserBundle:UserApi api",
		want:  "SELECT u.id FROM OroUserBundle:User u INNER JOIN OroOrganizationBundle:BusinessUnit bu WITH u.owner = bu.id",
	},
	{
		name:  "with_inner_join_depends_on_left_join",
		query: "SELECT u.id FROM OroUserBundle:User u INNER JOIN OroOrganizationBundle:BusinessUnit bu WITH owner.id = bu.id LEFT JOIN u.owner owner",
		want:  "SELECT u.id FROM OroUserBundle:User u INNER JOIN OroOrganizationBundle:BusinessUnit bu WITH owner.id = bu.id LEFT JOIN u.owner owner",
	},
	{
		name:  "inner_with_2_left_group",
		query: "SELECT u.id, u.username, api.apiKey AS aKey FROM OroUserBundle:User u INNER JOIN u.owner bu LEFT JOIN u.groups g LEFT JOIN u.roles r LEFT JOIN g.roles gr GROUP BY gr.id HAVING u.username LIKE :test",
		want:  "SELECT gr.id AS groupPart0 FROM OroUserBundle:User u INNER JOIN u.owner bu LEFT JOIN u.groups g LEFT JOIN g.roles gr GROUP BY groupPart0 HAVING u.username LIKE :test",
	},
	{
		name:  "inner_with_2_left_having",
		query: "SELECT u.id, u.username, api.apiKey AS aKey FROM OroUserBundle:User u INNER JOIN u.owner bu LEFT JOIN u.groups g LEFT JOIN u.roles r LEFT JOIN g.roles gr GROUP BY u.id HAVING gr.label LIKE :test",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u INNER JOIN u.owner bu LEFT JOIN u.groups g LEFT JOIN g.roles gr GROUP BY groupPart0 HAVING gr.label LIKE :test",
	},
	{
		name:  "third_join_in_on",
		query: "SELECT u.id, u.username, api.apiKey AS aKey FROM OroUserBundle:User u INNER JOIN u.owner bu LEFT JOIN u.groups g LEFT JOIN u.roles r LEFT JOIN g.roles gr WITH aKey = :test LEFT JOIN u.apiKeys api WHERE gr.id > 10",
		want:  "SELECT u.id FROM OroUserBundle:User u INNER JOIN u.owner bu LEFT JOIN u.groups g LEFT JOIN g.roles gr WITH api.apiKey = :test LEFT JOIN u.apiKeys api WHERE gr.id > 10",
	},
	{
		name:  "having_equal",
		query: "SELECT u.id, u.username AS login, api.apiKey AS aKey FROM OroUserBundle:User u GROUP BY u.id HAVING login = :test",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0 HAVING u.username = :test",
	},
	{
		name:  "having_in",
		query: "SELECT u.id, u.username AS login, api.apiKey AS aKey FROM OroUserBundle:User u GROUP BY u.id HAVING login IN (?0)",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0 HAVING u.username IN (?0)",
	},
	{
		name:  "having_like",
		query: "SELECT u.id, u.username AS login, api.apiKey AS aKey FROM OroUserBundle:User u GROUP BY u.id HAVING login LIKE :test",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0 HAVING u.username LIKE :test",
	},
	{
		name:  "having_is_null",
		query: "SELECT u.id, u.username AS login, api.apiKey AS aKey FROM OroUserBundle:User u GROUP BY u.id HAVING login IS NULL",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0 HAVING u.username IS NULL",
	},
	{
		name:  "having_is_not_null",
		query: "SELECT u.id, u.username AS login, api.apiKey AS aKey FROM OroUserBundle:User u GROUP BY u.id HAVING login IS NOT NULL",
		want:  "SELECT u.id AS groupPart0 FROM OroUserBundle:User u GROUP BY groupPart0 HAVING u.username IS NOT NULL",
	},
	{
		name:  "having_instead_where",
		query: "SELECT u.id, u.username AS login, api.apiKey AS aKey FROM OroUserBundle:User u HAVING login LIKE :test",
		want:  "SELECT u.id FROM OroUserBundle:User u WHERE u.username LIKE :test",
	},
	{
		name:  "having_folded_with_where",
		query: "SELECT u.id, u.username AS login FROM User u WHERE u.enabled = true HAVING login = 'a' OR login = 'b'",
		want:  "SELECT u.id FROM User u WHERE u.enabled = true AND (u.username = 'a' OR u.username = 'b')",
	},
	{
		name:  "join_on_table_that_has_with_join_condition",
		query: "SELECT u.id FROM OroUserBundle:User u LEFT JOIN OroUserBundle:Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN eu.owner euo WHERE euo.name = :name",
		want:  "SELECT u.id FROM OroUserBundle:User u LEFT JOIN OroUserBundle:Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN eu.owner euo WHERE euo.name = :name",
	},
	{
		name:  "join_on_table_that_has_with_join_and_join_on_alias_condition",
		query: "SELECT u.id FROM OroUserBundle:User u LEFT JOIN OroUserBundle:Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN OroUserBundle:Status s WITH s.user = eu WHERE s.status = :statusName",
		want:  "SELECT u.id FROM OroUserBundle:User u LEFT JOIN OroUserBundle:Email e WITH e.user = u LEFT JOIN OroUserBundle:Status s WITH s.user = e.user WHERE s.status = :statusName",
	},
	{
		name:  "join_on_table_that_has_with_join_and_join_on_alias_condition_and_group_by",
		query: "SELECT u.id FROM OroUserBundle:User u LEFT JOIN OroUserBundle:Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN OroUserBundle:Status s WITH s.user = eu WHERE s.status = :statusName GROUP BY eu.username",
		want:  "SELECT eu.username AS groupPart0 FROM OroUserBundle:User u LEFT JOIN OroUserBundle:Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN OroUserBundle:Status s WITH s.user = e.user WHERE s.status = :statusName GROUP BY groupPart0",
	},
	{
		name:  "transitive_dependency_declared_later",
		query: "SELECT u.id FROM User u LEFT JOIN Email e WITH e.owner = o.id LEFT JOIN u.owner o WHERE e.subject = 'x' ORDER BY e.subject",
		want:  "SELECT u.id FROM User u LEFT JOIN Email e WITH e.owner = o.id LEFT JOIN u.owner o WHERE e.subject = 'x'",
	},
	{
		name:  "order_by_dropped",
		query: "SELECT u.id, o.name AS ownerName FROM User u LEFT JOIN u.owner o ORDER BY ownerName DESC, u.id",
		want:  "SELECT u.id FROM User u",
	},
}

func TestOptimize_Scenarios(t *testing.T) {
	opt := New(Options{Associations: testAssociations})

	for _, tc := range optimizeCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := dql.Parse(tc.query)
			require.NoError(t, err)

			out, err := opt.Optimize(q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, dql.Format(out))
			assert.Empty(t, out.OrderBy)
		})
	}
}

func TestOptimize_Golden(t *testing.T) {
	opt := New(Options{Associations: testAssociations})
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tc := range optimizeCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := opt.Optimize(dql.MustParse(tc.query))
			require.NoError(t, err)
			g.Assert(t, tc.name, []byte(dql.Format(out)+"\n"))
		})
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	opt := New(Options{Associations: testAssociations})

	t.Run("minimal_query_unchanged", func(t *testing.T) {
		q := dql.MustParse("SELECT u.id FROM User u")
		out, err := opt.Optimize(q)
		require.NoError(t, err)
		assert.Equal(t, q, out)
	})

	for _, tc := range optimizeCases {
		t.Run(tc.name, func(t *testing.T) {
			once, err := opt.Optimize(dql.MustParse(tc.query))
			require.NoError(t, err)
			twice, err := opt.Optimize(once)
			require.NoError(t, err)
			assert.Equal(t, dql.Format(once), dql.Format(twice))
		})
	}
}

func TestOptimize_DoesNotMutateInput(t *testing.T) {
	opt := New(Options{Associations: testAssociations})
	query := "SELECT u.id, u.username AS login FROM User u LEFT JOIN u.owner o LEFT JOIN Status s WITH s.user = o WHERE login = :x GROUP BY login HAVING COUNT(s.id) > 1 ORDER BY login"
	q := dql.MustParse(query)
	before := dql.Format(q)

	out, err := opt.Optimize(q)
	require.NoError(t, err)
	assert.Equal(t, before, dql.Format(q))

	// Mutating every node of the output leaves the input intact.
	out.From.Alias = "x"
	for _, j := range out.Joins {
		j.Alias = "x"
		for _, p := range dql.Paths(j.Condition) {
			p.Alias = "x"
		}
	}
	for _, p := range dql.Paths(out.Where) {
		p.Alias = "x"
	}
	for _, p := range dql.Paths(out.Having) {
		p.Members = append(p.Members[:0], "x")
	}
	for _, item := range out.Select {
		for _, p := range dql.Paths(item.Expr) {
			p.Alias = "x"
		}
	}
	assert.Equal(t, before, dql.Format(q))
}

func TestOptimize_ParamsAndPagination(t *testing.T) {
	q := dql.MustParse("SELECT u.id FROM User u WHERE u.name = :name ORDER BY u.id")
	q.Params["name"] = "alice"
	q.Params["unused"] = 42
	q.FirstResult = 20
	q.MaxResults = 10

	out, err := New(Options{Associations: testAssociations}).Optimize(q)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "alice", "unused": 42}, out.Params)
	assert.Zero(t, out.FirstResult)
	assert.Zero(t, out.MaxResults)
	assert.Nil(t, out.OrderBy)

	out.Params["name"] = "bob"
	assert.Equal(t, "alice", q.Params["name"])
}

func TestOptimize_SequentialGroupAliases(t *testing.T) {
	for n := 1; n <= 4; n++ {
		t.Run(fmt.Sprintf("%d_expressions", n), func(t *testing.T) {
			q := dql.MustParse("SELECT u.id FROM User u")
			for i := 0; i < n; i++ {
				q.GroupBy = append(q.GroupBy, dql.NewPath("u", fmt.Sprintf("f%d", i)))
			}

			out, err := New(Options{Associations: testAssociations}).Optimize(q)
			require.NoError(t, err)
			require.Len(t, out.Select, n)
			require.Len(t, out.GroupBy, n)
			for i := 0; i < n; i++ {
				alias := fmt.Sprintf("groupPart%d", i)
				assert.Equal(t, alias, out.Select[i].Alias)
				assert.Equal(t, fmt.Sprintf("u.f%d", i), dql.FormatExpr(out.Select[i].Expr))
				assert.Equal(t, alias, dql.FormatExpr(out.GroupBy[i]))
			}
		})
	}
}

// fakeAssociations maps "Entity.member" to its target. Bundle prefixes
// are ignored.
type fakeAssociations map[string]struct {
	target string
	toOne  bool
}

func (f fakeAssociations) AssociationTarget(entity, member string) (string, bool, error) {
	if i := strings.LastIndexByte(entity, ':'); i >= 0 {
		entity = entity[i+1:]
	}
	a, ok := f[entity+"."+member]
	if !ok {
		return "", false, fmt.Errorf("entity %s has no association %s", entity, member)
	}
	return a.target, a.toOne, nil
}

var testAssociations = fakeAssociations{
	"Email.user":                {target: "User", toOne: true},
	"User.owner":                {target: "BusinessUnit", toOne: true},
	"User.apiKeys":              {target: "UserApi", toOne: false},
	"BusinessUnit.organization": {target: "Organization", toOne: true},
}

func TestOptimize_AssociationInliningCardinality(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		query string
		want  string
	}{
		{
			name:  "to-many path is not inlined",
			opts:  Options{Associations: testAssociations},
			query: "SELECT u.id FROM User u LEFT JOIN u.apiKeys k LEFT JOIN UserApi a WITH a = k WHERE a.apiKey IS NOT NULL",
			want:  "SELECT u.id FROM User u LEFT JOIN u.apiKeys k LEFT JOIN UserApi a WITH a = k WHERE a.apiKey IS NOT NULL",
		},
		{
			name:  "to-one path through an association join is inlined",
			opts:  Options{Associations: testAssociations},
			query: "SELECT u.id FROM User u LEFT JOIN u.owner o LEFT JOIN o.organization oo LEFT JOIN Organization x WITH x = oo WHERE x.name = 'a'",
			want:  "SELECT u.id FROM User u LEFT JOIN u.owner o LEFT JOIN Organization x WITH x = o.organization WHERE x.name = 'a'",
		},
		{
			name:  "unknown association is not inlined",
			opts:  Options{Associations: testAssociations},
			query: "SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = u LEFT JOIN e.sender es LEFT JOIN Status s WITH s.user = es WHERE s.status = 'x'",
			want:  "SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = u LEFT JOIN e.sender es LEFT JOIN Status s WITH s.user = es WHERE s.status = 'x'",
		},
		{
			name:  "no resolver disables inlining",
			opts:  Options{},
			query: "SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN Status s WITH s.user = eu WHERE s.status = 'x'",
			want:  "SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN Status s WITH s.user = eu WHERE s.status = 'x'",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := New(tc.opts).Optimize(dql.MustParse(tc.query))
			require.NoError(t, err)
			assert.Equal(t, tc.want, dql.Format(out))
		})
	}
}

func TestOptimize_NilParamsStayNil(t *testing.T) {
	q := &dql.QuerySpec{
		From:   &dql.FromClause{Entity: "User", Alias: "u"},
		Select: []*dql.SelectItem{{Expr: dql.NewPath("u", "id")}},
	}

	out, err := New(Options{}).Optimize(q)
	require.NoError(t, err)
	assert.Nil(t, out.Params)
	assert.Equal(t, q, out)
}

type fakeIdentifiers map[string]string

func (f fakeIdentifiers) IdentifierField(entity string) (string, error) {
	if id, ok := f[entity]; ok {
		return id, nil
	}
	return "", fmt.Errorf("entity %s is not mapped", entity)
}

func TestOptimize_IdentifierResolver(t *testing.T) {
	opt := New(Options{Identifiers: fakeIdentifiers{"User": "userId"}})

	out, err := opt.Optimize(dql.MustParse("SELECT u.name FROM User u"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.userId FROM User u", dql.Format(out))

	// Grouping mode never asks for the identifier.
	out, err = opt.Optimize(dql.MustParse("SELECT t.id FROM Team t GROUP BY t.name"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT t.name AS groupPart0 FROM Team t GROUP BY groupPart0", dql.Format(out))

	_, err = opt.Optimize(dql.MustParse("SELECT t.id FROM Team t"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not mapped")
}

func TestOptimize_AssociationInliningDisabled(t *testing.T) {
	opt := New(Options{DisableAssociationInlining: true})
	q := dql.MustParse("SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN Status s WITH s.user = eu WHERE s.status = :statusName")

	out, err := opt.Optimize(q)
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = u LEFT JOIN e.user eu LEFT JOIN Status s WITH s.user = eu WHERE s.status = :statusName", dql.Format(out))
}

func TestOptimize_UnresolvableAlias(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantAlias  string
		wantClause string
	}{
		{"where_member", "SELECT u.id FROM User u WHERE x.id = 1", "x", "WHERE"},
		{"where_bare", "SELECT u.id FROM User u WHERE foo = 1", "foo", "WHERE"},
		{"where_through_select_alias", "SELECT api.apiKey AS aKey FROM User u WHERE aKey = 1", "api", "WHERE"},
		{"having", "SELECT u.id FROM User u GROUP BY u.id HAVING COUNT(g.id) > 1", "g", "HAVING"},
		{"group_by", "SELECT u.id FROM User u GROUP BY r.id", "r", "GROUP BY"},
		{"join_condition", "SELECT u.id FROM User u LEFT JOIN Email e WITH e.user = x", "x", "JOIN e"},
		{"join_path_root", "SELECT u.id FROM User u LEFT JOIN x.groups g", "x", "JOIN g"},
	}

	opt := New(Options{Associations: testAssociations})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := opt.Optimize(dql.MustParse(tc.query))
			require.Error(t, err)

			var aliasErr *UnresolvableAliasError
			require.True(t, errors.As(err, &aliasErr), "expected UnresolvableAliasError, got %T: %v", err, err)
			assert.Equal(t, tc.wantAlias, aliasErr.Alias)
			assert.Equal(t, tc.wantClause, aliasErr.Clause)
		})
	}
}

func TestOptimize_UndeclaredAliasInDiscardedSelect(t *testing.T) {
	out, err := New(Options{Associations: testAssociations}).Optimize(dql.MustParse("SELECT u.id, api.apiKey AS aKey FROM User u"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.id FROM User u", dql.Format(out))
}

func TestOptimize_CyclicSelectAliases(t *testing.T) {
	_, err := New(Options{Associations: testAssociations}).Optimize(dql.MustParse("SELECT u.id + b AS a, u.id + a AS b FROM User u WHERE a = 1"))
	require.Error(t, err)

	var divErr *AliasResolutionError
	require.True(t, errors.As(err, &divErr), "expected AliasResolutionError, got %T", err)
	assert.Contains(t, []string{"a", "b"}, divErr.Alias)
	assert.Contains(t, err.Error(), "resolve WHERE")
}

func TestOptimize_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		query   *dql.QuerySpec
		wantMsg string
	}{
		{"nil_query", nil, "nil query"},
		{"no_root", &dql.QuerySpec{}, "no root alias"},
		{"duplicate_join_alias", dql.MustParse("SELECT u.id FROM User u LEFT JOIN u.groups u"), "declared more than once"},
		{"duplicate_select_alias", dql.MustParse("SELECT u.id AS a, u.name AS a FROM User u"), "declared more than once"},
		{"select_alias_shadows_entity", dql.MustParse("SELECT u.name AS g FROM User u LEFT JOIN u.groups g"), "shadows"},
		{"self_association", dql.MustParse("SELECT u.id FROM User u LEFT JOIN g.groups g"), "itself"},
		{"aggregate_having_without_group_by", dql.MustParse("SELECT u.id FROM User u HAVING COUNT(u.id) > 1"), "aggregate"},
		{
			name: "nil_select_expression",
			query: &dql.QuerySpec{
				From:   &dql.FromClause{Entity: "User", Alias: "u"},
				Select: []*dql.SelectItem{{}},
			},
			wantMsg: "select item 0",
		},
		{
			name: "join_without_target",
			query: &dql.QuerySpec{
				From:  &dql.FromClause{Entity: "User", Alias: "u"},
				Joins: []*dql.Join{{Alias: "g"}},
			},
			wantMsg: "no target",
		},
	}

	opt := New(Options{Associations: testAssociations})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := opt.Optimize(tc.query)
			require.Error(t, err)

			var malformed *MalformedQueryError
			require.True(t, errors.As(err, &malformed), "expected MalformedQueryError, got %T: %v", err, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestOptimize_Concurrent(t *testing.T) {
	opt := New(Options{Associations: testAssociations})

	var wg sync.WaitGroup
	results := make([]string, len(optimizeCases))
	errs := make([]error, len(optimizeCases))
	for i, tc := range optimizeCases {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			out, err := opt.Optimize(dql.MustParse(query))
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = dql.Format(out)
		}(i, tc.query)
	}
	wg.Wait()

	for i, tc := range optimizeCases {
		require.NoError(t, errs[i], tc.name)
		assert.Equal(t, tc.want, results[i], tc.name)
	}
}
