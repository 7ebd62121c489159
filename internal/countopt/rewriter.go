// Package countopt rewrites entity select queries into the minimal query
// needed to count their rows.
//
// The rewrite drops the select list, ordering and pagination, resolves
// select aliases used by the remaining clauses, keeps only the joins the
// result still depends on, and projects either the root identifier or the
// grouping expressions. The package performs no I/O.
package countopt

import (
	"fmt"
	"log/slog"

	"countopt/internal/dql"
)

// GroupAliasPrefix prefixes the synthetic aliases of grouping projections.
const GroupAliasPrefix = "groupPart"

// DefaultIdentifierField is the root identifier member used when no
// IdentifierResolver is configured.
const DefaultIdentifierField = "id"

// IdentifierResolver looks up the identifier member of an entity.
type IdentifierResolver interface {
	IdentifierField(entity string) (string, error)
}

// AssociationResolver describes the associations of entities.
type AssociationResolver interface {
	// AssociationTarget returns the entity member points to and whether the
	// association is single-valued (many-to-one).
	AssociationTarget(entity, member string) (target string, toOne bool, err error)
}

// Options configures an Optimizer. The zero value is usable.
type Options struct {
	Logger *slog.Logger

	// Identifiers supplies the root identifier member per entity. When nil,
	// every entity is identified by DefaultIdentifierField.
	Identifiers IdentifierResolver

	// Associations supplies association cardinality. Association aliases
	// are only inlined into join conditions when their path is known to be
	// single-valued, so a nil resolver disables inlining.
	Associations AssociationResolver

	// DisableAssociationInlining keeps join conditions that reference an
	// association join alias as written, which also keeps that join.
	DisableAssociationInlining bool
}

// Optimizer produces count queries. It holds no per-call state and is safe
// for concurrent use.
type Optimizer struct {
	logger             *slog.Logger
	identifiers        IdentifierResolver
	associations       AssociationResolver
	inlineAssociations bool
}

// New creates an Optimizer.
func New(opts Options) *Optimizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		logger:             logger,
		identifiers:        opts.Identifiers,
		associations:       opts.Associations,
		inlineAssociations: !opts.DisableAssociationInlining && opts.Associations != nil,
	}
}

// Optimize returns a new query that yields exactly one row per row of q,
// so that counting its rows counts the rows of q. The input is not modified
// and the result shares no nodes with it.
//
// The flow:
//  1. Validate structure and resolve select aliases in every kept clause
//  2. Without GROUP BY, project the root identifier and fold HAVING into WHERE;
//     with GROUP BY, project each grouping expression as groupPartN
//  3. Seed the needed aliases from the new clauses, the root and inner joins
//  4. Keep the joins in the closure of the seeds, in declaration order
//  5. Assemble the result without ORDER BY and pagination
//
// A HAVING that uses an aggregate cannot be folded into WHERE, so without
// GROUP BY such a query is rejected with a MalformedQueryError.
func (o *Optimizer) Optimize(q *dql.QuerySpec) (*dql.QuerySpec, error) {
	if err := validateShape(q); err != nil {
		return nil, err
	}
	scope := NewScope(q)

	// 1. Resolve select aliases
	where, err := o.resolveClause(q.Where, "WHERE", q, scope)
	if err != nil {
		return nil, err
	}
	having, err := o.resolveClause(q.Having, "HAVING", q, scope)
	if err != nil {
		return nil, err
	}
	groupBy := make([]dql.Expr, len(q.GroupBy))
	for i, g := range q.GroupBy {
		if groupBy[i], err = o.resolveClause(g, "GROUP BY", q, scope); err != nil {
			return nil, err
		}
	}
	joins, err := o.resolveJoins(q, scope)
	if err != nil {
		return nil, err
	}

	out := &dql.QuerySpec{
		From:   &dql.FromClause{Entity: q.From.Entity, Alias: q.From.Alias},
		Params: copyParams(q.Params),
	}

	// 2. Grouping mode
	if len(groupBy) == 0 {
		if having != nil && dql.ContainsAggregate(having) {
			return nil, errMalformed("HAVING %q uses an aggregate but the query has no GROUP BY", dql.FormatExpr(having))
		}
		idField, err := o.identifierField(q.From.Entity)
		if err != nil {
			return nil, err
		}
		out.Select = []*dql.SelectItem{{Expr: dql.NewPath(q.From.Alias, idField)}}
		out.Where = andExpr(where, having)
	} else {
		for i, g := range groupBy {
			alias := fmt.Sprintf("%s%d", GroupAliasPrefix, i)
			out.Select = append(out.Select, &dql.SelectItem{Expr: g, Alias: alias})
			out.GroupBy = append(out.GroupBy, dql.NewPath(alias))
		}
		out.Where = where
		out.Having = having
	}

	// 3. Seeds
	seeds := NewAliasSet(q.From.Alias)
	for _, j := range joins {
		if j.Kind == dql.JoinInner {
			seeds.Add(j.Alias)
		}
	}
	seeds.AddAll(ReferencedAliases(out.Where, scope))
	seeds.AddAll(ReferencedAliases(out.Having, scope))
	for _, item := range out.Select {
		seeds.AddAll(ReferencedAliases(item.Expr, scope))
	}

	// 4. Prune
	needed := NewAliasSet(NeededJoins(joins, seeds, scope)...)
	var pruned []string
	for _, j := range joins {
		if needed.Has(j.Alias) {
			out.Joins = append(out.Joins, j)
		} else {
			pruned = append(pruned, j.Alias)
		}
	}

	o.logger.Debug("count query optimized",
		"root", q.From.Alias,
		"joins_kept", needed.Len(),
		"joins_pruned", pruned,
		"grouped", len(groupBy) > 0)

	return out, nil
}

// resolveClause resolves select aliases in expr and checks that every
// remaining reference names a declared entity alias.
func (o *Optimizer) resolveClause(expr dql.Expr, clause string, q *dql.QuerySpec, scope *Scope) (dql.Expr, error) {
	resolved, err := ResolveAliasRefs(expr, q.Select)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", clause, err)
	}
	if err := checkReferences(resolved, clause, scope); err != nil {
		return nil, err
	}
	return resolved, nil
}

// resolveJoins copies the joins of q with resolved conditions.
func (o *Optimizer) resolveJoins(q *dql.QuerySpec, scope *Scope) ([]*dql.Join, error) {
	joins := make([]*dql.Join, len(q.Joins))
	for i, j := range q.Joins {
		clause := "JOIN " + j.Alias
		cp := j.Clone()
		if cp.Target.Path != nil && !scope.IsEntity(cp.Target.Path.Alias) {
			return nil, &UnresolvableAliasError{Alias: cp.Target.Path.Alias, Clause: clause}
		}
		cond, err := o.resolveClause(j.Condition, clause, q, scope)
		if err != nil {
			return nil, err
		}
		cp.Condition = cond
		joins[i] = cp
	}

	if o.inlineAssociations {
		paths := o.inlinableJoins(q, joins)
		for _, j := range joins {
			if j.Condition != nil {
				j.Condition = inlineAssociationAliases(j.Condition, paths)
			}
		}
	}
	return joins, nil
}

// inlinableJoins returns, keyed by alias, the association paths of left
// joins that have no condition and follow only many-to-one associations.
// Joins whose cardinality cannot be determined are left out.
func (o *Optimizer) inlinableJoins(q *dql.QuerySpec, joins []*dql.Join) map[string]*dql.PathExpr {
	entities := o.aliasEntities(q, joins)
	paths := make(map[string]*dql.PathExpr)
	for _, j := range joins {
		if j.Kind != dql.JoinLeft || j.Target.Path == nil || j.Condition != nil {
			continue
		}
		if _, toOne, ok := o.followPath(entities, j.Target.Path); ok && toOne {
			paths[j.Alias] = j.Target.Path
		}
	}
	return paths
}

// aliasEntities maps every alias whose entity can be determined to that
// entity. Association joins are resolved in rounds since a path may start
// at an alias declared later.
func (o *Optimizer) aliasEntities(q *dql.QuerySpec, joins []*dql.Join) map[string]string {
	entities := map[string]string{q.From.Alias: q.From.Entity}
	for _, j := range joins {
		if j.Target.Path == nil {
			entities[j.Alias] = j.Target.Entity
		}
	}
	for round := 0; round < len(joins); round++ {
		progress := false
		for _, j := range joins {
			if j.Target.Path == nil {
				continue
			}
			if _, done := entities[j.Alias]; done {
				continue
			}
			if target, _, ok := o.followPath(entities, j.Target.Path); ok {
				entities[j.Alias] = target
				progress = true
			}
		}
		if !progress {
			break
		}
	}
	return entities
}

// followPath walks path from its root alias and reports the entity it ends
// at and whether every step is single-valued. ok is false when any step is
// unknown.
func (o *Optimizer) followPath(entities map[string]string, path *dql.PathExpr) (target string, toOne bool, ok bool) {
	entity, found := entities[path.Alias]
	if !found || len(path.Members) == 0 {
		return "", false, false
	}
	toOne = true
	for _, member := range path.Members {
		next, single, err := o.associations.AssociationTarget(entity, member)
		if err != nil {
			return "", false, false
		}
		entity = next
		toOne = toOne && single
	}
	return entity, toOne, true
}

func (o *Optimizer) identifierField(entity string) (string, error) {
	if o.identifiers == nil {
		return DefaultIdentifierField, nil
	}
	field, err := o.identifiers.IdentifierField(entity)
	if err != nil {
		return "", fmt.Errorf("identifier of %s: %w", entity, err)
	}
	return field, nil
}

// validateShape checks the structural preconditions of q.
func validateShape(q *dql.QuerySpec) error {
	if q == nil {
		return errMalformed("nil query")
	}
	if q.From == nil || q.From.Alias == "" {
		return errMalformed("query has no root alias")
	}

	declared := NewAliasSet(q.From.Alias)
	for i, j := range q.Joins {
		if j == nil || j.Alias == "" {
			return errMalformed("join %d has no alias", i)
		}
		if j.Target.Path == nil && j.Target.Entity == "" {
			return errMalformed("join %q has no target", j.Alias)
		}
		if !declared.Add(j.Alias) {
			return errMalformed("alias %q is declared more than once", j.Alias)
		}
	}
	if j := selfReferencingJoin(q.Joins); j != "" {
		return errMalformed("join %q follows an association of itself", j)
	}

	selects := NewAliasSet()
	for i, item := range q.Select {
		if item == nil || item.Expr == nil {
			return errMalformed("select item %d has no expression", i)
		}
		if item.Alias == "" {
			continue
		}
		if declared.Has(item.Alias) {
			return errMalformed("select alias %q shadows an entity alias", item.Alias)
		}
		if !selects.Add(item.Alias) {
			return errMalformed("select alias %q is declared more than once", item.Alias)
		}
	}
	for i, g := range q.GroupBy {
		if g == nil {
			return errMalformed("GROUP BY item %d has no expression", i)
		}
	}
	return nil
}

func selfReferencingJoin(joins []*dql.Join) string {
	for _, j := range joins {
		if j.Target.Path != nil && j.Target.Path.Alias == j.Alias {
			return j.Alias
		}
	}
	return ""
}

// andExpr combines two expressions with AND. A nil side yields the other.
func andExpr(left, right dql.Expr) dql.Expr {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &dql.BinaryExpr{Left: left, Op: dql.TOKEN_AND, Right: right}
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
