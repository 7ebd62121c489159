// Package sqlgen translates entity queries into SQL for SQLite and DuckDB
// using an entity mapping registry.
package sqlgen

import (
	"database/sql"
	"fmt"
	"strings"

	"countopt/internal/dql"
	"countopt/internal/metadata"
)

// Statement is a SQL string with its named arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Generator renders queries. It is immutable and safe for concurrent use.
type Generator struct {
	registry *metadata.Registry
	dialect  Dialect
}

// New creates a generator for the given mapping and dialect.
func New(registry *metadata.Registry, dialect Dialect) *Generator {
	return &Generator{registry: registry, dialect: dialect}
}

// Dialect returns the dialect the generator renders.
func (g *Generator) Dialect() Dialect {
	return g.dialect
}

// Select renders q as a SELECT statement, including pagination.
func (g *Generator) Select(q *dql.QuerySpec) (*Statement, error) {
	b, err := g.newBuilder(q)
	if err != nil {
		return nil, err
	}
	if err := b.buildSelect(true); err != nil {
		return nil, err
	}
	return &Statement{SQL: b.buf.String(), Args: b.args}, nil
}

// Count renders a statement returning the number of rows q produces.
// Ordering and pagination do not affect the count and are left out.
func (g *Generator) Count(q *dql.QuerySpec) (*Statement, error) {
	b, err := g.newBuilder(q)
	if err != nil {
		return nil, err
	}
	b.buf.WriteString("SELECT COUNT(*) FROM (")
	if err := b.buildSelect(false); err != nil {
		return nil, err
	}
	b.buf.WriteString(") AS count_query")
	return &Statement{SQL: b.buf.String(), Args: b.args}, nil
}

// source is a FROM or JOIN alias together with what it reads.
type source struct {
	alias  string
	entity *metadata.Entity
	join   *dql.Join // nil for the root

	// Set for association joins.
	assoc  *metadata.Association
	parent string
}

type builder struct {
	g       *Generator
	q       *dql.QuerySpec
	sources map[string]*source
	order   []*source // root first, then joins in emission order

	selectAliases map[string]bool
	inJoin        bool

	buf   strings.Builder
	args  []any
	bound map[string]bool
}

func (g *Generator) newBuilder(q *dql.QuerySpec) (*builder, error) {
	if q == nil || q.From == nil {
		return nil, fmt.Errorf("query has no FROM clause")
	}
	if len(q.Select) == 0 {
		return nil, fmt.Errorf("query has an empty select list")
	}
	b := &builder{
		g:             g,
		q:             q,
		sources:       make(map[string]*source, len(q.Joins)+1),
		selectAliases: make(map[string]bool, len(q.Select)),
		bound:         map[string]bool{},
	}
	for _, item := range q.Select {
		if item.Alias != "" {
			b.selectAliases[item.Alias] = true
		}
	}

	root, err := g.registry.Entity(q.From.Entity)
	if err != nil {
		return nil, err
	}
	b.addSource(&source{alias: q.From.Alias, entity: root})

	if err := b.resolveJoins(); err != nil {
		return nil, err
	}
	if err := b.orderJoins(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *builder) addSource(s *source) {
	b.sources[s.alias] = s
	b.order = append(b.order, s)
}

// resolveJoins maps every join alias to its entity. Association joins may
// follow an alias declared after them, so they are resolved in rounds.
func (b *builder) resolveJoins() error {
	var pending []*dql.Join
	for _, j := range b.q.Joins {
		if _, dup := b.sources[j.Alias]; dup {
			return fmt.Errorf("join %s: alias %q is declared more than once", j.Alias, j.Alias)
		}
		if j.Target.IsAssociation() {
			if len(j.Target.Path.Members) != 1 {
				return fmt.Errorf("join %s: association path %s must have exactly one member", j.Alias, j.Target.Path)
			}
			b.sources[j.Alias] = nil
			pending = append(pending, j)
			continue
		}
		e, err := b.g.registry.Entity(j.Target.Entity)
		if err != nil {
			return fmt.Errorf("join %s: %w", j.Alias, err)
		}
		b.sources[j.Alias] = &source{alias: j.Alias, entity: e, join: j}
	}

	for len(pending) > 0 {
		var rest []*dql.Join
		for _, j := range pending {
			path := j.Target.Path
			parent, declared := b.sources[path.Alias]
			if !declared {
				return fmt.Errorf("join %s: unknown alias %q in join path %s", j.Alias, path.Alias, path)
			}
			if parent == nil {
				rest = append(rest, j)
				continue
			}
			assoc, target, err := b.g.registry.Target(parent.entity, path.Members[0])
			if err != nil {
				return fmt.Errorf("join %s: %w", j.Alias, err)
			}
			b.sources[j.Alias] = &source{alias: j.Alias, entity: target, join: j, assoc: assoc, parent: path.Alias}
		}
		if len(rest) == len(pending) {
			return fmt.Errorf("join %s: association path %s never reaches the root alias", rest[0].Alias, rest[0].Target.Path)
		}
		pending = rest
	}
	return nil
}

// orderJoins places every join after the aliases its path and condition
// refer to, keeping declaration order otherwise.
func (b *builder) orderJoins() error {
	placed := map[string]bool{b.q.From.Alias: true}
	pending := make([]*dql.Join, len(b.q.Joins))
	copy(pending, b.q.Joins)

	for len(pending) > 0 {
		next := -1
		for i, j := range pending {
			if b.ready(j, placed) {
				next = i
				break
			}
		}
		if next < 0 {
			return fmt.Errorf("join %s depends on an alias that is never joined before it", pending[0].Alias)
		}
		j := pending[next]
		pending = append(pending[:next], pending[next+1:]...)
		placed[j.Alias] = true
		b.order = append(b.order, b.sources[j.Alias])
	}
	return nil
}

func (b *builder) ready(j *dql.Join, placed map[string]bool) bool {
	if j.Target.IsAssociation() && !placed[j.Target.Path.Alias] {
		return false
	}
	for _, p := range dql.Paths(j.Condition) {
		if p.Alias == j.Alias {
			continue
		}
		if _, isSource := b.sources[p.Alias]; isSource && !placed[p.Alias] {
			return false
		}
	}
	return true
}

func (b *builder) buildSelect(withTail bool) error {
	q := b.q
	b.buf.WriteString("SELECT ")
	for i, item := range q.Select {
		if i > 0 {
			b.buf.WriteString(", ")
		}
		if err := b.expr(item.Expr); err != nil {
			return fmt.Errorf("select: %w", err)
		}
		if item.Alias != "" {
			b.buf.WriteString(" AS ")
			b.buf.WriteString(quoteIdent(item.Alias))
		}
	}

	root := b.order[0]
	fmt.Fprintf(&b.buf, " FROM %s AS %s", quoteIdent(root.entity.Table), quoteIdent(root.alias))

	for _, src := range b.order[1:] {
		if err := b.join(src); err != nil {
			return fmt.Errorf("join %s: %w", src.alias, err)
		}
	}

	if q.Where != nil {
		b.buf.WriteString(" WHERE ")
		if err := b.expr(q.Where); err != nil {
			return fmt.Errorf("where: %w", err)
		}
	}
	if len(q.GroupBy) > 0 {
		b.buf.WriteString(" GROUP BY ")
		for i, e := range q.GroupBy {
			if i > 0 {
				b.buf.WriteString(", ")
			}
			if err := b.expr(e); err != nil {
				return fmt.Errorf("group by: %w", err)
			}
		}
	}
	if q.Having != nil {
		b.buf.WriteString(" HAVING ")
		if err := b.expr(q.Having); err != nil {
			return fmt.Errorf("having: %w", err)
		}
	}
	if !withTail {
		return nil
	}
	if len(q.OrderBy) > 0 {
		b.buf.WriteString(" ORDER BY ")
		for i, item := range q.OrderBy {
			if i > 0 {
				b.buf.WriteString(", ")
			}
			if err := b.expr(item.Expr); err != nil {
				return fmt.Errorf("order by: %w", err)
			}
			if item.Desc {
				b.buf.WriteString(" DESC")
			}
		}
	}
	b.buf.WriteString(b.g.dialect.limitOffset(q.FirstResult, q.MaxResults))
	return nil
}

func (b *builder) join(src *source) error {
	kind := "INNER JOIN"
	if src.join.Kind == dql.JoinLeft {
		kind = "LEFT JOIN"
	}
	table := quoteIdent(src.entity.Table)
	alias := quoteIdent(src.alias)

	if src.assoc == nil {
		fmt.Fprintf(&b.buf, " %s %s AS %s ON ", kind, table, alias)
		if src.join.Condition == nil {
			b.buf.WriteString("1 = 1")
			return nil
		}
		return b.condition(src.join.Condition, dql.PrecedenceNone)
	}

	parent := b.sources[src.parent]
	parentAlias := quoteIdent(parent.alias)
	switch src.assoc.Type {
	case metadata.ManyToOne:
		fmt.Fprintf(&b.buf, " %s %s AS %s ON %s.%s = %s.%s", kind, table, alias,
			alias, quoteIdent(src.entity.IDColumn()), parentAlias, quoteIdent(src.assoc.JoinColumn))
	case metadata.OneToMany:
		back, _, err := b.g.registry.Target(src.entity, src.assoc.MappedBy)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b.buf, " %s %s AS %s ON %s.%s = %s.%s", kind, table, alias,
			alias, quoteIdent(back.JoinColumn), parentAlias, quoteIdent(parent.entity.IDColumn()))
	case metadata.ManyToMany:
		link := quoteIdent(src.alias + "__link")
		fmt.Fprintf(&b.buf, " %s (%s AS %s INNER JOIN %s AS %s ON %s.%s = %s.%s) ON %s.%s = %s.%s", kind,
			quoteIdent(src.assoc.JoinTable), link, table, alias,
			alias, quoteIdent(src.entity.IDColumn()), link, quoteIdent(src.assoc.InverseJoinColumn),
			link, quoteIdent(src.assoc.JoinColumn), parentAlias, quoteIdent(parent.entity.IDColumn()))
	default:
		return fmt.Errorf("unsupported association type %q", src.assoc.Type)
	}

	if src.join.Condition == nil {
		return nil
	}
	b.buf.WriteString(" AND ")
	return b.condition(src.join.Condition, dql.PrecedenceAnd)
}

func (b *builder) condition(cond dql.Expr, min int) error {
	b.inJoin = true
	defer func() { b.inJoin = false }()
	return b.operand(cond, min)
}

// bindParam records the value of p and returns its placeholder. Slice
// values are only allowed where expand is set.
func (b *builder) bindParam(p *dql.Param, expand bool) ([]string, error) {
	value, ok := b.q.Params[p.Name]
	if !ok {
		return nil, fmt.Errorf("missing value for parameter %s", p.Placeholder())
	}
	name := p.Name
	if p.Positional {
		name = "p" + p.Name
	}

	values, isList := listValues(value)
	if !isList {
		if !b.bound[name] {
			b.bound[name] = true
			b.args = append(b.args, sql.Named(name, value))
		}
		return []string{b.g.dialect.placeholder(name)}, nil
	}
	if !expand {
		return nil, fmt.Errorf("parameter %s holds a list and can only be used in IN", p.Placeholder())
	}
	out := make([]string, len(values))
	for i, v := range values {
		item := fmt.Sprintf("%s_%d", name, i)
		if !b.bound[item] {
			b.bound[item] = true
			b.args = append(b.args, sql.Named(item, v))
		}
		out[i] = b.g.dialect.placeholder(item)
	}
	return out, nil
}
