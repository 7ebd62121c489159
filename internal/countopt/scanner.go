package countopt

import "countopt/internal/dql"

// AliasSet is an insertion-ordered set of aliases.
type AliasSet struct {
	order []string
	index map[string]struct{}
}

// NewAliasSet returns a set holding aliases in the given order.
func NewAliasSet(aliases ...string) *AliasSet {
	s := &AliasSet{index: make(map[string]struct{}, len(aliases))}
	for _, a := range aliases {
		s.Add(a)
	}
	return s
}

// Add inserts alias and reports whether it was not already present.
func (s *AliasSet) Add(alias string) bool {
	if _, ok := s.index[alias]; ok {
		return false
	}
	s.index[alias] = struct{}{}
	s.order = append(s.order, alias)
	return true
}

// AddAll inserts every alias of other.
func (s *AliasSet) AddAll(other *AliasSet) {
	if other == nil {
		return
	}
	for _, a := range other.order {
		s.Add(a)
	}
}

// Has reports whether alias is in the set.
func (s *AliasSet) Has(alias string) bool {
	_, ok := s.index[alias]
	return ok
}

// Len returns the number of aliases.
func (s *AliasSet) Len() int { return len(s.order) }

// Slice returns the aliases in insertion order.
func (s *AliasSet) Slice() []string {
	return append([]string(nil), s.order...)
}

// Scope holds the names an expression of a query may refer to.
type Scope struct {
	entities *AliasSet
	selects  map[string]dql.Expr
}

// NewScope collects the entity aliases (root first, then joins in
// declaration order) and the select aliases of q. For duplicate select
// aliases the first one wins.
func NewScope(q *dql.QuerySpec) *Scope {
	s := &Scope{entities: NewAliasSet(q.Aliases()...), selects: map[string]dql.Expr{}}
	for _, item := range q.Select {
		if item == nil || item.Alias == "" {
			continue
		}
		if _, dup := s.selects[item.Alias]; !dup {
			s.selects[item.Alias] = item.Expr
		}
	}
	return s
}

// IsEntity reports whether alias is the root alias or a join alias.
func (s *Scope) IsEntity(alias string) bool {
	return s != nil && s.entities.Has(alias)
}

// IsSelectAlias reports whether alias names a select item.
func (s *Scope) IsSelectAlias(alias string) bool {
	if s == nil {
		return false
	}
	_, ok := s.selects[alias]
	return ok
}

// ReferencedAliases returns the aliases expr refers to: the root of every
// alias.member path, plus every bare identifier naming an entity alias or a
// select alias of scope. A nil scope only collects member paths.
func ReferencedAliases(expr dql.Expr, scope *Scope) *AliasSet {
	out := NewAliasSet()
	dql.Inspect(expr, func(e dql.Expr) bool {
		p, ok := e.(*dql.PathExpr)
		if !ok {
			return true
		}
		if !p.IsBare() || scope.IsEntity(p.Alias) || scope.IsSelectAlias(p.Alias) {
			out.Add(p.Alias)
		}
		return true
	})
	return out
}

// checkReferences returns an UnresolvableAliasError for the first path in
// expr whose root is not an entity alias of scope.
func checkReferences(expr dql.Expr, clause string, scope *Scope) error {
	for _, p := range dql.Paths(expr) {
		if !scope.IsEntity(p.Alias) {
			return &UnresolvableAliasError{Alias: p.Alias, Clause: clause}
		}
	}
	return nil
}
