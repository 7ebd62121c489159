package countopt

import "countopt/internal/dql"

// joinGraph is the dependency graph between joins of a single query.
type joinGraph struct {
	order []string
	// deps maps a join alias to the aliases it pulls in once kept: the
	// aliases of its condition and the root of its association path.
	deps map[string]*AliasSet
	// dependents maps an alias to the joins whose condition references it.
	dependents map[string][]string
}

func newJoinGraph(joins []*dql.Join, scope *Scope) *joinGraph {
	g := &joinGraph{
		deps:       make(map[string]*AliasSet, len(joins)),
		dependents: make(map[string][]string),
	}
	for _, j := range joins {
		g.order = append(g.order, j.Alias)

		deps := NewAliasSet()
		if j.Target.Path != nil {
			deps.Add(j.Target.Path.Alias)
		}
		cond := ReferencedAliases(j.Condition, scope)
		deps.AddAll(cond)
		g.deps[j.Alias] = deps

		for _, ref := range cond.order {
			if ref != j.Alias {
				g.dependents[ref] = append(g.dependents[ref], j.Alias)
			}
		}
	}
	return g
}

// closure relaxes the working set to a fixpoint. Every alias enters the
// worklist at most once, so the loop is bounded by the number of aliases.
func (g *joinGraph) closure(seeds *AliasSet) *AliasSet {
	needed := NewAliasSet()
	var queue []string
	push := func(alias string) {
		if needed.Add(alias) {
			queue = append(queue, alias)
		}
	}
	for _, a := range seeds.order {
		push(a)
	}

	for len(queue) > 0 {
		alias := queue[0]
		queue = queue[1:]
		if deps, ok := g.deps[alias]; ok {
			for _, d := range deps.order {
				push(d)
			}
		}
		for _, dependent := range g.dependents[alias] {
			push(dependent)
		}
	}
	return needed
}

// NeededJoins returns, in declaration order, the aliases of the joins that
// must be kept for the aliases in seeds to stay bound. A join is kept when
// its alias is needed or when its condition references a needed alias;
// a kept join makes the aliases of its condition and its association root
// needed in turn. Declaration order plays no part in the closure.
func NeededJoins(joins []*dql.Join, seeds *AliasSet, scope *Scope) []string {
	g := newJoinGraph(joins, scope)
	needed := g.closure(seeds)

	var out []string
	for _, alias := range g.order {
		if needed.Has(alias) {
			out = append(out, alias)
		}
	}
	return out
}
