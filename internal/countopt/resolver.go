package countopt

import "countopt/internal/dql"

// ResolveAliasRefs returns a copy of expr where every bare reference to a
// select alias of items is replaced by the aliased expression. Substitution
// repeats until no select alias remains; a chain that is still substituting
// after len(aliases)+1 passes is cyclic and yields an AliasResolutionError.
//
// Entity aliases are not consulted here. Callers must reject select aliases
// that shadow an entity alias beforehand.
func ResolveAliasRefs(expr dql.Expr, items []*dql.SelectItem) (dql.Expr, error) {
	aliases := make(map[string]dql.Expr)
	for _, item := range items {
		if item == nil || item.Alias == "" {
			continue
		}
		if _, dup := aliases[item.Alias]; !dup {
			aliases[item.Alias] = item.Expr
		}
	}

	resolved := dql.CloneExpr(expr)
	if resolved == nil || len(aliases) == 0 {
		return resolved, nil
	}

	var last string
	for pass := 0; pass <= len(aliases); pass++ {
		substituted := false
		resolved = dql.Rewrite(resolved, func(e dql.Expr) dql.Expr {
			p, ok := e.(*dql.PathExpr)
			if !ok || !p.IsBare() {
				return nil
			}
			target, ok := aliases[p.Alias]
			if !ok {
				return nil
			}
			substituted = true
			last = p.Alias
			return dql.CloneExpr(target)
		})
		if !substituted {
			return resolved, nil
		}
	}
	return nil, &AliasResolutionError{Alias: last, Passes: len(aliases) + 1}
}

// inlineAssociationAliases replaces bare references to the join aliases
// in paths by their association path, so "s.user = eu" with
// "LEFT JOIN e.user eu" becomes "s.user = e.user".
func inlineAssociationAliases(cond dql.Expr, paths map[string]*dql.PathExpr) dql.Expr {
	if len(paths) == 0 {
		return cond
	}
	return dql.Rewrite(cond, func(e dql.Expr) dql.Expr {
		p, ok := e.(*dql.PathExpr)
		if !ok || !p.IsBare() {
			return nil
		}
		if target, ok := paths[p.Alias]; ok {
			return dql.CloneExpr(target)
		}
		return nil
	})
}
