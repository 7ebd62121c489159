package dql

// === Expression Traversal ===

// Inspect traverses e in depth-first order. It calls fn for each node;
// if fn returns false, the children of that node are skipped.
func Inspect(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}

	switch expr := e.(type) {
	case *BinaryExpr:
		Inspect(expr.Left, fn)
		Inspect(expr.Right, fn)
	case *UnaryExpr:
		Inspect(expr.Expr, fn)
	case *ParenExpr:
		Inspect(expr.Expr, fn)
	case *FuncCall:
		for _, arg := range expr.Args {
			Inspect(arg, fn)
		}
	case *InExpr:
		Inspect(expr.Expr, fn)
		for _, v := range expr.Values {
			Inspect(v, fn)
		}
	case *LikeExpr:
		Inspect(expr.Expr, fn)
		Inspect(expr.Pattern, fn)
		Inspect(expr.Escape, fn)
	case *IsNullExpr:
		Inspect(expr.Expr, fn)
	case *BetweenExpr:
		Inspect(expr.Expr, fn)
		Inspect(expr.Low, fn)
		Inspect(expr.High, fn)
	case *CaseExpr:
		Inspect(expr.Operand, fn)
		for _, w := range expr.Whens {
			Inspect(w.Condition, fn)
			Inspect(w.Result, fn)
		}
		Inspect(expr.Else, fn)
	case *PathExpr, *Literal, *Param:
		// Leaf nodes, no sub-expressions
	}
}

// Rewrite returns a deep copy of e. Each node is first offered to fn: a
// non-nil result replaces the node and is not descended into, nil means
// copy the node and rewrite its children. Replacements are used as returned,
// so fn must hand back a node it owns.
func Rewrite(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	if fn != nil {
		if repl := fn(e); repl != nil {
			return repl
		}
	}

	switch expr := e.(type) {
	case *PathExpr:
		return &PathExpr{Alias: expr.Alias, Members: append([]string(nil), expr.Members...)}
	case *Literal:
		cp := *expr
		return &cp
	case *Param:
		cp := *expr
		return &cp
	case *BinaryExpr:
		return &BinaryExpr{Left: Rewrite(expr.Left, fn), Op: expr.Op, Right: Rewrite(expr.Right, fn)}
	case *UnaryExpr:
		return &UnaryExpr{Op: expr.Op, Expr: Rewrite(expr.Expr, fn)}
	case *ParenExpr:
		return &ParenExpr{Expr: Rewrite(expr.Expr, fn)}
	case *FuncCall:
		return &FuncCall{Name: expr.Name, Distinct: expr.Distinct, Star: expr.Star, Args: rewriteList(expr.Args, fn)}
	case *InExpr:
		return &InExpr{Expr: Rewrite(expr.Expr, fn), Not: expr.Not, Values: rewriteList(expr.Values, fn)}
	case *LikeExpr:
		return &LikeExpr{
			Expr:    Rewrite(expr.Expr, fn),
			Not:     expr.Not,
			Pattern: Rewrite(expr.Pattern, fn),
			Escape:  Rewrite(expr.Escape, fn),
		}
	case *IsNullExpr:
		return &IsNullExpr{Expr: Rewrite(expr.Expr, fn), Not: expr.Not}
	case *BetweenExpr:
		return &BetweenExpr{
			Expr: Rewrite(expr.Expr, fn),
			Not:  expr.Not,
			Low:  Rewrite(expr.Low, fn),
			High: Rewrite(expr.High, fn),
		}
	case *CaseExpr:
		c := &CaseExpr{Operand: Rewrite(expr.Operand, fn), Else: Rewrite(expr.Else, fn)}
		for _, w := range expr.Whens {
			c.Whens = append(c.Whens, WhenClause{
				Condition: Rewrite(w.Condition, fn),
				Result:    Rewrite(w.Result, fn),
			})
		}
		return c
	default:
		return e
	}
}

func rewriteList(exprs []Expr, fn func(Expr) Expr) []Expr {
	if exprs == nil {
		return nil
	}
	out := make([]Expr, len(exprs))
	for i, e := range exprs {
		out[i] = Rewrite(e, fn)
	}
	return out
}

// CloneExpr returns a deep copy of e.
func CloneExpr(e Expr) Expr {
	return Rewrite(e, nil)
}

// Clone returns a deep copy of the query. Parameter values are copied by
// reference.
func (q *QuerySpec) Clone() *QuerySpec {
	if q == nil {
		return nil
	}
	out := &QuerySpec{
		Where:       CloneExpr(q.Where),
		GroupBy:     rewriteList(q.GroupBy, nil),
		Having:      CloneExpr(q.Having),
		FirstResult: q.FirstResult,
		MaxResults:  q.MaxResults,
	}
	if q.From != nil {
		from := *q.From
		out.From = &from
	}
	for _, j := range q.Joins {
		out.Joins = append(out.Joins, j.Clone())
	}
	for _, s := range q.Select {
		out.Select = append(out.Select, &SelectItem{Expr: CloneExpr(s.Expr), Alias: s.Alias})
	}
	for _, o := range q.OrderBy {
		out.OrderBy = append(out.OrderBy, &OrderItem{Expr: CloneExpr(o.Expr), Desc: o.Desc})
	}
	if q.Params != nil {
		out.Params = make(map[string]any, len(q.Params))
		for k, v := range q.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the join.
func (j *Join) Clone() *Join {
	cp := &Join{
		Kind:          j.Kind,
		Target:        JoinTarget{Entity: j.Target.Entity},
		Alias:         j.Alias,
		ConditionType: j.ConditionType,
		Condition:     CloneExpr(j.Condition),
	}
	if j.Target.Path != nil {
		cp.Target.Path = CloneExpr(j.Target.Path).(*PathExpr)
	}
	return cp
}

// Paths returns every path reference in e in traversal order.
func Paths(e Expr) []*PathExpr {
	var out []*PathExpr
	Inspect(e, func(n Expr) bool {
		if p, ok := n.(*PathExpr); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

// ContainsAggregate reports whether e calls an aggregate function.
func ContainsAggregate(e Expr) bool {
	found := false
	Inspect(e, func(n Expr) bool {
		if fn, ok := n.(*FuncCall); ok && fn.IsAggregate() {
			found = true
		}
		return !found
	})
	return found
}

// Params returns the parameters referenced by e in traversal order.
func Params(e Expr) []*Param {
	var out []*Param
	Inspect(e, func(n Expr) bool {
		if p, ok := n.(*Param); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}
