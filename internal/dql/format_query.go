package dql

func (f *formatter) formatQuery(q *QuerySpec) {
	if q == nil {
		return
	}

	f.write("SELECT ")
	f.commaSep(len(q.Select), func(i int) {
		f.formatSelectItem(q.Select[i])
	})

	if q.From != nil {
		f.write(" FROM ")
		f.write(q.From.Entity)
		f.space()
		f.write(q.From.Alias)
	}

	for _, j := range q.Joins {
		f.space()
		f.formatJoin(j)
	}

	if q.Where != nil {
		f.write(" WHERE ")
		f.formatExpr(q.Where)
	}

	if len(q.GroupBy) > 0 {
		f.write(" GROUP BY ")
		f.commaSep(len(q.GroupBy), func(i int) {
			f.formatExpr(q.GroupBy[i])
		})
	}

	if q.Having != nil {
		f.write(" HAVING ")
		f.formatExpr(q.Having)
	}

	if len(q.OrderBy) > 0 {
		f.write(" ORDER BY ")
		f.commaSep(len(q.OrderBy), func(i int) {
			item := q.OrderBy[i]
			f.formatExpr(item.Expr)
			if item.Desc {
				f.write(" DESC")
			}
		})
	}
}

func (f *formatter) formatSelectItem(item *SelectItem) {
	f.formatExpr(item.Expr)
	if item.Alias != "" {
		f.write(" AS ")
		f.write(item.Alias)
	}
}

func (f *formatter) formatJoin(j *Join) {
	f.write(j.Kind.String())
	f.write(" JOIN ")
	f.write(j.Target.String())
	f.space()
	f.write(j.Alias)
	if j.Condition != nil {
		f.space()
		f.write(j.ConditionType.String())
		f.space()
		f.formatExpr(j.Condition)
	}
}
