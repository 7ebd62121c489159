package dql

// parseQuery parses SELECT ... FROM ... [JOIN ...] [WHERE] [GROUP BY] [HAVING] [ORDER BY].
func (p *Parser) parseQuery() *QuerySpec {
	q := &QuerySpec{Params: map[string]any{}}

	if !p.expect(TOKEN_SELECT) {
		return q
	}
	if p.check(TOKEN_DISTINCT) {
		p.addError("SELECT DISTINCT is not supported")
		return q
	}
	q.Select = p.parseSelectList()
	if p.failed() {
		return q
	}

	if !p.expect(TOKEN_FROM) {
		return q
	}
	q.From = p.parseFrom()

	for !p.failed() && p.isJoinStart() {
		q.Joins = append(q.Joins, p.parseJoin())
	}

	if p.match(TOKEN_WHERE) {
		q.Where = p.parseExpression()
	}

	if p.check(TOKEN_GROUP) {
		p.nextToken()
		p.expect(TOKEN_BY)
		q.GroupBy = p.parseExpressionList()
	}

	if p.match(TOKEN_HAVING) {
		q.Having = p.parseExpression()
	}

	if p.check(TOKEN_ORDER) {
		p.nextToken()
		p.expect(TOKEN_BY)
		q.OrderBy = p.parseOrderByList()
	}

	return q
}

func (p *Parser) parseSelectList() []*SelectItem {
	var items []*SelectItem
	for {
		expr := p.parseExpression()
		if expr == nil {
			return items
		}
		item := &SelectItem{Expr: expr}
		if p.match(TOKEN_AS) {
			item.Alias = p.expectIdent("select alias")
		} else if p.check(TOKEN_IDENT) {
			item.Alias = p.token.Literal
			p.nextToken()
		}
		items = append(items, item)
		if !p.match(TOKEN_COMMA) {
			return items
		}
	}
}

func (p *Parser) parseFrom() *FromClause {
	from := &FromClause{Entity: p.parseEntityName()}
	p.match(TOKEN_AS)
	from.Alias = p.expectIdent("root alias")
	return from
}

// parseEntityName parses Entity or Bundle:Entity.
func (p *Parser) parseEntityName() string {
	name := p.expectIdent("entity name")
	switch {
	case p.check(TOKEN_PARAM) && p.token.Literal[0] == ':':
		// The lexer reads "Bundle:Entity" as IDENT followed by PARAM.
		name += p.token.Literal
		p.nextToken()
	case p.check(TOKEN_COLON):
		p.nextToken()
		name += ":" + p.expectIdent("entity name")
	}
	return name
}

func (p *Parser) isJoinStart() bool {
	switch p.token.Type {
	case TOKEN_JOIN, TOKEN_INNER, TOKEN_LEFT:
		return true
	}
	return false
}

// parseJoin parses [INNER | LEFT [OUTER]] JOIN target [AS] alias [WITH|ON cond].
func (p *Parser) parseJoin() *Join {
	j := &Join{Kind: JoinInner}
	switch {
	case p.match(TOKEN_INNER):
	case p.match(TOKEN_LEFT):
		j.Kind = JoinLeft
		p.match(TOKEN_OUTER)
	}
	p.expect(TOKEN_JOIN)

	if p.check(TOKEN_IDENT) && p.checkPeek(TOKEN_DOT) {
		path, ok := p.parseIdentifierExpr().(*PathExpr)
		if !ok || path.IsBare() {
			p.addError("join target must be an entity or an association path")
			return j
		}
		j.Target = JoinTarget{Path: path}
	} else {
		j.Target = JoinTarget{Entity: p.parseEntityName()}
	}

	p.match(TOKEN_AS)
	j.Alias = p.expectIdent("join alias")

	switch {
	case p.match(TOKEN_WITH):
		j.ConditionType = ConditionWith
		j.Condition = p.parseExpression()
	case p.match(TOKEN_ON):
		j.ConditionType = ConditionOn
		j.Condition = p.parseExpression()
	}
	return j
}

func (p *Parser) parseOrderByList() []*OrderItem {
	var items []*OrderItem
	for {
		expr := p.parseExpression()
		if expr == nil {
			return items
		}
		item := &OrderItem{Expr: expr}
		if p.match(TOKEN_DESC) {
			item.Desc = true
		} else {
			p.match(TOKEN_ASC)
		}
		items = append(items, item)
		if !p.match(TOKEN_COMMA) {
			return items
		}
	}
}
