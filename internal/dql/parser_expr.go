package dql

import "fmt"

// Expression parsing using precedence climbing.

func (p *Parser) parseExpression() Expr {
	return p.parseExpressionWithPrecedence(PrecedenceNone + 1)
}

func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) Expr {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for {
		prec := p.getInfixPrecedence()
		if prec < minPrecedence {
			break
		}
		left = p.parseInfixExpr(left, prec)
		if left == nil || p.failed() {
			break
		}
	}

	return left
}

func (p *Parser) parsePrefixExpr() Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		p.nextToken()
		return &UnaryExpr{Op: TOKEN_NOT, Expr: p.parseExpressionWithPrecedence(PrecedenceNot)}
	case TOKEN_MINUS:
		p.nextToken()
		return &UnaryExpr{Op: TOKEN_MINUS, Expr: p.parseExpressionWithPrecedence(PrecedenceUnary)}
	case TOKEN_PLUS:
		p.nextToken()
		return &UnaryExpr{Op: TOKEN_PLUS, Expr: p.parseExpressionWithPrecedence(PrecedenceUnary)}
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) getInfixPrecedence() int {
	switch p.token.Type {
	case TOKEN_IS, TOKEN_IN, TOKEN_BETWEEN, TOKEN_LIKE, TOKEN_NOT:
		return PrecedenceComparison
	default:
		return binaryPrecedence(p.token.Type)
	}
}

func (p *Parser) parseInfixExpr(left Expr, prec int) Expr {
	switch p.token.Type {
	case TOKEN_NOT:
		return p.parseNotInfixExpr(left)
	case TOKEN_IS:
		return p.parseIsExpr(left)
	case TOKEN_IN:
		p.nextToken()
		return p.parseInExpr(left, false)
	case TOKEN_BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, false)
	case TOKEN_LIKE:
		p.nextToken()
		return p.parseLikeExpr(left, false)
	default:
		op := p.token.Type
		p.nextToken()
		right := p.parseExpressionWithPrecedence(prec + 1)
		if right == nil {
			return nil
		}
		return &BinaryExpr{Left: left, Op: op, Right: right}
	}
}

// parseNotInfixExpr handles NOT IN, NOT BETWEEN and NOT LIKE.
func (p *Parser) parseNotInfixExpr(left Expr) Expr {
	p.nextToken() // consume NOT

	switch p.token.Type {
	case TOKEN_IN:
		p.nextToken()
		return p.parseInExpr(left, true)
	case TOKEN_BETWEEN:
		p.nextToken()
		return p.parseBetweenExpr(left, true)
	case TOKEN_LIKE:
		p.nextToken()
		return p.parseLikeExpr(left, true)
	default:
		p.addError("expected IN, BETWEEN or LIKE after NOT")
		return nil
	}
}

// parseIsExpr parses IS [NOT] NULL.
func (p *Parser) parseIsExpr(left Expr) Expr {
	p.nextToken() // consume IS
	isNot := p.match(TOKEN_NOT)
	if !p.expect(TOKEN_NULL) {
		return nil
	}
	return &IsNullExpr{Expr: left, Not: isNot}
}

func (p *Parser) parseInExpr(left Expr, not bool) Expr {
	if !p.expect(TOKEN_LPAREN) {
		return nil
	}
	in := &InExpr{Expr: left, Not: not, Values: p.parseExpressionList()}
	if !p.expect(TOKEN_RPAREN) {
		return nil
	}
	if len(in.Values) == 0 {
		p.addError("IN list must not be empty")
		return nil
	}
	return in
}

func (p *Parser) parseBetweenExpr(left Expr, not bool) Expr {
	between := &BetweenExpr{Expr: left, Not: not}
	between.Low = p.parseExpressionWithPrecedence(PrecedenceAddition)
	p.expect(TOKEN_AND)
	between.High = p.parseExpressionWithPrecedence(PrecedenceAddition)
	if between.Low == nil || between.High == nil {
		return nil
	}
	return between
}

func (p *Parser) parseLikeExpr(left Expr, not bool) Expr {
	like := &LikeExpr{Expr: left, Not: not}
	like.Pattern = p.parseExpressionWithPrecedence(PrecedenceAddition)
	if like.Pattern == nil {
		return nil
	}
	if p.match(TOKEN_ESCAPE) {
		like.Escape = p.parseExpressionWithPrecedence(PrecedenceAddition)
	}
	return like
}

func (p *Parser) parseExpressionList() []Expr {
	var exprs []Expr
	for {
		expr := p.parseExpression()
		if expr != nil {
			exprs = append(exprs, expr)
		}
		if !p.match(TOKEN_COMMA) {
			break
		}
	}
	return exprs
}

// === Primary Expressions ===

func (p *Parser) parsePrimary() Expr {
	switch p.token.Type {
	case TOKEN_NUMBER:
		lit := &Literal{Type: LiteralNumber, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_STRING:
		lit := &Literal{Type: LiteralString, Value: p.token.Literal}
		p.nextToken()
		return lit

	case TOKEN_TRUE:
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "true"}

	case TOKEN_FALSE:
		p.nextToken()
		return &Literal{Type: LiteralBool, Value: "false"}

	case TOKEN_NULL:
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "NULL"}

	case TOKEN_PARAM:
		lit := p.token.Literal
		p.nextToken()
		return &Param{Name: lit[1:], Positional: lit[0] == '?'}

	case TOKEN_CASE:
		return p.parseCaseExpr()

	case TOKEN_IDENT:
		return p.parseIdentifierExpr()

	case TOKEN_LPAREN:
		p.nextToken()
		inner := p.parseExpression()
		if !p.expect(TOKEN_RPAREN) || inner == nil {
			return nil
		}
		return &ParenExpr{Expr: inner}

	default:
		// Keywords such as LEFT may still name a function.
		if p.token.Type.IsKeyword() && p.checkPeek(TOKEN_LPAREN) {
			return p.parseIdentifierExpr()
		}
		p.addError(fmt.Sprintf("unexpected token in expression: %s", describe(p.token)))
		return nil
	}
}

// parseIdentifierExpr parses a path (alias[.member...]) or a function call.
func (p *Parser) parseIdentifierExpr() Expr {
	name := p.token.Literal
	p.nextToken()

	if p.check(TOKEN_LPAREN) {
		return p.parseFuncCall(name)
	}

	path := &PathExpr{Alias: name}
	for p.match(TOKEN_DOT) {
		if !p.check(TOKEN_IDENT) && !p.token.Type.IsKeyword() {
			p.addError(fmt.Sprintf("expected member name after %q, got %s", path.String()+".", describe(p.token)))
			return nil
		}
		path.Members = append(path.Members, p.token.Literal)
		p.nextToken()
	}
	return path
}

// parseFuncCall parses name([DISTINCT] args) or name(*).
func (p *Parser) parseFuncCall(name string) Expr {
	fn := &FuncCall{Name: name}
	p.expect(TOKEN_LPAREN)

	if p.match(TOKEN_STAR) {
		fn.Star = true
	} else if !p.check(TOKEN_RPAREN) {
		fn.Distinct = p.match(TOKEN_DISTINCT)
		fn.Args = p.parseExpressionList()
	}

	if !p.expect(TOKEN_RPAREN) {
		return nil
	}
	return fn
}

func (p *Parser) parseCaseExpr() Expr {
	p.nextToken() // consume CASE
	c := &CaseExpr{}

	if !p.check(TOKEN_WHEN) {
		c.Operand = p.parseExpression()
	}

	for p.match(TOKEN_WHEN) {
		cond := p.parseExpression()
		p.expect(TOKEN_THEN)
		result := p.parseExpression()
		if cond == nil || result == nil {
			return nil
		}
		c.Whens = append(c.Whens, WhenClause{Condition: cond, Result: result})
	}
	if len(c.Whens) == 0 {
		p.addError("CASE requires at least one WHEN")
		return nil
	}

	if p.match(TOKEN_ELSE) {
		c.Else = p.parseExpression()
	}
	if !p.expect(TOKEN_END) {
		return nil
	}
	return c
}
