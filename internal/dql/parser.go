package dql

import (
	"fmt"
	"strings"
)

// Parser parses entity-query text into an AST.
type Parser struct {
	lexer  *Lexer
	token  Token // current token
	peek   Token // lookahead token
	errors []error
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Initialize two-token lookahead
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete select query.
func Parse(input string) (*QuerySpec, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty query")
	}

	p := NewParser(input)
	q := p.parseQuery()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	if p.token.Type != TOKEN_EOF {
		return nil, fmt.Errorf("parse error at offset %d: unexpected %s %q after query", p.token.Pos, p.token.Type, p.token.Literal)
	}
	return q, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level fixtures.
func MustParse(input string) *QuerySpec {
	q, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return q
}

// ParseExpr parses a standalone expression, e.g. a join condition or a
// filter supplied through a query builder.
func ParseExpr(input string) (Expr, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty expression")
	}

	p := NewParser(input)
	expr := p.parseExpression()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	if p.token.Type != TOKEN_EOF {
		return nil, fmt.Errorf("unexpected token after expression: %s", p.token.Literal)
	}
	return expr, nil
}

// MustParseExpr is like ParseExpr but panics on error.
func MustParseExpr(input string) Expr {
	e, err := ParseExpr(input)
	if err != nil {
		panic(err)
	}
	return e
}

// === Token Helpers ===

func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) checkPeek(t TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("unexpected token %s, expected %s", describe(p.token), t))
	return false
}

// expectIdent consumes an identifier and returns its text.
func (p *Parser) expectIdent(what string) string {
	if !p.check(TOKEN_IDENT) {
		p.addError(fmt.Sprintf("expected %s, got %s", what, describe(p.token)))
		return ""
	}
	name := p.token.Literal
	p.nextToken()
	return name
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Errorf("parse error at offset %d: %s", p.token.Pos, msg))
}

func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

func describe(tok Token) string {
	if tok.Type == TOKEN_EOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
}
