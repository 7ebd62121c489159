// Package dql provides a parser, AST, and formatter for entity queries.
//
// The language is the object-oriented select dialect used by ORM query
// builders: sources are entities (optionally namespaced as Bundle:Entity),
// members are reached through alias.member paths, joins may follow an
// association path and carry a WITH condition, and parameters are bound as
// :name or ?N.
//
// The count optimizer consumes and produces *QuerySpec values; this package
// is what turns them into and out of text.
package dql

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

// TOKEN_EOF and friends enumerate all token types produced by the lexer.
const (
	TOKEN_EOF     TokenType = iota // end of input
	TOKEN_ILLEGAL                  // unexpected character

	TOKEN_IDENT  // identifier
	TOKEN_NUMBER // 123, 45.67, 1e10
	TOKEN_STRING // 'hello'
	TOKEN_PARAM  // :name or ?0

	TOKEN_PLUS   // +
	TOKEN_MINUS  // -
	TOKEN_STAR   // *
	TOKEN_SLASH  // /
	TOKEN_MOD    // %
	TOKEN_EQ     // =
	TOKEN_NE     // != or <>
	TOKEN_LT     // <
	TOKEN_GT     // >
	TOKEN_LE     // <=
	TOKEN_GE     // >=
	TOKEN_DOT    // .
	TOKEN_COMMA  // ,
	TOKEN_COLON  // :
	TOKEN_LPAREN // (
	TOKEN_RPAREN // )

	// TOKEN_AND and below are keywords (alphabetical).
	TOKEN_AND
	TOKEN_AS
	TOKEN_ASC
	TOKEN_BETWEEN
	TOKEN_BY
	TOKEN_CASE
	TOKEN_DESC
	TOKEN_DISTINCT
	TOKEN_ELSE
	TOKEN_END
	TOKEN_ESCAPE
	TOKEN_FALSE
	TOKEN_FROM
	TOKEN_GROUP
	TOKEN_HAVING
	TOKEN_IN
	TOKEN_INNER
	TOKEN_IS
	TOKEN_JOIN
	TOKEN_LEFT
	TOKEN_LIKE
	TOKEN_NOT
	TOKEN_NULL
	TOKEN_ON
	TOKEN_OR
	TOKEN_ORDER
	TOKEN_OUTER
	TOKEN_SELECT
	TOKEN_THEN
	TOKEN_TRUE
	TOKEN_WHEN
	TOKEN_WHERE
	TOKEN_WITH
)

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

var tokenNames = map[TokenType]string{
	TOKEN_EOF:     "EOF",
	TOKEN_ILLEGAL: "ILLEGAL",
	TOKEN_IDENT:   "IDENT",
	TOKEN_NUMBER:  "NUMBER",
	TOKEN_STRING:  "STRING",
	TOKEN_PARAM:   "PARAM",

	TOKEN_PLUS:   "+",
	TOKEN_MINUS:  "-",
	TOKEN_STAR:   "*",
	TOKEN_SLASH:  "/",
	TOKEN_MOD:    "%",
	TOKEN_EQ:     "=",
	TOKEN_NE:     "<>",
	TOKEN_LT:     "<",
	TOKEN_GT:     ">",
	TOKEN_LE:     "<=",
	TOKEN_GE:     ">=",
	TOKEN_DOT:    ".",
	TOKEN_COMMA:  ",",
	TOKEN_COLON:  ":",
	TOKEN_LPAREN: "(",
	TOKEN_RPAREN: ")",

	TOKEN_AND:      "AND",
	TOKEN_AS:       "AS",
	TOKEN_ASC:      "ASC",
	TOKEN_BETWEEN:  "BETWEEN",
	TOKEN_BY:       "BY",
	TOKEN_CASE:     "CASE",
	TOKEN_DESC:     "DESC",
	TOKEN_DISTINCT: "DISTINCT",
	TOKEN_ELSE:     "ELSE",
	TOKEN_END:      "END",
	TOKEN_ESCAPE:   "ESCAPE",
	TOKEN_FALSE:    "FALSE",
	TOKEN_FROM:     "FROM",
	TOKEN_GROUP:    "GROUP",
	TOKEN_HAVING:   "HAVING",
	TOKEN_IN:       "IN",
	TOKEN_INNER:    "INNER",
	TOKEN_IS:       "IS",
	TOKEN_JOIN:     "JOIN",
	TOKEN_LEFT:     "LEFT",
	TOKEN_LIKE:     "LIKE",
	TOKEN_NOT:      "NOT",
	TOKEN_NULL:     "NULL",
	TOKEN_ON:       "ON",
	TOKEN_OR:       "OR",
	TOKEN_ORDER:    "ORDER",
	TOKEN_OUTER:    "OUTER",
	TOKEN_SELECT:   "SELECT",
	TOKEN_THEN:     "THEN",
	TOKEN_TRUE:     "TRUE",
	TOKEN_WHEN:     "WHEN",
	TOKEN_WHERE:    "WHERE",
	TOKEN_WITH:     "WITH",
}

// keywords maps lowercase keyword text to its token type.
var keywords = map[string]TokenType{
	"and":      TOKEN_AND,
	"as":       TOKEN_AS,
	"asc":      TOKEN_ASC,
	"between":  TOKEN_BETWEEN,
	"by":       TOKEN_BY,
	"case":     TOKEN_CASE,
	"desc":     TOKEN_DESC,
	"distinct": TOKEN_DISTINCT,
	"else":     TOKEN_ELSE,
	"end":      TOKEN_END,
	"escape":   TOKEN_ESCAPE,
	"false":    TOKEN_FALSE,
	"from":     TOKEN_FROM,
	"group":    TOKEN_GROUP,
	"having":   TOKEN_HAVING,
	"in":       TOKEN_IN,
	"inner":    TOKEN_INNER,
	"is":       TOKEN_IS,
	"join":     TOKEN_JOIN,
	"left":     TOKEN_LEFT,
	"like":     TOKEN_LIKE,
	"not":      TOKEN_NOT,
	"null":     TOKEN_NULL,
	"on":       TOKEN_ON,
	"or":       TOKEN_OR,
	"order":    TOKEN_ORDER,
	"outer":    TOKEN_OUTER,
	"select":   TOKEN_SELECT,
	"then":     TOKEN_THEN,
	"true":     TOKEN_TRUE,
	"when":     TOKEN_WHEN,
	"where":    TOKEN_WHERE,
	"with":     TOKEN_WITH,
}

// lookupKeyword returns the keyword token for lower, or TOKEN_IDENT.
func lookupKeyword(lower string) TokenType {
	if tok, ok := keywords[lower]; ok {
		return tok
	}
	return TOKEN_IDENT
}

// IsKeyword reports whether t is a reserved keyword.
func (t TokenType) IsKeyword() bool {
	return t >= TOKEN_AND && t <= TOKEN_WITH
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset of the token start
}

// Precedence constants for operator precedence parsing (Pratt parser).
const (
	PrecedenceNone       = 0
	PrecedenceOr         = 1
	PrecedenceAnd        = 2
	PrecedenceNot        = 3
	PrecedenceComparison = 4 // =, <>, <, >, <=, >=, LIKE, IN, BETWEEN, IS
	PrecedenceAddition   = 5 // +, -
	PrecedenceMultiply   = 6 // *, /, %
	PrecedenceUnary      = 7 // -, + (prefix)
)

// binaryPrecedence returns the binding strength of a binary operator.
func binaryPrecedence(op TokenType) int {
	switch op {
	case TOKEN_OR:
		return PrecedenceOr
	case TOKEN_AND:
		return PrecedenceAnd
	case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_GT, TOKEN_LE, TOKEN_GE:
		return PrecedenceComparison
	case TOKEN_PLUS, TOKEN_MINUS:
		return PrecedenceAddition
	case TOKEN_STAR, TOKEN_SLASH, TOKEN_MOD:
		return PrecedenceMultiply
	default:
		return PrecedenceNone
	}
}
