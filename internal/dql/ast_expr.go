package dql

import "strings"

// === Expression Nodes ===

// PathExpr is an alias reference, optionally followed by member names.
// A bare identifier (no members) is either an entity alias or a select alias.
type PathExpr struct {
	Alias   string
	Members []string
}

func (*PathExpr) node()     {}
func (*PathExpr) exprNode() {}

// IsBare reports whether the path is a single identifier with no members.
func (p *PathExpr) IsBare() bool {
	return len(p.Members) == 0
}

// String returns the dotted path text.
func (p *PathExpr) String() string {
	if p.IsBare() {
		return p.Alias
	}
	return p.Alias + "." + strings.Join(p.Members, ".")
}

// NewPath builds a PathExpr from alias and members.
func NewPath(alias string, members ...string) *PathExpr {
	return &PathExpr{Alias: alias, Members: members}
}

// Literal represents a literal value (number, string, bool, null).
type Literal struct {
	Type  LiteralType
	Value string
}

func (*Literal) node()     {}
func (*Literal) exprNode() {}

// LiteralType represents the type of a literal.
type LiteralType int

const (
	LiteralNumber LiteralType = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// Param is a bound parameter placeholder.
type Param struct {
	Name       string // without the leading ':' or '?'
	Positional bool   // true for ?N
}

func (*Param) node()     {}
func (*Param) exprNode() {}

// Placeholder returns the textual placeholder (":name" or "?N").
func (p *Param) Placeholder() string {
	if p.Positional {
		return "?" + p.Name
	}
	return ":" + p.Name
}

// BinaryExpr represents a binary expression (left op right), including
// AND/OR, comparisons and arithmetic.
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

func (*BinaryExpr) node()     {}
func (*BinaryExpr) exprNode() {}

// UnaryExpr represents NOT x, -x or +x.
type UnaryExpr struct {
	Op   TokenType
	Expr Expr
}

func (*UnaryExpr) node()     {}
func (*UnaryExpr) exprNode() {}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expr
}

func (*ParenExpr) node()     {}
func (*ParenExpr) exprNode() {}

// FuncCall represents a function or aggregate call.
type FuncCall struct {
	Name     string // stored in original case
	Distinct bool   // COUNT(DISTINCT ...)
	Star     bool   // COUNT(*)
	Args     []Expr
}

func (*FuncCall) node()     {}
func (*FuncCall) exprNode() {}

// aggregateFuncs lists the aggregate functions of the language.
var aggregateFuncs = map[string]bool{
	"COUNT": true,
	"SUM":   true,
	"AVG":   true,
	"MIN":   true,
	"MAX":   true,
}

// IsAggregate reports whether the call is an aggregate function.
func (f *FuncCall) IsAggregate() bool {
	return aggregateFuncs[strings.ToUpper(f.Name)]
}

// InExpr represents expr [NOT] IN (values).
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
}

func (*InExpr) node()     {}
func (*InExpr) exprNode() {}

// LikeExpr represents expr [NOT] LIKE pattern [ESCAPE char].
type LikeExpr struct {
	Expr    Expr
	Not     bool
	Pattern Expr
	Escape  Expr
}

func (*LikeExpr) node()     {}
func (*LikeExpr) exprNode() {}

// IsNullExpr represents expr IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (*IsNullExpr) node()     {}
func (*IsNullExpr) exprNode() {}

// BetweenExpr represents expr [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

func (*BetweenExpr) node()     {}
func (*BetweenExpr) exprNode() {}

// CaseExpr represents a CASE expression.
type CaseExpr struct {
	Operand Expr // nil for searched CASE
	Whens   []WhenClause
	Else    Expr
}

func (*CaseExpr) node()     {}
func (*CaseExpr) exprNode() {}

// WhenClause is a WHEN ... THEN ... arm of a CASE expression.
type WhenClause struct {
	Condition Expr
	Result    Expr
}
