package dql

import "strings"

// formatExpr dispatches expression formatting by type.
func (f *formatter) formatExpr(e Expr) {
	if e == nil {
		return
	}

	switch expr := e.(type) {
	case *Literal:
		f.formatLiteral(expr)
	case *PathExpr:
		f.write(expr.String())
	case *Param:
		f.write(expr.Placeholder())
	case *BinaryExpr:
		f.formatBinaryExpr(expr)
	case *UnaryExpr:
		f.formatUnaryExpr(expr)
	case *ParenExpr:
		f.write("(")
		f.formatExpr(expr.Expr)
		f.write(")")
	case *FuncCall:
		f.formatFuncCall(expr)
	case *InExpr:
		f.formatInExpr(expr)
	case *LikeExpr:
		f.formatLikeExpr(expr)
	case *IsNullExpr:
		f.formatExpr(expr.Expr)
		if expr.Not {
			f.write(" IS NOT NULL")
		} else {
			f.write(" IS NULL")
		}
	case *BetweenExpr:
		f.formatBetweenExpr(expr)
	case *CaseExpr:
		f.formatCaseExpr(expr)
	}
}

func (f *formatter) formatLiteral(lit *Literal) {
	switch lit.Type {
	case LiteralString:
		f.write("'")
		f.write(strings.ReplaceAll(lit.Value, "'", "''"))
		f.write("'")
	case LiteralBool:
		f.write(strings.ToLower(lit.Value))
	case LiteralNull:
		f.write("NULL")
	default:
		f.write(lit.Value)
	}
}

// ExprPrecedence returns the binding strength of an expression when it
// appears as an operand. Atoms bind tightest.
func ExprPrecedence(e Expr) int {
	switch expr := e.(type) {
	case *BinaryExpr:
		return binaryPrecedence(expr.Op)
	case *UnaryExpr:
		if expr.Op == TOKEN_NOT {
			return PrecedenceNot
		}
		return PrecedenceUnary
	case *InExpr, *LikeExpr, *IsNullExpr, *BetweenExpr:
		return PrecedenceComparison
	default:
		return PrecedenceUnary + 1
	}
}

// Associative reports whether a op (b op c) equals (a op b) op c.
func Associative(op TokenType) bool {
	switch op {
	case TOKEN_AND, TOKEN_OR, TOKEN_PLUS, TOKEN_STAR:
		return true
	}
	return false
}

// formatOperand writes e, parenthesized when it binds looser than min.
func (f *formatter) formatOperand(e Expr, min int) {
	if ExprPrecedence(e) < min {
		f.write("(")
		f.formatExpr(e)
		f.write(")")
		return
	}
	f.formatExpr(e)
}

func (f *formatter) formatBinaryExpr(expr *BinaryExpr) {
	prec := binaryPrecedence(expr.Op)
	f.formatOperand(expr.Left, prec)
	f.space()
	f.write(operatorString(expr.Op))
	f.space()
	if Associative(expr.Op) {
		f.formatOperand(expr.Right, prec)
	} else {
		f.formatOperand(expr.Right, prec+1)
	}
}

// operatorString returns the text for a token type used as an operator.
func operatorString(op TokenType) string {
	if name, ok := tokenNames[op]; ok {
		return name
	}
	return "?"
}

func (f *formatter) formatUnaryExpr(expr *UnaryExpr) {
	switch expr.Op {
	case TOKEN_NOT:
		f.write("NOT ")
		f.formatOperand(expr.Expr, PrecedenceNot)
	default:
		f.write(operatorString(expr.Op))
		f.formatOperand(expr.Expr, PrecedenceUnary)
	}
}

func (f *formatter) formatFuncCall(fn *FuncCall) {
	f.write(fn.Name)
	f.write("(")
	if fn.Distinct {
		f.write("DISTINCT ")
	}
	if fn.Star {
		f.write("*")
	} else {
		f.commaSep(len(fn.Args), func(i int) {
			f.formatExpr(fn.Args[i])
		})
	}
	f.write(")")
}

func (f *formatter) formatInExpr(expr *InExpr) {
	f.formatOperand(expr.Expr, PrecedenceComparison+1)
	if expr.Not {
		f.write(" NOT")
	}
	f.write(" IN (")
	f.commaSep(len(expr.Values), func(i int) {
		f.formatExpr(expr.Values[i])
	})
	f.write(")")
}

func (f *formatter) formatLikeExpr(expr *LikeExpr) {
	f.formatOperand(expr.Expr, PrecedenceComparison+1)
	if expr.Not {
		f.write(" NOT")
	}
	f.write(" LIKE ")
	f.formatOperand(expr.Pattern, PrecedenceAddition)
	if expr.Escape != nil {
		f.write(" ESCAPE ")
		f.formatOperand(expr.Escape, PrecedenceAddition)
	}
}

func (f *formatter) formatBetweenExpr(expr *BetweenExpr) {
	f.formatOperand(expr.Expr, PrecedenceComparison+1)
	if expr.Not {
		f.write(" NOT")
	}
	f.write(" BETWEEN ")
	f.formatOperand(expr.Low, PrecedenceAddition)
	f.write(" AND ")
	f.formatOperand(expr.High, PrecedenceAddition)
}

func (f *formatter) formatCaseExpr(expr *CaseExpr) {
	f.write("CASE")
	if expr.Operand != nil {
		f.space()
		f.formatExpr(expr.Operand)
	}
	for _, w := range expr.Whens {
		f.write(" WHEN ")
		f.formatExpr(w.Condition)
		f.write(" THEN ")
		f.formatExpr(w.Result)
	}
	if expr.Else != nil {
		f.write(" ELSE ")
		f.formatExpr(expr.Else)
	}
	f.write(" END")
}
