package sqlgen

import (
	"fmt"
	"reflect"
	"strings"

	"countopt/internal/dql"
	"countopt/internal/metadata"
)

func (b *builder) expr(e dql.Expr) error {
	switch expr := e.(type) {
	case *dql.PathExpr:
		return b.path(expr)
	case *dql.Literal:
		b.literal(expr)
		return nil
	case *dql.Param:
		ph, err := b.bindParam(expr, false)
		if err != nil {
			return err
		}
		b.buf.WriteString(ph[0])
		return nil
	case *dql.BinaryExpr:
		return b.binary(expr)
	case *dql.UnaryExpr:
		if expr.Op == dql.TOKEN_NOT {
			b.buf.WriteString("NOT ")
			return b.operand(expr.Expr, dql.PrecedenceNot)
		}
		b.buf.WriteString(expr.Op.String())
		return b.operand(expr.Expr, dql.PrecedenceUnary+1)
	case *dql.ParenExpr:
		b.buf.WriteString("(")
		if err := b.expr(expr.Expr); err != nil {
			return err
		}
		b.buf.WriteString(")")
		return nil
	case *dql.FuncCall:
		return b.funcCall(expr)
	case *dql.InExpr:
		return b.in(expr)
	case *dql.LikeExpr:
		return b.like(expr)
	case *dql.IsNullExpr:
		if err := b.operand(expr.Expr, dql.PrecedenceComparison+1); err != nil {
			return err
		}
		if expr.Not {
			b.buf.WriteString(" IS NOT NULL")
		} else {
			b.buf.WriteString(" IS NULL")
		}
		return nil
	case *dql.BetweenExpr:
		return b.between(expr)
	case *dql.CaseExpr:
		return b.caseExpr(expr)
	case nil:
		return fmt.Errorf("missing expression")
	default:
		return fmt.Errorf("unsupported expression %T", e)
	}
}

// operand renders e, parenthesized when it binds looser than min.
func (b *builder) operand(e dql.Expr, min int) error {
	if dql.ExprPrecedence(e) < min {
		b.buf.WriteString("(")
		if err := b.expr(e); err != nil {
			return err
		}
		b.buf.WriteString(")")
		return nil
	}
	return b.expr(e)
}

func (b *builder) binary(e *dql.BinaryExpr) error {
	prec := dql.ExprPrecedence(e)
	if err := b.operand(e.Left, prec); err != nil {
		return err
	}
	b.buf.WriteString(" " + e.Op.String() + " ")
	if dql.Associative(e.Op) {
		return b.operand(e.Right, prec)
	}
	return b.operand(e.Right, prec+1)
}

// path renders an alias reference as a column. A bare entity alias and a
// to-one association stand for the referenced identifier.
func (b *builder) path(p *dql.PathExpr) error {
	src, ok := b.sources[p.Alias]
	if !ok {
		if p.IsBare() && b.selectAliases[p.Alias] {
			if b.inJoin {
				return fmt.Errorf("select alias %q cannot be used in a join condition", p.Alias)
			}
			b.buf.WriteString(quoteIdent(p.Alias))
			return nil
		}
		return fmt.Errorf("unknown alias %q", p.Alias)
	}

	column, err := b.column(src.entity, p)
	if err != nil {
		return err
	}
	b.buf.WriteString(quoteIdent(src.alias) + "." + quoteIdent(column))
	return nil
}

func (b *builder) column(e *metadata.Entity, p *dql.PathExpr) (string, error) {
	switch len(p.Members) {
	case 0:
		return e.IDColumn(), nil
	case 1:
		member := p.Members[0]
		assoc, ok := e.Association(member)
		if !ok {
			return e.Column(member), nil
		}
		if assoc.Type != metadata.ManyToOne {
			return "", fmt.Errorf("%s is a collection; join it to compare its members", p)
		}
		return assoc.JoinColumn, nil
	case 2:
		assoc, target, err := b.g.registry.Target(e, p.Members[0])
		if err == nil && assoc.Type == metadata.ManyToOne && p.Members[1] == target.ID {
			return assoc.JoinColumn, nil
		}
	}
	return "", fmt.Errorf("path %s must be joined before it can be used", p)
}

func (b *builder) literal(lit *dql.Literal) {
	switch lit.Type {
	case dql.LiteralString:
		b.buf.WriteString(quoteString(lit.Value))
	case dql.LiteralBool:
		b.buf.WriteString(strings.ToUpper(lit.Value))
	case dql.LiteralNull:
		b.buf.WriteString("NULL")
	default:
		b.buf.WriteString(lit.Value)
	}
}

func (b *builder) funcCall(fn *dql.FuncCall) error {
	b.buf.WriteString(strings.ToUpper(fn.Name))
	b.buf.WriteString("(")
	if fn.Star {
		b.buf.WriteString("*")
	} else {
		if fn.Distinct {
			b.buf.WriteString("DISTINCT ")
		}
		for i, arg := range fn.Args {
			if i > 0 {
				b.buf.WriteString(", ")
			}
			if err := b.expr(arg); err != nil {
				return err
			}
		}
	}
	b.buf.WriteString(")")
	return nil
}

func (b *builder) in(e *dql.InExpr) error {
	if err := b.operand(e.Expr, dql.PrecedenceComparison+1); err != nil {
		return err
	}
	if e.Not {
		b.buf.WriteString(" NOT IN (")
	} else {
		b.buf.WriteString(" IN (")
	}
	n := 0
	for _, v := range e.Values {
		if p, ok := v.(*dql.Param); ok {
			phs, err := b.bindParam(p, true)
			if err != nil {
				return err
			}
			for _, ph := range phs {
				if n > 0 {
					b.buf.WriteString(", ")
				}
				b.buf.WriteString(ph)
				n++
			}
			continue
		}
		if n > 0 {
			b.buf.WriteString(", ")
		}
		if err := b.expr(v); err != nil {
			return err
		}
		n++
	}
	if n == 0 {
		// An empty list matches nothing.
		b.buf.WriteString("NULL")
	}
	b.buf.WriteString(")")
	return nil
}

func (b *builder) like(e *dql.LikeExpr) error {
	if err := b.operand(e.Expr, dql.PrecedenceComparison+1); err != nil {
		return err
	}
	if e.Not {
		b.buf.WriteString(" NOT LIKE ")
	} else {
		b.buf.WriteString(" LIKE ")
	}
	if err := b.operand(e.Pattern, dql.PrecedenceComparison+1); err != nil {
		return err
	}
	if e.Escape != nil {
		b.buf.WriteString(" ESCAPE ")
		return b.operand(e.Escape, dql.PrecedenceComparison+1)
	}
	return nil
}

func (b *builder) between(e *dql.BetweenExpr) error {
	if err := b.operand(e.Expr, dql.PrecedenceComparison+1); err != nil {
		return err
	}
	if e.Not {
		b.buf.WriteString(" NOT BETWEEN ")
	} else {
		b.buf.WriteString(" BETWEEN ")
	}
	if err := b.operand(e.Low, dql.PrecedenceAddition); err != nil {
		return err
	}
	b.buf.WriteString(" AND ")
	return b.operand(e.High, dql.PrecedenceAddition)
}

func (b *builder) caseExpr(e *dql.CaseExpr) error {
	b.buf.WriteString("CASE")
	if e.Operand != nil {
		b.buf.WriteString(" ")
		if err := b.expr(e.Operand); err != nil {
			return err
		}
	}
	for _, w := range e.Whens {
		b.buf.WriteString(" WHEN ")
		if err := b.expr(w.Condition); err != nil {
			return err
		}
		b.buf.WriteString(" THEN ")
		if err := b.expr(w.Result); err != nil {
			return err
		}
	}
	if e.Else != nil {
		b.buf.WriteString(" ELSE ")
		if err := b.expr(e.Else); err != nil {
			return err
		}
	}
	b.buf.WriteString(" END")
	return nil
}

// listValues reports whether v is a slice or array bound to an IN list.
// Byte slices are scalar values.
func listValues(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, isBytes := v.([]byte); isBytes {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
