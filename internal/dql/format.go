package dql

import "strings"

// Format formats a query back to its textual form.
// The output is flat (no pretty-printing); identifiers are written as-is.
func Format(q *QuerySpec) string {
	f := &formatter{}
	f.formatQuery(q)
	return strings.TrimSpace(f.buf.String())
}

// FormatExpr formats an expression back to its textual form.
func FormatExpr(expr Expr) string {
	f := &formatter{}
	f.formatExpr(expr)
	return strings.TrimSpace(f.buf.String())
}

// formatter is a simple string builder. No indentation or pretty-printing.
type formatter struct {
	buf strings.Builder
}

func (f *formatter) write(s string) {
	f.buf.WriteString(s)
}

func (f *formatter) space() {
	f.buf.WriteByte(' ')
}

// commaSep writes items separated by ", ".
func (f *formatter) commaSep(n int, fn func(i int)) {
	for i := 0; i < n; i++ {
		if i > 0 {
			f.write(", ")
		}
		fn(i)
	}
}
