package countopt

import "fmt"

// UnresolvableAliasError indicates a clause references an alias that is
// neither declared as the root or a join alias nor a resolvable select alias.
type UnresolvableAliasError struct {
	Alias  string
	Clause string // WHERE, HAVING, GROUP BY or JOIN <alias>
}

func (e *UnresolvableAliasError) Error() string {
	return fmt.Sprintf("unknown alias %q in %s", e.Alias, e.Clause)
}

// AliasResolutionError indicates select-alias substitution did not reach a
// fixpoint, which happens when select aliases refer to each other in a cycle.
type AliasResolutionError struct {
	Alias  string
	Passes int
}

func (e *AliasResolutionError) Error() string {
	return fmt.Sprintf("select alias %q still unresolved after %d passes: cyclic alias definition", e.Alias, e.Passes)
}

// MalformedQueryError indicates the input violates a structural precondition.
type MalformedQueryError struct {
	Message string
}

func (e *MalformedQueryError) Error() string { return "malformed query: " + e.Message }

func errMalformed(format string, args ...interface{}) *MalformedQueryError {
	return &MalformedQueryError{Message: fmt.Sprintf(format, args...)}
}
