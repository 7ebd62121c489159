package dql

// === Query Nodes ===

// QuerySpec is a structured select query over entities.
type QuerySpec struct {
	From    *FromClause
	Joins   []*Join
	Select  []*SelectItem
	Where   Expr
	GroupBy []Expr
	Having  Expr
	OrderBy []*OrderItem

	// Params holds bound values keyed by placeholder name without its
	// prefix: "test" for :test, "0" for ?0.
	Params map[string]any

	// Pagination is not part of the text form; zero means unset.
	FirstResult int
	MaxResults  int
}

func (*QuerySpec) node() {}

// FromClause is the root source of a query.
type FromClause struct {
	Entity string
	Alias  string
}

// JoinKind distinguishes inner from left outer joins.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

func (k JoinKind) String() string {
	if k == JoinLeft {
		return "LEFT"
	}
	return "INNER"
}

// ConditionType is the keyword that introduced a join condition.
type ConditionType int

const (
	ConditionWith ConditionType = iota
	ConditionOn
)

func (c ConditionType) String() string {
	if c == ConditionOn {
		return "ON"
	}
	return "WITH"
}

// JoinTarget is either an entity name or an association path.
// Exactly one of Entity and Path is set.
type JoinTarget struct {
	Entity string
	Path   *PathExpr
}

// IsAssociation reports whether the target follows an association path.
func (t JoinTarget) IsAssociation() bool {
	return t.Path != nil
}

// String returns the target text.
func (t JoinTarget) String() string {
	if t.Path != nil {
		return t.Path.String()
	}
	return t.Entity
}

// Join is a single JOIN clause.
type Join struct {
	Kind          JoinKind
	Target        JoinTarget
	Alias         string
	ConditionType ConditionType
	Condition     Expr // nil when the join has no condition
}

func (*Join) node() {}

// SelectItem is one projected expression with an optional alias.
type SelectItem struct {
	Expr  Expr
	Alias string
}

func (*SelectItem) node() {}

// OrderItem is one ORDER BY entry.
type OrderItem struct {
	Expr Expr
	Desc bool
}

func (*OrderItem) node() {}

// Aliases returns the root alias followed by every join alias in
// declaration order.
func (q *QuerySpec) Aliases() []string {
	out := make([]string, 0, len(q.Joins)+1)
	if q.From != nil {
		out = append(out, q.From.Alias)
	}
	for _, j := range q.Joins {
		out = append(out, j.Alias)
	}
	return out
}

// JoinByAlias returns the join declared under alias, if any.
func (q *QuerySpec) JoinByAlias(alias string) (*Join, bool) {
	for _, j := range q.Joins {
		if j.Alias == alias {
			return j, true
		}
	}
	return nil, false
}
