// Package query implements the Query Engine (component D): a fixed CQL
// grammar is lexed, parsed into an AST, planned (selectivity-driven WHERE
// reordering, deduplication, LIMIT clamping), and executed against the
// Context Store.
//
// Grammar: target[.yamlPath] [WHERE cond (AND cond)*] [ORDER BY field
// (ASC|DESC) (, ...)] [LIMIT n] [OFFSET n]
package query

import "github.com/rhema-dev/rhema/internal/rhema"

// Operator is one of the fixed CQL comparison operators.
type Operator string

const (
	OpEq         Operator = "="
	OpNeq        Operator = "!="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpLike       Operator = "LIKE"
	OpNotLike    Operator = "NOT LIKE"
	OpIn         Operator = "IN"
	OpNotIn      Operator = "NOT IN"
	OpContains   Operator = "CONTAINS"
	OpNotContain Operator = "NOT CONTAINS"
	OpIsNull     Operator = "IS NULL"
	OpIsNotNull  Operator = "IS NOT NULL"
)

// selectivity mirrors spec.md's fixed WHERE-reordering table; lower values
// sort first since they are assumed to eliminate more rows.
var selectivity = map[Operator]float64{
	OpEq:         0.1,
	OpIsNull:     0.05,
	OpLike:       0.3,
	OpIn:         0.2,
	OpGt:         0.5,
	OpGte:        0.5,
	OpLt:         0.5,
	OpLte:        0.5,
	OpNeq:        0.6,
	OpNotLike:    0.7,
	OpNotIn:      0.7,
	OpNotContain: 0.8,
	OpIsNotNull:  0.9,
	OpContains:   0.4,
}

// Condition is a single WHERE clause, field compared against a literal
// value (or a list of values for IN/NOT IN).
type Condition struct {
	Field    string
	Operator Operator
	Value    rhema.Value
	Values   []rhema.Value // populated for IN / NOT IN
}

// key returns a stable string used for deduplicating equivalent conditions.
func (c Condition) key() string {
	s := string(c.Field) + "|" + string(c.Operator) + "|"
	if len(c.Values) > 0 {
		for _, v := range c.Values {
			s += v.GoString() + ","
		}
		return s
	}
	return s + c.Value.GoString()
}

// SortDirection is ASC or DESC in an ORDER BY clause.
type SortDirection string

const (
	Asc  SortDirection = "ASC"
	Desc SortDirection = "DESC"
)

// OrderClause is one field in an ORDER BY list.
type OrderClause struct {
	Field     string
	Direction SortDirection
}

// Query is the parsed form of a CQL statement, prior to planning.
type Query struct {
	Target     rhema.ResourceKind
	ScopeGlob  string // "" (implicit current/all), "*", "./x", "../x", or an explicit scope path
	YAMLPath   string
	Conditions []Condition
	OrderBy    []OrderClause
	Limit      int
	HasLimit   bool
	Offset     int
}
