package query

import (
	"fmt"
	"strings"

	"github.com/rhema-dev/rhema/internal/rhema"
)

// OperatorInfo describes one CQL operator for registry lookups and
// observability surfaces (e.g. an HTTP endpoint listing supported
// operators), mirroring the shape of a filter-type registry entry.
type OperatorInfo struct {
	Operator    Operator
	Selectivity float64
	TakesList   bool // true for IN / NOT IN
	TakesValue  bool // false for IS NULL / IS NOT NULL
}

// operatorRegistry is the fixed table of supported CQL operators, the
// query-layer analogue of a filter registry: one static entry per
// supported operator rather than per HTTP parameter shape, since CQL's
// operator set is closed by spec rather than pluggable.
var operatorRegistry = buildOperatorRegistry()

func buildOperatorRegistry() map[Operator]OperatorInfo {
	reg := map[Operator]OperatorInfo{}
	list := func(op Operator, takesList, takesValue bool) {
		reg[op] = OperatorInfo{Operator: op, Selectivity: selectivityOf(op), TakesList: takesList, TakesValue: takesValue}
	}
	list(OpEq, false, true)
	list(OpNeq, false, true)
	list(OpGt, false, true)
	list(OpGte, false, true)
	list(OpLt, false, true)
	list(OpLte, false, true)
	list(OpLike, false, true)
	list(OpNotLike, false, true)
	list(OpIn, true, false)
	list(OpNotIn, true, false)
	list(OpContains, false, true)
	list(OpNotContain, false, true)
	list(OpIsNull, false, false)
	list(OpIsNotNull, false, false)
	return reg
}

// LookupOperator returns the registry entry for a CQL operator keyword.
func LookupOperator(text string) (OperatorInfo, bool) {
	info, ok := operatorRegistry[Operator(strings.ToUpper(text))]
	return info, ok
}

// SupportedOperators lists every operator CQL accepts, for observability
// endpoints describing the query surface.
func SupportedOperators() []OperatorInfo {
	out := make([]OperatorInfo, 0, len(operatorRegistry))
	for _, info := range operatorRegistry {
		out = append(out, info)
	}
	return out
}

// NewCondition builds a validated Condition from already-typed pieces,
// for callers (e.g. a transport layer translating structured filter
// parameters) that construct conditions without going through the CQL
// text parser.
func NewCondition(field string, op Operator, value rhema.Value, values []rhema.Value) (Condition, error) {
	info, ok := LookupOperator(string(op))
	if !ok {
		return Condition{}, fmt.Errorf("cql: unknown operator %q", op)
	}
	if info.TakesList && len(values) == 0 {
		return Condition{}, fmt.Errorf("cql: operator %q requires a value list", op)
	}
	return Condition{Field: field, Operator: op, Value: value, Values: values}, nil
}
