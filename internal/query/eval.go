package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rhema-dev/rhema/internal/rhema"
)

// matchAll reports whether every condition in conds holds for record.
func matchAll(record rhema.Value, conds []Condition) (bool, error) {
	for _, c := range conds {
		ok, err := matchOne(record, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchOne(record rhema.Value, c Condition) (bool, error) {
	field, found := record.Field(c.Field)

	switch c.Operator {
	case OpIsNull:
		return !found || field.IsNull(), nil
	case OpIsNotNull:
		return found && !field.IsNull(), nil
	}

	if !found {
		// every remaining operator requires a present field to compare against
		return false, nil
	}

	switch c.Operator {
	case OpEq:
		return rhema.Compare(field, c.Value) == 0, nil
	case OpNeq:
		return rhema.Compare(field, c.Value) != 0, nil
	case OpGt:
		return rhema.Compare(field, c.Value) > 0, nil
	case OpGte:
		return rhema.Compare(field, c.Value) >= 0, nil
	case OpLt:
		return rhema.Compare(field, c.Value) < 0, nil
	case OpLte:
		return rhema.Compare(field, c.Value) <= 0, nil
	case OpLike:
		return matchLike(field, c.Value), nil
	case OpNotLike:
		return !matchLike(field, c.Value), nil
	case OpIn:
		return matchIn(field, c.Values), nil
	case OpNotIn:
		return !matchIn(field, c.Values), nil
	case OpContains:
		return matchContains(field, c.Value), nil
	case OpNotContain:
		return !matchContains(field, c.Value), nil
	default:
		return false, fmt.Errorf("cql: unsupported operator %q", c.Operator)
	}
}

// matchLike implements SQL-style LIKE with % as a wildcard and _ as a
// single-character wildcard, compared case-sensitively against the
// field's string representation.
func matchLike(field, pattern rhema.Value) bool {
	fs, ok := field.AsString()
	if !ok {
		return false
	}
	ps, ok := pattern.AsString()
	if !ok {
		return false
	}
	return likeMatch(fs, ps)
}

// likeMatch implements SQL-style LIKE by translating the pattern into an
// anchored regular expression: '%' becomes ".*", '_' becomes ".", and every
// other rune is escaped literally.
func likeMatch(s, pattern string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func matchIn(field rhema.Value, values []rhema.Value) bool {
	for _, v := range values {
		if rhema.Compare(field, v) == 0 {
			return true
		}
	}
	return false
}

// matchContains checks membership for a Sequence field, or substring
// containment for a scalar one.
func matchContains(field, needle rhema.Value) bool {
	if field.Kind == rhema.KindSequence {
		for _, e := range field.Seq {
			if rhema.Compare(e, needle) == 0 {
				return true
			}
		}
		return false
	}
	fs, ok1 := field.AsString()
	ns, ok2 := needle.AsString()
	if !ok1 || !ok2 {
		return false
	}
	return strings.Contains(fs, ns)
}
