// Package rhema holds the shared domain types for scopes, resources, locks,
// and the dynamic value representation used by CQL projections.
package rhema

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a tagged sum mirroring the dynamic YAML/JSON value the original
// source represents with serde_yaml::Value. Keeping one concrete type here
// (instead of interface{} sprinkled through the query layer) makes numeric
// promotion and YAML<->JSON round-tripping lossless and explicit.
type Value struct {
	Kind ValueKind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
	Seq  []Value
	Map  map[string]Value
	// MapOrder lists the keys in sorted order for deterministic re-serialization.
	MapOrder []string
}

func Null() Value                  { return Value{Kind: KindNull} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value            { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value        { return Value{Kind: KindFloat, Flt: f} }
func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Sequence(v []Value) Value     { return Value{Kind: KindSequence, Seq: v} }

func Mapping(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Value{Kind: KindMapping, Map: m, MapOrder: keys}
}

// IsNull reports whether the value is the Null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsFloat promotes Int/Float to float64; returns false for other kinds.
// This is the one place numeric promotion happens, per spec.md §9.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Flt, true
	default:
		return 0, false
	}
}

// AsString renders scalar kinds as a string for LIKE/CONTAINS comparisons.
func (v Value) AsString() (string, bool) {
	switch v.Kind {
	case KindString:
		return v.Str, true
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	case KindInt:
		return strconv.FormatInt(v.Int, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64), true
	default:
		return "", false
	}
}

// Field projects a dotted YAML path out of a Mapping/Sequence value, e.g.
// "metadata.owner" or "items.0.name". Returns Null and false if any segment
// is missing.
func (v Value) Field(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	segs := splitPath(path)
	cur := v
	for _, seg := range segs {
		switch cur.Kind {
		case KindMapping:
			next, ok := cur.Map[seg]
			if !ok {
				return Null(), false
			}
			cur = next
		case KindSequence:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.Seq) {
				return Null(), false
			}
			cur = cur.Seq[idx]
		default:
			return Null(), false
		}
	}
	return cur, true
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

// Compare orders two values for ORDER BY. Mixed-kind comparisons fall back
// to string representation. Returns -1, 0, 1.
func Compare(a, b Value) int {
	if af, aok := a.AsFloat(); aok {
		if bf, bok := b.AsFloat(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, _ := a.AsString()
	bs, _ := b.AsString()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

// GoString renders a Value for debugging/error messages.
func (v Value) GoString() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Flt)
	case KindString:
		return v.Str
	default:
		return v.Kind.String()
	}
}

// FromInterface converts a decoded YAML/JSON interface{} tree (as produced by
// yaml.v3 or encoding/json Unmarshal into interface{}) into a Value tree.
func FromInterface(in interface{}) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case time.Time:
		return String(t.Format(time.RFC3339))
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []interface{}:
		seq := make([]Value, len(t))
		for i, e := range t {
			seq[i] = FromInterface(e)
		}
		return Sequence(seq)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromInterface(e)
		}
		return Mapping(m)
	case map[interface{}]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[fmt.Sprintf("%v", k)] = FromInterface(e)
		}
		return Mapping(m)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// ToInterface converts a Value tree back into plain interface{} for JSON
// encoding.
func (v Value) ToInterface() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Flt
	case KindString:
		return v.Str
	case KindSequence:
		out := make([]interface{}, len(v.Seq))
		for i, e := range v.Seq {
			out[i] = e.ToInterface()
		}
		return out
	case KindMapping:
		out := make(map[string]interface{}, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.ToInterface()
		}
		return out
	default:
		return nil
	}
}
