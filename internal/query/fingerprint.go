package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// FingerprintKey derives a stable cache key for q from its scope prefix,
// target, YAML path, a stably hashed condition list, the stable order
// list, and limit/offset, per spec.md §4.D. Equivalent queries (same
// conditions in a different textual order) fingerprint identically since
// conditions are sorted before hashing.
func FingerprintKey(q *Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scope=%s|target=%s|path=%s|", q.ScopeGlob, q.Target, q.YAMLPath)

	condKeys := make([]string, len(q.Conditions))
	for i, c := range q.Conditions {
		condKeys[i] = c.key()
	}
	sort.Strings(condKeys)
	b.WriteString("cond=")
	b.WriteString(strings.Join(condKeys, "&"))

	b.WriteString("|order=")
	orderParts := make([]string, len(q.OrderBy))
	for i, o := range q.OrderBy {
		orderParts[i] = o.Field + ":" + string(o.Direction)
	}
	b.WriteString(strings.Join(orderParts, ","))

	fmt.Fprintf(&b, "|limit=%d|hasLimit=%t|offset=%d", q.Limit, q.HasLimit, q.Offset)

	sum := sha256.Sum256([]byte(b.String()))
	return "cql:" + hex.EncodeToString(sum[:])
}
