package query

import "github.com/rhema-dev/rhema/internal/rhema"

// Row is one {scope, file, path, data} tuple, the shape spec.md mandates
// for any query whose result is not a single value.
type Row struct {
	Scope string
	File  string
	Path  string
	Data  rhema.Value
}

// Result is what Execute returns: either a single projected value (a
// single-target, single-projection query that resolved to exactly one
// record) or a sequence of Rows.
type Result struct {
	Single bool
	Value  rhema.Value
	Rows   []Row
}

// Metrics is recorded per query execution for observability, per
// spec.md §4.D.
type Metrics struct {
	Duration          int64 // nanoseconds
	ResultCount       int
	CacheHit          bool
	OptimizationApplied bool
	Plan              *Plan
}
