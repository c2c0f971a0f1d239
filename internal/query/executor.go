package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/store"
)

var resourceFileNames = map[rhema.ResourceKind]string{
	rhema.KindKnowledge:   "knowledge.yaml",
	rhema.KindTodos:       "todos.yaml",
	rhema.KindDecisions:   "decisions.yaml",
	rhema.KindPatterns:    "patterns.yaml",
	rhema.KindConventions: "conventions.yaml",
	rhema.KindScopes:      "scope.yaml",
}

// ResultCache is the subset of the Cache Manager (component E) the
// Executor consults, keyed on a fingerprint derived from the plan. It is
// defined here rather than imported from internal/cache so the query
// package has no dependency on the cache implementation; internal/cache
// satisfies this interface.
type ResultCache interface {
	Get(key string) (*Result, bool)
	Set(key string, result *Result, ttl time.Duration)
}

// Executor runs a planned Query against the Context Store.
type Executor struct {
	store   *store.Store
	planner *Planner
	cache   ResultCache
	cacheTTL time.Duration
}

// NewExecutor returns an Executor reading from s. A nil cache disables
// result caching (every execution is a miss).
func NewExecutor(s *store.Store, cache ResultCache) *Executor {
	return &Executor{store: s, planner: NewPlanner(), cache: cache, cacheTTL: 30 * time.Second}
}

// Execute parses, plans, and runs a CQL statement, returning the result
// plus per-query metrics for observability.
func (e *Executor) Execute(cql string) (*Result, *Metrics, error) {
	q, err := Parse(cql)
	if err != nil {
		return nil, nil, err
	}
	return e.ExecuteQuery(q)
}

// ExecuteQuery runs an already-parsed Query, useful for callers that build
// a Query programmatically instead of through CQL text.
func (e *Executor) ExecuteQuery(q *Query) (*Result, *Metrics, error) {
	start := time.Now()
	plan := e.planner.Plan(q)

	key := FingerprintKey(q)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached, &Metrics{
				Duration:    int64(time.Since(start)),
				ResultCount: resultCount(cached),
				CacheHit:    true,
				Plan:        plan,
			}, nil
		}
	}

	result, err := e.run(plan)
	if err != nil {
		return nil, nil, err
	}

	if e.cache != nil {
		e.cache.Set(key, result, e.cacheTTL)
	}

	return result, &Metrics{
		Duration:            int64(time.Since(start)),
		ResultCount:         resultCount(result),
		CacheHit:            false,
		OptimizationApplied: len(plan.Conditions) != len(plan.Query.Conditions) || plan.LimitClamped,
		Plan:                plan,
	}, nil
}

func resultCount(r *Result) int {
	if r.Single {
		return 1
	}
	return len(r.Rows)
}

func (e *Executor) run(plan *Plan) (*Result, error) {
	q := plan.Query
	filename, ok := resourceFileNames[q.Target]
	if !ok {
		return nil, fmt.Errorf("cql: unknown target resource %q", q.Target)
	}

	scopePaths := e.resolveScopes(q.ScopeGlob)

	var rows []Row
	for _, scopePath := range scopePaths {
		records, err := e.recordsForScope(scopePath, q.Target)
		if err != nil {
			return nil, err
		}

		for _, rec := range records {
			val, err := toValue(rec)
			if err != nil {
				return nil, fmt.Errorf("cql: projecting %s: %w", scopePath, err)
			}

			projected := val
			if q.YAMLPath != "" {
				p, found := val.Field(q.YAMLPath)
				if !found {
					continue
				}
				projected = p
			}

			ok, err := matchAll(val, plan.Conditions)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			rows = append(rows, Row{Scope: scopePath, File: filename, Path: q.YAMLPath, Data: projected})
		}
	}

	sortRows(rows, q.OrderBy)

	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.Offset:]
		}
	}
	if plan.EffectiveLimit > 0 && len(rows) > plan.EffectiveLimit {
		rows = rows[:plan.EffectiveLimit]
	}

	if len(rows) == 1 && q.YAMLPath != "" {
		return &Result{Single: true, Value: rows[0].Data}, nil
	}
	return &Result{Rows: rows}, nil
}

// recordsForScope fetches every record of kind in scopePath as a slice of
// concrete structs (rhema.Knowledge, rhema.Todo, ...), ready for toValue.
func (e *Executor) recordsForScope(scopePath string, kind rhema.ResourceKind) ([]interface{}, error) {
	switch kind {
	case rhema.KindKnowledge:
		recs, ok := e.store.GetKnowledge(scopePath)
		return wrapSlice(recs, ok), nil
	case rhema.KindTodos:
		recs, ok := e.store.GetTodos(scopePath)
		return wrapSlice(recs, ok), nil
	case rhema.KindDecisions:
		recs, ok := e.store.GetDecisions(scopePath)
		return wrapSlice(recs, ok), nil
	case rhema.KindPatterns:
		recs, ok := e.store.GetPatterns(scopePath)
		return wrapSlice(recs, ok), nil
	case rhema.KindConventions:
		recs, ok := e.store.GetConventions(scopePath)
		return wrapSlice(recs, ok), nil
	case rhema.KindScopes:
		scope, ok := e.store.GetScope(scopePath)
		if !ok {
			return nil, nil
		}
		return []interface{}{scope}, nil
	default:
		return nil, fmt.Errorf("cql: unknown target resource %q", kind)
	}
}

func wrapSlice[T any](recs []T, ok bool) []interface{} {
	if !ok {
		return nil
	}
	out := make([]interface{}, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out
}

// resolveScopes expands a scope glob into the concrete scope paths it
// addresses. An empty glob or "*" addresses every scope; "./" and "../"
// relative prefixes fall back to every scope too, matching the original
// resolver's own not-fully-resolved relative-path handling; anything else
// is treated as an explicit scope path.
func (e *Executor) resolveScopes(glob string) []string {
	all := e.store.ListScopes()
	paths := make([]string, len(all))
	for i, s := range all {
		paths[i] = s.Path
	}

	switch {
	case glob == "" || glob == "*":
		return paths
	case strings.HasPrefix(glob, "./") || strings.HasPrefix(glob, "../"):
		return paths
	default:
		for _, p := range paths {
			if p == glob {
				return []string{p}
			}
		}
		return nil
	}
}

func sortRows(rows []Row, order []OrderClause) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			a, _ := rows[i].Data.Field(o.Field)
			b, _ := rows[j].Data.Field(o.Field)
			c := rhema.Compare(a, b)
			if c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
