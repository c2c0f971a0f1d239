package query

import "sort"

// Plan is the ordered step list the Planner derives from a Query, per
// spec.md §4.D: scope resolution -> file access -> condition filtering ->
// ordering -> limit/offset -> result assembly. It additionally carries the
// complexity/confidence scores attached for observability only; they do
// not affect execution.
type Plan struct {
	Query *Query

	// Conditions is Query.Conditions reordered by ascending selectivity
	// with duplicates removed, so cheaper-to-evaluate (more selective)
	// filters run first.
	Conditions []Condition

	// EffectiveLimit is Query.Limit clamped to the configured cap; zero
	// means unbounded (no LIMIT was given).
	EffectiveLimit int
	LimitClamped   bool

	Complexity float64
	Confidence float64
}

// DefaultLimitCap is the LIMIT ceiling used when a Planner has no positive
// LimitCap of its own. A query without LIMIT stays unbounded.
const DefaultLimitCap = 1000

// Planner turns a Query into an executable Plan.
type Planner struct {
	// LimitCap is the configurable ceiling LIMIT values are clamped to.
	LimitCap int
}

// NewPlanner returns a Planner using DefaultLimitCap.
func NewPlanner() *Planner {
	return &Planner{LimitCap: DefaultLimitCap}
}

// Plan builds an execution plan for q. optimize(plan) = plan applied to
// execute is semantics-preserving: reordering and deduplicating WHERE
// conditions never changes which rows match, only the order they are
// tested in.
func (p *Planner) Plan(q *Query) *Plan {
	limitCap := p.LimitCap
	if limitCap <= 0 {
		limitCap = DefaultLimitCap
	}

	plan := &Plan{
		Query:      q,
		Conditions: optimizeConditions(q.Conditions),
	}

	if q.HasLimit {
		plan.EffectiveLimit = q.Limit
		if q.Limit > limitCap {
			plan.EffectiveLimit = limitCap
			plan.LimitClamped = true
		}
	}

	plan.Complexity = complexityScore(q)
	plan.Confidence = confidenceScore(q)
	return plan
}

// optimizeConditions deduplicates equivalent conditions and sorts the
// remainder by ascending selectivity (more selective conditions, i.e.
// those expected to eliminate the most rows, run first).
func optimizeConditions(conditions []Condition) []Condition {
	seen := make(map[string]bool, len(conditions))
	out := make([]Condition, 0, len(conditions))
	for _, c := range conditions {
		k := c.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return selectivityOf(out[i].Operator) < selectivityOf(out[j].Operator)
	})
	return out
}

func selectivityOf(op Operator) float64 {
	if s, ok := selectivity[op]; ok {
		return s
	}
	return 0.5
}

// complexityScore is an observability-only heuristic: more conditions,
// ORDER BY fields, and a YAML path projection each add to perceived query
// cost. It never influences correctness.
func complexityScore(q *Query) float64 {
	score := 1.0
	score += float64(len(q.Conditions)) * 0.5
	score += float64(len(q.OrderBy)) * 0.25
	if q.YAMLPath != "" {
		score += 0.25
	}
	return score
}

// confidenceScore reflects how much of the plan is grounded in cheap,
// highly selective conditions versus expensive scans; purely descriptive.
func confidenceScore(q *Query) float64 {
	if len(q.Conditions) == 0 {
		return 0.5
	}
	total := 0.0
	for _, c := range q.Conditions {
		total += 1.0 - selectivityOf(c.Operator)
	}
	return total / float64(len(q.Conditions))
}
