package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	now := time.Now().Add(-time.Hour)
	due := now.Add(-48 * time.Hour)

	s := store.New()
	s.Replace(&loader.Result{Scopes: map[string]*loader.ScopeData{
		"alpha": {
			Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"},
			Todos: []rhema.Todo{
				{ID: "t-1", Title: "fix auth", Status: rhema.StatusOpen, Assignee: "alice", CreatedAt: now, UpdatedAt: now},
				{ID: "t-2", Title: "write docs", Status: rhema.StatusOpen, Assignee: "bob", CreatedAt: now, UpdatedAt: now, DueDate: &due},
				{ID: "t-3", Title: "ship release", Status: rhema.StatusCompleted, Assignee: "alice", CreatedAt: now, UpdatedAt: now},
			},
			Knowledge: []rhema.Knowledge{
				{ID: "k-1", Title: "fact one", Tags: []string{"infra", "cache"}, CreatedAt: now, UpdatedAt: now},
			},
		},
		"beta": {
			Scope: rhema.Scope{Path: "beta", Name: "beta", Version: "1.0.0"},
			Todos: []rhema.Todo{
				{ID: "t-4", Title: "beta task", Status: rhema.StatusOpen, Assignee: "carol", CreatedAt: now, UpdatedAt: now},
			},
		},
	}})
	return s
}

func TestParse_TargetAndWhere(t *testing.T) {
	q, err := Parse(`todos WHERE status='Open' AND assignee='alice'`)
	require.NoError(t, err)
	assert.Equal(t, rhema.KindTodos, q.Target)
	require.Len(t, q.Conditions, 2)
	assert.Equal(t, "status", q.Conditions[0].Field)
	assert.Equal(t, OpEq, q.Conditions[0].Operator)
}

func TestParse_TargetWithYAMLPathAndOrderLimitOffset(t *testing.T) {
	q, err := Parse(`knowledge.tags ORDER BY title DESC LIMIT 10 OFFSET 5`)
	require.NoError(t, err)
	assert.Equal(t, rhema.KindKnowledge, q.Target)
	assert.Equal(t, "tags", q.YAMLPath)
	require.Len(t, q.OrderBy, 1)
	assert.Equal(t, Desc, q.OrderBy[0].Direction)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 5, q.Offset)
}

func TestParse_WildcardScopeGlob(t *testing.T) {
	q, err := Parse(`*/todos WHERE status='Open'`)
	require.NoError(t, err)
	assert.Equal(t, "*", q.ScopeGlob)
	assert.Equal(t, rhema.KindTodos, q.Target)
}

func TestParse_RejectsUnknownTarget(t *testing.T) {
	_, err := Parse(`widgets WHERE a=1`)
	assert.Error(t, err)
}

func TestParse_InOperator(t *testing.T) {
	q, err := Parse(`todos WHERE status IN ('Open', 'InProgress')`)
	require.NoError(t, err)
	require.Len(t, q.Conditions, 1)
	assert.Equal(t, OpIn, q.Conditions[0].Operator)
	assert.Len(t, q.Conditions[0].Values, 2)
}

func TestParse_IsNullOperator(t *testing.T) {
	q, err := Parse(`todos WHERE due_date IS NULL`)
	require.NoError(t, err)
	require.Len(t, q.Conditions, 1)
	assert.Equal(t, OpIsNull, q.Conditions[0].Operator)
}

func TestPlanner_DeduplicatesAndReordersBySelectivity(t *testing.T) {
	q, err := Parse(`todos WHERE status='Open' AND assignee='alice' AND status='Open'`)
	require.NoError(t, err)

	plan := NewPlanner().Plan(q)
	require.Len(t, plan.Conditions, 2)
	// assignee='alice' and status='Open' both have selectivity 0.1 (both "=");
	// dedup must drop the repeated status clause regardless of ordering.
	seen := map[string]bool{}
	for _, c := range plan.Conditions {
		seen[c.Field] = true
	}
	assert.True(t, seen["status"])
	assert.True(t, seen["assignee"])
}

func TestPlanner_ClampsLimitToCap(t *testing.T) {
	q, err := Parse(`todos LIMIT 5000`)
	require.NoError(t, err)

	planner := &Planner{LimitCap: 100}
	plan := planner.Plan(q)
	assert.Equal(t, 100, plan.EffectiveLimit)
	assert.True(t, plan.LimitClamped)
}

func TestExecutor_FiltersAndOrdersAcrossScopes(t *testing.T) {
	s := seedStore(t)
	exec := NewExecutor(s, nil)

	result, metrics, err := exec.Execute(`*/todos WHERE status='Open' ORDER BY assignee ASC`)
	require.NoError(t, err)
	require.False(t, result.Single)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, "alice", mustString(t, result.Rows[0].Data, "assignee"))
	assert.Equal(t, "bob", mustString(t, result.Rows[1].Data, "assignee"))
	assert.Equal(t, "carol", mustString(t, result.Rows[2].Data, "assignee"))
	assert.Equal(t, 3, metrics.ResultCount)
	assert.False(t, metrics.CacheHit)
}

func TestExecutor_ScopesTargetIsExplicit(t *testing.T) {
	s := seedStore(t)
	exec := NewExecutor(s, nil)

	result, _, err := exec.Execute(`alpha/todos WHERE assignee='alice'`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	for _, row := range result.Rows {
		assert.Equal(t, "alpha", row.Scope)
	}
}

func TestExecutor_LikeOperator(t *testing.T) {
	s := seedStore(t)
	exec := NewExecutor(s, nil)

	result, _, err := exec.Execute(`todos WHERE title LIKE '%release%'`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "ship release", mustString(t, result.Rows[0].Data, "title"))
}

func TestExecutor_ContainsOperatorOnSequence(t *testing.T) {
	s := seedStore(t)
	exec := NewExecutor(s, nil)

	result, _, err := exec.Execute(`knowledge WHERE tags CONTAINS 'cache'`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
}

func TestExecutor_LimitOffset(t *testing.T) {
	s := seedStore(t)
	exec := NewExecutor(s, nil)

	result, _, err := exec.Execute(`todos ORDER BY id ASC LIMIT 1 OFFSET 1`)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
}

type memCache struct {
	entries map[string]*Result
}

func newMemCache() *memCache { return &memCache{entries: map[string]*Result{}} }

func (m *memCache) Get(key string) (*Result, bool) {
	r, ok := m.entries[key]
	return r, ok
}

func (m *memCache) Set(key string, result *Result, ttl time.Duration) {
	m.entries[key] = result
}

func TestExecutor_CacheHitOnSecondExecution(t *testing.T) {
	s := seedStore(t)
	cache := newMemCache()
	exec := NewExecutor(s, cache)

	_, metrics1, err := exec.Execute(`todos WHERE status='Open'`)
	require.NoError(t, err)
	assert.False(t, metrics1.CacheHit)

	_, metrics2, err := exec.Execute(`todos WHERE status='Open'`)
	require.NoError(t, err)
	assert.True(t, metrics2.CacheHit)
}

func mustString(t *testing.T, v rhema.Value, field string) string {
	t.Helper()
	f, ok := v.Field(field)
	require.True(t, ok)
	s, ok := f.AsString()
	require.True(t, ok)
	return s
}
