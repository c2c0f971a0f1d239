package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

func TestStore_EmptyByDefault(t *testing.T) {
	s := New()
	assert.Empty(t, s.ListScopes())
	_, ok := s.GetScope("nope")
	assert.False(t, ok)
}

func TestStore_Replace_PublishesScopes(t *testing.T) {
	s := New()
	result := &loader.Result{Scopes: map[string]*loader.ScopeData{
		"alpha": {
			Scope:     rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"},
			Knowledge: []rhema.Knowledge{{ID: "k-1", Title: "fact"}},
		},
	}}

	s.Replace(result)

	scopes := s.ListScopes()
	require.Len(t, scopes, 1)
	assert.Equal(t, "alpha", scopes[0].Path)

	k, ok := s.GetKnowledge("alpha")
	require.True(t, ok)
	assert.Len(t, k, 1)

	stats := s.Stats()
	assert.Equal(t, 1, stats.ScopeCount)
	assert.Equal(t, 1, stats.KnowledgeCount)
}

func TestStore_Replace_RecordsChanges(t *testing.T) {
	s := New()
	before := time.Now()

	result := &loader.Result{Scopes: map[string]*loader.ScopeData{
		"alpha": {Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"}},
	}}
	s.Replace(result)

	changes := s.ChangesSince(before)
	require.Len(t, changes, 1)
	assert.Equal(t, rhema.ChangeCreated, changes[0].Change)
	assert.Equal(t, "alpha", changes[0].Scope)
}

func TestStore_Replace_RemovedScopeRecordsChange(t *testing.T) {
	s := New()
	s.Replace(&loader.Result{Scopes: map[string]*loader.ScopeData{
		"alpha": {Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"}},
	}})

	mid := time.Now()
	s.Replace(&loader.Result{Scopes: map[string]*loader.ScopeData{}})

	changes := s.ChangesSince(mid)
	require.Len(t, changes, 1)
	assert.Equal(t, rhema.ChangeRemoved, changes[0].Change)
}

func TestStore_ReplaceScope_LeavesOthersUntouched(t *testing.T) {
	s := New()
	s.Replace(&loader.Result{Scopes: map[string]*loader.ScopeData{
		"alpha": {Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"}},
		"beta":  {Scope: rhema.Scope{Path: "beta", Name: "beta", Version: "1.0.0"}},
	}})

	s.ReplaceScope("alpha", &loader.ScopeData{
		Scope:     rhema.Scope{Path: "alpha", Name: "alpha", Version: "2.0.0"},
		Knowledge: []rhema.Knowledge{{ID: "k-1", Title: "new fact"}},
	})

	alpha, _ := s.GetScope("alpha")
	assert.Equal(t, "2.0.0", alpha.Version)

	beta, ok := s.GetScope("beta")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", beta.Version)
}

func TestStore_RemoveScope(t *testing.T) {
	s := New()
	s.Replace(&loader.Result{Scopes: map[string]*loader.ScopeData{
		"alpha": {Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"}},
	}})

	s.RemoveScope("alpha")

	_, ok := s.GetScope("alpha")
	assert.False(t, ok)
	assert.Empty(t, s.ListScopes())
}

func TestStore_GetScopeLockContext(t *testing.T) {
	s := New()
	s.Replace(&loader.Result{
		Scopes: map[string]*loader.ScopeData{
			"alpha": {Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"}},
		},
		Lock: &rhema.Lock{
			ScopeVersions: map[string]string{"alpha": "1.0.0"},
			Dependencies: map[string][]rhema.ResolvedDependency{
				"alpha": {{Name: "beta", Version: "1.0.0"}},
			},
		},
	})

	ctx, ok := s.GetScopeLockContext("alpha")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", ctx.Version)
	assert.Len(t, ctx.Dependencies, 1)

	_, ok = s.GetScopeLockContext("missing")
	assert.False(t, ok)
}

func TestStore_ConcurrentReadsDuringSwap(t *testing.T) {
	s := New()
	s.Replace(&loader.Result{Scopes: map[string]*loader.ScopeData{
		"alpha": {Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"}},
	}})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.ReplaceScope("alpha", &loader.ScopeData{Scope: rhema.Scope{Path: "alpha", Name: "alpha", Version: "1.0.0"}})
		}
		close(done)
	}()

	for i := 0; i < 100; i++ {
		_, ok := s.GetScope("alpha")
		assert.True(t, ok)
	}
	<-done
}
