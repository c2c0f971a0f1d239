package store

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// defaultChangeBufferSize bounds the in-memory change ring buffer consumed
// by changes_since; oldest entries are dropped once it is exceeded.
const defaultChangeBufferSize = 4096

// Stats is the aggregate view returned by get_stats.
type Stats struct {
	ScopeCount       int
	KnowledgeCount   int
	TodoCount        int
	DecisionCount    int
	PatternCount     int
	ConventionCount  int
	DegradedScopes   int
	LastUpdated      time.Time
}

// Store holds the authoritative in-memory model. Reads acquire a single
// atomic load of the current Snapshot pointer; writers serialize through
// swapMu so the Loader and Watcher cannot race each other, but readers are
// never blocked by a swap in progress — they see either the old or the new
// snapshot, never a torn one.
type Store struct {
	current atomic.Pointer[Snapshot]

	swapMu sync.Mutex

	changesMu sync.Mutex
	changes   []rhema.ChangeRecord
	seq       int64
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot())
	return s
}

func (s *Store) snapshot() *Snapshot {
	return s.current.Load()
}

// ListScopes returns a copy of every known scope, ordered by path.
func (s *Store) ListScopes() []rhema.Scope {
	snap := s.snapshot()
	out := make([]rhema.Scope, 0, len(snap.Scopes))
	for _, sc := range snap.Scopes {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// GetScope returns a copy of the scope at path, if known.
func (s *Store) GetScope(path string) (rhema.Scope, bool) {
	sc, ok := s.snapshot().Scopes[path]
	return sc, ok
}

// GetKnowledge returns the knowledge records for a scope.
func (s *Store) GetKnowledge(path string) ([]rhema.Knowledge, bool) {
	v, ok := s.snapshot().Knowledge[path]
	return v, ok
}

// GetTodos returns the todo records for a scope.
func (s *Store) GetTodos(path string) ([]rhema.Todo, bool) {
	v, ok := s.snapshot().Todos[path]
	return v, ok
}

// GetDecisions returns the decision records for a scope.
func (s *Store) GetDecisions(path string) ([]rhema.Decision, bool) {
	v, ok := s.snapshot().Decisions[path]
	return v, ok
}

// GetPatterns returns the pattern records for a scope.
func (s *Store) GetPatterns(path string) ([]rhema.Pattern, bool) {
	v, ok := s.snapshot().Patterns[path]
	return v, ok
}

// GetConventions returns the convention records for a scope.
func (s *Store) GetConventions(path string) ([]rhema.Convention, bool) {
	v, ok := s.snapshot().Conventions[path]
	return v, ok
}

// GetLock returns the current resolved dependency lock, if one was loaded.
func (s *Store) GetLock() (*rhema.Lock, bool) {
	lock := s.snapshot().Lock
	return lock, lock != nil
}

// ScopeLockContext is the per-scope slice of the Lock relevant to one scope.
type ScopeLockContext struct {
	ScopePath    string
	Version      string
	Dependencies []rhema.ResolvedDependency
}

// GetScopeLockContext projects the Lock down to the entries relevant to one
// scope.
func (s *Store) GetScopeLockContext(path string) (ScopeLockContext, bool) {
	lock, ok := s.GetLock()
	if !ok {
		return ScopeLockContext{}, false
	}
	version, hasVersion := lock.ScopeVersions[path]
	if !hasVersion {
		return ScopeLockContext{}, false
	}
	return ScopeLockContext{
		ScopePath:    path,
		Version:      version,
		Dependencies: lock.Dependencies[path],
	}, true
}

// Stats returns aggregate counts over the current snapshot.
func (s *Store) Stats() Stats {
	snap := s.snapshot()
	stats := Stats{LastUpdated: snap.LastUpdated, ScopeCount: len(snap.Scopes)}
	for _, sc := range snap.Scopes {
		if sc.Degraded {
			stats.DegradedScopes++
		}
	}
	for _, v := range snap.Knowledge {
		stats.KnowledgeCount += len(v)
	}
	for _, v := range snap.Todos {
		stats.TodoCount += len(v)
	}
	for _, v := range snap.Decisions {
		stats.DecisionCount += len(v)
	}
	for _, v := range snap.Patterns {
		stats.PatternCount += len(v)
	}
	for _, v := range snap.Conventions {
		stats.ConventionCount += len(v)
	}
	return stats
}

// ChangesSince returns change records appended after ts, oldest first.
func (s *Store) ChangesSince(ts time.Time) []rhema.ChangeRecord {
	s.changesMu.Lock()
	defer s.changesMu.Unlock()

	out := make([]rhema.ChangeRecord, 0)
	for _, c := range s.changes {
		if c.Timestamp.After(ts) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) appendChange(scope string, kind rhema.ResourceKind, path string, change rhema.ChangeKind) {
	s.changesMu.Lock()
	defer s.changesMu.Unlock()

	s.seq++
	s.changes = append(s.changes, rhema.ChangeRecord{
		Sequence:  s.seq,
		Timestamp: time.Now(),
		Scope:     scope,
		Kind:      kind,
		Path:      path,
		Change:    change,
	})
	if len(s.changes) > defaultChangeBufferSize {
		s.changes = s.changes[len(s.changes)-defaultChangeBufferSize:]
	}
}

// Replace builds a new Snapshot from an admitted loader.Result (validated by
// the Validator before this is called) and atomically publishes it,
// recording one change per affected scope. This is the full-repository
// path used on startup and on a manual reload; the Watcher uses
// ReplaceScope for targeted partial updates.
func (s *Store) Replace(result *loader.Result) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	prev := s.snapshot()
	next := emptySnapshot()
	if result.Lock != nil {
		next.Lock = result.Lock
	} else {
		next.Lock = prev.Lock
	}

	for path, data := range result.Scopes {
		next.Scopes[path] = data.Scope
		next.Knowledge[path] = data.Knowledge
		next.Todos[path] = data.Todos
		next.Decisions[path] = data.Decisions
		next.Patterns[path] = data.Patterns
		next.Conventions[path] = data.Conventions
	}

	s.current.Store(next)

	for path := range result.Scopes {
		kind := rhema.ChangeCreated
		if _, existed := prev.Scopes[path]; existed {
			kind = rhema.ChangeUpdated
		}
		if result.Scopes[path].Scope.Degraded {
			kind = rhema.ChangeDegraded
		}
		s.appendChange(path, rhema.KindScopes, path, kind)
	}
	for path := range prev.Scopes {
		if _, stillPresent := result.Scopes[path]; !stillPresent {
			s.appendChange(path, rhema.KindScopes, path, rhema.ChangeRemoved)
		}
	}
}

// ReplaceScope atomically swaps in one scope's data (used by the Watcher
// after a successful targeted reparse+revalidate), leaving every other
// scope untouched.
func (s *Store) ReplaceScope(path string, data *loader.ScopeData) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	prev := s.snapshot()
	next := prev.clone()

	_, existed := next.Scopes[path]
	next.Scopes[path] = data.Scope
	next.Knowledge[path] = data.Knowledge
	next.Todos[path] = data.Todos
	next.Decisions[path] = data.Decisions
	next.Patterns[path] = data.Patterns
	next.Conventions[path] = data.Conventions
	next.LastUpdated = time.Now()

	s.current.Store(next)

	kind := rhema.ChangeCreated
	if existed {
		kind = rhema.ChangeUpdated
	}
	if data.Scope.Degraded {
		kind = rhema.ChangeDegraded
	}
	s.appendChange(path, rhema.KindScopes, path, kind)
}

// RemoveScope atomically drops one scope from the snapshot.
func (s *Store) RemoveScope(path string) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	prev := s.snapshot()
	if _, ok := prev.Scopes[path]; !ok {
		return
	}
	next := prev.clone()
	delete(next.Scopes, path)
	delete(next.Knowledge, path)
	delete(next.Todos, path)
	delete(next.Decisions, path)
	delete(next.Patterns, path)
	delete(next.Conventions, path)
	next.LastUpdated = time.Now()

	s.current.Store(next)
	s.appendChange(path, rhema.KindScopes, path, rhema.ChangeRemoved)
}
