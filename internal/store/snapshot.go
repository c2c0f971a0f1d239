// Package store implements the Context Store (component C): the in-memory
// authoritative model of scopes and their resources, replaced wholesale on
// every admitted load or watcher-driven partial reload.
package store

import (
	"time"

	"github.com/rhema-dev/rhema/internal/rhema"
)

// Snapshot is an immutable view of the repository at one point in time.
// Once published via swapSnapshot it is never mutated; a new Snapshot
// entirely replaces it.
type Snapshot struct {
	Scopes      map[string]rhema.Scope
	Knowledge   map[string][]rhema.Knowledge
	Todos       map[string][]rhema.Todo
	Decisions   map[string][]rhema.Decision
	Patterns    map[string][]rhema.Pattern
	Conventions map[string][]rhema.Convention
	Lock        *rhema.Lock
	LastUpdated time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Scopes:      make(map[string]rhema.Scope),
		Knowledge:   make(map[string][]rhema.Knowledge),
		Todos:       make(map[string][]rhema.Todo),
		Decisions:   make(map[string][]rhema.Decision),
		Patterns:    make(map[string][]rhema.Pattern),
		Conventions: make(map[string][]rhema.Convention),
		LastUpdated: time.Now(),
	}
}

// clone returns a shallow copy of the snapshot's top-level maps so callers
// can apply targeted mutations (e.g. the Watcher replacing one scope)
// without touching the published Snapshot in place.
func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Scopes:      make(map[string]rhema.Scope, len(s.Scopes)),
		Knowledge:   make(map[string][]rhema.Knowledge, len(s.Knowledge)),
		Todos:       make(map[string][]rhema.Todo, len(s.Todos)),
		Decisions:   make(map[string][]rhema.Decision, len(s.Decisions)),
		Patterns:    make(map[string][]rhema.Pattern, len(s.Patterns)),
		Conventions: make(map[string][]rhema.Convention, len(s.Conventions)),
		Lock:        s.Lock,
		LastUpdated: s.LastUpdated,
	}
	for k, v := range s.Scopes {
		out.Scopes[k] = v
	}
	for k, v := range s.Knowledge {
		out.Knowledge[k] = v
	}
	for k, v := range s.Todos {
		out.Todos[k] = v
	}
	for k, v := range s.Decisions {
		out.Decisions[k] = v
	}
	for k, v := range s.Patterns {
		out.Patterns[k] = v
	}
	for k, v := range s.Conventions {
		out.Conventions[k] = v
	}
	return out
}
