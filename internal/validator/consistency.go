package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// checkConsistency enforces spec.md §4.B check 4: duplicate scope names
// (warning), duplicate titles within the same kind across scopes (warning
// with a similarity score), and conflicting values on identically keyed
// records.
func checkConsistency(result *loader.Result, acc *accumulator) {
	checkDuplicateScopeNames(result, acc)
	checkDuplicateTitles(result, acc)
	checkConflictingIDs(result, acc)
}

func checkDuplicateScopeNames(result *loader.Result, acc *accumulator) {
	byName := make(map[string][]string)
	for path, data := range result.Scopes {
		byName[data.Scope.Name] = append(byName[data.Scope.Name], path)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		paths := byName[name]
		if len(paths) < 2 {
			continue
		}
		sort.Strings(paths)
		acc.addWarning(rhema.ValidationIssue{
			Category: "consistency",
			Message:  fmt.Sprintf("scope name %q is used by %d scopes", name, len(paths)),
			Details:  map[string]interface{}{"scopes": paths},
		})
	}
}

type titledRecord struct {
	scope string
	kind  rhema.ResourceKind
	id    string
	title string
}

func checkDuplicateTitles(result *loader.Result, acc *accumulator) {
	var records []titledRecord
	for scopePath, data := range result.Scopes {
		for _, k := range data.Knowledge {
			records = append(records, titledRecord{scopePath, rhema.KindKnowledge, k.ID, k.Title})
		}
		for _, t := range data.Todos {
			records = append(records, titledRecord{scopePath, rhema.KindTodos, t.ID, t.Title})
		}
		for _, d := range data.Decisions {
			records = append(records, titledRecord{scopePath, rhema.KindDecisions, d.ID, d.Title})
		}
	}

	byKind := make(map[rhema.ResourceKind][]titledRecord)
	for _, r := range records {
		byKind[r.kind] = append(byKind[r.kind], r)
	}

	for kind, recs := range byKind {
		for i := 0; i < len(recs); i++ {
			for j := i + 1; j < len(recs); j++ {
				if recs[i].scope == recs[j].scope {
					continue
				}
				sim := titleSimilarity(recs[i].title, recs[j].title)
				if sim >= 0.9 {
					acc.addWarning(rhema.ValidationIssue{
						Category: "consistency",
						Message:  fmt.Sprintf("title %q duplicated across scopes %s and %s", recs[i].title, recs[i].scope, recs[j].scope),
						Kind:     kind,
						RecordID: recs[i].id,
						Details:  map[string]interface{}{"similarity": sim, "other_scope": recs[j].scope, "other_id": recs[j].id},
					})
				}
			}
		}
	}
}

// titleSimilarity is a case-insensitive exact/normalized match score: 1.0
// for an identical normalized title, 0.0 otherwise. This is deliberately
// simple — the spec only requires a similarity score to ride along with
// the warning, not a fuzzy-matching algorithm.
func titleSimilarity(a, b string) float64 {
	na := strings.ToLower(strings.TrimSpace(a))
	nb := strings.ToLower(strings.TrimSpace(b))
	if na == nb && na != "" {
		return 1.0
	}
	return 0.0
}

func checkConflictingIDs(result *loader.Result, acc *accumulator) {
	for scopePath, data := range result.Scopes {
		seen := make(map[string]rhema.ResourceKind)
		check := func(kind rhema.ResourceKind, id string) {
			if other, ok := seen[id]; ok && other != kind {
				acc.addWarning(rhema.ValidationIssue{
					Category: "consistency",
					Message:  fmt.Sprintf("id %q reused across resource kinds %s and %s", id, other, kind),
					Scope:    scopePath,
					RecordID: id,
				})
			}
			seen[id] = kind
		}
		for _, k := range data.Knowledge {
			check(rhema.KindKnowledge, k.ID)
		}
		for _, t := range data.Todos {
			check(rhema.KindTodos, t.ID)
		}
		for _, d := range data.Decisions {
			check(rhema.KindDecisions, d.ID)
		}
		for _, p := range data.Patterns {
			check(rhema.KindPatterns, p.ID)
		}
		for _, c := range data.Conventions {
			check(rhema.KindConventions, c.ID)
		}
	}
}
