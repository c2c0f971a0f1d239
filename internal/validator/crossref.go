package validator

import (
	"fmt"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// checkCrossReferences enforces spec.md §4.B check 3: every related-ID
// reference must resolve to a record within the same scope. Unresolved
// references become CrossReferenceError entries recording source and
// target coordinates.
func checkCrossReferences(result *loader.Result, acc *accumulator) {
	for scopePath, data := range result.Scopes {
		known := knownIDs(data)

		for _, k := range data.Knowledge {
			checkRelated(acc, scopePath, rhema.KindKnowledge, k.ID, k.RelatedIDs, known)
		}
		for _, t := range data.Todos {
			checkRelated(acc, scopePath, rhema.KindTodos, t.ID, t.RelatedIDs, known)
		}
		for _, p := range data.Patterns {
			checkRelated(acc, scopePath, rhema.KindPatterns, p.ID, p.RelatedIDs, known)
		}
	}
}

func knownIDs(data *loader.ScopeData) map[string]bool {
	ids := make(map[string]bool)
	for _, k := range data.Knowledge {
		ids[k.ID] = true
	}
	for _, t := range data.Todos {
		ids[t.ID] = true
	}
	for _, d := range data.Decisions {
		ids[d.ID] = true
	}
	for _, p := range data.Patterns {
		ids[p.ID] = true
	}
	for _, c := range data.Conventions {
		ids[c.ID] = true
	}
	return ids
}

func checkRelated(acc *accumulator, scope string, kind rhema.ResourceKind, sourceID string, relatedIDs []string, known map[string]bool) {
	for _, target := range relatedIDs {
		if !known[target] {
			acc.addError(rhema.ValidationIssue{
				Category: "cross_reference",
				Message:  fmt.Sprintf("related id %q does not resolve within scope", target),
				Scope:    scope,
				Kind:     kind,
				RecordID: sourceID,
				Details:  map[string]interface{}{"target_id": target},
			})
		}
	}
}
