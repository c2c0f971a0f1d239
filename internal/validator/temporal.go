package validator

import (
	"fmt"
	"time"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// checkTemporal enforces spec.md §4.B check 2: no future created_at,
// updated_at >= created_at, completed_at >= created_at, review_date >=
// decided_at, and past due dates flagged as expired warnings.
func checkTemporal(result *loader.Result, acc *accumulator) {
	now := time.Now()

	for scopePath, data := range result.Scopes {
		for _, k := range data.Knowledge {
			checkCreatedUpdated(acc, scopePath, rhema.KindKnowledge, k.ID, k.CreatedAt, k.UpdatedAt, now)
		}
		for _, d := range data.Decisions {
			checkCreatedUpdated(acc, scopePath, rhema.KindDecisions, d.ID, d.CreatedAt, d.UpdatedAt, now)
			if d.ReviewDate != nil && d.ReviewDate.Before(d.DecidedAt) {
				acc.addError(rhema.ValidationIssue{
					Category: "temporal",
					Message:  "review_date precedes decided_at",
					Scope:    scopePath,
					Kind:     rhema.KindDecisions,
					RecordID: d.ID,
				})
			}
		}
		for _, p := range data.Patterns {
			checkCreatedUpdated(acc, scopePath, rhema.KindPatterns, p.ID, p.CreatedAt, p.UpdatedAt, now)
		}
		for _, c := range data.Conventions {
			checkCreatedUpdated(acc, scopePath, rhema.KindConventions, c.ID, c.CreatedAt, c.UpdatedAt, now)
		}
		for _, t := range data.Todos {
			checkCreatedUpdated(acc, scopePath, rhema.KindTodos, t.ID, t.CreatedAt, t.UpdatedAt, now)

			if t.CompletedAt != nil {
				if t.Status != rhema.StatusCompleted && t.Status != rhema.StatusCancelled {
					acc.addError(rhema.ValidationIssue{
						Category: "temporal",
						Message:  "completed_at set on a todo that is neither Completed nor Cancelled",
						Scope:    scopePath,
						Kind:     rhema.KindTodos,
						RecordID: t.ID,
					})
				} else if t.CompletedAt.Before(t.CreatedAt) {
					acc.addError(rhema.ValidationIssue{
						Category: "temporal",
						Message:  "completed_at precedes created_at",
						Scope:    scopePath,
						Kind:     rhema.KindTodos,
						RecordID: t.ID,
					})
				}
			}

			if t.DueDate != nil && t.DueDate.Before(now) && t.Status != rhema.StatusCompleted && t.Status != rhema.StatusCancelled {
				daysExpired := int(now.Sub(*t.DueDate).Hours() / 24)
				acc.addWarning(rhema.ValidationIssue{
					Category: "temporal",
					Message:  fmt.Sprintf("todo is past due by %d day(s)", daysExpired),
					Scope:    scopePath,
					Kind:     rhema.KindTodos,
					RecordID: t.ID,
					Details:  map[string]interface{}{"days_expired": daysExpired},
				})
			}
		}
	}
}

func checkCreatedUpdated(acc *accumulator, scope string, kind rhema.ResourceKind, id string, createdAt, updatedAt, now time.Time) {
	if createdAt.After(now) {
		acc.addError(rhema.ValidationIssue{
			Category: "temporal",
			Message:  "created_at is in the future",
			Scope:    scope,
			Kind:     kind,
			RecordID: id,
		})
	}
	if updatedAt.Before(createdAt) {
		acc.addError(rhema.ValidationIssue{
			Category: "temporal",
			Message:  "updated_at precedes created_at",
			Scope:    scope,
			Kind:     kind,
			RecordID: id,
		})
	}
}
