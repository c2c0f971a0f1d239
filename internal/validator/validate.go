// Package validator implements the Validator (component B): six ordered
// checks over a candidate repository load, producing a rhema.ValidationResult
// that gates the load's admission into the Context Store.
package validator

import (
	"runtime"
	"time"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// accumulator collects issues and stats across the six checks without any
// of them short-circuiting the others.
type accumulator struct {
	errors   []rhema.ValidationIssue
	warnings []rhema.ValidationIssue
	stats    rhema.ValidationStats
}

func (a *accumulator) addError(issue rhema.ValidationIssue) {
	issue.Severity = rhema.SeverityError
	a.errors = append(a.errors, issue)
}

func (a *accumulator) addWarning(issue rhema.ValidationIssue) {
	issue.Severity = rhema.SeverityWarning
	a.warnings = append(a.warnings, issue)
}

// Validate runs the six ordered checks from spec.md §4.B over result and
// returns the accumulated ValidationResult. Earlier checks never
// short-circuit later ones.
func Validate(result *loader.Result) *rhema.ValidationResult {
	start := time.Now()
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	acc := &accumulator{}

	checkSchema(result, acc)
	checkTemporal(result, acc)
	checkCrossReferences(result, acc)
	checkConsistency(result, acc)
	circular, depErr := checkDependencies(result, acc)

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)
	var memDelta uint64
	if memAfter.Alloc > memBefore.Alloc {
		memDelta = memAfter.Alloc - memBefore.Alloc
	}

	acc.stats.ErrorCount = len(acc.errors)
	acc.stats.WarningCount = len(acc.warnings)
	acc.stats.ElapsedTime = time.Since(start)
	acc.stats.MemoryEstimateBytes = memDelta

	score := 1.0
	if acc.stats.TotalEntriesValidated > 0 {
		score = 1.0 - float64(len(acc.errors))/float64(acc.stats.TotalEntriesValidated)
		if score < 0 {
			score = 0
		}
	}

	vr := &rhema.ValidationResult{
		IsValid:              len(acc.errors) == 0,
		Errors:               acc.errors,
		Warnings:             acc.warnings,
		Stats:                acc.stats,
		CircularDependencies: circular,
		ValidationScore:      score,
		ValidatedAt:          time.Now(),
	}
	if depErr != nil {
		vr.Recommendations = append(vr.Recommendations, depErr.Error())
	}
	if vr.IsValid && len(acc.warnings) > 0 {
		vr.Recommendations = append(vr.Recommendations, "review warnings before relying on this load in production")
	}

	vr.PerScopeResults = perScopeResults(result, acc)

	return vr
}

// perScopeResults partitions the flat issue lists back into one
// ValidationResult per scope, for callers that want a scoped view.
func perScopeResults(result *loader.Result, acc *accumulator) map[string]*rhema.ValidationResult {
	if len(result.Scopes) == 0 {
		return nil
	}

	out := make(map[string]*rhema.ValidationResult, len(result.Scopes))
	for scopePath := range result.Scopes {
		out[scopePath] = &rhema.ValidationResult{IsValid: true, ValidatedAt: time.Now()}
	}

	for _, e := range acc.errors {
		if r, ok := out[e.Scope]; ok {
			r.Errors = append(r.Errors, e)
			r.IsValid = false
		}
	}
	for _, w := range acc.warnings {
		if r, ok := out[w.Scope]; ok {
			r.Warnings = append(r.Warnings, w)
		}
	}
	return out
}
