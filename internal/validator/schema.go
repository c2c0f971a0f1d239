package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/rhema"
)

// looseSemverPattern accepts "1", "1.2", or "1.2.3" with an optional
// pre-release/build suffix, matching the repository's looser version
// convention rather than strict semver.
var looseSemverPattern = regexp.MustCompile(`^\d+(\.\d+){0,2}(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("semver_loose", func(fl validator.FieldLevel) bool {
		return looseSemverPattern.MatchString(fl.Field().String())
	})
	return v
}

// checkSchema runs go-playground/validator/v10 struct-tag validation over
// every record in every scope. Range and enum checks are expressed as
// struct tags on the models; there are no further hand-written checks.
func checkSchema(result *loader.Result, acc *accumulator) {
	for scopePath, data := range result.Scopes {
		validateOne(acc, scopePath, rhema.KindScopes, data.Scope.Path, &data.Scope)

		for i := range data.Knowledge {
			validateOne(acc, scopePath, rhema.KindKnowledge, data.Knowledge[i].ID, &data.Knowledge[i])
		}
		for i := range data.Todos {
			validateOne(acc, scopePath, rhema.KindTodos, data.Todos[i].ID, &data.Todos[i])
		}
		for i := range data.Decisions {
			validateOne(acc, scopePath, rhema.KindDecisions, data.Decisions[i].ID, &data.Decisions[i])
		}
		for i := range data.Patterns {
			validateOne(acc, scopePath, rhema.KindPatterns, data.Patterns[i].ID, &data.Patterns[i])
		}
		for i := range data.Conventions {
			validateOne(acc, scopePath, rhema.KindConventions, data.Conventions[i].ID, &data.Conventions[i])
		}
	}
}

func validateOne(acc *accumulator, scope string, kind rhema.ResourceKind, recordID string, record interface{}) {
	acc.stats.TotalEntriesValidated++
	if err := structValidator.Struct(record); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			acc.addError(rhema.ValidationIssue{
				Severity: rhema.SeverityError,
				Category: "schema",
				Message:  fmt.Sprintf("field %q failed %q validation", fe.Namespace(), fe.Tag()),
				Scope:    scope,
				Kind:     kind,
				RecordID: recordID,
			})
		}
	}
}
