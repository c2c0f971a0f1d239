package pattern

import "fmt"

// validate runs agent-availability, capability-matching, resource-
// sufficiency, and constraint checks for a pattern before it is allowed to
// execute. It returns the first hard failure it finds; soft constraint
// violations are collected but do not block execution.
func validate(meta Metadata, ec *ExecutionContext) (*ValidationError, []string) {
	var softWarnings []string

	if len(meta.RequiredCapabilities) > 0 {
		available := ec.availableCapabilities()
		for _, capability := range meta.RequiredCapabilities {
			if !available[capability] {
				return &ValidationError{
					PatternID: meta.ID,
					Reason:    fmt.Sprintf("no available agent provides capability %q", capability),
				}, softWarnings
			}
		}
	}

	for resource, needed := range meta.RequiredResources {
		have, ok := ec.Resources[resource]
		if !ok || have < needed {
			return &ValidationError{
				PatternID: meta.ID,
				Reason:    fmt.Sprintf("insufficient resource %q: need %.2f, have %.2f", resource, needed, have),
			}, softWarnings
		}
	}

	for _, c := range meta.Constraints {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ec); err != nil {
			if c.Kind == ConstraintHard {
				return &ValidationError{
					PatternID: meta.ID,
					Reason:    fmt.Sprintf("constraint %q violated: %s", c.Name, err),
				}, softWarnings
			}
			softWarnings = append(softWarnings, fmt.Sprintf("constraint %q violated: %s", c.Name, err))
		}
	}

	return nil, softWarnings
}
