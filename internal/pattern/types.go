// Package pattern implements the Pattern/Coordination Runtime (component
// I): a registry of coordination patterns keyed by ID, each executed
// through a validate -> Initializing -> Running -> Completed|Failed|Cancelled
// state machine with a per-pattern timeout, rollback on failure, and
// aggregate success-rate/average-duration statistics.
//
// Grounded on the shape of the teacher's refresh/health background workers
// (single-flight execution, state updates guarded by a mutex, Prometheus
// counters alongside a running gauge) generalized from one fixed worker to
// a registry of arbitrary named patterns.
package pattern

import (
	"context"
	"fmt"
	"time"
)

// Category classifies a pattern for discovery and metrics labeling.
type Category string

const (
	CategoryOrchestration Category = "orchestration"
	CategoryDataFlow      Category = "data_flow"
	CategoryConsensus     Category = "consensus"
	CategoryFailover      Category = "failover"
)

// ConstraintKind distinguishes a hard constraint (violation aborts
// execution before it starts) from a soft one (violation is logged but
// does not block).
type ConstraintKind string

const (
	ConstraintHard ConstraintKind = "hard"
	ConstraintSoft ConstraintKind = "soft"
)

// Constraint is a named precondition checked during validate(). Check
// returns a non-nil error describing the violation, or nil if satisfied.
type Constraint struct {
	Name  string
	Kind  ConstraintKind
	Check func(ec *ExecutionContext) error
}

// Metadata is the registration record for a pattern: category, the
// capabilities and resources it needs, its constraints, and rough sizing
// (complexity, estimated duration) surfaced to callers deciding whether to
// invoke it.
type Metadata struct {
	ID                   string
	Category             Category
	RequiredCapabilities []string
	// RequiredResources maps a resource name (e.g. "memory_mb", "workers")
	// to the quantity the pattern needs available before it will run.
	RequiredResources map[string]float64
	Constraints       []Constraint
	Complexity        int
	EstimatedDuration time.Duration
}

// Agent is a coordination participant available to a pattern. Capability
// matching in validate() checks RequiredCapabilities against the union of
// Capabilities across Available agents.
type Agent struct {
	ID           string
	Capabilities []string
	Available    bool
}

// ExecutionContext carries everything validate/Execute/Rollback need: the
// caller's context (for cancellation/deadlines beyond the pattern-level
// timeout the runtime applies), the agent pool, available resources, and
// arbitrary pattern parameters.
type ExecutionContext struct {
	Ctx             context.Context
	PatternID       string
	Agents          []Agent
	Resources       map[string]float64
	Params          map[string]interface{}
	RollbackEnabled bool

	// report is set by the runtime before Execute is called so a pattern
	// can publish intermediate phase/progress without holding a reference
	// to the event bus itself.
	report func(phase string, progress int)
}

// Report publishes an intermediate phase/progress update for the running
// pattern. A pattern with no meaningful sub-phases may skip calling it
// entirely; the runtime still publishes Initializing/Running/terminal
// transitions on its own.
func (ec *ExecutionContext) Report(phase string, progress int) {
	if ec.report != nil {
		ec.report(phase, progress)
	}
}

func (ec *ExecutionContext) availableCapabilities() map[string]bool {
	caps := make(map[string]bool)
	for _, a := range ec.Agents {
		if !a.Available {
			continue
		}
		for _, c := range a.Capabilities {
			caps[c] = true
		}
	}
	return caps
}

// StepMetric records one execution step's timing, for the per-step
// duration breakdown the pattern result carries.
type StepMetric struct {
	Name     string
	Duration time.Duration
}

// Outcome is what a pattern's Execute returns on success: the per-step
// timing breakdown plus the coordination-overhead figures the runtime
// folds into the final PatternResult.
type Outcome struct {
	Steps                []StepMetric
	CoordinationOverhead time.Duration
	CommunicationCount   int
	ResourceUtilization  map[string]float64
	// AgentEfficiency is a 0..1 figure the pattern reports for how well it
	// used the agents it was given (busy time / wall time, or a
	// pattern-specific measure); the runtime does not compute this itself
	// since only the pattern knows what its agents were doing.
	AgentEfficiency float64
}

// State is a pattern execution's position in the
// validate -> Initializing -> Running -> Completed|Failed|Cancelled
// state machine.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
)

// PatternResult is what Execute returns to the caller: the final state,
// the performance metrics gathered along the way, and whether a failure
// triggered a rollback.
type PatternResult struct {
	PatternID  string
	State      State
	Steps      []StepMetric
	CoordinationOverhead time.Duration
	CommunicationCount   int
	ResourceUtilization  map[string]float64
	AgentEfficiency      float64
	Duration             time.Duration
	Err                  error
	RolledBack           bool
}

// Pattern is a registered coordination routine. Validate and Rollback may
// be no-ops (always return nil) for patterns with no preconditions or no
// meaningful undo, but both must be implemented since the runtime always
// calls Validate and calls Rollback whenever RollbackEnabled is set and
// Execute fails.
type Pattern interface {
	Metadata() Metadata
	Validate(ec *ExecutionContext) error
	Execute(ec *ExecutionContext) (*Outcome, error)
	Rollback(ec *ExecutionContext) error
}

// ValidationError is returned by validate() when a hard constraint,
// missing capability, or resource shortfall blocks execution; the pattern
// never runs and no state transition is published.
type ValidationError struct {
	PatternID string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pattern %q validation failed: %s", e.PatternID, e.Reason)
}

// ErrPatternNotFound is returned by Execute when no pattern is registered
// under the requested ID.
type ErrPatternNotFound string

func (e ErrPatternNotFound) Error() string {
	return fmt.Sprintf("pattern %q is not registered", string(e))
}
