package pattern

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhema-dev/rhema/internal/realtime"
)

// defaultTimeoutMultiplier sizes a pattern's execution timeout off its
// declared EstimatedDuration when the pattern does not carry an explicit
// one, leaving headroom for coordination overhead without letting a
// mis-estimated pattern run forever.
const defaultTimeoutMultiplier = 3

// Runtime executes registered patterns through the
// validate -> Initializing -> Running -> Completed|Failed|Cancelled
// state machine, publishing each transition through the same event bus
// the Watcher uses.
type Runtime struct {
	registry *Registry
	pub      *realtime.EventPublisher
	metrics  *runtimeMetrics
	logger   *slog.Logger

	defaultTimeout time.Duration
	runningCount   int64
}

// New builds a Runtime. pub may be nil (state transitions are then not
// published, useful in tests); defaultTimeout is applied to patterns whose
// Metadata.EstimatedDuration is zero.
func New(pub *realtime.EventPublisher, reg prometheus.Registerer, logger *slog.Logger, defaultTimeout time.Duration) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Runtime{
		registry:       NewRegistry(),
		pub:            pub,
		metrics:        newRuntimeMetrics(reg),
		logger:         logger.With("component", "pattern_runtime"),
		defaultTimeout: defaultTimeout,
	}
}

// Register adds a pattern to the runtime's registry.
func (r *Runtime) Register(p Pattern) error {
	return r.registry.Register(p)
}

// Get returns a registered pattern by ID.
func (r *Runtime) Get(id string) (Pattern, bool) {
	return r.registry.Get(id)
}

// List returns every registered pattern's metadata.
func (r *Runtime) List() []Metadata {
	return r.registry.List()
}

// Stats returns the runtime's aggregate statistics.
func (r *Runtime) Stats() Stats {
	return r.metrics.stats(atomic.LoadInt64(&r.runningCount))
}

// Execute runs the registered pattern's five-step sequence: validate,
// publish Initializing/Running, execute under a pattern-level timeout,
// roll back on failure when requested, then publish the terminal state and
// fold the outcome into the runtime's aggregate statistics.
//
// Execute returns a non-nil error only for a lookup failure (unknown
// pattern ID) or a hard validation failure — in both cases the pattern
// never runs and no PatternResult is produced. Every other outcome,
// success or execution failure, is reported through a PatternResult with
// a nil error; check PatternResult.Err for the inner failure.
func (r *Runtime) Execute(ctx context.Context, patternID string, ec *ExecutionContext) (*PatternResult, error) {
	p, ok := r.registry.Get(patternID)
	if !ok {
		return nil, ErrPatternNotFound(patternID)
	}
	meta := p.Metadata()
	ec.PatternID = patternID

	if verr, warnings := validate(meta, ec); verr != nil {
		r.logger.Warn("pattern validation failed", "pattern_id", patternID, "reason", verr.Reason)
		return nil, verr
	} else {
		for _, w := range warnings {
			r.logger.Warn("pattern soft constraint violated", "pattern_id", patternID, "warning", w)
		}
	}
	if err := p.Validate(ec); err != nil {
		r.logger.Warn("pattern validation failed", "pattern_id", patternID, "reason", err.Error())
		return nil, &ValidationError{PatternID: patternID, Reason: err.Error()}
	}

	ec.report = func(phase string, progress int) {
		r.publishState(patternID, StateRunning, phase, progress)
	}

	r.publishState(patternID, StateInitializing, "validated", 0)

	timeout := r.defaultTimeout
	if meta.EstimatedDuration > 0 {
		timeout = meta.EstimatedDuration * defaultTimeoutMultiplier
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ec.Ctx = execCtx

	atomic.AddInt64(&r.runningCount, 1)
	r.metrics.startRunning()
	r.publishState(patternID, StateRunning, "executing", 0)

	start := time.Now()
	outcome, err := p.Execute(ec)
	duration := time.Since(start)

	state := StateCompleted
	rolledBack := false
	if err != nil {
		if errors.Is(err, context.Canceled) {
			state = StateCancelled
		} else {
			state = StateFailed
		}
		if ec.RollbackEnabled {
			if rerr := p.Rollback(ec); rerr != nil {
				r.logger.Error("pattern rollback failed", "pattern_id", patternID, "error", rerr)
			} else {
				rolledBack = true
			}
		}
	}

	atomic.AddInt64(&r.runningCount, -1)
	r.metrics.finish(patternID, state, duration)
	r.publishState(patternID, state, "terminal", 100)

	result := &PatternResult{
		PatternID:  patternID,
		State:      state,
		Duration:   duration,
		Err:        err,
		RolledBack: rolledBack,
	}
	if outcome != nil {
		result.Steps = outcome.Steps
		result.CoordinationOverhead = outcome.CoordinationOverhead
		result.CommunicationCount = outcome.CommunicationCount
		result.ResourceUtilization = outcome.ResourceUtilization
		result.AgentEfficiency = outcome.AgentEfficiency
	}
	return result, nil
}

func (r *Runtime) publishState(patternID string, state State, phase string, progress int) {
	if r.pub == nil {
		return
	}
	if err := r.pub.PublishPatternStateChanged(patternID, string(state), phase, progress); err != nil {
		r.logger.Warn("failed to publish pattern state", "pattern_id", patternID, "state", state, "error", err)
	}
}
