package phaseline

import (
	"context"
	"time"
)

// CheckFunc is a single validation predicate over the run context. A nil
// return means the check passed; the error text is the advisory message
// otherwise.
type CheckFunc func(ctx context.Context, mc *Context) error

// Check is a named pre- or post-execution validation. A failing critical
// check aborts the step it guards; a failing non-critical check only adds a
// warning.
type Check struct {
	Name     string
	Critical bool
	Run      CheckFunc
}

// ExecuteFunc applies (or simulates) a step's change.
type ExecuteFunc func(ctx context.Context, mc *Context) (*Result, error)

// RollbackFunc undoes a previously successful step. It receives the result
// the original execution produced, including any RollbackData payload.
type RollbackFunc func(ctx context.Context, mc *Context, prior *Result) (*Result, error)

// Step is a named unit of migration work. Implementations are registered
// once and never mutated afterwards; the framework references them during
// planning and execution.
//
// Optional capabilities are expressed as extra interfaces: a step that can
// be undone also implements Reverser, and a step with a dedicated dry-run
// path also implements Simulator.
type Step interface {
	// ID returns the unique identifier for this step.
	ID() string

	// Name returns a short human-readable name.
	Name() string

	// Description explains what the step changes.
	Description() string

	// Phase names the registered phase this step belongs to.
	Phase() string

	// DependsOn returns the ids of steps that must execute first.
	DependsOn() []string

	// EstimatedDuration is advisory; zero means unknown.
	EstimatedDuration() time.Duration

	// PreChecks run before Execute.
	PreChecks() []Check

	// PostChecks run after Execute (skipped on dry runs).
	PostChecks() []Check

	// Execute applies the step's change.
	Execute(ctx context.Context, mc *Context) (*Result, error)
}

// Reverser is implemented by steps that can undo themselves.
type Reverser interface {
	Step
	Rollback(ctx context.Context, mc *Context, prior *Result) (*Result, error)
}

// Simulator is implemented by steps with a dedicated dry-run path. Steps
// without one get a synthesized no-op result on dry runs.
type Simulator interface {
	Step
	DryRun(ctx context.Context, mc *Context) (*Result, error)
}

// reverserOf resolves the rollback capability of a step. Adapter types like
// StepDef implement Reverser unconditionally, so they additionally expose a
// Reversible() refinement that distinguishes a real callback from an unset
// one.
func reverserOf(s Step) (Reverser, bool) {
	r, ok := s.(Reverser)
	if !ok {
		return nil, false
	}
	if g, ok := s.(interface{ Reversible() bool }); ok && !g.Reversible() {
		return nil, false
	}
	return r, true
}

// simulatorOf resolves the dry-run capability of a step.
func simulatorOf(s Step) (Simulator, bool) {
	sim, ok := s.(Simulator)
	if !ok {
		return nil, false
	}
	if g, ok := s.(interface{ SupportsDryRun() bool }); ok && !g.SupportsDryRun() {
		return nil, false
	}
	return sim, true
}

// isReversible reports whether the step can be rolled back.
func isReversible(s Step) bool {
	_, ok := reverserOf(s)
	return ok
}

// StepDef is a declarative Step built from plain fields and callbacks, for
// callers that do not want to define a type per step. RollbackFunc and
// DryRunFunc are optional; leaving them nil makes the step irreversible or
// without a dedicated dry-run path respectively.
type StepDef struct {
	StepID          string
	StepName        string
	StepDescription string
	StepPhase       string
	Dependencies    []string
	Estimate        time.Duration

	Pre  []Check
	Post []Check

	ExecuteFunc  ExecuteFunc
	RollbackFunc RollbackFunc
	DryRunFunc   ExecuteFunc
}

var (
	_ Step      = (*StepDef)(nil)
	_ Reverser  = (*StepDef)(nil)
	_ Simulator = (*StepDef)(nil)
)

func (d *StepDef) ID() string                       { return d.StepID }
func (d *StepDef) Name() string                     { return d.StepName }
func (d *StepDef) Description() string              { return d.StepDescription }
func (d *StepDef) Phase() string                    { return d.StepPhase }
func (d *StepDef) DependsOn() []string              { return d.Dependencies }
func (d *StepDef) EstimatedDuration() time.Duration { return d.Estimate }
func (d *StepDef) PreChecks() []Check               { return d.Pre }
func (d *StepDef) PostChecks() []Check              { return d.Post }

// Execute runs the step's ExecuteFunc.
func (d *StepDef) Execute(ctx context.Context, mc *Context) (*Result, error) {
	return d.ExecuteFunc(ctx, mc)
}

// Rollback runs the step's RollbackFunc. Only called by the framework when
// Reversible reports true.
func (d *StepDef) Rollback(ctx context.Context, mc *Context, prior *Result) (*Result, error) {
	return d.RollbackFunc(ctx, mc, prior)
}

// DryRun runs the step's DryRunFunc. Only called by the framework when
// SupportsDryRun reports true.
func (d *StepDef) DryRun(ctx context.Context, mc *Context) (*Result, error) {
	return d.DryRunFunc(ctx, mc)
}

// Reversible reports whether a rollback callback was provided.
func (d *StepDef) Reversible() bool { return d.RollbackFunc != nil }

// SupportsDryRun reports whether a dry-run callback was provided.
func (d *StepDef) SupportsDryRun() bool { return d.DryRunFunc != nil }

// Validate checks the definition at registration time.
func (d *StepDef) Validate() error {
	if d.StepID == "" {
		return errorf(ErrInvalidStep, "step id is required")
	}
	if d.StepPhase == "" {
		return errorf(ErrInvalidStep, "step %s: phase is required", d.StepID)
	}
	if d.ExecuteFunc == nil {
		return errorf(ErrInvalidStep, "step %s: ExecuteFunc is required", d.StepID)
	}
	for _, c := range append(append([]Check{}, d.Pre...), d.Post...) {
		if c.Run == nil {
			return errorf(ErrInvalidStep, "step %s: check %q has no Run function", d.StepID, c.Name)
		}
	}
	return nil
}
