package phaseline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Framework owns the phase and step registries and drives executions.
//
// It assumes a single ambient caller, typically an operational command: the
// registries are built once at startup and Execute/Rollback calls are not
// expected to run concurrently.
type Framework struct {
	phases    map[string]Phase
	steps     map[string]Step
	stepOrder []string

	history HistoryRepository
	emitter Emitter
	logger  *zap.Logger
}

// Option configures a Framework.
type Option func(*Framework)

// WithHistory replaces the default in-memory execution history.
func WithHistory(h HistoryRepository) Option {
	return func(f *Framework) { f.history = h }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(f *Framework) { f.emitter = e }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(f *Framework) { f.logger = l }
}

// New creates an empty framework.
func New(opts ...Option) *Framework {
	f := &Framework{
		phases:  make(map[string]Phase),
		steps:   make(map[string]Step),
		history: NewMemoryHistory(),
		emitter: NopEmitter{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// History exposes the execution history repository.
func (f *Framework) History() HistoryRepository { return f.history }

// SetHistory swaps the execution history repository. Call it before any
// execution starts; switching stores mid-run loses records.
func (f *Framework) SetHistory(h HistoryRepository) { f.history = h }

// SetLogger swaps the logger.
func (f *Framework) SetLogger(l *zap.Logger) { f.logger = l }

// RegisterPhase adds a phase to the registry. Phases must be registered
// before the steps that reference them.
func (f *Framework) RegisterPhase(p Phase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := f.phases[p.Name]; exists {
		return errorf(ErrDuplicatePhase, "%s", p.Name)
	}
	f.phases[p.Name] = p
	f.emit(context.Background(), EventPhaseRegistered, map[string]any{
		"phase": p.Name,
		"order": p.Order,
	})
	return nil
}

// MustRegisterPhase is like RegisterPhase but panics on error. Use during
// initialization when registration must succeed.
func (f *Framework) MustRegisterPhase(p Phase) {
	if err := f.RegisterPhase(p); err != nil {
		panic(err)
	}
}

// RegisterStep adds a step to the registry. The step's phase must already
// be registered. Steps are referenced, never copied, and must not be
// mutated after registration.
func (f *Framework) RegisterStep(s Step) error {
	if v, ok := s.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if s.ID() == "" {
		return errorf(ErrInvalidStep, "step id is required")
	}
	if _, exists := f.steps[s.ID()]; exists {
		return errorf(ErrDuplicateStep, "%s", s.ID())
	}
	if _, exists := f.phases[s.Phase()]; !exists {
		return errorf(ErrUnknownPhase, "step %s references phase %q", s.ID(), s.Phase())
	}
	f.steps[s.ID()] = s
	f.stepOrder = append(f.stepOrder, s.ID())
	f.emit(context.Background(), EventStepRegistered, map[string]any{
		"step":  s.ID(),
		"phase": s.Phase(),
	})
	return nil
}

// MustRegisterStep is like RegisterStep but panics on error.
func (f *Framework) MustRegisterStep(s Step) {
	if err := f.RegisterStep(s); err != nil {
		panic(err)
	}
}

// Validate checks registry integrity: every dependency must reference a
// registered step and the dependency graph must be acyclic. All problems
// are reported together.
func (f *Framework) Validate() error {
	var errs *multierror.Error
	for _, id := range f.stepOrder {
		for _, dep := range f.steps[id].DependsOn() {
			if _, ok := f.steps[dep]; !ok {
				errs = multierror.Append(errs, errorf(ErrUnknownStep,
					"step %s depends on unregistered step %s", id, dep))
			}
		}
	}
	if _, err := f.Plan(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// ExecutionStatus returns the recorded execution with the given id.
func (f *Framework) ExecutionStatus(ctx context.Context, id string) (*Execution, error) {
	return f.history.Get(ctx, id)
}

// ExecuteStep runs exactly one registered step against the given context.
// The returned error is non-nil only when the step id is unknown; every
// failure inside the step itself is captured in the Result.
func (f *Framework) ExecuteStep(ctx context.Context, stepID string, mc *Context) (*Result, error) {
	step, ok := f.steps[stepID]
	if !ok {
		return nil, errorf(ErrUnknownStep, "%s", stepID)
	}
	return f.runStep(ctx, step, mc), nil
}

// Execute runs an entire migration: it records a fresh execution, plans the
// requested steps, and executes them phase by phase. A failed step in a
// critical-risk phase, or any critical-severity error, halts the run. The
// execution record always reaches a terminal status and is stored in the
// history repository even when the run fails.
func (f *Framework) Execute(ctx context.Context, name string, opts RunOptions) (exec *Execution, err error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	exec = &Execution{
		ID:          uuid.NewString(),
		Name:        name,
		Environment: opts.Environment,
		DryRun:      opts.DryRun,
		Status:      StatusRunning,
		StartedAt:   time.Now(),
	}
	if herr := f.history.Put(ctx, exec); herr != nil {
		return nil, fmt.Errorf("recording execution: %w", herr)
	}

	f.emit(ctx, EventMigrationStarted, map[string]any{
		"execution_id": exec.ID,
		"name":         name,
		"environment":  string(opts.Environment),
		"dry_run":      opts.DryRun,
	})

	finished := false
	defer func() {
		if finished {
			return
		}
		// Unexpected failure path: something outside step execution broke.
		msg := "migration execution failed"
		if r := recover(); r != nil {
			msg = fmt.Sprintf("unexpected failure: %v", r)
			err = fmt.Errorf("%s", msg)
		} else if err != nil {
			msg = err.Error()
		}
		exec.Errors = append(exec.Errors, Error{
			Code:        CodeMigrationExecutionFailed,
			Message:     msg,
			Severity:    SeverityCritical,
			Timestamp:   time.Now(),
			Recoverable: false,
		})
		f.finish(ctx, exec, StatusFailed, EventMigrationFailed)
	}()

	steps, err := f.orderSteps(opts.StepIDs)
	if err != nil {
		return exec, err
	}
	exec.TotalSteps = len(steps)
	if herr := f.history.Put(ctx, exec); herr != nil {
		f.logger.Warn("failed to update execution record", zap.Error(herr))
	}

	mc := newContext(exec.ID, opts)

	halted := false
	for _, group := range f.groupByPhase(steps) {
		f.emit(ctx, EventPhaseStarted, map[string]any{
			"execution_id": exec.ID,
			"phase":        group.phase.Name,
			"steps":        len(group.steps),
		})

		for _, step := range group.steps {
			res := f.runStep(ctx, step, mc)
			exec.absorb(res)

			if (!res.Success && group.phase.RiskLevel == RiskCritical) || res.HasCriticalError() {
				halted = true
				break
			}
		}

		f.emit(ctx, EventPhaseCompleted, map[string]any{
			"execution_id": exec.ID,
			"phase":        group.phase.Name,
			"halted":       halted,
		})
		if halted {
			break
		}
	}

	status, event := StatusCompleted, EventMigrationCompleted
	if halted {
		status, event = StatusFailed, EventMigrationFailed
	}
	f.finish(ctx, exec, status, event)
	finished = true
	return exec, nil
}

type phaseGroup struct {
	phase Phase
	steps []Step
}

// groupByPhase splits an ordered plan into consecutive runs of the same
// phase, preserving plan order.
func (f *Framework) groupByPhase(steps []Step) []phaseGroup {
	var groups []phaseGroup
	for _, step := range steps {
		phase := f.phases[step.Phase()]
		if n := len(groups); n > 0 && groups[n-1].phase.Name == phase.Name {
			groups[n-1].steps = append(groups[n-1].steps, step)
			continue
		}
		groups = append(groups, phaseGroup{phase: phase, steps: []Step{step}})
	}
	return groups
}

// runStep executes one step end-to-end: step events, pre-checks, dispatch,
// duration stamping, post-checks, and completed-steps bookkeeping. Panics
// and callback errors are converted into a failed Result; they never escape.
func (f *Framework) runStep(ctx context.Context, step Step, mc *Context) *Result {
	mc.CurrentStep = step.ID()
	f.emit(ctx, EventStepStarted, map[string]any{
		"execution_id": mc.MigrationID,
		"step":         step.ID(),
		"dry_run":      mc.DryRun,
	})

	res := f.attemptStep(ctx, step, mc)

	if res.Success {
		mc.CompletedSteps = append(mc.CompletedSteps, step.ID())
		f.emit(ctx, EventStepCompleted, map[string]any{
			"execution_id": mc.MigrationID,
			"step":         step.ID(),
			"duration_ms":  res.Duration.Milliseconds(),
		})
	} else {
		f.emit(ctx, EventStepFailed, map[string]any{
			"execution_id": mc.MigrationID,
			"step":         step.ID(),
			"errors":       len(res.Errors),
		})
	}
	return res
}

func (f *Framework) attemptStep(ctx context.Context, step Step, mc *Context) (res *Result) {
	started := time.Now()
	reversible := isReversible(step)

	defer func() {
		if r := recover(); r != nil {
			res = failedResult(step.ID(), CodeStepExecutionFailed,
				fmt.Sprintf("step panicked: %v", r),
				SeverityHigh, reversible, time.Since(started))
		}
	}()

	for _, check := range step.PreChecks() {
		cerr := check.Run(ctx, mc)
		if cerr == nil {
			continue
		}
		if check.Critical {
			return failedResult(step.ID(), CodeStepExecutionFailed,
				fmt.Sprintf("critical pre-check %q failed: %v", check.Name, cerr),
				SeverityHigh, reversible, time.Since(started))
		}
		f.logger.Warn("pre-check failed",
			zap.String("step", step.ID()),
			zap.String("check", check.Name),
			zap.Error(cerr))
	}

	var err error
	switch {
	case mc.DryRun:
		if sim, ok := simulatorOf(step); ok {
			res, err = sim.DryRun(ctx, mc)
		} else {
			res = &Result{
				Success:  true,
				Warnings: []string{"Dry run mode - no changes made"},
			}
		}
	default:
		res, err = step.Execute(ctx, mc)
	}
	if err != nil {
		return failedResult(step.ID(), CodeStepExecutionFailed, err.Error(),
			SeverityHigh, reversible, time.Since(started))
	}
	if res == nil {
		res = &Result{Success: true}
	}
	res.StepID = step.ID()
	res.Duration = time.Since(started)

	if !mc.DryRun {
		for _, check := range step.PostChecks() {
			cerr := check.Run(ctx, mc)
			if cerr == nil {
				continue
			}
			if check.Critical {
				// The change already applied; it is not rolled back here.
				res.Success = false
				res.Errors = append(res.Errors, Error{
					Code:        CodeStepExecutionFailed,
					Message:     fmt.Sprintf("critical post-check %q failed: %v", check.Name, cerr),
					Severity:    SeverityHigh,
					Timestamp:   time.Now(),
					Context:     map[string]string{"step_id": step.ID()},
					Recoverable: reversible,
				})
				res.Duration = time.Since(started)
				return res
			}
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("post-check %q failed: %v", check.Name, cerr))
		}
	}
	return res
}

// finish stamps the execution, persists it, and emits the terminal event.
func (f *Framework) finish(ctx context.Context, exec *Execution, status ExecutionStatus, event string) {
	exec.finish(status)
	if err := f.history.Put(ctx, exec); err != nil {
		f.logger.Error("failed to persist execution record",
			zap.String("execution_id", exec.ID), zap.Error(err))
	}
	f.emit(ctx, event, map[string]any{
		"execution_id":    exec.ID,
		"name":            exec.Name,
		"status":          string(status),
		"total_steps":     exec.TotalSteps,
		"completed_steps": exec.CompletedSteps,
		"errors":          len(exec.Errors),
		"warnings":        len(exec.Warnings),
	})
}

func (f *Framework) emit(ctx context.Context, name string, payload map[string]any) {
	f.emitter.Emit(ctx, name, payload)
}
