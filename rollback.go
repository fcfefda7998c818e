package phaseline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RollbackOptions configures Framework.Rollback.
type RollbackOptions struct {
	// ToStep limits the rollback: only successful steps at or after this
	// step in the original execution order are undone. When the id does not
	// appear among the successful steps, everything is rolled back.
	ToStep string

	// Storage is handed to rollback callbacks on the run context.
	Storage Storage
}

// Rollback undoes a prior execution by replaying the rollback callbacks of
// its successful steps in reverse order. Steps without a rollback capability
// are skipped with a warning, not failed. A failing rollback step in a phase
// with the automatic rollback strategy halts the remaining rollback.
//
// The original execution record is left untouched; the rollback produces its
// own execution tagged with RollbackOf. A rollback that undoes everything
// it attempted ends with status rolled_back.
func (f *Framework) Rollback(ctx context.Context, executionID string, opts RollbackOptions) (exec *Execution, err error) {
	original, err := f.history.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}

	exec = &Execution{
		ID:          uuid.NewString(),
		Name:        "rollback of " + original.Name,
		Environment: original.Environment,
		Status:      StatusRunning,
		StartedAt:   time.Now(),
		RollbackOf:  original.ID,
	}

	targets := rollbackTargets(original, opts.ToStep)
	exec.TotalSteps = len(targets)
	if herr := f.history.Put(ctx, exec); herr != nil {
		return nil, fmt.Errorf("recording rollback execution: %w", herr)
	}

	f.emit(ctx, EventRollbackStarted, map[string]any{
		"execution_id": exec.ID,
		"rollback_of":  original.ID,
		"steps":        len(targets),
	})

	finished := false
	defer func() {
		if finished {
			return
		}
		msg := "rollback failed"
		if r := recover(); r != nil {
			msg = fmt.Sprintf("unexpected failure: %v", r)
			err = fmt.Errorf("%s", msg)
		} else if err != nil {
			msg = err.Error()
		}
		exec.Errors = append(exec.Errors, Error{
			Code:        CodeRollbackFailed,
			Message:     msg,
			Severity:    SeverityCritical,
			Timestamp:   time.Now(),
			Recoverable: false,
		})
		f.finish(ctx, exec, StatusFailed, EventMigrationFailed)
	}()

	mc := &Context{
		MigrationID: exec.ID,
		Environment: original.Environment,
		StartedAt:   exec.StartedAt,
		Storage:     opts.Storage,
	}

	failed := false
	// Undo in exactly the reverse of the original execution order.
	for i := len(targets) - 1; i >= 0; i-- {
		prior := targets[i]

		step, ok := f.steps[prior.StepID]
		if !ok {
			exec.Warnings = append(exec.Warnings,
				fmt.Sprintf("step %s is no longer registered, skipping rollback", prior.StepID))
			continue
		}
		rev, ok := reverserOf(step)
		if !ok {
			exec.Warnings = append(exec.Warnings,
				fmt.Sprintf("step %s has no rollback, skipping", prior.StepID))
			continue
		}

		res := f.runRollbackStep(ctx, rev, mc, &prior)
		exec.absorb(res)

		if !res.Success {
			failed = true
			if f.phases[step.Phase()].Rollback == RollbackAutomatic {
				f.logger.Error("halting rollback after failure in automatic-rollback phase",
					zap.String("step", step.ID()),
					zap.String("phase", step.Phase()))
				break
			}
		}
	}

	status := StatusRolledBack
	if failed {
		status = StatusFailed
	}
	f.finish(ctx, exec, status, EventRollbackCompleted)
	finished = true
	return exec, nil
}

// rollbackTargets selects the successful step results to undo, in their
// original execution order.
func rollbackTargets(original *Execution, toStep string) []Result {
	var successful []Result
	for _, res := range original.Results {
		if res.Success {
			successful = append(successful, res)
		}
	}
	if toStep == "" {
		return successful
	}
	for i, res := range successful {
		if res.StepID == toStep {
			return successful[i:]
		}
	}
	return successful
}

// runRollbackStep invokes a single rollback callback, converting errors and
// panics into a failed Result the same way forward execution does.
func (f *Framework) runRollbackStep(ctx context.Context, rev Reverser, mc *Context, prior *Result) *Result {
	mc.CurrentStep = rev.ID()
	f.emit(ctx, EventStepStarted, map[string]any{
		"execution_id": mc.MigrationID,
		"step":         rev.ID(),
		"rollback":     true,
	})

	res := f.attemptRollback(ctx, rev, mc, prior)

	event := EventStepCompleted
	if !res.Success {
		event = EventStepFailed
	} else {
		mc.CompletedSteps = append(mc.CompletedSteps, rev.ID())
	}
	f.emit(ctx, event, map[string]any{
		"execution_id": mc.MigrationID,
		"step":         rev.ID(),
		"rollback":     true,
	})
	return res
}

func (f *Framework) attemptRollback(ctx context.Context, rev Reverser, mc *Context, prior *Result) (res *Result) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = failedResult(rev.ID(), CodeRollbackFailed,
				fmt.Sprintf("rollback panicked: %v", r),
				SeverityHigh, false, time.Since(started))
		}
	}()

	res, err := rev.Rollback(ctx, mc, prior)
	if err != nil {
		return failedResult(rev.ID(), CodeRollbackFailed, err.Error(),
			SeverityHigh, false, time.Since(started))
	}
	if res == nil {
		res = &Result{Success: true}
	}
	res.StepID = rev.ID()
	res.Duration = time.Since(started)
	return res
}
