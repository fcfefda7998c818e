// Package phaseline is a framework for running phased, dependency-ordered
// migrations defined in Go code.
//
// Migrations are built from steps. Each step belongs to a phase (an ordered
// bucket with a risk level and a rollback policy), declares the steps it
// depends on, and carries its own pre- and post-execution validation checks.
// The framework computes an execution order that respects both phase order
// and step dependencies, runs the steps, records a structured result per
// step, and keeps a history of executions that can later be rolled back in
// reverse order.
//
// # Basic Usage
//
// Register phases first, then steps, then execute by name:
//
//	fw := phaseline.New()
//
//	fw.MustRegisterPhase(phaseline.Phase{
//	    Name:      "foundation",
//	    Order:     1,
//	    RiskLevel: phaseline.RiskLow,
//	    Rollback:  phaseline.RollbackAutomatic,
//	})
//
//	fw.MustRegisterStep(&phaseline.StepDef{
//	    StepID:    "create-accounts",
//	    StepName:  "Create accounts collection",
//	    StepPhase: "foundation",
//	    ExecuteFunc: func(ctx context.Context, mc *phaseline.Context) (*phaseline.Result, error) {
//	        // apply the change using mc.Storage or your own clients
//	        return &phaseline.Result{Success: true, AffectedEntities: 1}, nil
//	    },
//	    RollbackFunc: func(ctx context.Context, mc *phaseline.Context, prior *phaseline.Result) (*phaseline.Result, error) {
//	        return &phaseline.Result{Success: true}, nil
//	    },
//	})
//
//	exec, err := fw.Execute(ctx, "initial rollout", phaseline.RunOptions{
//	    Environment: phaseline.EnvDevelopment,
//	})
//
// # Dry Runs
//
// Passing RunOptions{DryRun: true} executes a step's DryRun callback when it
// has one and otherwise synthesizes a no-op result, so a plan can be
// rehearsed without side effects.
//
// # Rollback
//
// Every execution is recorded in a HistoryRepository (in-memory by default;
// see the history/sqlite and history/postgres packages for persistent
// stores). A recorded execution can be rolled back with
// Framework.Rollback, which replays the rollback callbacks of its
// successful steps in reverse order.
//
// # Events
//
// Lifecycle events (migration:started, migration:step_completed, ...) are
// emitted through an Emitter. The default emitter discards events; LogEmitter
// writes them to a zap logger and Bus fans them out to subscribers.
package phaseline
