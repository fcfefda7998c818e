package phaseline

import (
	"time"
)

// Environment names the deployment target a migration runs against.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Valid reports whether the environment is one of the known values.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	}
	return false
}

// RunOptions is the closed set of knobs accepted by Framework.Execute.
// It is validated before any step runs, so a typo fails the run up front
// instead of silently changing behavior mid-migration.
type RunOptions struct {
	// Environment the migration targets. Required.
	Environment Environment

	// DryRun rehearses the migration without applying changes.
	DryRun bool

	// BackupEnabled tells steps that a backup exists; the framework only
	// threads the flag through, steps decide what it means.
	BackupEnabled bool

	// StepIDs restricts execution to a subset of registered steps.
	// Empty means all steps.
	StepIDs []string

	// Storage is handed to steps on the run context. The framework never
	// touches it; steps that need persistence must be given one.
	Storage Storage
}

// Validate checks the options before a run starts.
func (o RunOptions) Validate() error {
	if !o.Environment.Valid() {
		return errorf(ErrInvalidOptions, "unknown environment %q", o.Environment)
	}
	seen := make(map[string]struct{}, len(o.StepIDs))
	for _, id := range o.StepIDs {
		if id == "" {
			return errorf(ErrInvalidOptions, "empty step id in StepIDs")
		}
		if _, dup := seen[id]; dup {
			return errorf(ErrInvalidOptions, "duplicate step id %q in StepIDs", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Context is the mutable state threaded through every step callback of one
// execution. It is owned exclusively by a single Execute or Rollback call
// and must not be shared across concurrent migrations.
type Context struct {
	// MigrationID identifies the execution this context belongs to.
	MigrationID string

	// Environment the run targets.
	Environment Environment

	// DryRun mirrors RunOptions.DryRun.
	DryRun bool

	// BackupEnabled mirrors RunOptions.BackupEnabled.
	BackupEnabled bool

	// CompletedSteps accumulates the ids of steps that finished
	// successfully, in execution order.
	CompletedSteps []string

	// CurrentStep is the id of the step being executed, set by the
	// framework before each step runs.
	CurrentStep string

	// StartedAt is when the execution began.
	StartedAt time.Time

	// Storage is an optional external store for steps that need one.
	Storage Storage
}

// Completed reports whether the given step already finished in this run.
func (c *Context) Completed(stepID string) bool {
	for _, id := range c.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

func newContext(executionID string, opts RunOptions) *Context {
	return &Context{
		MigrationID:   executionID,
		Environment:   opts.Environment,
		DryRun:        opts.DryRun,
		BackupEnabled: opts.BackupEnabled,
		StartedAt:     time.Now(),
		Storage:       opts.Storage,
	}
}
