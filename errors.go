package phaseline

import (
	"errors"
	"fmt"
)

// Common errors returned by framework operations.
var (
	// ErrUnknownStep is returned when a step id is not in the registry.
	ErrUnknownStep = errors.New("unknown step")

	// ErrUnknownPhase is returned when a step references an unregistered phase.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrDuplicateStep is returned when a step id is registered twice.
	ErrDuplicateStep = errors.New("duplicate step")

	// ErrDuplicatePhase is returned when a phase name is registered twice.
	ErrDuplicatePhase = errors.New("duplicate phase")

	// ErrInvalidPhase is returned when a phase definition fails validation.
	ErrInvalidPhase = errors.New("invalid phase")

	// ErrInvalidStep is returned when a step definition fails validation.
	ErrInvalidStep = errors.New("invalid step")

	// ErrInvalidOptions is returned when run options fail validation.
	ErrInvalidOptions = errors.New("invalid run options")

	// ErrCircularDependency is returned when the dependency graph has a cycle.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrExecutionNotFound is returned when a rollback or status lookup
	// references an execution id the history repository does not have.
	ErrExecutionNotFound = errors.New("execution not found")
)

// Error codes carried on structured Error values.
const (
	CodeStepExecutionFailed      = "STEP_EXECUTION_FAILED"
	CodeMigrationExecutionFailed = "MIGRATION_EXECUTION_FAILED"
	CodeRollbackFailed           = "ROLLBACK_FAILED"
)

// errorf wraps a sentinel with formatted detail.
func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
