package phaseline

import (
	"time"
)

// Severity ranks how serious an execution error is. Critical errors halt
// the whole migration.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error is the uniform shape every execution failure is reported in.
type Error struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Severity    Severity          `json:"severity"`
	Timestamp   time.Time         `json:"timestamp"`
	Context     map[string]string `json:"context,omitempty"`
	Recoverable bool              `json:"recoverable"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the outcome of executing (or rolling back) one step.
type Result struct {
	Success          bool               `json:"success"`
	StepID           string             `json:"step_id"`
	Duration         time.Duration      `json:"duration"`
	AffectedEntities int                `json:"affected_entities"`
	Warnings         []string           `json:"warnings,omitempty"`
	Errors           []Error            `json:"errors,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`

	// RollbackData is an opaque payload a step may stash during execution
	// for its own Rollback callback to consume later.
	RollbackData any `json:"rollback_data,omitempty"`
}

// HasCriticalError reports whether any error in the result is critical.
func (r *Result) HasCriticalError() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// AddMetric records a named metric on the result, allocating the map on
// first use.
func (r *Result) AddMetric(name string, value float64) {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	r.Metrics[name] = value
}

// failedResult builds a failed Result carrying a single structured error.
func failedResult(stepID, code, message string, severity Severity, recoverable bool, duration time.Duration) *Result {
	return &Result{
		Success:  false,
		StepID:   stepID,
		Duration: duration,
		Errors: []Error{{
			Code:        code,
			Message:     message,
			Severity:    severity,
			Timestamp:   time.Now(),
			Context:     map[string]string{"step_id": stepID},
			Recoverable: recoverable,
		}},
	}
}
