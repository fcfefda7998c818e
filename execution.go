package phaseline

import (
	"time"
)

// ExecutionStatus is the lifecycle state of a migration run.
type ExecutionStatus string

const (
	StatusRunning    ExecutionStatus = "running"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
	StatusRolledBack ExecutionStatus = "rolled_back"
)

// Execution is the record of one end-to-end migration run. It is created
// when the run starts, stored in the history repository, and mutated in
// place until it reaches a terminal status.
type Execution struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Environment Environment     `json:"environment"`
	DryRun      bool            `json:"dry_run"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`

	// Results holds one entry per executed step, in execution order.
	Results []Result `json:"results"`

	TotalSteps     int `json:"total_steps"`
	CompletedSteps int `json:"completed_steps"`

	Errors   []Error            `json:"errors,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`

	// RollbackOf references the execution this run undid, when the run was
	// produced by Framework.Rollback.
	RollbackOf string `json:"rollback_of,omitempty"`
}

// Terminal reports whether the execution has reached a final status.
func (e *Execution) Terminal() bool {
	return e.Status != StatusRunning
}

// absorb folds a step result into the execution's aggregates.
func (e *Execution) absorb(res *Result) {
	e.Results = append(e.Results, *res)
	if res.Success {
		e.CompletedSteps++
	}
	e.Errors = append(e.Errors, res.Errors...)
	e.Warnings = append(e.Warnings, res.Warnings...)
	for name, value := range res.Metrics {
		if e.Metrics == nil {
			e.Metrics = make(map[string]float64)
		}
		e.Metrics[name] += value
	}
}

// finish stamps the end time and terminal status.
func (e *Execution) finish(status ExecutionStatus) {
	now := time.Now()
	e.EndedAt = &now
	e.Status = status
}
