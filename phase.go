package phaseline

// RiskLevel classifies how dangerous the steps in a phase are.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether the risk level is one of the known values.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RollbackStrategy controls how a phase behaves when one of its steps fails
// during a rollback.
type RollbackStrategy string

const (
	// RollbackAutomatic halts the remaining rollback as soon as a rollback
	// step in this phase fails.
	RollbackAutomatic RollbackStrategy = "automatic"

	// RollbackManual records the failure and leaves remediation to an
	// operator; later steps keep rolling back.
	RollbackManual RollbackStrategy = "manual"

	// RollbackNone marks a phase whose steps are not expected to be undone.
	RollbackNone RollbackStrategy = "none"
)

// Valid reports whether the strategy is one of the known values.
func (s RollbackStrategy) Valid() bool {
	switch s {
	case RollbackAutomatic, RollbackManual, RollbackNone:
		return true
	}
	return false
}

// Phase is an ordered grouping of steps sharing a risk level and rollback
// policy. Phases execute in ascending Order. A phase must be registered
// before any step that references it.
type Phase struct {
	Name        string           `json:"name"`
	Order       int              `json:"order"`
	Description string           `json:"description,omitempty"`
	RiskLevel   RiskLevel        `json:"risk_level"`
	Rollback    RollbackStrategy `json:"rollback"`
}

// Validate checks the phase definition at registration time.
func (p Phase) Validate() error {
	if p.Name == "" {
		return errorf(ErrInvalidPhase, "phase name is required")
	}
	if !p.RiskLevel.Valid() {
		return errorf(ErrInvalidPhase, "phase %s: unknown risk level %q", p.Name, p.RiskLevel)
	}
	if !p.Rollback.Valid() {
		return errorf(ErrInvalidPhase, "phase %s: unknown rollback strategy %q", p.Name, p.Rollback)
	}
	return nil
}
