package phaseline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/phaseline/phaseline/internal/topo"
)

// PlanStep describes one scheduled step in an execution plan.
type PlanStep struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Phase       string        `json:"phase"`
	PhaseOrder  int           `json:"phase_order"`
	DependsOn   []string      `json:"depends_on,omitempty"`
	Reversible  bool          `json:"reversible"`
	Estimate    time.Duration `json:"estimate,omitempty"`
}

// Plan is a linear execution order over registered steps: every step appears
// after its dependencies, and independent steps are grouped by ascending
// phase order.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// StepIDs returns the scheduled step ids in order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Plan computes the execution order for the given step ids (all registered
// steps when none are given). It fails with ErrUnknownStep for an id that
// was never registered and with ErrCircularDependency when the dependency
// graph has a cycle; no partial plan is returned in either case.
func (f *Framework) Plan(stepIDs ...string) (*Plan, error) {
	steps, err := f.orderSteps(stepIDs)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Steps: make([]PlanStep, len(steps))}
	for i, s := range steps {
		plan.Steps[i] = PlanStep{
			ID:          s.ID(),
			Name:        s.Name(),
			Description: s.Description(),
			Phase:       s.Phase(),
			PhaseOrder:  f.phases[s.Phase()].Order,
			DependsOn:   s.DependsOn(),
			Reversible:  isReversible(s),
			Estimate:    s.EstimatedDuration(),
		}
	}
	return plan, nil
}

// ValidatePlan computes the plan and independently re-checks it: every step
// must be scheduled after all of its in-plan dependencies, phases must run
// in non-decreasing order, and dependencies that reference steps outside the
// plan are surfaced. The returned issues are advisory only; Execute does not
// consult them.
func (f *Framework) ValidatePlan(stepIDs ...string) ([]string, *Plan, error) {
	plan, err := f.Plan(stepIDs...)
	if err != nil {
		return nil, nil, err
	}

	var issues []string

	position := make(map[string]int, len(plan.Steps))
	for i, s := range plan.Steps {
		position[s.ID] = i
	}

	for i, s := range plan.Steps {
		for _, dep := range s.DependsOn {
			pos, ok := position[dep]
			if !ok {
				issues = append(issues, fmt.Sprintf(
					"step %s depends on %s, which is not part of the plan", s.ID, dep))
				continue
			}
			if pos >= i {
				issues = append(issues, fmt.Sprintf(
					"step %s is scheduled before its dependency %s", s.ID, dep))
			}
		}
	}

	lastOrder := 0
	for i, s := range plan.Steps {
		if i > 0 && s.PhaseOrder < lastOrder {
			// A dependency can legitimately force this; still worth flagging.
			issues = append(issues, fmt.Sprintf(
				"step %s (phase %s, order %d) runs after a step from a later phase (order %d)",
				s.ID, s.Phase, s.PhaseOrder, lastOrder))
		}
		if s.PhaseOrder > lastOrder {
			lastOrder = s.PhaseOrder
		}
	}

	return issues, plan, nil
}

// orderSteps selects the requested subset of registered steps and orders it:
// steps are pre-sorted by phase order (stable, so registration order breaks
// ties), then topologically sorted so dependencies come first. Dependency
// ids outside the subset add no edge.
func (f *Framework) orderSteps(stepIDs []string) ([]Step, error) {
	var selected []string
	if len(stepIDs) == 0 {
		selected = append(selected, f.stepOrder...)
	} else {
		for _, id := range stepIDs {
			if _, ok := f.steps[id]; !ok {
				return nil, errorf(ErrUnknownStep, "%s", id)
			}
			selected = append(selected, id)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return f.phases[f.steps[selected[i]].Phase()].Order <
			f.phases[f.steps[selected[j]].Phase()].Order
	})

	ordered, err := topo.Sort(selected, func(id string) []string {
		return f.steps[id].DependsOn()
	})
	if err != nil {
		var cycle *topo.CycleError
		if errors.As(err, &cycle) {
			return nil, errorf(ErrCircularDependency, "step %s", cycle.Node)
		}
		return nil, err
	}

	steps := make([]Step, len(ordered))
	for i, id := range ordered {
		steps[i] = f.steps[id]
	}
	return steps, nil
}
