// Package topo provides the dependency ordering used by the execution
// planner: a depth-first topological sort with cycle detection.
package topo

import "fmt"

// CycleError reports a dependency cycle, naming one node on the cycle.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle involving %q", e.Node)
}

// Sort orders ids so that every id appears after all of its dependencies
// that are themselves present in ids. Dependencies outside the input set add
// no edge. The sort is deterministic: ties follow the input order, so a
// caller that pre-sorts the input controls how independent nodes are
// arranged.
//
// A cycle aborts the sort entirely and returns a *CycleError; no partial
// order is ever returned.
func Sort(ids []string, deps func(id string) []string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
	}

	state := make(map[string]int, len(ids))
	order := make([]string, 0, len(ids))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return &CycleError{Node: id}
		}
		state[id] = visiting
		for _, dep := range deps(id) {
			if _, ok := present[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = visited
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
