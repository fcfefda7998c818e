package phaseline

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// HistoryRepository stores execution records. The framework writes through
// it at the start and end of every run, so a persistent implementation
// survives process restarts; see history/sqlite and history/postgres.
type HistoryRepository interface {
	// Put inserts or replaces the record by id.
	Put(ctx context.Context, exec *Execution) error

	// Get returns the record with the given id, or ErrExecutionNotFound.
	Get(ctx context.Context, id string) (*Execution, error)

	// List returns all records ordered by start time ascending.
	List(ctx context.Context) ([]*Execution, error)
}

// MemoryHistory is the default process-lifetime HistoryRepository. Records
// are deep-copied on the way in and out, so callers cannot race the
// framework's in-place mutation of the live record.
type MemoryHistory struct {
	mu      sync.Mutex
	records map[string]*Execution
}

// NewMemoryHistory creates an empty in-memory repository.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{records: make(map[string]*Execution)}
}

// Put stores a copy of the execution.
func (h *MemoryHistory) Put(_ context.Context, exec *Execution) error {
	cp, err := copyExecution(exec)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[exec.ID] = cp
	return nil
}

// Get returns a copy of the stored execution.
func (h *MemoryHistory) Get(_ context.Context, id string) (*Execution, error) {
	h.mu.Lock()
	exec, ok := h.records[id]
	h.mu.Unlock()
	if !ok {
		return nil, errorf(ErrExecutionNotFound, "%s", id)
	}
	return copyExecution(exec)
}

// List returns copies of all stored executions, oldest first.
func (h *MemoryHistory) List(_ context.Context) ([]*Execution, error) {
	h.mu.Lock()
	all := make([]*Execution, 0, len(h.records))
	for _, exec := range h.records {
		all = append(all, exec)
	}
	h.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].StartedAt.Before(all[j].StartedAt)
	})

	out := make([]*Execution, len(all))
	for i, exec := range all {
		cp, err := copyExecution(exec)
		if err != nil {
			return nil, err
		}
		out[i] = cp
	}
	return out, nil
}

// copyExecution round-trips through JSON, the same encoding the persistent
// stores use.
func copyExecution(exec *Execution) (*Execution, error) {
	data, err := json.Marshal(exec)
	if err != nil {
		return nil, err
	}
	var cp Execution
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
