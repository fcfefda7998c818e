package phaseline

import (
	"context"
	"sync"
	"time"
)

// Test utilities for exercising the framework without real infrastructure.
// They back this module's own tests and are exported for step authors who
// want the same scaffolding.

// NewTestContext returns a run context suitable for unit tests, wired to a
// fresh MemoryStorage.
func NewTestContext() *Context {
	return &Context{
		MigrationID: "test-execution",
		Environment: EnvDevelopment,
		StartedAt:   time.Now(),
		Storage:     NewMemoryStorage(),
	}
}

// NewTestStep returns a reversible, dry-runnable StepDef whose callbacks
// all succeed. Tests override individual fields to provoke failures.
func NewTestStep(id, phase string, deps ...string) *StepDef {
	return &StepDef{
		StepID:       id,
		StepName:     id,
		StepPhase:    phase,
		Dependencies: deps,
		ExecuteFunc: func(ctx context.Context, mc *Context) (*Result, error) {
			return &Result{Success: true, AffectedEntities: 1}, nil
		},
		RollbackFunc: func(ctx context.Context, mc *Context, prior *Result) (*Result, error) {
			return &Result{Success: true}, nil
		},
		DryRunFunc: func(ctx context.Context, mc *Context) (*Result, error) {
			return &Result{Success: true, Warnings: []string{"simulated"}}, nil
		},
	}
}

// MemoryStorage is an in-memory Storage implementation.
type MemoryStorage struct {
	mu          sync.Mutex
	collections map[string]map[string]Record
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{collections: make(map[string]map[string]Record)}
}

// Create stores a new record; it fails if the id already exists.
func (s *MemoryStorage) Create(_ context.Context, collection, id string, data Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Record)
		s.collections[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return errorf(ErrInvalidOptions, "record %s/%s already exists", collection, id)
	}
	coll[id] = cloneRecord(data)
	return nil
}

// Read returns a record by id, or nil when absent.
func (s *MemoryStorage) Read(_ context.Context, collection, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// Update merges the given fields into an existing record.
func (s *MemoryStorage) Update(_ context.Context, collection, id string, data Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collections[collection][id]
	if !ok {
		return errorf(ErrInvalidOptions, "record %s/%s not found", collection, id)
	}
	for k, v := range data {
		rec[k] = v
	}
	return nil
}

// Delete removes a record; deleting an absent record is not an error.
func (s *MemoryStorage) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

// Query returns records whose fields match every entry in the filter.
func (s *MemoryStorage) Query(_ context.Context, collection string, filter Record) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.collections[collection] {
		if matches(rec, filter) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Count returns the number of records in a collection.
func (s *MemoryStorage) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func matches(rec, filter Record) bool {
	for k, want := range filter {
		if rec[k] != want {
			return false
		}
	}
	return true
}

func cloneRecord(rec Record) Record {
	cp := make(Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}
