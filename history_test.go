package phaseline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryHistory_PutAndGet(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()

	exec := &Execution{
		ID:          "exec-1",
		Name:        "add indexes",
		Environment: EnvStaging,
		Status:      StatusRunning,
		StartedAt:   time.Now(),
	}
	if err := h.Put(ctx, exec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := h.Get(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "add indexes" || got.Environment != EnvStaging {
		t.Errorf("Record mismatch: %+v", got)
	}
}

func TestMemoryHistory_GetUnknown(t *testing.T) {
	h := NewMemoryHistory()
	_, err := h.Get(context.Background(), "missing")
	if !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("Expected ErrExecutionNotFound, got %v", err)
	}
}

func TestMemoryHistory_PutReplacesById(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()

	exec := &Execution{ID: "exec-1", Status: StatusRunning, StartedAt: time.Now()}
	if err := h.Put(ctx, exec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	exec.Status = StatusCompleted
	if err := h.Put(ctx, exec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := h.Get(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Expected replaced record, got status %s", got.Status)
	}

	all, err := h.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected one record after replace, got %d", len(all))
	}
}

func TestMemoryHistory_CopiesIsolateCallers(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()

	exec := &Execution{
		ID:        "exec-1",
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Warnings:  []string{"original"},
	}
	if err := h.Put(ctx, exec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Mutating the live record after Put must not change the stored copy.
	exec.Warnings[0] = "mutated"
	exec.Status = StatusFailed

	got, err := h.Get(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusRunning || got.Warnings[0] != "original" {
		t.Errorf("Stored record shares state with the caller: %+v", got)
	}

	// Mutating a returned copy must not change the store either.
	got.Status = StatusFailed
	again, err := h.Get(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Status != StatusRunning {
		t.Errorf("Get returned a shared record: %+v", again)
	}
}

func TestMemoryHistory_ListOrdersByStartTime(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	base := time.Now()

	for _, rec := range []struct {
		id     string
		offset time.Duration
	}{
		{"newest", 2 * time.Hour},
		{"oldest", -2 * time.Hour},
		{"middle", 0},
	} {
		if err := h.Put(ctx, &Execution{ID: rec.id, StartedAt: base.Add(rec.offset)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	all, err := h.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"oldest", "middle", "newest"}
	if len(all) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(all))
	}
	for i := range want {
		if all[i].ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], all[i].ID)
		}
	}
}

func TestMemoryHistory_ListBreaksTiesById(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	at := time.Now()

	for _, id := range []string{"b", "a", "c"} {
		if err := h.Put(ctx, &Execution{ID: id, StartedAt: at}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	all, err := h.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if all[i].ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], all[i].ID)
		}
	}
}
