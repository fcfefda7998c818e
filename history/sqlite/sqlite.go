// Package sqlite provides a SQLite-backed execution history for phaseline.
//
// Executions are stored as JSON rows keyed by execution id, so the store
// survives process restarts and can be inspected with any sqlite client.
// Suitable for development, testing, and single-operator setups; use the
// postgres store when several operators share one history.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/phaseline/phaseline"
)

const createTable = `
CREATE TABLE IF NOT EXISTS phaseline_executions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TEXT NOT NULL,
	record     TEXT NOT NULL
)`

// History is a phaseline.HistoryRepository backed by a SQLite database.
type History struct {
	db *sql.DB
}

var _ phaseline.HistoryRepository = (*History)(nil)

// New creates a history over an existing database handle and ensures the
// tracking table exists.
func New(ctx context.Context, db *sql.DB) (*History, error) {
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("creating executions table: %w", err)
	}
	return &History{db: db}, nil
}

// Open opens (or creates) a SQLite database at the given path and returns a
// history over it. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	h, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Close closes the underlying database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Put inserts or replaces the execution record.
func (h *History) Put(ctx context.Context, exec *phaseline.Execution) error {
	record, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encoding execution %s: %w", exec.ID, err)
	}
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO phaseline_executions (id, name, status, started_at, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			started_at = excluded.started_at,
			record = excluded.record`,
		exec.ID, exec.Name, string(exec.Status),
		exec.StartedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		string(record))
	return err
}

// Get returns the execution with the given id.
func (h *History) Get(ctx context.Context, id string) (*phaseline.Execution, error) {
	var record string
	err := h.db.QueryRowContext(ctx,
		`SELECT record FROM phaseline_executions WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", phaseline.ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode(record)
}

// List returns all executions ordered by start time ascending.
func (h *History) List(ctx context.Context) ([]*phaseline.Execution, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT record FROM phaseline_executions ORDER BY started_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*phaseline.Execution
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		exec, err := decode(record)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func decode(record string) (*phaseline.Execution, error) {
	var exec phaseline.Execution
	if err := json.Unmarshal([]byte(record), &exec); err != nil {
		return nil, fmt.Errorf("decoding execution record: %w", err)
	}
	return &exec, nil
}
