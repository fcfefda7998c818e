// Package postgres provides a PostgreSQL-backed execution history for
// phaseline. Executions are stored as JSONB rows keyed by execution id.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/phaseline/phaseline"
)

const createTable = `
CREATE TABLE IF NOT EXISTS phaseline_executions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	record     JSONB NOT NULL
)`

// History is a phaseline.HistoryRepository backed by PostgreSQL.
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

// Open connects to the database named by the connection string and returns
// a history over it.
func Open(ctx context.Context, connStr string) (*History, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
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
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			record = EXCLUDED.record`,
		exec.ID, exec.Name, string(exec.Status), exec.StartedAt, string(record))
	return err
}

// Get returns the execution with the given id.
func (h *History) Get(ctx context.Context, id string) (*phaseline.Execution, error) {
	var record string
	err := h.db.QueryRowContext(ctx,
		`SELECT record FROM phaseline_executions WHERE id = $1`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", phaseline.ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var exec phaseline.Execution
	if err := json.Unmarshal([]byte(record), &exec); err != nil {
		return nil, fmt.Errorf("decoding execution record: %w", err)
	}
	return &exec, nil
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
		var exec phaseline.Execution
		if err := json.Unmarshal([]byte(record), &exec); err != nil {
			return nil, fmt.Errorf("decoding execution record: %w", err)
		}
		out = append(out, &exec)
	}
	return out, rows.Err()
}
