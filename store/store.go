// Package store persists recorded traces and their compiled workflows in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmrcs97/FlowCapture-sub000/step"
	"github.com/jmrcs97/FlowCapture-sub000/workflow"
)

// ErrNotFound is returned when a trace or workflow does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	stopped_at INTEGER NOT NULL,
	step_count INTEGER NOT NULL,
	steps      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_traces_started ON traces(started_at);

CREATE TABLE IF NOT EXISTS workflows (
	trace_id   TEXT NOT NULL REFERENCES traces(id) ON DELETE CASCADE,
	compiler   TEXT NOT NULL,
	program    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (trace_id, compiler)
);
`

// Trace describes one stored recording.
type Trace struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	StepCount int       `json:"step_count"`
}

// Store is a SQLite-backed trace store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the store at path.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	db, err := openDB(path, opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// SaveTrace inserts or replaces a trace. StepCount is taken from steps.
func (s *Store) SaveTrace(ctx context.Context, tr Trace, steps []step.Step) error {
	if tr.ID == "" {
		return fmt.Errorf("store: save trace: empty id")
	}
	data, err := step.Marshal(steps)
	if err != nil {
		return fmt.Errorf("store: save trace: %w", err)
	}
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO traces (id, url, started_at, stopped_at, step_count, steps)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				url = excluded.url,
				started_at = excluded.started_at,
				stopped_at = excluded.stopped_at,
				step_count = excluded.step_count,
				steps = excluded.steps`,
			tr.ID, tr.URL, tr.StartedAt.UnixMilli(), tr.StoppedAt.UnixMilli(), len(steps), string(data))
		return err
	})
	if err != nil {
		return fmt.Errorf("store: save trace %s: %w", tr.ID, err)
	}
	s.log().Debug("store: trace saved", "id", tr.ID, "steps", len(steps))
	return nil
}

// GetTrace returns a trace and its steps.
func (s *Store) GetTrace(ctx context.Context, id string) (Trace, []step.Step, error) {
	var (
		tr             Trace
		started, ended int64
		data           string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, started_at, stopped_at, step_count, steps
		FROM traces WHERE id = ?`, id).
		Scan(&tr.ID, &tr.URL, &started, &ended, &tr.StepCount, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Trace{}, nil, ErrNotFound
	}
	if err != nil {
		return Trace{}, nil, fmt.Errorf("store: get trace %s: %w", id, err)
	}
	tr.StartedAt = time.UnixMilli(started)
	tr.StoppedAt = time.UnixMilli(ended)
	steps, err := step.Unmarshal([]byte(data))
	if err != nil {
		return Trace{}, nil, fmt.Errorf("store: get trace %s: %w", id, err)
	}
	return tr, steps, nil
}

// ListTraces returns up to limit traces, newest first. limit <= 0 means 50.
func (s *Store) ListTraces(ctx context.Context, limit int) ([]Trace, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, started_at, stopped_at, step_count
		FROM traces ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list traces: %w", err)
	}
	defer rows.Close()

	var out []Trace
	for rows.Next() {
		var tr Trace
		var started, ended int64
		if err := rows.Scan(&tr.ID, &tr.URL, &started, &ended, &tr.StepCount); err != nil {
			return nil, fmt.Errorf("store: list traces: %w", err)
		}
		tr.StartedAt = time.UnixMilli(started)
		tr.StoppedAt = time.UnixMilli(ended)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// DeleteTrace removes a trace and its workflows.
func (s *Store) DeleteTrace(ctx context.Context, id string) error {
	var n int64
	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM traces WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("store: delete trace %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveWorkflow stores the program compiled from a trace by compiler.
func (s *Store) SaveWorkflow(ctx context.Context, traceID, compiler string, p workflow.Program) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: save workflow: %w", err)
	}
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflows (trace_id, compiler, program, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(trace_id, compiler) DO UPDATE SET
				program = excluded.program,
				created_at = excluded.created_at`,
			traceID, compiler, string(data), time.Now().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("store: save workflow %s/%s: %w", traceID, compiler, err)
	}
	return nil
}

// GetWorkflow returns the program stored for a trace and compiler.
func (s *Store) GetWorkflow(ctx context.Context, traceID, compiler string) (workflow.Program, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT program FROM workflows WHERE trace_id = ? AND compiler = ?`,
		traceID, compiler).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get workflow %s/%s: %w", traceID, compiler, err)
	}
	var p workflow.Program
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("store: decode workflow %s/%s: %w", traceID, compiler, err)
	}
	return p, nil
}
