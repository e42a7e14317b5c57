// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// SQLiteLedger persists run history in SQLite.
type SQLiteLedger struct {
	db    *sql.DB
	owned bool
}

// OpenSQLiteLedger opens (or creates) the ledger database at path.
func OpenSQLiteLedger(path string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(errors.CodeStorage, "create ledger directory", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "open ledger", err).WithContext("path", path)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	l, err := NewSQLiteLedger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// NewSQLiteLedger wraps an open database and ensures the schema.
func NewSQLiteLedger(db *sql.DB) (*SQLiteLedger, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "ledger db is nil", nil)
	}
	if err := ensureLedgerSchema(db); err != nil {
		return nil, errors.New(errors.CodeStorage, "create ledger schema", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Close releases the database if the ledger opened it.
func (s *SQLiteLedger) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// RecordRun implements Ledger.
func (s *SQLiteLedger) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, topic, status, error_text, output_dir, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			error_text = excluded.error_text,
			output_dir = excluded.output_dir,
			finished_at = excluded.finished_at
	`,
		run.RunID,
		run.Topic,
		run.Status,
		run.Error,
		run.OutputDir,
		normalizeTime(run.StartedAt),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return errors.New(errors.CodeStorage, "record run", err).WithContext("run_id", run.RunID)
	}
	return nil
}

// RecordEvent implements Ledger.
func (s *SQLiteLedger) RecordEvent(ctx context.Context, event StageEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_stage_events (
			run_id, event_type, stage, agent_id, run_status, attempts, chars, error_text, at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.RunID,
		event.Type,
		event.Stage,
		event.AgentID,
		event.RunStatus,
		event.Attempts,
		event.Chars,
		event.Error,
		normalizeTime(event.At),
	)
	if err != nil {
		return errors.New(errors.CodeStorage, "record stage event", err).WithContext("run_id", event.RunID)
	}
	return nil
}

// Runs implements Ledger.
func (s *SQLiteLedger) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, topic, status, error_text, output_dir, started_at, finished_at
		FROM pipeline_runs
		ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "list runs", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run      RunRecord
			started  sql.NullTime
			finished sql.NullTime
		)
		if err := rows.Scan(&run.RunID, &run.Topic, &run.Status, &run.Error, &run.OutputDir, &started, &finished); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan run", err)
		}
		if started.Valid {
			run.StartedAt = started.Time
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "list runs", err)
	}
	return runs, nil
}

// Events implements Ledger.
func (s *SQLiteLedger) Events(ctx context.Context, filter EventFilter) ([]StageEvent, error) {
	query := `
		SELECT run_id, event_type, stage, agent_id, run_status, attempts, chars, error_text, at
		FROM pipeline_stage_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.Stage != "" {
		addFilter("stage = ?", filter.Stage)
	}
	if filter.Type != "" {
		addFilter("event_type = ?", filter.Type)
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "list stage events", err)
	}
	defer rows.Close()

	var events []StageEvent
	for rows.Next() {
		var (
			ev StageEvent
			at sql.NullTime
		)
		if err := rows.Scan(&ev.RunID, &ev.Type, &ev.Stage, &ev.AgentID, &ev.RunStatus,
			&ev.Attempts, &ev.Chars, &ev.Error, &at); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan stage event", err)
		}
		if at.Valid {
			ev.At = at.Time
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "list stage events", err)
	}
	return events, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func ensureLedgerSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			status TEXT NOT NULL,
			error_text TEXT NOT NULL DEFAULT '',
			output_dir TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS pipeline_stage_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			stage TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_status TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			chars INTEGER NOT NULL DEFAULT 0,
			error_text TEXT NOT NULL DEFAULT '',
			at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_stage_events_run ON pipeline_stage_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_stage_events_stage ON pipeline_stage_events(stage);
	`)
	return err
}
