// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"sync"
	"time"
)

// RunRecord summarizes one pipeline run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Topic      string    `json:"topic"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OutputDir  string    `json:"output_dir,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// StageEvent is one entry of a run's history.
type StageEvent struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	RunStatus string    `json:"run_status,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Chars     int       `json:"chars,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// EventFilter limits event queries.
type EventFilter struct {
	RunID string
	Stage string
	Type  string
	Limit int
}

// Ledger records run history.
type Ledger interface {
	// RecordRun inserts or replaces the run summary keyed by RunID.
	RecordRun(ctx context.Context, run RunRecord) error
	RecordEvent(ctx context.Context, event StageEvent) error
	// Runs returns the most recent runs first.
	Runs(ctx context.Context, limit int) ([]RunRecord, error)
	Events(ctx context.Context, filter EventFilter) ([]StageEvent, error)
}

// MemoryLedger keeps run history in memory.
type MemoryLedger struct {
	mu     sync.Mutex
	runs   []RunRecord
	events []StageEvent
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// RecordRun implements Ledger.
func (l *MemoryLedger) RecordRun(_ context.Context, run RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.runs {
		if l.runs[i].RunID == run.RunID {
			l.runs[i] = run
			return nil
		}
	}
	l.runs = append(l.runs, run)
	return nil
}

// RecordEvent implements Ledger.
func (l *MemoryLedger) RecordEvent(_ context.Context, event StageEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Runs implements Ledger.
func (l *MemoryLedger) Runs(_ context.Context, limit int) ([]RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]RunRecord, 0, len(l.runs))
	for i := len(l.runs) - 1; i >= 0; i-- {
		out = append(out, l.runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Events implements Ledger.
func (l *MemoryLedger) Events(_ context.Context, filter EventFilter) ([]StageEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]StageEvent, 0, len(l.events))
	for _, ev := range l.events {
		if filter.RunID != "" && ev.RunID != filter.RunID {
			continue
		}
		if filter.Stage != "" && ev.Stage != filter.Stage {
			continue
		}
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
