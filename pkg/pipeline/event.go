// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/trendsurf/pkg/artifact"
)

// EventType identifies a pipeline progress event.
type EventType string

const (
	EventPipelineStarted   EventType = "pipeline.started"
	EventIndexReady        EventType = "index.ready"
	EventIndexFailed       EventType = "index.failed"
	EventStageStarted      EventType = "stage.started"
	EventStageCompleted    EventType = "stage.completed"
	EventStageFailed       EventType = "stage.failed"
	EventPipelineCompleted EventType = "pipeline.completed"
	EventPipelineFailed    EventType = "pipeline.failed"
)

// Event captures one step of a run.
type Event struct {
	Type      EventType
	RunID     string
	Topic     string
	Stage     string
	Sequence  int
	Agent     string
	AgentID   string
	RunStatus string
	Attempts  int
	Chars     int
	Path      string
	Degraded  bool
	Err       error
	Elapsed   time.Duration
	Timestamp time.Time
}

// Emitter receives pipeline events. Emit must not block for long; it runs
// on the pipeline goroutine.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoopEmitter discards events.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(context.Context, Event) {}

// MultiEmitter fans events out to every emitter in order.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(ctx context.Context, event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}

// LogEmitter writes events as structured log records.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements Emitter.
func (l LogEmitter) Emit(ctx context.Context, ev Event) {
	if l.Logger == nil {
		return
	}
	attrs := []any{"run_id", ev.RunID, "event", string(ev.Type)}
	if ev.Stage != "" {
		attrs = append(attrs, "stage", ev.Stage, "seq", ev.Sequence)
	}
	if ev.RunStatus != "" {
		attrs = append(attrs, "run_status", ev.RunStatus, "attempts", ev.Attempts)
	}
	if ev.Elapsed > 0 {
		attrs = append(attrs, "elapsed", ev.Elapsed)
	}
	if ev.Degraded {
		attrs = append(attrs, "degraded", true)
	}
	switch {
	case ev.Err != nil:
		l.Logger.ErrorContext(ctx, "pipeline event", append(attrs, "error", ev.Err)...)
	default:
		l.Logger.InfoContext(ctx, "pipeline event", attrs...)
	}
}

// LedgerEmitter records stage events and run summaries in a ledger. Ledger
// write failures are logged and never fail the run.
type LedgerEmitter struct {
	Ledger artifact.Ledger
	Logger *slog.Logger

	mu   sync.Mutex
	runs map[string]artifact.RunRecord
}

// NewLedgerEmitter returns an emitter writing to ledger.
func NewLedgerEmitter(ledger artifact.Ledger, logger *slog.Logger) *LedgerEmitter {
	return &LedgerEmitter{Ledger: ledger, Logger: logger, runs: make(map[string]artifact.RunRecord)}
}

// Emit implements Emitter.
func (l *LedgerEmitter) Emit(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	if run, ok := l.runRecord(ev); ok {
		l.check(ctx, l.Ledger.RecordRun(ctx, run))
	}
	if ev.Type == EventPipelineStarted {
		return
	}
	se := artifact.StageEvent{
		RunID:     ev.RunID,
		Type:      string(ev.Type),
		Stage:     ev.Stage,
		AgentID:   ev.AgentID,
		RunStatus: ev.RunStatus,
		Attempts:  ev.Attempts,
		Chars:     ev.Chars,
		At:        ev.Timestamp,
	}
	if ev.Err != nil {
		se.Error = ev.Err.Error()
	}
	l.check(ctx, l.Ledger.RecordEvent(ctx, se))
}

func (l *LedgerEmitter) runRecord(ev Event) (artifact.RunRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch ev.Type {
	case EventPipelineStarted:
		run := artifact.RunRecord{RunID: ev.RunID, Status: "running", StartedAt: ev.Timestamp, OutputDir: ev.Path, Topic: ev.Topic}
		l.runs[ev.RunID] = run
		return run, true
	case EventPipelineCompleted, EventPipelineFailed:
		run := l.runs[ev.RunID]
		delete(l.runs, ev.RunID)
		run.RunID = ev.RunID
		run.FinishedAt = ev.Timestamp
		run.Status = string(StatusCompleted)
		if ev.Degraded {
			run.Status = string(StatusDegraded)
		}
		if ev.Err != nil {
			run.Status = string(StatusFailed)
			run.Error = ev.Err.Error()
		}
		return run, true
	}
	return artifact.RunRecord{}, false
}

func (l *LedgerEmitter) check(ctx context.Context, err error) {
	if err != nil && l.Logger != nil {
		l.Logger.WarnContext(ctx, "ledger write failed", "error", err)
	}
}
