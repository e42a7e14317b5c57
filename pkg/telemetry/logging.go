// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Log keys added from the context by loggers built here.
const (
	LogKeyRunID   = "run_id"
	LogKeyStage   = "stage"
	LogKeyTraceID = "trace_id"
	LogKeySpanID  = "span_id"
)

// runScope is the pipeline position carried on a context for logging.
type runScope struct {
	runID string
	stage string
}

type runScopeKey struct{}

// ContextWithRun tags ctx with a pipeline run ID. Records logged with the
// context carry run_id without the caller adding it.
func ContextWithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runScopeKey{}, runScope{runID: runID})
}

// ContextWithStage tags ctx with the stage being executed, keeping the run ID.
func ContextWithStage(ctx context.Context, stage string) context.Context {
	scope, _ := ctx.Value(runScopeKey{}).(runScope)
	scope.stage = stage
	return context.WithValue(ctx, runScopeKey{}, scope)
}

// RunFromContext returns the run ID and stage stored on ctx.
func RunFromContext(ctx context.Context) (runID, stage string) {
	if ctx == nil {
		return "", ""
	}
	scope, _ := ctx.Value(runScopeKey{}).(runScope)
	return scope.runID, scope.stage
}

// ConfigureSlog builds the process logger and installs it as the slog default.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	logger := NewLogger(output, level, format)
	slog.SetDefault(logger)
	return logger
}

// NewLogger builds a logger that annotates records with the run, stage and
// span found on the logging context.
func NewLogger(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}
	return slog.New(&contextHandler{next: base})
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return DiscardLogger()
	}
	return logger
}

// contextHandler copies context values into each record. Attributes the
// caller set explicitly win, as do attributes bound with Logger.With.
type contextHandler struct {
	next  slog.Handler
	bound map[string]bool
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx == nil {
		return h.next.Handle(ctx, record)
	}
	present := recordKeys(record)
	add := func(key, value string) {
		if value != "" && !present[key] && !h.bound[key] {
			record.AddAttrs(slog.String(key, value))
		}
	}

	runID, stage := RunFromContext(ctx)
	add(LogKeyRunID, runID)
	add(LogKeyStage, stage)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add(LogKeyTraceID, sc.TraceID().String())
		add(LogKeySpanID, sc.SpanID().String())
	}
	return h.next.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]bool, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = true
	}
	for _, a := range attrs {
		bound[a.Key] = true
	}
	return &contextHandler{next: h.next.WithAttrs(attrs), bound: bound}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name), bound: h.bound}
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	default:
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return slog.LevelInfo
		}
		return l
	}
}

func recordKeys(record slog.Record) map[string]bool {
	keys := make(map[string]bool, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		keys[attr.Key] = true
		return true
	})
	return keys
}
