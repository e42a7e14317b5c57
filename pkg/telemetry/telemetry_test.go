package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitNone(t *testing.T) {
	shutdown, err := InitWithConfig("test-service", "v0.0.1", Config{Exporter: "none"})
	if err != nil {
		t.Fatalf("InitWithConfig failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitRejectsBadExporter(t *testing.T) {
	if _, err := InitWithConfig("svc", "v", Config{Exporter: "zipkin"}); err == nil {
		t.Fatal("expected unknown exporter error")
	}
	if _, err := InitWithConfig("svc", "v", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("expected missing endpoint error")
	}
}

func TestSlogAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.InfoContext(ctx, "stage started", "stage", "research")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id in log record, got %v", record["trace_id"])
	}
	if record["stage"] != "research" {
		t.Errorf("expected stage attribute, got %v", record["stage"])
	}
}

func TestSlogAddsRunAndStage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	ctx := ContextWithRun(context.Background(), "run-42")
	logger.InfoContext(ctx, "pipeline started")
	logger.InfoContext(ContextWithStage(ctx, "compliance"), "agent created")
	logger.InfoContext(ContextWithStage(ctx, "compliance"), "explicit wins", "stage", "override")
	logger.With("run_id", "bound").InfoContext(ctx, "bound wins")
	logger.Info("no context")

	var records []map[string]any
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var r map[string]any
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		records = append(records, r)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}

	checks := []struct {
		runID, stage any
	}{
		{"run-42", nil},
		{"run-42", "compliance"},
		{"run-42", "override"},
		{"bound", nil},
		{nil, nil},
	}
	for i, c := range checks {
		if records[i]["run_id"] != c.runID || records[i]["stage"] != c.stage {
			t.Errorf("record %d (%v): run_id=%v stage=%v, want %v %v",
				i, records[i]["msg"], records[i]["run_id"], records[i]["stage"], c.runID, c.stage)
		}
	}
}

func TestRunFromContext(t *testing.T) {
	ctx := ContextWithStage(ContextWithRun(context.Background(), "r1"), "copy")
	if runID, stage := RunFromContext(ctx); runID != "r1" || stage != "copy" {
		t.Errorf("RunFromContext = %q, %q", runID, stage)
	}
	if runID, stage := RunFromContext(context.Background()); runID != "" || stage != "" {
		t.Errorf("empty context returned %q, %q", runID, stage)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
