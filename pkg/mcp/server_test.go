package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/trendsurf/pkg/artifact"
	"github.com/jllopis/trendsurf/pkg/errors"
	"github.com/jllopis/trendsurf/pkg/pipeline"
)

type stubGenerator struct {
	lastTopic string
	res       *pipeline.Result
	err       error
}

func (g *stubGenerator) Execute(_ context.Context, topic string) (*pipeline.Result, error) {
	g.lastTopic = topic
	return g.res, g.err
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestGenerateContentReturnsAggregate(t *testing.T) {
	gen := &stubGenerator{res: &pipeline.Result{
		RunID:    "run-1",
		Topic:    "supply chain AI",
		Research: "brief",
		Status:   pipeline.StatusCompleted,
	}}
	s := NewServer("trendsurf", "test", gen)

	res, err := s.handleGenerate(context.Background(), callRequest(ToolGenerateContent, map[string]any{"topic": "supply chain AI"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if gen.lastTopic != "supply chain AI" {
		t.Fatalf("unexpected topic %q", gen.lastTopic)
	}
	var agg map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &agg); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if agg["research"] != "brief" || agg["topic"] != "supply chain AI" {
		t.Fatalf("unexpected aggregate %v", agg)
	}
}

func TestGenerateContentDefaultTopic(t *testing.T) {
	gen := &stubGenerator{res: &pipeline.Result{RunID: "run-1"}}
	s := NewServer("trendsurf", "test", gen, WithDefaultTopic("open banking"))

	if _, err := s.handleGenerate(context.Background(), callRequest(ToolGenerateContent, nil)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if gen.lastTopic != "open banking" {
		t.Fatalf("expected default topic, got %q", gen.lastTopic)
	}
}

func TestGenerateContentNoTopic(t *testing.T) {
	gen := &stubGenerator{}
	s := NewServer("trendsurf", "test", gen)

	res, _ := s.handleGenerate(context.Background(), callRequest(ToolGenerateContent, map[string]any{"topic": "  "}))
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if gen.lastTopic != "" {
		t.Fatal("pipeline must not run without a topic")
	}
}

func TestGenerateContentPipelineError(t *testing.T) {
	gen := &stubGenerator{
		res: &pipeline.Result{RunID: "run-9"},
		err: errors.New(errors.CodeRunFailed, "agent run failed", nil),
	}
	s := NewServer("trendsurf", "test", gen)

	res, err := s.handleGenerate(context.Background(), callRequest(ToolGenerateContent, map[string]any{"topic": "x"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	text := resultText(t, res)
	if !strings.Contains(text, "RUN_FAILED") || !strings.Contains(text, "run-9") {
		t.Fatalf("unexpected error text %q", text)
	}
}

func TestRecentRuns(t *testing.T) {
	ledger := artifact.NewMemoryLedger()
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"a", "b", "c"} {
		_ = ledger.RecordRun(ctx, artifact.RunRecord{RunID: id, Topic: "t", Status: "completed", StartedAt: now})
	}
	s := NewServer("trendsurf", "test", &stubGenerator{}, WithLedger(ledger))

	res, err := s.handleRecentRuns(ctx, callRequest(ToolRecentRuns, map[string]any{"limit": 2}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var runs []runSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "c" {
		t.Fatalf("unexpected runs %+v", runs)
	}
}
