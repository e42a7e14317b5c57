// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp exposes the content pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/trendsurf/pkg/artifact"
	"github.com/jllopis/trendsurf/pkg/pipeline"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

// Tool names.
const (
	ToolGenerateContent = "generate_content"
	ToolRecentRuns      = "recent_runs"
)

// Generator runs the pipeline for a topic.
type Generator interface {
	Execute(ctx context.Context, topic string) (*pipeline.Result, error)
}

// Server wraps the mcp-go server with the pipeline tools.
type Server struct {
	mcpServer    *server.MCPServer
	gen          Generator
	ledger       artifact.Ledger
	defaultTopic string
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables the recent_runs tool.
func WithLedger(l artifact.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithDefaultTopic sets the topic used when a call names none.
func WithDefaultTopic(topic string) Option {
	return func(s *Server) { s.defaultTopic = topic }
}

// WithLogger sets the logger. Stdio transport owns stdout, so it must write
// elsewhere.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates an MCP server exposing gen.
func NewServer(name, version string, gen Generator, opts ...Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		gen:       gen,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = telemetry.OrDiscard(s.logger)

	s.mcpServer.AddTool(mcp.NewTool(ToolGenerateContent,
		mcp.WithDescription("Research a topic, check it against the brand kit and draft reviewed social media posts. Returns the aggregate pipeline result as JSON."),
		mcp.WithString("topic", mcp.Description("Topic to write about. Defaults to the configured topic.")),
	), s.handleGenerate)

	if s.ledger != nil {
		s.mcpServer.AddTool(mcp.NewTool(ToolRecentRuns,
			mcp.WithDescription("List the most recent pipeline runs recorded in the run ledger."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 10).")),
		), s.handleRecentRuns)
	}
	return s
}

func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic := strings.TrimSpace(request.GetString("topic", ""))
	if topic == "" {
		topic = s.defaultTopic
	}
	if topic == "" {
		return mcp.NewToolResultError("topic is required"), nil
	}

	s.logger.InfoContext(ctx, "mcp generate_content", "topic", topic)
	res, err := s.gen.Execute(ctx, topic)
	if err != nil {
		msg := err.Error()
		if res != nil {
			msg += " (run " + res.RunID + ")"
		}
		return mcp.NewToolResultError(msg), nil
	}
	data, err := res.MarshalIndent()
	if err != nil {
		return mcp.NewToolResultError("encode result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type runSummary struct {
	RunID      string `json:"run_id"`
	Topic      string `json:"topic"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func (s *Server) handleRecentRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}
	runs, err := s.ledger.Runs(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		sum := runSummary{
			RunID:     r.RunID,
			Topic:     r.Topic,
			Status:    r.Status,
			Error:     r.Error,
			StartedAt: r.StartedAt.Format(time.RFC3339),
		}
		if !r.FinishedAt.IsZero() {
			sum.FinishedAt = r.FinishedAt.Format(time.RFC3339)
		}
		out = append(out, sum)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves the tools on stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, os.Stdin, os.Stdout)
}
