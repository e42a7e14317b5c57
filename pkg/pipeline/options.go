// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/trendsurf/pkg/artifact"
	"github.com/jllopis/trendsurf/pkg/guardrails"
	"github.com/jllopis/trendsurf/pkg/resilience"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

// Policy decides what happens when a stage run or the indexing fails.
type Policy string

const (
	// PolicyAbort stops the run and returns the typed error.
	PolicyAbort Policy = "abort"
	// PolicyDegrade continues with an explicit marker and records the
	// failure in Result.Degraded.
	PolicyDegrade Policy = "degrade"
)

type settings struct {
	model        string
	documentPath string
	indexName    string
	stageTimeout time.Duration
	runFailure   Policy
	indexFailure Policy
	runPoll      resilience.PollConfig
	indexPoll    resilience.PollConfig

	logger   *slog.Logger
	metrics  *telemetry.PipelineMetrics
	tracer   trace.Tracer
	emitters MultiEmitter
	newRunID func() string
	guard    *guardrails.Guard
}

// Option configures an Orchestrator.
type Option func(*settings)

// WithLogger sets the logger used by the orchestrator and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithEmitter adds an event receiver. It may be given more than once.
func WithEmitter(e Emitter) Option {
	return func(s *settings) { s.emitters = append(s.emitters, e) }
}

// WithLedger records every run and stage event in ledger.
func WithLedger(ledger artifact.Ledger) Option {
	return func(s *settings) {
		s.emitters = append(s.emitters, NewLedgerEmitter(ledger, s.logger))
	}
}

// WithModel sets the deployment used by definitions that name none.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithDocument sets the reference document indexed before the stages run.
// An empty path skips indexing.
func WithDocument(path, indexName string) Option {
	return func(s *settings) {
		s.documentPath = path
		s.indexName = indexName
	}
}

// WithStageTimeout bounds each stage from agent creation to reply.
func WithStageTimeout(d time.Duration) Option {
	return func(s *settings) { s.stageTimeout = d }
}

// WithRunFailurePolicy sets the reaction to a run that ends in a failed state.
func WithRunFailurePolicy(p Policy) Option {
	return func(s *settings) { s.runFailure = p }
}

// WithIndexFailurePolicy sets the reaction to a failed document index.
func WithIndexFailurePolicy(p Policy) Option {
	return func(s *settings) { s.indexFailure = p }
}

// WithRunPoll sets the run status poll bounds.
func WithRunPoll(p resilience.PollConfig) Option {
	return func(s *settings) { s.runPoll = p }
}

// WithIndexPoll sets the index status poll bounds.
func WithIndexPoll(p resilience.PollConfig) Option {
	return func(s *settings) { s.indexPoll = p }
}

// WithGuard checks topics before any prompt is built and scans drafted posts
// after a successful run. Findings land in Insights.Flags.
func WithGuard(g *guardrails.Guard) Option {
	return func(s *settings) { s.guard = g }
}

// WithRunIDs replaces the run ID generator.
func WithRunIDs(gen func() string) Option {
	return func(s *settings) { s.newRunID = gen }
}

func defaultSettings() settings {
	return settings{
		model:        "gpt-4.1",
		indexName:    "Reference Index",
		stageTimeout: 10 * time.Minute,
		runFailure:   PolicyAbort,
		indexFailure: PolicyAbort,
		runPoll:      resilience.DefaultPollConfig(),
		indexPoll:    resilience.DefaultPollConfig().WithMaxAttempts(90).WithTimeout(3 * time.Minute),
		newRunID:     uuid.NewString,
	}
}
