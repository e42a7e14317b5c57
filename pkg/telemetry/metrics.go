// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// PipelineMetrics tracks remote resource churn, run outcomes and stage latency.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	agentsCreated   metric.Int64Counter
	agentsDestroyed metric.Int64Counter
	runOutcomes     metric.Int64Counter
	stageFailures   metric.Int64Counter
	stageDuration   metric.Float64Histogram
}

// NewPipelineMetrics creates the pipeline instruments on the global meter provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("trendsurf/pipeline")

	agentsCreated, err := meter.Int64Counter(
		"trendsurf.agents.created",
		metric.WithDescription("Remote agents created"),
	)
	if err != nil {
		return nil, err
	}

	agentsDestroyed, err := meter.Int64Counter(
		"trendsurf.agents.destroyed",
		metric.WithDescription("Remote agents deleted, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	runOutcomes, err := meter.Int64Counter(
		"trendsurf.runs.terminal",
		metric.WithDescription("Remote runs by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	stageFailures, err := meter.Int64Counter(
		"trendsurf.stages.failed",
		metric.WithDescription("Failed stages by error code"),
	)
	if err != nil {
		return nil, err
	}

	stageDuration, err := meter.Float64Histogram(
		"trendsurf.stage.duration",
		metric.WithDescription("Stage wall-clock duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		agentsCreated:   agentsCreated,
		agentsDestroyed: agentsDestroyed,
		runOutcomes:     runOutcomes,
		stageFailures:   stageFailures,
		stageDuration:   stageDuration,
	}, nil
}

// AgentCreated counts one created remote agent.
func (m *PipelineMetrics) AgentCreated(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.agentsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAgentName, name)))
}

// AgentDestroyed counts one deletion attempt and whether it succeeded.
func (m *PipelineMetrics) AgentDestroyed(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.agentsDestroyed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}

// RunTerminal counts a remote run that reached status.
func (m *PipelineMetrics) RunTerminal(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.runOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRunStatus, status)))
}

// StageFinished records the stage duration and, when err is set, a failure
// labeled with its error code.
func (m *PipelineMetrics) StageFinished(ctx context.Context, stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.Bool("ok", err == nil),
	))
	if err == nil {
		return
	}
	m.stageFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.String(AttrErrorCode, string(errors.CodeOf(err))),
	))
}
