// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/jllopis/trendsurf/pkg/errors"
)

func TestNewPipelineMetrics(t *testing.T) {
	m, err := NewPipelineMetrics()
	if err != nil {
		t.Fatalf("failed to create pipeline metrics: %v", err)
	}
	ctx := context.Background()

	m.AgentCreated(ctx, "TrendSurf Research Agent")
	m.AgentDestroyed(ctx, true)
	m.RunTerminal(ctx, "completed")
	m.StageFinished(ctx, "research", time.Second, nil)
	m.StageFinished(ctx, "review", time.Second, errors.New(errors.CodeRunFailed, "run failed", nil))
}

func TestNilPipelineMetrics(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()

	// Nil metrics should not panic
	m.AgentCreated(ctx, "agent")
	m.AgentDestroyed(ctx, false)
	m.RunTerminal(ctx, "failed")
	m.StageFinished(ctx, "copy", time.Millisecond, errors.New(errors.CodeTimeout, "timeout", nil))
}
