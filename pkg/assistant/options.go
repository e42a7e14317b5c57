// SPDX-License-Identifier: Apache-2.0

package assistant

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/trendsurf/pkg/resilience"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

const tracerName = "trendsurf/assistant"

type options struct {
	logger  *slog.Logger
	metrics *telemetry.PipelineMetrics
	tracer  trace.Tracer
	poll    resilience.PollConfig
}

// Option configures the Lifecycle, Indexer and Executor.
type Option func(*options)

// WithLogger sets the logger. Records are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records agent churn and run outcomes.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithPoll sets the status poll bounds used by the Indexer and Executor.
func WithPoll(p resilience.PollConfig) Option {
	return func(o *options) {
		o.poll = p
	}
}

func newOptions(opts []Option) options {
	o := options{poll: resilience.DefaultPollConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = telemetry.OrDiscard(o.logger)
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}
