// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the four content stages in order: research,
// compliance, copy and review. Each stage gets a fresh remote agent and
// conversation, its prompt is built from the topic and every earlier output,
// and its output is persisted before the next stage starts.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/trendsurf/pkg/agents"
	"github.com/jllopis/trendsurf/pkg/artifact"
	"github.com/jllopis/trendsurf/pkg/assistant"
	"github.com/jllopis/trendsurf/pkg/errors"
	"github.com/jllopis/trendsurf/pkg/guardrails"
	"github.com/jllopis/trendsurf/pkg/resilience"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

const tracerName = "trendsurf/pipeline"

// IndexStage names the indexing step in Result.Degraded.
const IndexStage = "index"

// Orchestrator runs the content pipeline against a remote service.
type Orchestrator struct {
	registry  *agents.Registry
	store     artifact.Store
	lifecycle *assistant.Lifecycle
	indexer   *assistant.Indexer
	executor  *assistant.Executor
	s         settings
}

// New wires an orchestrator. svc is the remote service, reg supplies the
// stage definitions and store receives the artifacts.
func New(svc assistant.Service, reg *agents.Registry, store artifact.Store, opts ...Option) (*Orchestrator, error) {
	if svc == nil || reg == nil || store == nil {
		return nil, errors.New(errors.CodeInvalidInput, "pipeline: service, registry and store are required", nil)
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = telemetry.OrDiscard(s.logger)
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	for _, p := range []Policy{s.runFailure, s.indexFailure} {
		if p != PolicyAbort && p != PolicyDegrade {
			return nil, errors.New(errors.CodeInvalidInput, fmt.Sprintf("pipeline: unknown failure policy %q", p), nil)
		}
	}

	common := []assistant.Option{
		assistant.WithLogger(s.logger),
		assistant.WithMetrics(s.metrics),
		assistant.WithTracer(s.tracer),
	}
	with := func(extra ...assistant.Option) []assistant.Option {
		return append(append([]assistant.Option(nil), common...), extra...)
	}
	return &Orchestrator{
		registry:  reg,
		store:     store,
		lifecycle: assistant.NewLifecycle(svc, s.model, with()...),
		indexer:   assistant.NewIndexer(svc, with(assistant.WithPoll(s.indexPoll))...),
		executor:  assistant.NewExecutor(svc, with(assistant.WithPoll(s.runPoll))...),
		s:         s,
	}, nil
}

// Execute runs every stage for topic.
//
// The returned Result is never nil once the topic is accepted: on failure it
// carries the outputs produced so far and is also written as the aggregate
// document. Every remote agent created during the run is deleted before
// Execute returns, whichever stage failed.
func (o *Orchestrator) Execute(ctx context.Context, topic string) (res *Result, err error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New(errors.CodeInvalidInput, "topic is required", nil)
	}
	if o.s.guard != nil {
		if check := o.s.guard.CheckTopic(ctx, topic); check.Blocked {
			o.s.logger.WarnContext(ctx, "topic rejected", "guardrail", check.GuardrailID, "reason", check.Reason)
			return nil, errors.New(errors.CodeInvalidInput, "topic rejected: "+check.Reason, nil).
				WithContext("guardrail", check.GuardrailID)
		}
	}

	res = &Result{
		RunID:     o.s.newRunID(),
		Topic:     topic,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	store := o.storeFor(res.RunID)
	res.OutputDir = store.Location()

	ctx = telemetry.ContextWithRun(ctx, res.RunID)
	ctx, span := o.s.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(telemetry.RunAttributes(res.RunID, topic)...))
	defer span.End()

	o.emit(ctx, Event{Type: EventPipelineStarted, RunID: res.RunID, Topic: topic, Path: res.OutputDir})
	o.s.logger.InfoContext(ctx, "pipeline started", "topic", topic, "output_dir", res.OutputDir)

	scope := o.lifecycle.NewScope()
	var index assistant.IndexHandle
	defer func() {
		if cerr := scope.Close(ctx); cerr != nil {
			o.s.logger.WarnContext(ctx, "agent cleanup incomplete", "error", cerr)
		}
		if cerr := o.indexer.Release(ctx, index); cerr != nil {
			o.s.logger.WarnContext(ctx, "index cleanup incomplete", "error", cerr)
		}
		err = o.finish(ctx, span, store, res, err)
	}()

	index, err = o.prepareIndex(ctx, res)
	if err != nil {
		return res, err
	}

	inputs := map[string]string{agents.KeyTopic: topic}
	for i, def := range o.registry.Ordered() {
		text, err := o.runStage(ctx, scope, store, res, def.BindIndex(res.IndexID), i+1, inputs)
		if err != nil {
			return res, err
		}
		inputs[agents.OutputKey(def.Stage)] = text
	}
	return res, nil
}

// storeFor returns the store run runID writes its artifacts to.
func (o *Orchestrator) storeFor(runID string) artifact.Store {
	if rs, ok := o.store.(artifact.RunStore); ok {
		return rs.ForRun(runID)
	}
	return o.store
}

// prepareIndex indexes the reference document and sets res.IndexID when the
// index is usable. The returned handle names every remote resource created,
// even on failure, so the caller can release it.
func (o *Orchestrator) prepareIndex(ctx context.Context, res *Result) (assistant.IndexHandle, error) {
	if o.s.documentPath == "" {
		o.s.logger.InfoContext(ctx, "no reference document configured; compliance runs without retrieval")
		return assistant.IndexHandle{}, nil
	}
	h, err := o.indexer.IndexDocument(ctx, o.s.documentPath, o.s.indexName)
	if err == nil {
		res.IndexID = h.ID
		o.emit(ctx, Event{Type: EventIndexReady, RunID: res.RunID, Path: o.s.documentPath})
		return h, nil
	}

	degradable := errors.HasCode(err, errors.CodeIndexingFailed) || errors.HasCode(err, errors.CodeTimeout)
	if !degradable || o.s.indexFailure != PolicyDegrade {
		o.emit(ctx, Event{Type: EventIndexFailed, RunID: res.RunID, Path: o.s.documentPath, Err: err})
		return h, err
	}
	res.Degraded = append(res.Degraded, Degradation{Stage: IndexStage, Reason: err.Error()})
	o.emit(ctx, Event{Type: EventIndexFailed, RunID: res.RunID, Path: o.s.documentPath, Err: err, Degraded: true})
	o.s.logger.WarnContext(ctx, "continuing without reference index", "error", err)
	return h, nil
}

func (o *Orchestrator) runStage(ctx context.Context, scope *assistant.Scope, store artifact.Store, res *Result, def agents.Definition, seq int, inputs map[string]string) (string, error) {
	ctx = telemetry.ContextWithStage(ctx, def.Stage)
	ctx, span := o.s.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(telemetry.StageAttributes(def.Stage, seq)...))
	defer span.End()

	start := time.Now()
	base := Event{RunID: res.RunID, Stage: def.Stage, Sequence: seq, Agent: def.Name}
	o.emit(ctx, withType(base, EventStageStarted))

	fail := func(err error, ev Event) (string, error) {
		ev.Type = EventStageFailed
		ev.Err = err
		ev.Elapsed = time.Since(start)
		o.emit(ctx, ev)
		o.s.metrics.StageFinished(ctx, def.Stage, ev.Elapsed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		span.SetAttributes(attribute.String(telemetry.AttrErrorCode, string(errors.CodeOf(err))))
		return "", err
	}

	prompt, err := def.Render(inputs)
	if err != nil {
		return fail(errors.New(errors.CodeInvalidInput, "render "+def.Stage+" prompt", err), base)
	}

	var (
		handle assistant.Handle
		turn   assistant.TurnResult
	)
	err = resilience.WithTimeout(ctx, o.s.stageTimeout, "stage "+def.Stage, func(ctx context.Context) error {
		var err error
		handle, err = scope.Create(ctx, def)
		if err != nil {
			return err
		}
		conv, err := o.executor.NewConversation(ctx)
		if err != nil {
			return err
		}
		turn, err = o.executor.RunTurn(ctx, handle, conv, prompt)
		return err
	})
	base.AgentID = handle.ID
	if turn.RunID != "" {
		base.RunStatus = turn.Status.String()
		base.Attempts = turn.Attempts
	}
	if err != nil {
		return fail(err, base)
	}

	text := turn.Text
	if !turn.OK() {
		if o.s.runFailure != PolicyDegrade {
			return fail(turn.Err, base)
		}
		text = degradedMarker(def.Stage, turn)
		res.Degraded = append(res.Degraded, Degradation{Stage: def.Stage, Reason: turn.Err.Error()})
		span.SetAttributes(attribute.Bool(telemetry.AttrDegraded, true))
	}

	a, err := store.Save(ctx, artifact.Artifact{
		Stage:    def.Stage,
		Sequence: seq,
		Text:     text,
		Degraded: !turn.OK(),
	})
	if err != nil {
		return fail(err, base)
	}
	res.Artifacts = append(res.Artifacts, a)
	res.setOutput(def.Stage, text)

	ev := base
	ev.Type = EventStageCompleted
	ev.Chars = len(text)
	ev.Path = a.Path
	ev.Elapsed = time.Since(start)
	if !turn.OK() {
		ev.Type = EventStageFailed
		ev.Err = turn.Err
		ev.Degraded = true
	}
	o.emit(ctx, ev)
	o.s.metrics.StageFinished(ctx, def.Stage, ev.Elapsed, turn.Err)
	return text, nil
}

// degradedMarker is the stand-in output of a failed stage. It is phrased so
// downstream agents cannot mistake it for content.
func degradedMarker(stage string, turn assistant.TurnResult) string {
	return fmt.Sprintf("[UNAVAILABLE: the %s stage did not complete (run %s). Do not use this section as source material.]",
		stage, turn.Status)
}

// finish settles the result status, writes the aggregate document and emits
// the terminal event. A failed aggregate write fails an otherwise good run.
func (o *Orchestrator) finish(ctx context.Context, span trace.Span, store artifact.Store, res *Result, runErr error) error {
	ctx = context.WithoutCancel(ctx)
	res.FinishedAt = time.Now().UTC()
	switch {
	case runErr != nil:
		res.Status = StatusFailed
		res.Error = runErr.Error()
	case res.IsDegraded():
		res.Status = StatusDegraded
	default:
		res.Status = StatusCompleted
	}
	if runErr == nil {
		in := ExtractInsights(res)
		in.Flags = o.scanPosts(ctx, res, in.Posts)
		if !in.Empty() {
			res.Insights = &in
		}
	}

	data, err := res.MarshalIndent()
	if err == nil {
		var path string
		path, err = store.SaveAggregate(ctx, data)
		if err == nil {
			o.s.logger.InfoContext(ctx, "aggregate written", "path", path)
		}
	}
	if err != nil {
		o.s.logger.ErrorContext(ctx, "aggregate write failed", "error", err)
		if runErr == nil {
			runErr = err
			res.Status = StatusFailed
			res.Error = err.Error()
		}
	}

	ev := Event{RunID: res.RunID, Topic: res.Topic, Degraded: res.IsDegraded(), Elapsed: res.FinishedAt.Sub(res.StartedAt)}
	if runErr != nil {
		ev.Type = EventPipelineFailed
		ev.Err = runErr
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "pipeline failed")
		o.s.logger.ErrorContext(ctx, "pipeline failed", "error", runErr)
	} else {
		ev.Type = EventPipelineCompleted
		span.SetStatus(codes.Ok, "")
		o.s.logger.InfoContext(ctx, "pipeline completed",
			"status", string(res.Status), "elapsed", ev.Elapsed)
	}
	o.emit(ctx, ev)
	return runErr
}

// scanPosts runs the guard over each parsed post, or over the raw copy stage
// output when it could not be parsed.
func (o *Orchestrator) scanPosts(ctx context.Context, res *Result, posts []Post) []guardrails.Finding {
	if o.s.guard == nil {
		return nil
	}
	var flags []guardrails.Finding
	if len(posts) == 0 {
		flags = o.s.guard.Scan(ctx, "", res.Posts)
	}
	for _, p := range posts {
		flags = append(flags, o.s.guard.Scan(ctx, p.Platform, p.Content)...)
	}
	if len(flags) > 0 {
		o.s.logger.WarnContext(ctx, "drafted posts flagged", "findings", len(flags))
	}
	return flags
}

func (o *Orchestrator) emit(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	o.s.emitters.Emit(ctx, ev)
}

func withType(ev Event, t EventType) Event {
	ev.Type = t
	return ev
}
