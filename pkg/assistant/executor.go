// SPDX-License-Identifier: Apache-2.0

package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/trendsurf/pkg/errors"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

// TurnResult is the outcome of one exchange. Exactly one of Text and Err is
// set: Text holds the agent's reply for a completed run, Err a
// errors.CodeRunFailed error for any other terminal state.
type TurnResult struct {
	RunID    string
	Status   RunStatus
	Text     string
	Err      error
	Attempts int
}

// OK reports whether the turn produced content.
func (r TurnResult) OK() bool {
	return r.Err == nil
}

// Executor sends messages to remote agents and waits for their replies.
type Executor struct {
	api  ThreadAPI
	opts options
}

// NewExecutor returns an Executor. Use WithPoll for the run poll bounds.
func NewExecutor(api ThreadAPI, opts ...Option) *Executor {
	return &Executor{api: api, opts: newOptions(opts)}
}

// NewConversation opens a conversation for one stage.
func (e *Executor) NewConversation(ctx context.Context) (Conversation, error) {
	return e.api.CreateConversation(ctx)
}

// RunTurn posts message to conv, starts a run of agent h and polls until the
// run settles.
//
// The returned error is reserved for failures to talk to the service and for
// exhausted poll bounds (errors.CodeTimeout). A run the service reports as
// failed, cancelled, expired or incomplete is returned in TurnResult.Err and
// never as text. Failed runs are not retried.
func (e *Executor) RunTurn(ctx context.Context, h Handle, conv Conversation, message string) (TurnResult, error) {
	ctx, span := e.opts.tracer.Start(ctx, "assistant.run_turn",
		trace.WithAttributes(telemetry.AgentAttributes(h.ID, h.Name, "")...))
	defer span.End()

	res, err := e.runTurn(ctx, h, conv, message)
	span.SetAttributes(telemetry.TurnAttributes(conv.ID, res.RunID, res.Status.String(), res.Attempts, len(res.Text))...)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn aborted")
	case res.Err != nil:
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "run "+res.Status.String())
	}
	return res, err
}

func (e *Executor) runTurn(ctx context.Context, h Handle, conv Conversation, message string) (TurnResult, error) {
	if err := e.api.PostMessage(ctx, conv.ID, RoleUser, message); err != nil {
		return TurnResult{}, err
	}
	run, err := e.api.CreateRun(ctx, conv.ID, h.ID)
	if err != nil {
		return TurnResult{}, err
	}
	res := TurnResult{RunID: run.ID, Status: run.Status}
	e.opts.logger.DebugContext(ctx, "run started", "run_id", run.ID, "agent", h.Name, "conversation_id", conv.ID)

	last := run
	res.Attempts, err = e.opts.poll.Until(ctx, "run "+run.ID, func(ctx context.Context) (bool, error) {
		r, err := e.api.GetRun(ctx, conv.ID, run.ID)
		if err != nil {
			return false, err
		}
		last = r
		return r.Status.settled(), nil
	})
	res.Status = last.Status
	if err != nil {
		return res, err
	}
	e.opts.metrics.RunTerminal(ctx, last.Status.String())

	if last.Status != RunCompleted {
		res.Err = runFailure(last, h)
		e.opts.logger.ErrorContext(ctx, "run did not complete", "run_id", run.ID, "agent", h.Name,
			"status", last.Status.String(), "error", res.Err)
		return res, nil
	}

	text, err := e.latestReply(ctx, conv.ID, run.ID)
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(text) == "" {
		res.Err = errors.New(errors.CodeRunFailed, "no response from agent", nil).
			WithContext("run_id", run.ID).
			WithContext("agent", h.Name)
		return res, nil
	}
	res.Text = text
	e.opts.logger.InfoContext(ctx, "run completed", "run_id", run.ID, "agent", h.Name,
		"attempts", res.Attempts, "chars", len(text))
	return res, nil
}

func runFailure(run Run, h Handle) error {
	msg := fmt.Sprintf("agent run %s", run.Status)
	if run.LastError != nil && run.LastError.Message != "" {
		msg += ": " + run.LastError.Message
	}
	err := errors.New(errors.CodeRunFailed, msg, nil).
		WithContext("run_id", run.ID).
		WithContext("status", run.Status.String()).
		WithContext("agent", h.Name)
	if run.LastError != nil && run.LastError.Code != "" {
		err.WithContext("remote_code", run.LastError.Code)
	}
	return err.WithRecoverable(run.Status == RunExpired)
}

// latestReply returns the text blocks of the newest assistant message of the
// run, joined in order with newlines.
func (e *Executor) latestReply(ctx context.Context, conversationID, runID string) (string, error) {
	msgs, err := e.api.ListMessages(ctx, conversationID, MessageQuery{
		RunID: runID,
		Role:  RoleAssistant,
		Order: OrderDesc,
		Limit: 1,
	})
	if err != nil {
		return "", err
	}
	for _, msg := range msgs {
		if msg.Role != RoleAssistant {
			continue
		}
		var texts []string
		for _, block := range msg.Content {
			if block.Type == ContentText {
				texts = append(texts, block.Text)
			}
		}
		return strings.Join(texts, "\n"), nil
	}
	return "", nil
}
