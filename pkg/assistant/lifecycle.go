// SPDX-License-Identifier: Apache-2.0

package assistant

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/trendsurf/pkg/agents"
	"github.com/jllopis/trendsurf/pkg/errors"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

// cleanupTimeout bounds Scope.Close once the caller's context is gone.
const cleanupTimeout = 30 * time.Second

// Lifecycle creates and deletes remote agents.
type Lifecycle struct {
	api   AgentAPI
	model string
	opts  options
}

// NewLifecycle returns a Lifecycle creating agents on model unless a
// definition names its own.
func NewLifecycle(api AgentAPI, model string, opts ...Option) *Lifecycle {
	return &Lifecycle{api: api, model: model, opts: newOptions(opts)}
}

// Create requests a remote agent configured from def. Resource placeholders
// must already be bound (see agents.Definition.BindIndex). Transport, auth,
// deadline and cancellation failures keep their code; any other rejection is
// reported as errors.CodeAgentCreation.
func (l *Lifecycle) Create(ctx context.Context, def agents.Definition) (Handle, error) {
	spec := AgentSpec{
		Name:         def.Name,
		Model:        def.Model,
		Instructions: def.Instructions,
		Tools:        def.Tools,
		IndexIDs:     def.Resources,
	}
	if spec.Model == "" {
		spec.Model = l.model
	}

	ctx, span := l.opts.tracer.Start(ctx, "assistant.create_agent",
		trace.WithAttributes(attribute.String(telemetry.AttrStage, def.Stage)))
	defer span.End()

	h, err := l.api.CreateAgent(ctx, spec)
	if err != nil {
		err = creationError(err, def)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create agent failed")
		return Handle{}, err
	}
	if h.Name == "" {
		h.Name = def.Name
	}
	span.SetAttributes(telemetry.AgentAttributes(h.ID, h.Name, spec.Model)...)
	l.opts.metrics.AgentCreated(ctx, h.Name)
	l.opts.logger.InfoContext(ctx, "agent created", "agent_id", h.ID, "agent", h.Name, "model", spec.Model)
	return h, nil
}

func creationError(err error, def agents.Definition) error {
	switch errors.CodeOf(err) {
	case errors.CodeTransport, errors.CodeUnauthorized, errors.CodeRateLimit,
		errors.CodeTimeout, errors.CodeContextLost, errors.CodeAgentCreation:
		return err
	}
	return errors.New(errors.CodeAgentCreation, "create agent "+def.Name, err).
		WithContext("stage", def.Stage).
		WithContext("agent", def.Name)
}

// Destroy deletes every handle. A failure is logged and does not stop the
// remaining deletions; all failures are returned joined.
func (l *Lifecycle) Destroy(ctx context.Context, handles []Handle) error {
	var errs []error
	for _, h := range handles {
		if err := l.api.DeleteAgent(ctx, h.ID); err != nil {
			l.opts.metrics.AgentDestroyed(ctx, false)
			l.opts.logger.WarnContext(ctx, "agent delete failed", "agent_id", h.ID, "agent", h.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		l.opts.metrics.AgentDestroyed(ctx, true)
		l.opts.logger.InfoContext(ctx, "agent deleted", "agent_id", h.ID, "agent", h.Name)
	}
	return stderrors.Join(errs...)
}

// Scope owns the agents created through it and deletes them exactly once on
// Close. Defer Close right after NewScope so every exit path cleans up.
type Scope struct {
	lc *Lifecycle

	mu      sync.Mutex
	handles []Handle
	closed  bool
}

// NewScope starts an empty cleanup scope.
func (l *Lifecycle) NewScope() *Scope {
	return &Scope{lc: l}
}

var errScopeClosed = errors.New(errors.CodeInternal, "agent scope already closed", nil)

// Create creates an agent and registers it for cleanup.
func (s *Scope) Create(ctx context.Context, def agents.Definition) (Handle, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Handle{}, errScopeClosed
	}

	h, err := s.lc.Create(ctx, def)
	if err != nil {
		return Handle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Close ran while the request was in flight; delete the straggler now.
		_ = s.lc.Destroy(context.WithoutCancel(ctx), []Handle{h})
		return Handle{}, errScopeClosed
	}
	s.handles = append(s.handles, h)
	return h, nil
}

// Handles returns the registered handles in creation order.
func (s *Scope) Handles() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// Close deletes every registered agent. It ignores cancellation of ctx so a
// canceled run still cleans up, and later calls are no-ops.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	if len(handles) == 0 {
		return nil
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	return s.lc.Destroy(cctx, handles)
}
