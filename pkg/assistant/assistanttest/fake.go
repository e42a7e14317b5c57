// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package assistanttest provides a scripted in-memory assistant.Service for
// tests. It records every agent created and deleted and every prompt sent so
// tests can assert on cleanup and prompt composition.
package assistanttest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jllopis/trendsurf/pkg/assistant"
	"github.com/jllopis/trendsurf/pkg/errors"
)

// Forever keeps a scripted run in progress for every poll.
const Forever = -1

// Responder produces the reply of agent name to prompt.
type Responder func(name, prompt string) string

// RunScript controls how runs of one agent progress.
type RunScript struct {
	// Polls is the number of in_progress snapshots before Final is reported.
	Polls int
	// Final is the settled status. Zero means completed.
	Final     assistant.RunStatus
	LastError *assistant.RunError
}

type agentState struct {
	spec    assistant.AgentSpec
	deleted bool
}

type runState struct {
	id        string
	convID    string
	agentID   string
	prompt    string
	pollsLeft int
	final     assistant.RunStatus
	lastError *assistant.RunError
	replied   bool
}

// Service is a scripted assistant.Service. The zero value is not usable; use
// NewService.
type Service struct {
	mu sync.Mutex

	seq       int
	agents    map[string]*agentState
	created   []assistant.AgentSpec
	deleted   []string
	threads   map[string][]assistant.Message
	runs      map[string]*runState
	prompts   map[string][]string
	indexPoll int
	remote    map[string]bool // uploaded files and indexes not yet deleted

	responder   Responder
	createErr   map[string]error
	deleteErr   map[string]error
	scripts     map[string]RunScript
	indexStates []assistant.IndexStatus
	uploadErr   error
	runErr      error
}

var _ assistant.Service = (*Service)(nil)

// NewService returns a service whose agents echo their name and prompt and
// whose index is ready on the first poll.
func NewService() *Service {
	return &Service{
		agents:    make(map[string]*agentState),
		threads:   make(map[string][]assistant.Message),
		runs:      make(map[string]*runState),
		prompts:   make(map[string][]string),
		remote:    make(map[string]bool),
		createErr: make(map[string]error),
		deleteErr: make(map[string]error),
		scripts:   make(map[string]RunScript),
		responder: func(name, prompt string) string {
			return fmt.Sprintf("[%s] %s", name, prompt)
		},
		indexStates: []assistant.IndexStatus{{Completed: 1}},
	}
}

// WithResponder replaces the default echo responder. An empty reply leaves
// the run without an assistant message.
func (s *Service) WithResponder(r Responder) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = r
	return s
}

// FailCreate makes CreateAgent for the named agent return err.
func (s *Service) FailCreate(name string, err error) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr[name] = err
	return s
}

// FailDelete makes DeleteAgent for the named agent return err.
func (s *Service) FailDelete(name string, err error) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr[name] = err
	return s
}

// FailRuns makes every CreateRun return err.
func (s *Service) FailRuns(err error) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runErr = err
	return s
}

// FailUpload makes UploadFile return err.
func (s *Service) FailUpload(err error) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadErr = err
	return s
}

// ScriptRun sets how runs of the named agent progress.
func (s *Service) ScriptRun(name string, script RunScript) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = script
	return s
}

// ScriptIndex sets the sequence of statuses returned by GetIndex. The last
// status repeats once the sequence is exhausted.
func (s *Service) ScriptIndex(states ...assistant.IndexStatus) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexStates = states
	return s
}

func (s *Service) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%03d", prefix, s.seq)
}

// CreateAgent implements assistant.AgentAPI.
func (s *Service) CreateAgent(ctx context.Context, spec assistant.AgentSpec) (assistant.Handle, error) {
	if err := ctx.Err(); err != nil {
		return assistant.Handle{}, errors.New(errors.CodeContextLost, "create agent", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[spec.Name]; err != nil {
		return assistant.Handle{}, err
	}
	id := s.nextID("asst")
	s.agents[id] = &agentState{spec: spec}
	s.created = append(s.created, spec)
	return assistant.Handle{ID: id, Name: spec.Name}, nil
}

// DeleteAgent implements assistant.AgentAPI. Every call is recorded, including
// failed ones.
func (s *Service) DeleteAgent(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, agentID)
	a, ok := s.agents[agentID]
	if !ok || a.deleted {
		return errors.New(errors.CodeNotFound, "agent "+agentID+" not found", nil)
	}
	if err := s.deleteErr[a.spec.Name]; err != nil {
		return err
	}
	a.deleted = true
	return nil
}

// CreateConversation implements assistant.ThreadAPI.
func (s *Service) CreateConversation(ctx context.Context) (assistant.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return assistant.Conversation{}, errors.New(errors.CodeContextLost, "create conversation", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("thread")
	s.threads[id] = nil
	return assistant.Conversation{ID: id}, nil
}

// PostMessage implements assistant.ThreadAPI.
func (s *Service) PostMessage(_ context.Context, conversationID string, role assistant.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.threads[conversationID]
	if !ok {
		return errors.New(errors.CodeNotFound, "conversation "+conversationID+" not found", nil)
	}
	s.threads[conversationID] = append(msgs, assistant.Message{
		ID:      s.nextID("msg"),
		Role:    role,
		Content: []assistant.ContentBlock{{Type: assistant.ContentText, Text: text}},
	})
	return nil
}

// CreateRun implements assistant.ThreadAPI. The run answers the latest user
// message of the conversation.
func (s *Service) CreateRun(_ context.Context, conversationID, agentID string) (assistant.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil {
		return assistant.Run{}, s.runErr
	}
	msgs, ok := s.threads[conversationID]
	if !ok {
		return assistant.Run{}, errors.New(errors.CodeNotFound, "conversation "+conversationID+" not found", nil)
	}
	a, ok := s.agents[agentID]
	if !ok || a.deleted {
		return assistant.Run{}, errors.New(errors.CodeNotFound, "agent "+agentID+" not found", nil)
	}
	var prompt string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == assistant.RoleUser {
			prompt = msgs[i].Content[0].Text
			break
		}
	}
	s.prompts[a.spec.Name] = append(s.prompts[a.spec.Name], prompt)

	script := s.scripts[a.spec.Name]
	final := script.Final
	if final == assistant.RunStatusUnknown {
		final = assistant.RunCompleted
	}
	r := &runState{
		id:        s.nextID("run"),
		convID:    conversationID,
		agentID:   agentID,
		prompt:    prompt,
		pollsLeft: script.Polls,
		final:     final,
		lastError: script.LastError,
	}
	s.runs[r.id] = r
	return assistant.Run{ID: r.id, Status: assistant.RunQueued}, nil
}

// GetRun implements assistant.ThreadAPI.
func (s *Service) GetRun(_ context.Context, conversationID, runID string) (assistant.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok || r.convID != conversationID {
		return assistant.Run{}, errors.New(errors.CodeNotFound, "run "+runID+" not found", nil)
	}
	if r.pollsLeft == Forever {
		return assistant.Run{ID: r.id, Status: assistant.RunInProgress}, nil
	}
	if r.pollsLeft > 0 {
		r.pollsLeft--
		return assistant.Run{ID: r.id, Status: assistant.RunInProgress}, nil
	}
	if r.final == assistant.RunCompleted && !r.replied {
		r.replied = true
		name := s.agents[r.agentID].spec.Name
		if text := s.responder(name, r.prompt); text != "" {
			s.threads[r.convID] = append(s.threads[r.convID], assistant.Message{
				ID:      s.nextID("msg"),
				Role:    assistant.RoleAssistant,
				RunID:   r.id,
				Content: []assistant.ContentBlock{{Type: assistant.ContentText, Text: text}},
			})
		}
	}
	run := assistant.Run{ID: r.id, Status: r.final}
	if r.final != assistant.RunCompleted {
		run.LastError = r.lastError
	}
	return run, nil
}

// ListMessages implements assistant.ThreadAPI.
func (s *Service) ListMessages(_ context.Context, conversationID string, q assistant.MessageQuery) ([]assistant.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.threads[conversationID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "conversation "+conversationID+" not found", nil)
	}
	var out []assistant.Message
	for _, m := range msgs {
		if q.RunID != "" && m.RunID != q.RunID {
			continue
		}
		if q.Role != "" && m.Role != q.Role {
			continue
		}
		out = append(out, m)
	}
	if q.Order == assistant.OrderDesc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// UploadFile implements assistant.IndexAPI.
func (s *Service) UploadFile(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	if len(data) == 0 {
		return "", errors.New(errors.CodeInvalidInput, "file "+name+" is empty", nil)
	}
	id := s.nextID("file")
	s.remote[id] = true
	return id, nil
}

// CreateIndex implements assistant.IndexAPI.
func (s *Service) CreateIndex(_ context.Context, _ string, fileIDs []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(fileIDs) == 0 {
		return "", errors.New(errors.CodeInvalidInput, "index needs at least one file", nil)
	}
	id := s.nextID("vs")
	s.remote[id] = true
	return id, nil
}

// GetIndex implements assistant.IndexAPI.
func (s *Service) GetIndex(_ context.Context, indexID string) (assistant.IndexStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexPoll
	if i >= len(s.indexStates) {
		i = len(s.indexStates) - 1
	}
	s.indexPoll++
	st := s.indexStates[i]
	st.ID = indexID
	return st, nil
}

// DeleteIndex implements assistant.IndexAPI.
func (s *Service) DeleteIndex(_ context.Context, indexID string) error {
	return s.deleteRemote(indexID)
}

// DeleteFile implements assistant.IndexAPI.
func (s *Service) DeleteFile(_ context.Context, fileID string) error {
	return s.deleteRemote(fileID)
}

func (s *Service) deleteRemote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.remote[id] {
		return errors.New(errors.CodeNotFound, id+" not found", nil)
	}
	delete(s.remote, id)
	return nil
}

// LiveResources returns the IDs of uploaded files and indexes that were not
// deleted.
func (s *Service) LiveResources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.remote))
	for id := range s.remote {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Created returns the specs of every agent created, in order.
func (s *Service) Created() []assistant.AgentSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]assistant.AgentSpec(nil), s.created...)
}

// Deleted returns every agent ID passed to DeleteAgent, in order.
func (s *Service) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Live returns the IDs of agents created and not successfully deleted.
func (s *Service) Live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, a := range s.agents {
		if !a.deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Prompts returns the prompts the named agent was asked to answer.
func (s *Service) Prompts(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[name]...)
}

// IndexPolls returns how many times GetIndex was called.
func (s *Service) IndexPolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexPoll
}
