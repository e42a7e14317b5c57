// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package assistant drives a hosted assistant service: it manages remote
// agent lifecycles, indexes reference documents and executes turns.
//
// The remote service is consumed through the Service port so components can
// be tested against a scripted fake (see package assistanttest).
package assistant

import "context"

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Order sorts listed messages by creation time.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ContentText marks a text content block. Other block types are skipped.
const ContentText = "text"

// AgentSpec is the configuration sent when creating a remote agent.
type AgentSpec struct {
	Name         string
	Model        string
	Instructions string
	Tools        []string
	IndexIDs     []string
}

// Handle identifies a live remote agent.
type Handle struct {
	ID   string
	Name string
}

// Conversation is a remote exchange context scoped to one stage.
type Conversation struct {
	ID string
}

// RunError is the remote service's explanation for a failed run.
type RunError struct {
	Code    string
	Message string
}

// Run is a snapshot of a remote processing run.
type Run struct {
	ID        string
	Status    RunStatus
	LastError *RunError
}

// ContentBlock is one part of a message body.
type ContentBlock struct {
	Type string
	Text string
}

// Message is a conversation entry.
type Message struct {
	ID      string
	Role    Role
	RunID   string
	Content []ContentBlock
}

// MessageQuery filters ListMessages. Zero values mean no filter.
type MessageQuery struct {
	RunID string
	Role  Role
	Order Order
	Limit int
}

// IndexStatus reports per-document indexing progress.
type IndexStatus struct {
	ID         string
	Completed  int
	Failed     int
	InProgress int
}

// AgentAPI creates and deletes remote agents.
type AgentAPI interface {
	CreateAgent(ctx context.Context, spec AgentSpec) (Handle, error)
	DeleteAgent(ctx context.Context, agentID string) error
}

// ThreadAPI runs conversations against remote agents.
type ThreadAPI interface {
	CreateConversation(ctx context.Context) (Conversation, error)
	PostMessage(ctx context.Context, conversationID string, role Role, text string) error
	CreateRun(ctx context.Context, conversationID, agentID string) (Run, error)
	GetRun(ctx context.Context, conversationID, runID string) (Run, error)
	ListMessages(ctx context.Context, conversationID string, query MessageQuery) ([]Message, error)
}

// IndexAPI uploads documents into a remote retrieval index.
type IndexAPI interface {
	UploadFile(ctx context.Context, name string, data []byte) (string, error)
	CreateIndex(ctx context.Context, name string, fileIDs []string) (string, error)
	GetIndex(ctx context.Context, indexID string) (IndexStatus, error)
	DeleteIndex(ctx context.Context, indexID string) error
	DeleteFile(ctx context.Context, fileID string) error
}

// Service is the full remote surface the pipeline consumes.
type Service interface {
	AgentAPI
	ThreadAPI
	IndexAPI
}
