// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package azure implements assistant.Service on top of the Azure OpenAI
// Assistants API using the official OpenAI Go SDK.
package azure

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/trendsurf/pkg/agents"
	"github.com/jllopis/trendsurf/pkg/assistant"
	"github.com/jllopis/trendsurf/pkg/errors"
	"github.com/jllopis/trendsurf/pkg/telemetry"
)

// DefaultAPIVersion is the Azure OpenAI API version used when none is set.
const DefaultAPIVersion = "2025-01-01-preview"

// Config holds the connection settings for an Azure OpenAI resource.
type Config struct {
	Endpoint   string
	APIVersion string
	// APIKey selects key authentication. When empty the client signs
	// requests with an Entra ID token from Credential.
	APIKey string
	// Credential defaults to azidentity.DefaultAzureCredential.
	Credential     azcore.TokenCredential
	RequestTimeout time.Duration
	MaxRetries     int
	Logger         *slog.Logger
}

// Client is an assistant.Service backed by Azure OpenAI.
type Client struct {
	api    openai.Client
	logger *slog.Logger
}

var _ assistant.Service = (*Client)(nil)

// New returns a client for the resource at cfg.Endpoint.
func New(cfg Config, extra ...option.RequestOption) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "azure endpoint is required", nil)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	auth, err := authOption(cfg)
	if err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		auth,
	}
	return NewWithOptions(cfg, append(opts, extra...)...), nil
}

func authOption(cfg Config) (option.RequestOption, error) {
	if cfg.APIKey != "" {
		return azure.WithAPIKey(cfg.APIKey), nil
	}
	cred := cfg.Credential
	if cred == nil {
		dac, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, errors.New(errors.CodeUnauthorized, "create Entra ID credential", err)
		}
		cred = dac
	}
	return azure.WithTokenCredential(cred), nil
}

// NewWithOptions builds a client from raw SDK options. Endpoint and
// credentials in cfg are ignored; it is meant for tests and proxies.
func NewWithOptions(cfg Config, opts ...option.RequestOption) *Client {
	logger := telemetry.OrDiscard(cfg.Logger)
	base := []option.RequestOption{
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithMiddleware(logRequests(logger)),
	}
	if cfg.RequestTimeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return &Client{
		api:    openai.NewClient(append(base, opts...)...),
		logger: logger,
	}
}

func logRequests(logger *slog.Logger) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		start := time.Now()
		resp, err := next(req)
		attrs := []any{"method", req.Method, "path", req.URL.Path, "elapsed", time.Since(start)}
		if resp != nil {
			attrs = append(attrs, "status", resp.StatusCode)
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		logger.DebugContext(req.Context(), "azure request", attrs...)
		return resp, err
	}
}

// CreateAgent implements assistant.AgentAPI.
func (c *Client) CreateAgent(ctx context.Context, spec assistant.AgentSpec) (assistant.Handle, error) {
	params := openai.BetaAssistantNewParams{
		Model:        openai.ChatModel(spec.Model),
		Name:         openai.String(spec.Name),
		Instructions: openai.String(spec.Instructions),
	}
	for _, tool := range spec.Tools {
		switch tool {
		case agents.ToolFileSearch:
			params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfFileSearch: &openai.FileSearchToolParam{}})
		case agents.ToolCodeInterpreter:
			params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfCodeInterpreter: &openai.CodeInterpreterToolParam{}})
		default:
			return assistant.Handle{}, errors.New(errors.CodeInvalidInput, "unsupported tool "+tool, nil)
		}
	}
	if len(spec.IndexIDs) > 0 {
		params.ToolResources = openai.BetaAssistantNewParamsToolResources{
			FileSearch: openai.BetaAssistantNewParamsToolResourcesFileSearch{
				VectorStoreIDs: spec.IndexIDs,
			},
		}
	}

	a, err := c.api.Beta.Assistants.New(ctx, params)
	if err != nil {
		return assistant.Handle{}, mapError("create assistant", err)
	}
	return assistant.Handle{ID: a.ID, Name: a.Name}, nil
}

// DeleteAgent implements assistant.AgentAPI.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	if _, err := c.api.Beta.Assistants.Delete(ctx, agentID); err != nil {
		return mapError("delete assistant", err).WithContext("agent_id", agentID)
	}
	return nil
}

// CreateConversation implements assistant.ThreadAPI.
func (c *Client) CreateConversation(ctx context.Context) (assistant.Conversation, error) {
	th, err := c.api.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return assistant.Conversation{}, mapError("create thread", err)
	}
	return assistant.Conversation{ID: th.ID}, nil
}

// PostMessage implements assistant.ThreadAPI.
func (c *Client) PostMessage(ctx context.Context, conversationID string, role assistant.Role, text string) error {
	params := openai.BetaThreadMessageNewParams{
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(text)},
		Role:    openai.BetaThreadMessageNewParamsRoleUser,
	}
	if role == assistant.RoleAssistant {
		params.Role = openai.BetaThreadMessageNewParamsRoleAssistant
	}
	if _, err := c.api.Beta.Threads.Messages.New(ctx, conversationID, params); err != nil {
		return mapError("post message", err).WithContext("thread_id", conversationID)
	}
	return nil
}

// CreateRun implements assistant.ThreadAPI.
func (c *Client) CreateRun(ctx context.Context, conversationID, agentID string) (assistant.Run, error) {
	run, err := c.api.Beta.Threads.Runs.New(ctx, conversationID, openai.BetaThreadRunNewParams{
		AssistantID: agentID,
	})
	if err != nil {
		return assistant.Run{}, mapError("create run", err).WithContext("thread_id", conversationID)
	}
	return convertRun(run), nil
}

// GetRun implements assistant.ThreadAPI.
func (c *Client) GetRun(ctx context.Context, conversationID, runID string) (assistant.Run, error) {
	run, err := c.api.Beta.Threads.Runs.Get(ctx, conversationID, runID)
	if err != nil {
		return assistant.Run{}, mapError("get run", err).WithContext("run_id", runID)
	}
	return convertRun(run), nil
}

func convertRun(run *openai.Run) assistant.Run {
	out := assistant.Run{
		ID:     run.ID,
		Status: assistant.ParseRunStatus(string(run.Status)),
	}
	if run.LastError.Code != "" || run.LastError.Message != "" {
		out.LastError = &assistant.RunError{
			Code:    string(run.LastError.Code),
			Message: run.LastError.Message,
		}
	}
	return out
}

// ListMessages implements assistant.ThreadAPI. The role filter is applied
// client side because the API has none.
func (c *Client) ListMessages(ctx context.Context, conversationID string, q assistant.MessageQuery) ([]assistant.Message, error) {
	params := openai.BetaThreadMessageListParams{}
	if q.RunID != "" {
		params.RunID = openai.String(q.RunID)
	}
	switch q.Order {
	case assistant.OrderAsc:
		params.Order = openai.BetaThreadMessageListParamsOrderAsc
	case assistant.OrderDesc:
		params.Order = openai.BetaThreadMessageListParamsOrderDesc
	}
	if q.Limit > 0 && q.Role == "" {
		params.Limit = openai.Int(int64(q.Limit))
	}

	page, err := c.api.Beta.Threads.Messages.List(ctx, conversationID, params)
	if err != nil {
		return nil, mapError("list messages", err).WithContext("thread_id", conversationID)
	}

	var out []assistant.Message
	for _, m := range page.Data {
		role := assistant.Role(m.Role)
		if q.Role != "" && role != q.Role {
			continue
		}
		msg := assistant.Message{ID: m.ID, Role: role, RunID: m.RunID}
		for _, block := range m.Content {
			if block.Type == assistant.ContentText {
				msg.Content = append(msg.Content, assistant.ContentBlock{Type: assistant.ContentText, Text: block.Text.Value})
				continue
			}
			msg.Content = append(msg.Content, assistant.ContentBlock{Type: block.Type})
		}
		out = append(out, msg)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// namedReader gives the multipart encoder a file name.
type namedReader struct {
	*bytes.Reader
	name string
}

func (r namedReader) Name() string     { return r.name }
func (r namedReader) Filename() string { return r.name }

// UploadFile implements assistant.IndexAPI.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	f, err := c.api.Files.New(ctx, openai.FileNewParams{
		File:    namedReader{Reader: bytes.NewReader(data), name: name},
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", mapError("upload file", err).WithContext("file", name)
	}
	return f.ID, nil
}

// CreateIndex implements assistant.IndexAPI.
func (c *Client) CreateIndex(ctx context.Context, name string, fileIDs []string) (string, error) {
	vs, err := c.api.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name:    openai.String(name),
		FileIDs: fileIDs,
	})
	if err != nil {
		return "", mapError("create vector store", err)
	}
	return vs.ID, nil
}

// GetIndex implements assistant.IndexAPI.
func (c *Client) GetIndex(ctx context.Context, indexID string) (assistant.IndexStatus, error) {
	vs, err := c.api.VectorStores.Get(ctx, indexID)
	if err != nil {
		return assistant.IndexStatus{}, mapError("get vector store", err).WithContext("index_id", indexID)
	}
	return assistant.IndexStatus{
		ID:         vs.ID,
		Completed:  int(vs.FileCounts.Completed),
		Failed:     int(vs.FileCounts.Failed),
		InProgress: int(vs.FileCounts.InProgress),
	}, nil
}

// DeleteIndex implements assistant.IndexAPI.
func (c *Client) DeleteIndex(ctx context.Context, indexID string) error {
	if _, err := c.api.VectorStores.Delete(ctx, indexID); err != nil {
		return mapError("delete vector store", err).WithContext("index_id", indexID)
	}
	return nil
}

// DeleteFile implements assistant.IndexAPI.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := c.api.Files.Delete(ctx, fileID); err != nil {
		return mapError("delete file", err).WithContext("file_id", fileID)
	}
	return nil
}

// mapError classifies SDK failures into pipeline error codes.
func mapError(op string, err error) *errors.Error {
	if stderrors.Is(err, context.Canceled) {
		return errors.New(errors.CodeContextLost, op+" canceled", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, op+" timed out", err).WithRecoverable(true)
	}

	var apiErr *openai.Error
	if !stderrors.As(err, &apiErr) {
		return errors.New(errors.CodeTransport, op+" failed", err).WithRecoverable(true)
	}

	var code errors.Code
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		code = errors.CodeUnauthorized
	case apiErr.StatusCode == http.StatusTooManyRequests:
		code = errors.CodeRateLimit
	case apiErr.StatusCode == http.StatusNotFound:
		code = errors.CodeNotFound
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		code = errors.CodeInvalidInput
	default:
		code = errors.CodeTransport
	}
	return errors.New(code, op+" failed", err).
		WithContext("status", apiErr.StatusCode).
		WithRecoverable(code == errors.CodeRateLimit || code == errors.CodeTransport)
}
