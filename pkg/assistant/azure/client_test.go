// SPDX-License-Identifier: Apache-2.0

package azure

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/trendsurf/pkg/assistant"
	"github.com/jllopis/trendsurf/pkg/errors"
)

type recorder struct {
	mu     sync.Mutex
	bodies map[string]map[string]any
}

func (r *recorder) store(key string, req *http.Request) {
	data, _ := io.ReadAll(req.Body)
	var body map[string]any
	_ = json.Unmarshal(data, &body)
	r.mu.Lock()
	r.bodies[key] = body
	r.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{bodies: make(map[string]map[string]any)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /assistants", func(w http.ResponseWriter, r *http.Request) {
		rec.store("assistant", r)
		writeJSON(w, http.StatusOK, `{"id":"asst_1","object":"assistant","name":"Brand Guard","model":"gpt-4.1","tools":[]}`)
	})
	mux.HandleFunc("DELETE /assistants/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "asst_gone" {
			writeJSON(w, http.StatusNotFound, `{"error":{"message":"No assistant found","type":"invalid_request_error"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"id":"asst_1","object":"assistant.deleted","deleted":true}`)
	})
	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"thread_1","object":"thread"}`)
	})
	mux.HandleFunc("POST /threads/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		rec.store("message", r)
		writeJSON(w, http.StatusOK, `{"id":"msg_1","object":"thread.message","role":"user","content":[]}`)
	})
	mux.HandleFunc("POST /threads/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		rec.store("run", r)
		writeJSON(w, http.StatusOK, `{"id":"run_1","object":"thread.run","thread_id":"thread_1","status":"queued"}`)
	})
	mux.HandleFunc("GET /threads/{id}/runs/{run}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("run") == "run_bad" {
			writeJSON(w, http.StatusOK, `{"id":"run_bad","object":"thread.run","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"quota"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"id":"run_1","object":"thread.run","thread_id":"thread_1","status":"completed"}`)
	})
	mux.HandleFunc("GET /threads/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"object":"list","has_more":false,"data":[
			{"id":"msg_2","object":"thread.message","role":"assistant","run_id":"run_1","content":[
				{"type":"text","text":{"value":"first","annotations":[]}},
				{"type":"image_file","image_file":{"file_id":"file_x"}},
				{"type":"text","text":{"value":"second","annotations":[]}}]},
			{"id":"msg_1","object":"thread.message","role":"user","content":[{"type":"text","text":{"value":"prompt","annotations":[]}}]}]}`)
	})
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"file_1","object":"file","purpose":"assistants","filename":"brand_kit.md"}`)
	})
	mux.HandleFunc("POST /vector_stores", func(w http.ResponseWriter, r *http.Request) {
		rec.store("index", r)
		writeJSON(w, http.StatusOK, `{"id":"vs_1","object":"vector_store","status":"in_progress"}`)
	})
	mux.HandleFunc("GET /vector_stores/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"vs_1","object":"vector_store","file_counts":{"completed":1,"failed":0,"in_progress":0,"cancelled":0,"total":1}}`)
	})
	mux.HandleFunc("DELETE /vector_stores/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.store("delete_index_"+r.PathValue("id"), r)
		writeJSON(w, http.StatusOK, `{"id":"vs_1","object":"vector_store.deleted","deleted":true}`)
	})
	mux.HandleFunc("DELETE /files/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.store("delete_file_"+r.PathValue("id"), r)
		writeJSON(w, http.StatusOK, `{"id":"file_1","object":"file","deleted":true}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewWithOptions(Config{}, option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"))
	return c, rec
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))

	c, err := New(Config{Endpoint: "https://example.openai.azure.com", APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

type staticCredential struct {
	token string
}

func (c staticCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: c.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestAuthHeaders(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantHeader string
		wantValue  string
	}{
		{"api key", Config{APIKey: "secret"}, "Api-Key", "secret"},
		{"entra id", Config{Credential: staticCredential{token: "tok-123"}}, "Authorization", "Bearer tok-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu  sync.Mutex
				got http.Header
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				got = r.Header.Clone()
				mu.Unlock()
				assert.Equal(t, "/openai/threads", r.URL.Path)
				assert.Equal(t, DefaultAPIVersion, r.URL.Query().Get("api-version"))
				writeJSON(w, http.StatusOK, `{"id":"thread_1","object":"thread"}`)
			}))
			t.Cleanup(srv.Close)

			cfg := tt.cfg
			cfg.Endpoint = srv.URL
			c, err := New(cfg)
			require.NoError(t, err)

			conv, err := c.CreateConversation(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "thread_1", conv.ID)

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tt.wantValue, got.Get(tt.wantHeader))
		})
	}
}

func TestCreateAgentSendsToolsAndIndex(t *testing.T) {
	c, rec := newTestClient(t)

	h, err := c.CreateAgent(context.Background(), assistant.AgentSpec{
		Name:         "Brand Guard",
		Model:        "gpt-4.1",
		Instructions: "check compliance",
		Tools:        []string{"file_search"},
		IndexIDs:     []string{"vs_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, assistant.Handle{ID: "asst_1", Name: "Brand Guard"}, h)

	body := rec.bodies["assistant"]
	assert.Equal(t, "gpt-4.1", body["model"])
	assert.Equal(t, "check compliance", body["instructions"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "file_search", tools[0].(map[string]any)["type"])
	res := body["tool_resources"].(map[string]any)["file_search"].(map[string]any)
	assert.Equal(t, []any{"vs_1"}, res["vector_store_ids"])
}

func TestCreateAgentRejectsUnknownTool(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.CreateAgent(context.Background(), assistant.AgentSpec{Name: "x", Model: "m", Tools: []string{"browser"}})
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))
}

func TestDeleteAgentNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.DeleteAgent(context.Background(), "asst_1"))

	err := c.DeleteAgent(context.Background(), "asst_gone")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestTurnRoundTrip(t *testing.T) {
	c, rec := newTestClient(t)
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", conv.ID)

	require.NoError(t, c.PostMessage(ctx, conv.ID, assistant.RoleUser, "hello"))
	assert.Equal(t, "user", rec.bodies["message"]["role"])
	assert.Equal(t, "hello", rec.bodies["message"]["content"])

	run, err := c.CreateRun(ctx, conv.ID, "asst_1")
	require.NoError(t, err)
	assert.Equal(t, assistant.RunQueued, run.Status)
	assert.Equal(t, "asst_1", rec.bodies["run"]["assistant_id"])

	run, err = c.GetRun(ctx, conv.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, assistant.RunCompleted, run.Status)
	assert.Nil(t, run.LastError)

	msgs, err := c.ListMessages(ctx, conv.ID, assistant.MessageQuery{RunID: run.ID, Role: assistant.RoleAssistant, Order: assistant.OrderDesc, Limit: 1})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "run_1", msgs[0].RunID)
	require.Len(t, msgs[0].Content, 3)
	assert.Equal(t, "first", msgs[0].Content[0].Text)
	assert.Equal(t, "image_file", msgs[0].Content[1].Type)
	assert.Equal(t, "second", msgs[0].Content[2].Text)
}

func TestGetRunCarriesLastError(t *testing.T) {
	c, _ := newTestClient(t)

	run, err := c.GetRun(context.Background(), "thread_1", "run_bad")
	require.NoError(t, err)
	assert.Equal(t, assistant.RunFailed, run.Status)
	require.NotNil(t, run.LastError)
	assert.Equal(t, "rate_limit_exceeded", run.LastError.Code)
	assert.Equal(t, "quota", run.LastError.Message)
}

func TestIndexRoundTrip(t *testing.T) {
	c, rec := newTestClient(t)
	ctx := context.Background()

	fileID, err := c.UploadFile(ctx, "brand_kit.md", []byte("# Brand"))
	require.NoError(t, err)
	assert.Equal(t, "file_1", fileID)

	id, err := c.CreateIndex(ctx, "Brand Kit", []string{fileID})
	require.NoError(t, err)
	assert.Equal(t, "vs_1", id)
	assert.Equal(t, "Brand Kit", rec.bodies["index"]["name"])

	st, err := c.GetIndex(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, assistant.IndexReady, st.State())

	require.NoError(t, c.DeleteIndex(ctx, id))
	require.NoError(t, c.DeleteFile(ctx, fileID))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Contains(t, rec.bodies, "delete_index_vs_1")
	assert.Contains(t, rec.bodies, "delete_file_file_1")
}

func TestMapErrorStatusCodes(t *testing.T) {
	cases := map[int]errors.Code{
		http.StatusUnauthorized:        errors.CodeUnauthorized,
		http.StatusForbidden:           errors.CodeUnauthorized,
		http.StatusTooManyRequests:     errors.CodeRateLimit,
		http.StatusNotFound:            errors.CodeNotFound,
		http.StatusBadRequest:          errors.CodeInvalidInput,
		http.StatusInternalServerError: errors.CodeTransport,
	}
	for status, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, status, `{"error":{"message":"nope","type":"error"}}`)
		}))
		c := NewWithOptions(Config{}, option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("test"))
		_, err := c.CreateConversation(context.Background())
		srv.Close()
		assert.Equal(t, want, errors.CodeOf(err), "status %d", status)
	}
}

func TestMapErrorCanceled(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreateConversation(ctx)
	assert.Equal(t, errors.CodeContextLost, errors.CodeOf(err))
}
