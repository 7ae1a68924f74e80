package openai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/registry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(registry.ProviderEntry{Name: "local", BaseURL: srv.URL + "/v1", APIKey: "test"})
}

func TestComplete_ToolCallsAndOmittedParams(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"cmpl-1","object":"chat.completion","created":1,"model":"qwen",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_tickets","arguments":"{\"status\":\"open\"}"}}]}}]
		}`)
	})

	msg, err := c.Complete(t.Context(), model.Request{
		Params:   registry.ChatParameters{Model: "qwen"},
		Messages: []core.Message{core.UserMessage("open bugs?")},
		Tools:    []model.ToolDefinition{{Name: "get_tickets", Description: "d", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, core.ToolCall{ID: "call_1", Name: "get_tickets", Arguments: `{"status":"open"}`}, msg.ToolCalls[0])

	assert.Equal(t, "qwen", body["model"])
	assert.NotContains(t, body, "temperature")
	assert.NotContains(t, body, "max_tokens")
	assert.Len(t, body["tools"], 1)
}

func TestComplete_SendsTranscript(t *testing.T) {
	var body struct {
		Temperature float64          `json:"temperature"`
		MaxTokens   int64            `json:"max_tokens"`
		Messages    []map[string]any `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Two open bugs."}}]}`)
	})

	calls := core.AssistantMessage("")
	calls.ToolCalls = []core.ToolCall{{ID: "c1", Name: "get_tickets", Arguments: "{}"}}
	temp, maxTokens := 0.2, int64(2000)

	msg, err := c.Complete(t.Context(), model.Request{
		Params: registry.ChatParameters{Model: "m", Temperature: &temp, MaxOutputTokens: &maxTokens},
		Messages: []core.Message{
			core.SystemMessage("be brief"),
			core.UserMessage("q"),
			calls,
			core.ToolResultMessage("c1", "get_tickets", "tickets"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Two open bugs.", msg.Content)
	assert.Equal(t, 0.2, body.Temperature)
	assert.Equal(t, int64(2000), body.MaxTokens)
	require.Len(t, body.Messages, 4)
	assert.Equal(t, "system", body.Messages[0]["role"])
	assert.Equal(t, "assistant", body.Messages[2]["role"])
	assert.Equal(t, "tool", body.Messages[3]["role"])
	assert.Equal(t, "c1", body.Messages[3]["tool_call_id"])
}

func TestComplete_ProviderAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid API key","type":"invalid_request_error"}}`)
	})

	_, err := c.Complete(t.Context(), model.Request{Params: registry.ChatParameters{Model: "m"}, Messages: []core.Message{core.UserMessage("q")}})
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.KindProviderAPI, ce.Kind)
	assert.Equal(t, "Invalid API key", ce.Message)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Equal(t, "local", ce.Provider)
}

func TestComplete_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(registry.ProviderEntry{Name: "local", BaseURL: url})
	_, err := c.Complete(t.Context(), model.Request{Params: registry.ChatParameters{Model: "m"}, Messages: []core.Message{core.UserMessage("q")}})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindTransport))
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/models"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[
			{"id":"qwen2.5-coder:7b","object":"model","created":1,"owned_by":"library"},
			{"id":"llama3","object":"model","created":1,"owned_by":"library"}]}`)
	})

	ids, err := c.ListModels(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5-coder:7b", "llama3"}, ids)
}
