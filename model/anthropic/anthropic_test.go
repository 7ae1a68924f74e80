package anthropic

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
	return New(registry.ProviderEntry{Name: "claude", Kind: registry.KindAnthropic, BaseURL: srv.URL, APIKey: "test"})
}

func TestComplete_Transcript(t *testing.T) {
	var body struct {
		MaxTokens int64 `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string           `json:"role"`
			Content []map[string]any `json:"content"`
		} `json:"messages"`
		Tools []map[string]any `json:"tools"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4",
			"stop_reason":"tool_use","usage":{"input_tokens":1,"output_tokens":1},
			"content":[{"type":"text","text":"Looking up."},
				{"type":"tool_use","id":"tu_2","name":"get_tickets","input":{"status":"closed"}}]}`)
	})

	calls := core.AssistantMessage("")
	calls.ToolCalls = []core.ToolCall{{ID: "tu_1", Name: "get_tickets", Arguments: `{"status":"open"}`}}

	msg, err := c.Complete(t.Context(), model.Request{
		Params: registry.ChatParameters{Model: "claude-sonnet-4"},
		Messages: []core.Message{
			core.SystemMessage("be brief"),
			core.UserMessage("q"),
			calls,
			core.ToolResultMessage("tu_1", "get_tickets", "No tickets found."),
			core.UserMessage("q"),
		},
		Tools: []model.ToolDefinition{{Name: "get_tickets", Description: "lookup", Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"status": map[string]any{"type": "string"}},
		}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Looking up.", msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "tu_2", msg.ToolCalls[0].ID)
	assert.JSONEq(t, `{"status":"closed"}`, msg.ToolCalls[0].Arguments)

	assert.Equal(t, DefaultMaxTokens, body.MaxTokens)
	require.Len(t, body.System, 1)
	assert.Equal(t, "be brief", body.System[0].Text)

	// user, assistant(tool_use), user(tool_result + text)
	require.Len(t, body.Messages, 3)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	assert.Equal(t, "tool_use", body.Messages[1].Content[0]["type"])
	assert.Equal(t, "user", body.Messages[2].Role)
	require.Len(t, body.Messages[2].Content, 2)
	assert.Equal(t, "tool_result", body.Messages[2].Content[0]["type"])
	assert.Equal(t, "tu_1", body.Messages[2].Content[0]["tool_use_id"])
	assert.Equal(t, "text", body.Messages[2].Content[1]["type"])
	require.Len(t, body.Tools, 1)
	assert.Equal(t, "get_tickets", body.Tools[0]["name"])
}

func TestComplete_ProviderAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: too large"}}`)
	})

	_, err := c.Complete(t.Context(), model.Request{Params: registry.ChatParameters{Model: "m"}, Messages: []core.Message{core.UserMessage("q")}})
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.KindProviderAPI, ce.Kind)
	assert.Equal(t, "max_tokens: too large", ce.Message)
	assert.Equal(t, http.StatusBadRequest, ce.StatusCode)
}
