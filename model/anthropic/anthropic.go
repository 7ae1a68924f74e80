// Package anthropic implements model.ChatClient against the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/registry"
)

// DefaultMaxTokens is sent when the model entry has no output limit. The
// Messages API rejects requests without max_tokens.
const DefaultMaxTokens int64 = 4096

// Options configures the Anthropic adapter.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client wraps the Anthropic Messages API behind model.ChatClient.
type Client struct {
	client   *anthropic.Client
	provider string
}

var _ model.Provider = (*Client)(nil)

// New creates a Client for the given provider entry.
func New(entry registry.ProviderEntry, optFns ...func(o *Options)) *Client {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if entry.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		base := entry.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	client := anthropic.NewClient(reqOpts...)
	return NewFromClient(&client, entry.Name)
}

// NewFromClient creates a Client from an existing SDK client.
func NewFromClient(client *anthropic.Client, provider string) *Client {
	return &Client{client: client, provider: provider}
}

// Complete implements model.ChatClient.
func (c *Client) Complete(ctx context.Context, req model.Request) (core.Message, error) {
	maxTokens := DefaultMaxTokens
	if req.Params.MaxOutputTokens != nil {
		maxTokens = *req.Params.MaxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Params.Model),
		Messages:  buildMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.Params.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Params.Temperature)
	}
	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return core.Message{}, c.classify(err)
	}

	out := core.AssistantMessage("")
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			args := "{}"
			if tu.Input != nil {
				if b, err := json.Marshal(tu.Input); err == nil {
					args = string(b)
				}
			}
			out.ToolCalls = append(out.ToolCalls, core.ToolCall{ID: tu.ID, Name: tu.Name, Arguments: args})
		}
	}
	out.Content = text.String()
	return out, nil
}

// ListModels implements model.ModelLister.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, c.classify(err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return model.ClassifyError(c.provider, err, apiErr, apiErr.StatusCode)
	}
	return model.ClassifyError(c.provider, err, nil, 0)
}

func systemBlocks(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range msgs {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// buildMessages converts the transcript into alternating user/assistant turns.
// Tool results become tool_result blocks of the following user turn and
// consecutive user turns are merged.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	appendUser := func(blocks ...anthropic.ContentBlockParamUnion) {
		if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.NewUserMessage(blocks...))
	}

	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = map[string]any{}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			appendUser(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			if m.Content != "" {
				appendUser(anthropic.NewTextBlock(m.Content))
			}
		}
	}
	return out
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := t.Parameters["properties"]; ok {
			schema.Properties = props
		}
		switch req := t.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		tool := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if tool.OfTool != nil && t.Description != "" {
			tool.OfTool.Description = anthropic.String(t.Description)
		}
		out[i] = tool
	}
	return out
}
