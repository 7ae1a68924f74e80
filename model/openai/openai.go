// Package openai implements model.ChatClient against any OpenAI compatible
// Chat Completions endpoint (OpenAI itself, Ollama, vLLM, LM Studio, ...).
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/registry"
)

// Options configure the OpenAI adapter.
type Options struct {
	// Timeout bounds a single request. Zero disables the per-request timeout.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client wraps the OpenAI Chat Completions API behind model.ChatClient.
type Client struct {
	client   *openai.Client
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

	client := openai.NewClient(reqOpts...)
	return NewFromClient(&client, entry.Name)
}

// NewFromClient creates a Client from an existing SDK client.
func NewFromClient(client *openai.Client, provider string) *Client {
	return &Client{client: client, provider: provider}
}

// Complete implements model.ChatClient.
func (c *Client) Complete(ctx context.Context, req model.Request) (core.Message, error) {
	resp, err := c.client.Chat.Completions.New(ctx, buildParams(req))
	if err != nil {
		return core.Message{}, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return core.Message{}, core.NewProviderAPIError(c.provider, http.StatusOK, "no choices returned", nil)
	}

	ch0 := resp.Choices[0]
	out := core.AssistantMessage(ch0.Message.Content)
	for _, tc := range ch0.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// ListModels implements model.ModelLister.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	page, err := c.client.Models.List(ctx)
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
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return model.ClassifyError(c.provider, err, apiErr, apiErr.StatusCode)
	}
	return model.ClassifyError(c.provider, err, nil, 0)
}

// buildParams assembles the SDK request. Unset optional parameters are not sent.
func buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(req.Messages),
		Model:    req.Params.Model,
	}
	if req.Params.Temperature != nil {
		params.Temperature = openai.Float(*req.Params.Temperature)
	}
	if req.Params.MaxOutputTokens != nil {
		params.MaxTokens = openai.Int(*req.Params.MaxOutputTokens)
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			if !m.HasToolCalls() {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: calls,
			}})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
