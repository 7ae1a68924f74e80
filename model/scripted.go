package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/reviewmesh/core"
)

// ScriptedClient is an in-memory ChatClient that replays canned replies in
// order and records every request. Useful for tests and examples.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []Request
	models   []string
}

type scriptedReply struct {
	msg core.Message
	err error
}

// NewScriptedClient creates an empty ScriptedClient.
func NewScriptedClient(models ...string) *ScriptedClient {
	return &ScriptedClient{models: models}
}

// Reply queues a plain assistant answer.
func (c *ScriptedClient) Reply(text string) *ScriptedClient {
	return c.ReplyMessage(core.AssistantMessage(text))
}

// ReplyToolCalls queues an assistant message requesting the given calls.
func (c *ScriptedClient) ReplyToolCalls(calls ...core.ToolCall) *ScriptedClient {
	msg := core.AssistantMessage("")
	msg.ToolCalls = calls
	return c.ReplyMessage(msg)
}

// ReplyMessage queues an arbitrary assistant message.
func (c *ScriptedClient) ReplyMessage(msg core.Message) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, scriptedReply{msg: msg})
	return c
}

// Fail queues an error.
func (c *ScriptedClient) Fail(err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, scriptedReply{err: err})
	return c
}

// Complete implements ChatClient.
func (c *ScriptedClient) Complete(ctx context.Context, req Request) (core.Message, error) {
	if err := ctx.Err(); err != nil {
		return core.Message{}, core.NewTransportError("scripted", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := req
	cp.Messages = append([]core.Message(nil), req.Messages...)
	c.requests = append(c.requests, cp)

	if len(c.replies) == 0 {
		return core.Message{}, core.NewTransportError("scripted", fmt.Errorf("no scripted reply left for request %d", len(c.requests)))
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.msg, r.err
}

// ListModels implements ModelLister.
func (c *ScriptedClient) ListModels(context.Context) ([]string, error) {
	return append([]string(nil), c.models...), nil
}

// Requests returns a copy of all recorded requests.
func (c *ScriptedClient) Requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

// Calls returns the number of Complete invocations.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}
