package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/logging"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/registry"
	"github.com/hupe1980/reviewmesh/tool"
)

// State is a step of the conversation state machine.
type State string

const (
	StateStart           State = "START"
	StateToolsDispatched State = "TOOLS_DISPATCHED"
	StateContextExpanded State = "CONTEXT_EXPANDED"
	StateAnswered        State = "ANSWERED"
	StateFailed          State = "FAILED"
)

// ContextPreamble introduces tool results forwarded as plain text after a provider switch.
const ContextPreamble = "The following context was given by the function calling tools:\n\n"

// ClientSource yields the chat client of a provider.
type ClientSource interface {
	Client(entry registry.ProviderEntry) (model.ChatClient, error)
}

// Expander inlines references into the question.
type Expander interface {
	Expand(ctx context.Context, text, project string) (string, bool, error)
}

// Toolset is the set of tools offered to the tool model.
type Toolset interface {
	tool.Dispatcher
	Definitions() []model.ToolDefinition
}

// Request is a question to answer.
type Request struct {
	Question string `json:"question"`
	// Project scopes document references.
	Project string `json:"project,omitempty"`
	// ModelID is the answer model. Empty selects the registry default.
	ModelID string `json:"model,omitempty"`
	// ToolModelID is the tool-calling model. Empty selects the registry tool model.
	ToolModelID string `json:"tool_model,omitempty"`
}

// ToolCallRecord reports a dispatched tool call for transparency.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	Failed    bool   `json:"failed"`
}

// Result is the outcome of Ask.
type Result struct {
	InvocationID string           `json:"invocation_id"`
	Answer       string           `json:"answer"`
	ModelID      string           `json:"model"`
	ToolModelID  string           `json:"tool_model"`
	ToolCalls    []ToolCallRecord `json:"tool_calls"`
	// Messages is the request sent to the answer model followed by its reply.
	Messages []core.Message `json:"messages"`
	States   []State        `json:"states"`
}

// Options configures an Engine.
type Options struct {
	// Expander resolves references. Nil disables expansion.
	Expander Expander
	// MaxParallelTools bounds concurrently executed tool calls.
	MaxParallelTools int
	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// Engine answers questions with an optional tool-calling step. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	clients  ClientSource
	tools    Toolset
	executor *tool.Executor
	expander Expander
	logger   logging.Logger
}

// New creates an Engine. tools may be nil, in which case the tool step is skipped.
func New(reg *registry.Registry, clients ClientSource, tools Toolset, optFns ...func(o *Options)) *Engine {
	opts := Options{MaxParallelTools: 1}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	e := &Engine{
		registry: reg,
		clients:  clients,
		tools:    tools,
		expander: opts.Expander,
		logger:   logger,
	}
	if tools != nil {
		e.executor = tool.NewExecutor(tools, func(o *tool.ExecutorOptions) {
			o.MaxParallel = opts.MaxParallelTools
			o.Logger = logger
		})
	}
	return e
}

// target is a fully resolved model ready to be called.
type target struct {
	id       string
	resolved registry.Resolved
	client   model.ChatClient
}

// run carries the per-request state of the machine.
type run struct {
	req      Request
	tool     target
	answer   target
	messages []core.Message
	results  []tool.Outcome
	resend   bool
	question string
	states   []State
	logger   logging.Logger
}

func (r *run) enter(s State) { r.states = append(r.states, s) }

// Ask runs the conversation state machine for one question.
func (e *Engine) Ask(ctx context.Context, req Request) (Result, error) {
	res := Result{InvocationID: uuid.NewString()}
	logger := e.logger

	if strings.TrimSpace(req.Question) == "" {
		return res, core.NewValidationError("question is empty")
	}

	r, err := e.prepare(req)
	if err != nil {
		return res, err
	}
	r.logger = logger
	res.ModelID, res.ToolModelID = r.answer.id, r.tool.id
	logger.Debug("engine.ask.start", "invocation_id", res.InvocationID, "model", r.answer.id, "tool_model", r.tool.id)

	fail := func(err error) (Result, error) {
		r.enter(StateFailed)
		res.States = r.states
		res.ToolCalls = records(r.results)
		logger.Error("engine.ask.failed", "invocation_id", res.InvocationID, "states", r.states, "error", err.Error())
		return res, err
	}

	if err := e.dispatchTools(ctx, r); err != nil {
		return fail(err)
	}
	if err := e.expandContext(ctx, r); err != nil {
		return fail(err)
	}
	applyProviderSwitch(r)
	if r.resend {
		r.messages = append(r.messages, core.UserMessage(r.question))
	}

	answer, err := e.complete(ctx, r.answer, r.messages, nil)
	if err != nil {
		return fail(err)
	}
	r.enter(StateAnswered)

	res.Answer = answer.Content
	res.Messages = append(r.messages, answer)
	res.ToolCalls = records(r.results)
	res.States = r.states
	logger.Info("engine.ask.answered", "invocation_id", res.InvocationID, "tool_calls", len(res.ToolCalls), "states", r.states)
	return res, nil
}

// prepare resolves both models and their clients without touching the network.
func (e *Engine) prepare(req Request) (*run, error) {
	answerID := req.ModelID
	if answerID == "" {
		id, err := e.registry.DefaultModel()
		if err != nil {
			return nil, err
		}
		answerID = id
	}
	toolID := req.ToolModelID
	if toolID == "" {
		id, err := e.registry.ToolModel()
		if err != nil {
			return nil, err
		}
		toolID = id
	}

	answer, err := e.target(answerID)
	if err != nil {
		return nil, err
	}
	tl, err := e.target(toolID)
	if err != nil {
		return nil, err
	}

	r := &run{
		req:      req,
		answer:   answer,
		tool:     tl,
		question: req.Question,
		messages: []core.Message{core.UserMessage(req.Question)},
	}
	r.enter(StateStart)
	return r, nil
}

func (e *Engine) target(id string) (target, error) {
	resolved, err := e.registry.Resolve(id)
	if err != nil {
		return target{}, err
	}
	client, err := e.clients.Client(resolved.Provider)
	if err != nil {
		return target{}, err
	}
	return target{id: id, resolved: resolved, client: client}, nil
}

// dispatchTools offers the tools to the tool model and runs any requested calls.
func (e *Engine) dispatchTools(ctx context.Context, r *run) error {
	if e.tools == nil {
		return nil
	}
	defs := e.tools.Definitions()
	if len(defs) == 0 {
		return nil
	}

	reply, err := e.complete(ctx, r.tool, r.messages, defs)
	if err != nil {
		return err
	}
	if !reply.HasToolCalls() {
		return nil
	}

	r.messages = append(r.messages, reply)
	r.results = e.executor.Execute(ctx, reply.ToolCalls)
	for _, o := range r.results {
		r.messages = append(r.messages, o.Message())
	}
	r.resend = true
	r.enter(StateToolsDispatched)
	return nil
}

func (e *Engine) expandContext(ctx context.Context, r *run) error {
	if e.expander != nil {
		text, changed, err := e.expander.Expand(ctx, r.question, r.req.Project)
		if err != nil {
			return err
		}
		r.question = text
		r.resend = r.resend || changed
	}
	r.enter(StateContextExpanded)
	return nil
}

// applyProviderSwitch replaces a structured tool transcript by plain context
// when it would be sent to a different provider than the one that produced it.
func applyProviderSwitch(r *run) {
	if len(r.results) == 0 || r.tool.resolved.Provider.Name == r.answer.resolved.Provider.Name {
		return
	}
	parts := make([]string, len(r.results))
	for i, o := range r.results {
		parts[i] = o.Result
	}
	r.messages = []core.Message{core.AssistantMessage(ContextPreamble + strings.Join(parts, "\n\n"))}
	r.resend = true
	r.logger.Debug("engine.provider_switch", "tool_provider", r.tool.resolved.Provider.Name, "answer_provider", r.answer.resolved.Provider.Name)
}

func (e *Engine) complete(ctx context.Context, t target, msgs []core.Message, tools []model.ToolDefinition) (core.Message, error) {
	if err := core.ValidateConversation(msgs); err != nil {
		return core.Message{}, err
	}
	start := time.Now()
	reply, err := t.client.Complete(ctx, model.Request{
		Params:   t.resolved.Params,
		Messages: append([]core.Message(nil), msgs...),
		Tools:    tools,
	})
	logging.LogLLMCall(e.logger, t.id, time.Since(start), err)
	return reply, err
}

func records(outcomes []tool.Outcome) []ToolCallRecord {
	out := make([]ToolCallRecord, len(outcomes))
	for i, o := range outcomes {
		out[i] = ToolCallRecord{
			ID:        o.Call.ID,
			Name:      o.Call.Name,
			Arguments: o.Call.Arguments,
			Result:    o.Result,
			Failed:    o.Failed(),
		}
	}
	return out
}
