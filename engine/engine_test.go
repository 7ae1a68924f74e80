package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/expand"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/model/factory"
	"github.com/hupe1980/reviewmesh/registry"
	"github.com/hupe1980/reviewmesh/store/memory"
	"github.com/hupe1980/reviewmesh/tool"
)

type fixture struct {
	reg    *registry.Registry
	pool   *factory.Pool
	local  *model.ScriptedClient
	claude *model.ScriptedClient
	store  *memory.Store
	tools  *tool.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.New(
		[]registry.ProviderEntry{
			{Name: "local", Kind: registry.KindOpenAI, BaseURL: "http://localhost:11434/v1"},
			{Name: "claude", Kind: registry.KindAnthropic},
		},
		[]registry.ModelEntry{
			{Provider: "local", Model: "qwen2.5-coder:7b"},
			{Provider: "local", Model: "llama3"},
			{Provider: "claude", Model: "claude-sonnet-4"},
		},
	)
	require.NoError(t, err)

	f := &fixture{
		reg:    reg,
		pool:   factory.NewPool(),
		local:  model.NewScriptedClient(),
		claude: model.NewScriptedClient(),
		store:  memory.New(),
	}
	f.pool.Set("local", f.local)
	f.pool.Set("claude", f.claude)

	require.NoError(t, f.store.SaveTicket(t.Context(), core.Ticket{
		ID: 42, Subject: "Crash on save", TrackerID: 1, TrackerName: "Bug", StatusID: 1, StatusName: "New",
		CreatedOn: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}))
	f.tools, err = tool.NewRegistry(tool.NewTicketTool(f.store))
	require.NoError(t, err)
	return f
}

func (f *fixture) engine() *Engine {
	return New(f.reg, f.pool, f.tools, func(o *Options) { o.Expander = expand.New(f.store, f.store) })
}

var ticketCall = core.ToolCall{ID: "call_1", Name: "get_tickets", Arguments: `{"status":"open"}`}

func TestAsk_SameProviderForwardsToolTranscript(t *testing.T) {
	f := newFixture(t)
	f.local.ReplyToolCalls(ticketCall).Reply("One open bug: Crash on save.")

	res, err := f.engine().Ask(t.Context(), Request{
		Question:    "Which bugs are open?",
		ModelID:     "local:llama3",
		ToolModelID: "local:qwen2.5-coder:7b",
	})
	require.NoError(t, err)
	assert.Equal(t, "One open bug: Crash on save.", res.Answer)
	assert.Equal(t, []State{StateStart, StateToolsDispatched, StateContextExpanded, StateAnswered}, res.States)
	assert.NotEmpty(t, res.InvocationID)

	reqs := f.local.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Tools, 1, "tool model is offered the tools")
	assert.Equal(t, "qwen2.5-coder:7b", reqs[0].Params.Model)
	assert.Empty(t, reqs[1].Tools, "answer model gets no tools")
	assert.Equal(t, "llama3", reqs[1].Params.Model)

	calls := core.AssistantMessage("")
	calls.ToolCalls = []core.ToolCall{ticketCall}
	want := []core.Message{
		core.UserMessage("Which bugs are open?"),
		calls,
		core.ToolResultMessage("call_1", "get_tickets", ticketBlock(t, f)),
		core.UserMessage("Which bugs are open?"),
	}
	if diff := cmp.Diff(want, reqs[1].Messages); diff != "" {
		t.Errorf("answer request mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_tickets", res.ToolCalls[0].Name)
	assert.False(t, res.ToolCalls[0].Failed)
	assert.Len(t, res.Messages, len(want)+1)
}

func TestAsk_ProviderSwitchSynthesizesContext(t *testing.T) {
	f := newFixture(t)
	f.local.ReplyToolCalls(ticketCall)
	f.claude.Reply("There is one open bug.")

	res, err := f.engine().Ask(t.Context(), Request{
		Question:    "Which bugs are open?",
		ModelID:     "claude:claude-sonnet-4",
		ToolModelID: "local:qwen2.5-coder:7b",
	})
	require.NoError(t, err)
	assert.Equal(t, "There is one open bug.", res.Answer)

	reqs := f.claude.Requests()
	require.Len(t, reqs, 1)
	want := []core.Message{
		core.AssistantMessage(ContextPreamble + ticketBlock(t, f)),
		core.UserMessage("Which bugs are open?"),
	}
	if diff := cmp.Diff(want, reqs[0].Messages); diff != "" {
		t.Errorf("answer request mismatch (-want +got):\n%s", diff)
	}
	for _, m := range reqs[0].Messages {
		assert.NotEqual(t, core.RoleTool, m.Role, "no tool messages cross providers")
	}
}

func TestAsk_NoToolCallsNoReferences(t *testing.T) {
	f := newFixture(t)
	f.local.Reply("ignored tool-model text").Reply("Hello!")

	res, err := f.engine().Ask(t.Context(), Request{Question: "Say hello"})
	require.NoError(t, err)
	assert.Equal(t, []State{StateStart, StateContextExpanded, StateAnswered}, res.States)
	assert.Empty(t, res.ToolCalls)

	want := []core.Message{core.UserMessage("Say hello"), core.AssistantMessage("Hello!")}
	if diff := cmp.Diff(want, res.Messages); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestAsk_ReferenceExpansion(t *testing.T) {
	f := newFixture(t)
	f.local.Reply("").Reply("Saving crashes the editor.")

	res, err := f.engine().Ask(t.Context(), Request{Question: "Summarize #42"})
	require.NoError(t, err)

	reqs := f.local.Requests()
	require.Len(t, reqs, 2)
	final := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleUser, final.Role)
	assert.Contains(t, final.Content, "Crash on save")
	assert.NotContains(t, final.Content, "#42")
	assert.Equal(t, "Saving crashes the editor.", res.Answer)
}

func TestAsk_ToolFailureIsContained(t *testing.T) {
	f := newFixture(t)
	f.local.ReplyToolCalls(core.ToolCall{ID: "c1", Name: "get_tickets", Arguments: `{"status":"pending"}`}).Reply("Sorry.")

	res, err := f.engine().Ask(t.Context(), Request{Question: "q"})
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Failed)
	assert.Equal(t, "Failed to call function get_tickets.", res.ToolCalls[0].Result)
}

func TestAsk_ConfigErrorsNeverReachNetwork(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine().Ask(t.Context(), Request{Question: "q", ModelID: "openai:gpt-4o"})
	assert.True(t, core.IsKind(err, core.KindConfig))

	_, err = f.engine().Ask(t.Context(), Request{Question: "q", ToolModelID: "local:missing"})
	assert.True(t, core.IsKind(err, core.KindConfig))

	_, err = f.engine().Ask(t.Context(), Request{Question: "   "})
	assert.True(t, core.IsKind(err, core.KindValidation))

	assert.Zero(t, f.local.Calls())
	assert.Zero(t, f.claude.Calls())
}

func TestAsk_TransportErrorFails(t *testing.T) {
	f := newFixture(t)
	f.local.Reply("").Fail(core.NewTransportError("local", errors.New("connection refused")))

	res, err := f.engine().Ask(t.Context(), Request{Question: "q"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindTransport))
	assert.Empty(t, res.Answer)
	assert.Equal(t, StateFailed, res.States[len(res.States)-1])
}

func TestAsk_WithoutTools(t *testing.T) {
	f := newFixture(t)
	f.local.Reply("42")

	res, err := New(f.reg, f.pool, nil).Ask(t.Context(), Request{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "42", res.Answer)
	assert.Equal(t, 1, f.local.Calls())
}

func ticketBlock(t *testing.T, f *fixture) string {
	t.Helper()
	tk, ok, err := f.store.FindTicket(t.Context(), 42)
	require.NoError(t, err)
	require.True(t, ok)
	return core.FormatTicket(tk)
}
