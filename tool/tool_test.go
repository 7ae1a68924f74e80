package tool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewmesh/core"
)

var echoSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"text": map[string]any{"type": "string"},
	},
	"required": []string{"text"},
}

func echoTool() *FunctionTool {
	return NewFunctionTool("echo", "Repeat text", echoSchema, func(_ context.Context, args map[string]any) (string, error) {
		return args["text"].(string), nil
	})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	out, err := echoTool().Call(t.Context(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := echoTool().Call(t.Context(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	cause := errors.New("db down")
	ft := NewFunctionTool("broken", "fails", nil, func(context.Context, map[string]any) (string, error) {
		return "", cause
	})
	_, err := ft.Call(t.Context(), nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, cause)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(echoTool())
	require.NoError(t, err)

	assert.Error(t, r.Register(echoTool()), "duplicate")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(NewFunctionTool("", "", nil, nil)))

	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)

	out, ok, err := r.Dispatch(t.Context(), "echo", map[string]any{"text": "x"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", out)

	out, ok, err = r.Dispatch(t.Context(), "unknown", nil)
	assert.NoError(t, err, "unknown tools are not errors")
	assert.False(t, ok)
	assert.Empty(t, out)
}

// -------------------- Executor Tests --------------------

func TestExecutor_ContainsFailuresInOrder(t *testing.T) {
	panicking := NewFunctionTool("boom", "panics", nil, func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	})
	r, err := NewRegistry(echoTool(), panicking)
	require.NoError(t, err)

	calls := []core.ToolCall{
		{ID: "1", Name: "echo", Arguments: `{"text":"a"}`},
		{ID: "2", Name: "echo", Arguments: `{not json`},
		{ID: "3", Name: "missing", Arguments: `{}`},
		{ID: "4", Name: "boom", Arguments: ``},
		{ID: "5", Name: "echo", Arguments: `{}`},
	}

	for _, parallel := range []int{1, 4} {
		outcomes := NewExecutor(r, func(o *ExecutorOptions) { o.MaxParallel = parallel }).Execute(t.Context(), calls)
		require.Len(t, outcomes, len(calls))

		assert.Equal(t, "a", outcomes[0].Result)
		assert.False(t, outcomes[0].Failed())
		assert.Equal(t, "Failed to call function echo.", outcomes[1].Result)
		assert.Equal(t, "Failed to call function missing.", outcomes[2].Result)
		assert.Equal(t, "Failed to call function boom.", outcomes[3].Result)
		assert.Equal(t, "Failed to call function echo.", outcomes[4].Result)

		for i, o := range outcomes {
			assert.Equal(t, calls[i].ID, o.Call.ID, "outcomes keep call order")
			assert.Equal(t, calls[i].ID, o.Message().ToolCallID)
			if i > 0 {
				assert.True(t, core.IsKind(o.Err, core.KindToolDispatch))
			}
		}
	}
}

func TestExecutor_Parallel(t *testing.T) {
	var running, peak atomic.Int32
	slow := NewFunctionTool("slow", "sleeps", nil, func(_ context.Context, args map[string]any) (string, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return args["id"].(string), nil
	})
	r, err := NewRegistry(slow)
	require.NoError(t, err)

	calls := make([]core.ToolCall, 6)
	for i := range calls {
		id := string(rune('a' + i))
		calls[i] = core.ToolCall{ID: id, Name: "slow", Arguments: `{"id":"` + id + `"}`}
	}

	outcomes := NewExecutor(r, func(o *ExecutorOptions) { o.MaxParallel = 2 }).Execute(t.Context(), calls)
	for i, o := range outcomes {
		assert.Equal(t, calls[i].ID, o.Result)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
