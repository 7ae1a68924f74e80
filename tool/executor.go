package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/logging"
)

// FailureText is the tool result injected when a call cannot be completed.
func FailureText(name string) string {
	return fmt.Sprintf("Failed to call function %s.", name)
}

// Outcome is the result of one tool call. Result is always set; on failure it
// holds FailureText and Err carries the cause.
type Outcome struct {
	Call     core.ToolCall
	Result   string
	Err      error
	Duration time.Duration
}

// Failed reports whether the call could not be completed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Message returns the tool message answering the call.
func (o Outcome) Message() core.Message {
	return core.ToolResultMessage(o.Call.ID, o.Call.Name, o.Result)
}

// Dispatcher resolves and calls a tool by name.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) (string, bool, error)
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxParallel bounds concurrently running calls. Values below 2 run calls sequentially.
	MaxParallel int
	Logger      logging.Logger
}

// Executor runs a batch of tool calls and returns one Outcome per call in
// call order, regardless of how the calls were scheduled.
type Executor struct {
	dispatcher Dispatcher
	opts       ExecutorOptions
}

// NewExecutor creates an Executor backed by d.
func NewExecutor(d Dispatcher, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{MaxParallel: 1}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Executor{dispatcher: d, opts: opts}
}

// Execute runs calls. It never fails as a whole: argument decoding errors,
// unknown tools, handler errors and panics are contained per call.
func (e *Executor) Execute(ctx context.Context, calls []core.ToolCall) []Outcome {
	outcomes := make([]Outcome, len(calls))
	if len(calls) == 0 {
		return outcomes
	}

	if e.opts.MaxParallel < 2 || len(calls) == 1 {
		for i, c := range calls {
			outcomes[i] = e.executeOne(ctx, c)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(e.opts.MaxParallel)
	for i, c := range calls {
		g.Go(func() error {
			outcomes[i] = e.executeOne(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Executor) executeOne(ctx context.Context, call core.ToolCall) (out Outcome) {
	out.Call = call
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = core.NewToolDispatchError(call.Name, &panicErr{val: r, stack: debug.Stack()})
			e.opts.Logger.Error("tool.call.panic", "tool", call.Name, "recover", fmt.Sprint(r))
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			out.Result = FailureText(call.Name)
		}
		logging.LogToolCall(e.opts.Logger, call.Name, out.Duration, out.Err == nil, out.Err)
	}()

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			out.Err = core.NewToolDispatchError(call.Name, fmt.Errorf("failed to unmarshal args: %w", err))
			return out
		}
		if args == nil {
			args = map[string]any{}
		}
	}

	result, ok, err := e.dispatcher.Dispatch(ctx, call.Name, args)
	switch {
	case !ok:
		out.Err = core.NewToolDispatchError(call.Name, fmt.Errorf("tool %s not found", call.Name))
	case err != nil:
		out.Err = core.NewToolDispatchError(call.Name, err)
	default:
		out.Result = result
	}
	return out
}

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }
