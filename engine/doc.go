// Package engine implements the tool-calling conversation engine behind the
// "ask" use case.
//
// A question is answered in at most two model calls. The tool model is offered
// the registered tools first; any tool calls it issues are dispatched locally
// and paired with their results. The question is then reference expanded
// (#123 tickets, [[Title]] documents) and the answer model produces the final
// reply without tools attached.
//
// # States
//
//	START -> TOOLS_DISPATCHED -> CONTEXT_EXPANDED -> ANSWERED
//	  \____________________________/                 (any) -> FAILED
//
// TOOLS_DISPATCHED is skipped when the tool model requests no tools.
//
// # Provider switch
//
// Tool-call transcripts are provider specific. When the tool model and the
// answer model resolve to different providers and tool results exist, the
// structured history is replaced by a single assistant message carrying the
// tool results as plain text, and the question is resent. This rule lives in
// one place, applyProviderSwitch.
//
// # Errors
//
// Model ids, providers and clients are resolved before the first network call,
// so configuration errors never reach a provider. Transport and provider API
// errors abort the turn; tool failures are contained per call and reported to
// the model as "Failed to call function <name>.".
//
// # Usage
//
//	eng := engine.New(reg, pool, tools, func(o *engine.Options) {
//	    o.Expander = expand.New(store, store)
//	    o.Logger = logger
//	})
//	res, err := eng.Ask(ctx, engine.Request{Question: "Which bugs are open?"})
package engine
