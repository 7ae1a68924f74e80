package tool

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/reviewmesh/core"
)

// TicketToolName is the name the ticket lookup tool is registered under.
const TicketToolName = "get_tickets"

// DefaultTicketCap bounds the result when the model supplied neither a filter nor a limit.
const DefaultTicketCap = 50

// NoTicketsText is returned when nothing matched.
const NoTicketsText = "No tickets found."

// TicketToolOptions configures the ticket lookup tool.
type TicketToolOptions struct {
	// Now returns the reference time for max_age_days. Defaults to time.Now.
	Now func() time.Time
	// SafetyCap is the implicit limit applied to unfiltered queries.
	SafetyCap int
}

// TicketParameters is the JSON schema of the ticket lookup tool.
func TicketParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"max_age_days": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "The maximum age of the tickets in days",
			},
			"status": map[string]any{
				"type":        "string",
				"description": "Only return tickets with this status, can be 'all', 'open' or 'closed'",
				"enum":        []string{"all", "open", "closed"},
			},
			"tracker": map[string]any{
				"type":        "string",
				"description": "Only return tickets with this tracker, can be 'all', 'bug', 'feature', 'support', 'long_term', 'test', 'task'",
				"enum":        []string{"all", "bug", "feature", "support", "long_term", "test", "task"},
			},
			"limit": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "The maximum number of tickets to get",
			},
		},
		"required":             []string{},
		"additionalProperties": false,
	}
}

// NewTicketTool creates the get_tickets tool backed by store.
func NewTicketTool(store core.TicketStore, optFns ...func(o *TicketToolOptions)) *FunctionTool {
	opts := TicketToolOptions{Now: time.Now, SafetyCap: DefaultTicketCap}
	for _, fn := range optFns {
		fn(&opts)
	}

	return NewFunctionTool(
		TicketToolName,
		"Find our tickets, tasks and/or bug reports in our system that match the given parameters",
		TicketParameters(),
		func(ctx context.Context, args map[string]any) (string, error) {
			q := BuildTicketQuery(args, opts.Now(), opts.SafetyCap)
			tickets, err := store.QueryTickets(ctx, q)
			if err != nil {
				return "", err
			}
			if len(tickets) == 0 {
				return NoTicketsText, nil
			}
			blocks := make([]string, len(tickets))
			for i, t := range tickets {
				blocks[i] = core.FormatTicket(t)
			}
			return strings.Join(blocks, "\n"), nil
		},
	)
}

// BuildTicketQuery translates validated tool arguments into a store query.
// The safety cap applies only when no filter and no limit was supplied; an
// explicit limit always wins.
func BuildTicketQuery(args map[string]any, now time.Time, safetyCap int) core.TicketQuery {
	var q core.TicketQuery
	filtered := false

	if days := intArg(args, "max_age_days"); days > 0 {
		q.CreatedAfter = now.AddDate(0, 0, -days)
		filtered = true
	}

	if status, _ := args["status"].(string); status != "" && status != "all" {
		if ids, ok := core.StatusIDs(status); ok {
			q.StatusIDs = ids
			filtered = true
		}
	}

	if tracker, _ := args["tracker"].(string); tracker != "" && tracker != "all" {
		if ids, ok := core.TrackerIDs(tracker); ok {
			q.TrackerIDs = ids
			filtered = true
		}
	}

	if limit := intArg(args, "limit"); limit > 0 {
		q.Limit = limit
		filtered = true
	}

	if !filtered {
		q.Limit = safetyCap
	}
	return q
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
