// Package expand inlines ticket (#123) and document ([[Title]]) references
// into prompt text.
package expand

import (
	"context"
	"regexp"
	"strconv"

	"github.com/hupe1980/reviewmesh/core"
)

// reference matches either a ticket (#123, group 1) or a document
// ([[Title]], group 2). Both kinds are found in one scan of the input.
var reference = regexp.MustCompile(`#(\d+)|\[\[(.+?)\]\]`)

// Expander resolves references against a data store. Either store may be nil,
// in which case that kind of reference is left verbatim.
type Expander struct {
	tickets   core.TicketStore
	documents core.DocumentStore
}

// New creates an Expander.
func New(tickets core.TicketStore, documents core.DocumentStore) *Expander {
	return &Expander{tickets: tickets, documents: documents}
}

// Expand replaces found references and reports whether anything changed.
// Unknown references stay untouched. Store failures abort expansion.
// Inlined content is never scanned for further references.
func (e *Expander) Expand(ctx context.Context, text, project string) (string, bool, error) {
	idx := reference.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return text, false, nil
	}

	out := make([]byte, 0, len(text))
	last := 0
	changed := false
	for _, m := range idx {
		var (
			repl string
			ok   bool
			err  error
		)
		if m[2] >= 0 {
			repl, ok, err = e.ticket(ctx, text[m[2]:m[3]])
		} else {
			repl, ok, err = e.document(ctx, project, text[m[4]:m[5]])
		}
		if err != nil {
			return "", false, err
		}
		out = append(out, text[last:m[0]]...)
		if ok {
			out = append(out, repl...)
			changed = true
		} else {
			out = append(out, text[m[0]:m[1]]...)
		}
		last = m[1]
	}
	out = append(out, text[last:]...)
	return string(out), changed, nil
}

func (e *Expander) ticket(ctx context.Context, ref string) (string, bool, error) {
	if e.tickets == nil {
		return "", false, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return "", false, nil
	}
	t, ok, err := e.tickets.FindTicket(ctx, id)
	if err != nil || !ok {
		return "", false, err
	}
	return core.FormatTicket(t), true, nil
}

func (e *Expander) document(ctx context.Context, project, title string) (string, bool, error) {
	if e.documents == nil {
		return "", false, nil
	}
	d, ok, err := e.documents.FindDocument(ctx, project, title)
	if err != nil || !ok {
		return "", false, err
	}
	return core.FormatDocument(d), true, nil
}
