package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/reviewmesh/core"
)

// BaseTime is the creation time of built tickets unless overridden.
var BaseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// TicketBuilder helps construct tickets with fluent chaining for tests.
// Example:
//
//	tk := NewTicket(42).Subject("Crash on save").Bug().Open().Build()
type TicketBuilder struct {
	t core.Ticket
}

// NewTicket creates a builder for a ticket with the given id, created at BaseTime.
func NewTicket(id int64) *TicketBuilder {
	return &TicketBuilder{t: core.Ticket{ID: id, Subject: "ticket", CreatedOn: BaseTime}}
}

// Subject sets the subject (chainable).
func (b *TicketBuilder) Subject(s string) *TicketBuilder {
	b.t.Subject = s
	return b
}

// Description sets the description (chainable).
func (b *TicketBuilder) Description(s string) *TicketBuilder {
	b.t.Description = s
	return b
}

// Project sets the project id (chainable).
func (b *TicketBuilder) Project(p string) *TicketBuilder {
	b.t.ProjectID = p
	return b
}

// Tracker sets tracker id and name (chainable).
func (b *TicketBuilder) Tracker(id int, name string) *TicketBuilder {
	b.t.TrackerID, b.t.TrackerName = id, name
	return b
}

// Bug marks the ticket as a bug (chainable).
func (b *TicketBuilder) Bug() *TicketBuilder { return b.Tracker(core.TrackerBug, "Bug") }

// Status sets status id and name (chainable).
func (b *TicketBuilder) Status(id int, name string) *TicketBuilder {
	b.t.StatusID, b.t.StatusName = id, name
	return b
}

// Open gives the ticket the "New" status (chainable).
func (b *TicketBuilder) Open() *TicketBuilder { return b.Status(1, "New") }

// Closed gives the ticket the "Closed" status (chainable).
func (b *TicketBuilder) Closed() *TicketBuilder { return b.Status(5, "Closed") }

// CreatedOn sets the creation time (chainable).
func (b *TicketBuilder) CreatedOn(at time.Time) *TicketBuilder {
	b.t.CreatedOn = at
	return b
}

// AgeDays sets the creation time to days before BaseTime (chainable).
func (b *TicketBuilder) AgeDays(days int) *TicketBuilder {
	b.t.CreatedOn = BaseTime.AddDate(0, 0, -days)
	return b
}

// Build returns the ticket.
func (b *TicketBuilder) Build() core.Ticket { return b.t }

// TicketSaver is a store accepting tickets.
type TicketSaver interface {
	SaveTicket(ctx context.Context, t core.Ticket) error
}

// SaveTickets stores all tickets, failing the test on error.
func SaveTickets(t testing.TB, store TicketSaver, tickets ...core.Ticket) {
	t.Helper()
	for _, tk := range tickets {
		if err := store.SaveTicket(context.Background(), tk); err != nil {
			t.Fatalf("save ticket %d: %v", tk.ID, err)
		}
	}
}

// NewCommit returns a commit record with a one line diff.
func NewCommit(hash, subject string) core.CommitRecord {
	return core.CommitRecord{
		Hash:    hash,
		Author:  "Ada Lovelace <ada@example.com>",
		Date:    BaseTime.Format("2006-01-02 15:04:05 -0700"),
		Subject: subject,
		Diff:    "diff --git a/main.go b/main.go\n+// " + subject,
	}
}
