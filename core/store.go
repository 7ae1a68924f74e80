package core

import (
	"context"
	"regexp"
)

// CommitRecord is a single source-control commit prepared for review.
type CommitRecord struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Diff    string `json:"diff"`
}

var commitHashRe = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)

// IsCommitHash reports whether s is an abbreviated or full hexadecimal commit hash.
func IsCommitHash(s string) bool { return commitHashRe.MatchString(s) }

// TicketStore provides read-only ticket lookups.
type TicketStore interface {
	// FindTicket returns the ticket with id; found is false when it does not exist.
	FindTicket(ctx context.Context, id int64) (t Ticket, found bool, err error)
	// QueryTickets returns tickets matching q, newest id first.
	QueryTickets(ctx context.Context, q TicketQuery) ([]Ticket, error)
}

// DocumentStore provides read-only document lookups scoped to a project.
type DocumentStore interface {
	FindDocument(ctx context.Context, project, title string) (d Document, found bool, err error)
}

// DataStore combines the ticket and document stores.
type DataStore interface {
	TicketStore
	DocumentStore
}

// CommitSource resolves commit hashes to commit records.
type CommitSource interface {
	GetCommit(ctx context.Context, hash string) (c CommitRecord, found bool, err error)
}

// ReviewStore persists review results and queue markers as named blobs keyed
// by commit hash. Presence of a marker means queued; it is cooperative, not a
// durable job queue.
type ReviewStore interface {
	QueueReview(ctx context.Context, hash string) error
	IsQueued(ctx context.Context, hash string) (bool, error)
	SaveResult(ctx context.Context, hash, review string) error
	Result(ctx context.Context, hash string) (review string, found bool, err error)
}
