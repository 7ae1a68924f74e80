package core

import (
	"fmt"
	"strings"
	"time"
)

// Ticket is an issue of the host project tracker.
type Ticket struct {
	ID          int64     `json:"id" yaml:"id"`
	ProjectID   string    `json:"project_id" yaml:"project_id"`
	Subject     string    `json:"subject" yaml:"subject"`
	Description string    `json:"description" yaml:"description"`
	TrackerID   int       `json:"tracker_id" yaml:"tracker_id"`
	TrackerName string    `json:"tracker_name,omitempty" yaml:"tracker_name"`
	StatusID    int       `json:"status_id" yaml:"status_id"`
	StatusName  string    `json:"status_name,omitempty" yaml:"status_name"`
	Priority    string    `json:"priority,omitempty" yaml:"priority"`
	AssignedTo  string    `json:"assigned_to,omitempty" yaml:"assigned_to"`
	CreatedOn   time.Time `json:"created_on" yaml:"created_on"`
}

// Document is a named wiki page inside a project.
type Document struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	Title     string `json:"title" yaml:"title"`
	Body      string `json:"body" yaml:"body"`
}

// TicketQuery filters tickets. Zero values disable a filter; Limit 0 means
// unlimited. Results are ordered newest id first.
type TicketQuery struct {
	CreatedAfter time.Time
	StatusIDs    []int
	TrackerIDs   []int
	Limit        int
}

// Status ids of the host tracker grouped by open / closed state.
//
//	1 new, 2 in progress, 3 resolved, 4 feedback, 5 closed,
//	6 rejected, 7 need review, 8 reviewed, 9 ready to deploy, 10 deployed
var (
	OpenStatusIDs   = []int{1, 2, 4, 7, 8, 9}
	ClosedStatusIDs = []int{3, 5, 6, 10}
)

// Tracker ids of the host tracker.
const (
	TrackerBug      = 1
	TrackerFeature  = 2
	TrackerSupport  = 3
	TrackerLongTerm = 4
	TrackerTest     = 5
)

var trackerIDs = map[string][]int{
	"bug":       {TrackerBug},
	"feature":   {TrackerFeature},
	"support":   {TrackerSupport},
	"long_term": {TrackerLongTerm},
	"test":      {TrackerTest},
	"task":      {TrackerBug, TrackerFeature, TrackerSupport, TrackerLongTerm, TrackerTest},
}

// TrackerIDs maps a tracker name to its ids. "task" is the union of all
// trackers. ok is false for unknown names (including "all").
func TrackerIDs(name string) ([]int, bool) {
	ids, ok := trackerIDs[name]
	if !ok {
		return nil, false
	}
	return append([]int(nil), ids...), true
}

// StatusIDs maps "open" or "closed" to the matching status ids.
func StatusIDs(state string) ([]int, bool) {
	switch state {
	case "open":
		return append([]int(nil), OpenStatusIDs...), true
	case "closed":
		return append([]int(nil), ClosedStatusIDs...), true
	}
	return nil, false
}

const ticketTimeLayout = "2006-01-02 15:04:05 MST"

// FormatTicket renders t as a delimited block for model prompts. The id is
// written without a leading '#' so rendered text never contains a ticket
// reference token itself.
func FormatTicket(t Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<ticket>**Ticket ID**: %d\n", t.ID)
	fmt.Fprintf(&b, " *Title*: %s\n", t.Subject)
	fmt.Fprintf(&b, " *Type*: %s\n", orNA(t.TrackerName))
	fmt.Fprintf(&b, " *Priority*: %s\n", orNA(t.Priority))
	fmt.Fprintf(&b, " *Status*: %s\n", orNA(t.StatusName))
	fmt.Fprintf(&b, " *Created on*: %s\n", t.CreatedOn.UTC().Format(ticketTimeLayout))
	if t.AssignedTo == "" {
		b.WriteString("  Not assigned\n")
	} else {
		fmt.Fprintf(&b, "  *Assigned to*: %s\n", t.AssignedTo)
	}
	fmt.Fprintf(&b, " *Description*: %s</ticket>\n\n", t.Description)
	return b.String()
}

// FormatDocument renders d for inlining into a prompt.
func FormatDocument(d Document) string {
	return fmt.Sprintf("Document: %s\nContent: %s\n\n", d.Title, d.Body)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
