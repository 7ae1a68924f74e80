// Package memory provides an in-memory ticket and document store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hupe1980/reviewmesh/core"
)

// Store keeps tickets and documents in memory. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	tickets   map[int64]core.Ticket
	documents map[docKey]core.Document
}

type docKey struct{ project, title string }

var _ core.DataStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{tickets: map[int64]core.Ticket{}, documents: map[docKey]core.Document{}}
}

// SaveTicket inserts or replaces t.
func (s *Store) SaveTicket(_ context.Context, t core.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return nil
}

// SaveDocument inserts or replaces d.
func (s *Store) SaveDocument(_ context.Context, d core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[docKey{d.ProjectID, d.Title}] = d
	return nil
}

// FindTicket implements core.TicketStore.
func (s *Store) FindTicket(_ context.Context, id int64) (core.Ticket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	return t, ok, nil
}

// QueryTickets implements core.TicketStore.
func (s *Store) QueryTickets(_ context.Context, q core.TicketQuery) ([]core.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if !q.CreatedAfter.IsZero() && !t.CreatedOn.After(q.CreatedAfter) {
			continue
		}
		if len(q.StatusIDs) > 0 && !slices.Contains(q.StatusIDs, t.StatusID) {
			continue
		}
		if len(q.TrackerIDs) > 0 && !slices.Contains(q.TrackerIDs, t.TrackerID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// FindDocument implements core.DocumentStore.
func (s *Store) FindDocument(_ context.Context, project, title string) (core.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[docKey{project, title}]
	return d, ok, nil
}
