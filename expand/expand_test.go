package expand

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/store/memory"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.SaveTicket(t.Context(), core.Ticket{ID: 42, Subject: "Crash on save", CreatedOn: time.Unix(0, 0)}))
	require.NoError(t, s.SaveDocument(t.Context(), core.Document{ProjectID: "web", Title: "Setup", Body: "run make"}))
	require.NoError(t, s.SaveDocument(t.Context(), core.Document{ProjectID: "web", Title: "Deploy", Body: "run ship"}))
	return s
}

func TestExpand_Ticket(t *testing.T) {
	s := newStore(t)
	out, changed, err := New(s, s).Expand(t.Context(), "Summarize #42", "web")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, out, "Crash on save")
	assert.NotContains(t, out, "#42")
	assert.Equal(t, "Summarize "+core.FormatTicket(core.Ticket{ID: 42, Subject: "Crash on save", CreatedOn: time.Unix(0, 0)}), out)
}

func TestExpand_UnknownLeftVerbatim(t *testing.T) {
	s := newStore(t)
	in := "See #7 and [[Missing]]"
	out, changed, err := New(s, s).Expand(t.Context(), in, "web")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, in, out)
}

func TestExpand_NoTokensIdempotent(t *testing.T) {
	s := newStore(t)
	in := "What changed last week?"
	out, changed, err := New(s, s).Expand(t.Context(), in, "web")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, in, out)
}

func TestExpand_TwoDocumentsOnOneLine(t *testing.T) {
	s := newStore(t)
	out, changed, err := New(s, s).Expand(t.Context(), "[[Setup]] then [[Deploy]]", "web")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Document: Setup\nContent: run make\n\n then Document: Deploy\nContent: run ship\n\n", out)

	_, changed, err = New(s, s).Expand(t.Context(), "[[Setup]]", "api")
	require.NoError(t, err)
	assert.False(t, changed, "documents resolve within the project only")
}

func TestExpand_InlinedTicketIsNotRescanned(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveTicket(t.Context(), core.Ticket{ID: 7, Subject: "Docs", Description: "see [[Setup]] and #42", CreatedOn: time.Unix(0, 0)}))

	out, changed, err := New(s, s).Expand(t.Context(), "#7 [[Deploy]]", "web")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, out, "see [[Setup]] and #42")
	assert.NotContains(t, out, "run make")
	assert.NotContains(t, out, "Crash on save")
	assert.Contains(t, out, "Content: run ship")
}

type failingStore struct{}

func (failingStore) QueryTickets(context.Context, core.TicketQuery) ([]core.Ticket, error) {
	return nil, nil
}

func (failingStore) FindTicket(context.Context, int64) (core.Ticket, bool, error) {
	return core.Ticket{}, false, errors.New("db down")
}

func TestExpand_StoreError(t *testing.T) {
	_, _, err := New(failingStore{}, nil).Expand(t.Context(), "#1", "web")
	assert.EqualError(t, err, "db down")
}
