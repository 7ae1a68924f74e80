// Package sqlite stores tickets and documents in a SQLite database using the
// pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/reviewmesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id INTEGER PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	tracker_id INTEGER NOT NULL DEFAULT 0,
	tracker_name TEXT NOT NULL DEFAULT '',
	status_id INTEGER NOT NULL DEFAULT 0,
	status_name TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT '',
	assigned_to TEXT NOT NULL DEFAULT '',
	created_on INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_created ON tickets(created_on);

CREATE TABLE IF NOT EXISTS documents (
	project_id TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (project_id, title)
);
`

// Store is a SQLite backed core.DataStore.
type Store struct {
	db   *sql.DB
	path string
}

var _ core.DataStore = (*Store)(nil)

// Open creates or opens the database at path. ":memory:" opens a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// SaveTicket inserts or replaces t.
func (s *Store) SaveTicket(ctx context.Context, t core.Ticket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tickets
			(id, project_id, subject, description, tracker_id, tracker_name, status_id, status_name, priority, assigned_to, created_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Subject, t.Description, t.TrackerID, t.TrackerName,
		t.StatusID, t.StatusName, t.Priority, t.AssignedTo, t.CreatedOn.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save ticket %d: %w", t.ID, err)
	}
	return nil
}

// SaveDocument inserts or replaces d.
func (s *Store) SaveDocument(ctx context.Context, d core.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (project_id, title, body) VALUES (?, ?, ?)`,
		d.ProjectID, d.Title, d.Body)
	if err != nil {
		return fmt.Errorf("save document %q: %w", d.Title, err)
	}
	return nil
}

const ticketColumns = `id, project_id, subject, description, tracker_id, tracker_name, status_id, status_name, priority, assigned_to, created_on`

// FindTicket implements core.TicketStore.
func (s *Store) FindTicket(ctx context.Context, id int64) (core.Ticket, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Ticket{}, false, nil
	}
	if err != nil {
		return core.Ticket{}, false, fmt.Errorf("find ticket %d: %w", id, err)
	}
	return t, true, nil
}

// QueryTickets implements core.TicketStore.
func (s *Store) QueryTickets(ctx context.Context, q core.TicketQuery) ([]core.Ticket, error) {
	var (
		where []string
		args  []any
	)
	if !q.CreatedAfter.IsZero() {
		where = append(where, "created_on > ?")
		args = append(args, q.CreatedAfter.UTC().UnixNano())
	}
	if len(q.StatusIDs) > 0 {
		where = append(where, "status_id IN ("+placeholders(len(q.StatusIDs))+")")
		for _, id := range q.StatusIDs {
			args = append(args, id)
		}
	}
	if len(q.TrackerIDs) > 0 {
		where = append(where, "tracker_id IN ("+placeholders(len(q.TrackerIDs))+")")
		for _, id := range q.TrackerIDs {
			args = append(args, id)
		}
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var out []core.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindDocument implements core.DocumentStore.
func (s *Store) FindDocument(ctx context.Context, project, title string) (core.Document, bool, error) {
	d := core.Document{ProjectID: project, Title: title}
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE project_id = ? AND title = ?`, project, title).Scan(&d.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, false, nil
	}
	if err != nil {
		return core.Document{}, false, fmt.Errorf("find document %q: %w", title, err)
	}
	return d, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(sc scanner) (core.Ticket, error) {
	var (
		t       core.Ticket
		created int64
	)
	err := sc.Scan(&t.ID, &t.ProjectID, &t.Subject, &t.Description, &t.TrackerID, &t.TrackerName,
		&t.StatusID, &t.StatusName, &t.Priority, &t.AssignedTo, &created)
	if err != nil {
		return core.Ticket{}, err
	}
	t.CreatedOn = time.Unix(0, created).UTC()
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
