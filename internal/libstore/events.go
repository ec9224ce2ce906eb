package libstore

import (
	"context"
	"database/sql"
	"time"

	"dadcam.systems/core/internal/dadcamerr"
)

// Event kinds (spec §3).
const (
	EventDateRange     = "date_range"
	EventClipSelection = "clip_selection"
)

// Event is a user-authored grouping of clips, either an explicit list
// or a date window resolved lazily at read time.
type Event struct {
	ID        int64
	LibraryID string
	Kind      string
	Name      string
	DateStart sql.NullTime
	DateEnd   sql.NullTime
	ClipIDs   string // JSON array, used only when Kind == clip_selection
	CreatedAt time.Time
}

// InsertEvent creates a new event.
func (s *Store) InsertEvent(ctx context.Context, e Event) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (library_id, kind, name, date_start, date_end, clip_ids, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.LibraryID, e.Kind, e.Name, e.DateStart, e.DateEnd, e.ClipIDs, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetEvent fetches an event by id.
func (s *Store) GetEvent(ctx context.Context, id int64) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, library_id, kind, name, date_start, date_end, clip_ids, created_at FROM events WHERE id = ?`, id)
	var e Event
	if err := row.Scan(&e.ID, &e.LibraryID, &e.Kind, &e.Name, &e.DateStart, &e.DateEnd, &e.ClipIDs, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Event{}, dadcamerr.NewNotFoundError("event", idString(id))
		}
		return Event{}, err
	}
	return e, nil
}

// ListEventsByLibrary returns every event in a library.
func (s *Store) ListEventsByLibrary(ctx context.Context, libraryID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, library_id, kind, name, date_start, date_end, clip_ids, created_at
		 FROM events WHERE library_id = ? ORDER BY created_at DESC`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.LibraryID, &e.Kind, &e.Name, &e.DateStart, &e.DateEnd, &e.ClipIDs, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveDateRangeClips returns the clip ids falling within a
// date_range event's window, resolved lazily against recorded_at
// (spec §3: "clips resolved lazily for date_range events").
func (s *Store) ResolveDateRangeClips(ctx context.Context, libraryID string, start, end time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM clips WHERE library_id = ? AND recorded_at BETWEEN ? AND ? ORDER BY recorded_at`,
		libraryID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
