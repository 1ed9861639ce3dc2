package savestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/savesync/db"
	"github.com/teranos/savesync/errors"
)

// Entry is one remote round-trip recorded in the sync_log table
type Entry struct {
	ID        int64
	Session   uint64
	Operation string // locate, create, fetch, write
	Handle    string
	Size      int
	Error     string
	CreatedAt time.Time
}

// Journal records the outcome of remote operations for `savesync status`
type Journal struct {
	db *sql.DB
}

// NewJournal creates a journal over a migrated database
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record appends an entry. err may be nil.
func (j *Journal) Record(ctx context.Context, session uint64, operation, handle string, size int, opErr error) error {
	var errText sql.NullString
	if opErr != nil {
		errText = sql.NullString{String: opErr.Error(), Valid: true}
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO sync_log (session, operation, handle, size, error) VALUES (?, ?, ?, ?, ?)",
		session, operation, handle, size, errText,
	)
	return errors.Wrap(db.MarkClosed(err), "failed to record sync operation")
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session, operation, COALESCE(handle, ''), size, COALESCE(error, ''), created_at
		FROM sync_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(db.MarkClosed(err), "failed to query sync log")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Session, &e.Operation, &e.Handle, &e.Size, &e.Error, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan sync log entry")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to iterate sync log")
}
