// Package savestore persists save blobs locally in SQLite, one row per key.
package savestore

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/savesync/db"
	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
)

// Store is the local persistence the governing program saves to.
// Get reports found=false for a key that was never written.
type Store interface {
	Get(ctx context.Context, key string) (content string, found bool, err error)
	Set(ctx context.Context, key, content string) error
}

// SQLStore implements Store over the save_slots table
type SQLStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLStore creates a store backed by a migrated database
func NewSQLStore(db *sql.DB, logger *zap.SugaredLogger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

// Get returns the blob stored under key
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM save_slots WHERE key = ?", key,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(db.MarkClosed(err), "failed to read slot %s", key)
	}
	return content, true, nil
}

// Set replaces the blob stored under key
func (s *SQLStore) Set(ctx context.Context, key, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO save_slots (key, content, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		key, content,
	)
	if err != nil {
		return errors.Wrapf(db.MarkClosed(err), "failed to write slot %s", key)
	}

	s.logger.Debugw("Slot written",
		logger.FieldKey, key,
		logger.FieldSize, len(content),
	)
	return nil
}
