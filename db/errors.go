package db

import (
	"strings"

	"github.com/teranos/savesync/errors"
)

// ErrDatabaseClosed marks store and journal errors caused by a closed
// database, which during shutdown is expected rather than a failure
var ErrDatabaseClosed = errors.New("database is closed")

// MarkClosed marks err with ErrDatabaseClosed when database/sql reports the
// handle as closed. Other errors, and nil, are returned unchanged.
func MarkClosed(err error) error {
	if err == nil || errors.Is(err, ErrDatabaseClosed) {
		return err
	}
	// database/sql does not export its closed-handle error
	if strings.Contains(err.Error(), "database is closed") {
		return errors.Mark(err, ErrDatabaseClosed)
	}
	return err
}

// IsDatabaseClosed reports whether err, marked or raw, comes from a closed database
func IsDatabaseClosed(err error) bool {
	return errors.Is(MarkClosed(err), ErrDatabaseClosed)
}
