package database

import (
	"errors"
	"strings"

	mattn "github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// IsBusy reports whether err is SQLite's BUSY or LOCKED condition,
// i.e. another writer held the lock for longer than busy_timeout.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}

	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		primary := moderncErr.Code() & 0xff
		return primary == sqlite3lib.SQLITE_BUSY || primary == sqlite3lib.SQLITE_LOCKED
	}

	var mattnErr mattn.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.Code == mattn.ErrBusy || mattnErr.Code == mattn.ErrLocked
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// IsConstraint reports whether err is a constraint or trigger violation
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}

	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		return moderncErr.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT
	}

	var mattnErr mattn.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.Code == mattn.ErrConstraint
	}

	return strings.Contains(err.Error(), "constraint failed")
}
