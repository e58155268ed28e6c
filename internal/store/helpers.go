package store

import "database/sql"

// errNoRows aliases sql.ErrNoRows for terser call sites in this package.
var errNoRows = sql.ErrNoRows

// execer is satisfied by both *sql.DB and *sql.Tx, letting accessors share
// logic (e.g. RecomputeUnread) whether called inside or outside a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}
