package rewind

import (
	"database/sql"
)

// NewSQLiteBundle constructs a fully durable Runner on a single SQLite
// database: instance histories and the activity task queue share the
// provided *sql.DB, so both orchestration progress and dispatched-but-not-
// yet-executed activities survive a process restart.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:rewind.db?_journal=WAL")
//	runner, err := rewind.NewSQLiteBundle(db)
//	// register workflows and activities on runner.Engine
//	// call rewind.RecoverPendingInstances before StartWorkers
func NewSQLiteBundle(db *sql.DB) (*Runner, error) {
	eng, err := NewSQLiteEngine(db)
	if err != nil {
		return nil, err
	}
	return NewRunner(eng), nil
}
