package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent task queue backed by SQLite, so that
// dispatched activity invocations survive a process restart alongside the
// history they belong to. It uses simple FIFO semantics based on an
// auto-incrementing id and claims tasks with a delete-inside-transaction.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a
// new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS activity_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			instance_id TEXT NOT NULL,
			activity_seq INTEGER NOT NULL,
			activity TEXT NOT NULL,
			input BLOB,
			enqueued_at INTEGER NOT NULL,
			attempts INTEGER NOT NULL
		);
	`)
	return err
}

var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	input, err := encodeInput(t.Input)
	if err != nil {
		return err
	}

	enqueuedAt := t.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO activity_tasks (instance_id, activity_seq, activity, input, enqueued_at, attempts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.InstanceID,
		t.Seq,
		t.Activity,
		input,
		enqueuedAt.UnixNano(),
		t.Attempts,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, claimed, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if claimed {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// tryClaim pops the oldest task, deleting it in the same transaction so no
// two workers claim the same row.
func (q *SQLiteQueue) tryClaim(ctx context.Context) (*Task, bool, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, instance_id, activity_seq, activity, input, enqueued_at, attempts
		FROM activity_tasks
		ORDER BY id ASC
		LIMIT 1`,
	)

	var (
		id         int64
		t          Task
		input      []byte
		enqueuedAt int64
	)
	if err := row.Scan(&id, &t.InstanceID, &t.Seq, &t.Activity, &input, &enqueuedAt, &t.Attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_tasks WHERE id = ?`, id); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	in, err := decodeInput(input)
	if err != nil {
		return nil, false, err
	}
	t.Input = in
	t.EnqueuedAt = time.Unix(0, enqueuedAt)
	return &t, true, nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM activity_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
