package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/rewind/pkg/api"
)

// SQLiteHistoryStore is a HistoryStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteHistoryStore struct {
	db *sql.DB
}

var _ HistoryStore = (*SQLiteHistoryStore)(nil)

// NewSQLiteHistoryStore initializes the required schema in the given
// database and returns a new SQLiteHistoryStore.
func NewSQLiteHistoryStore(db *sql.DB) (*SQLiteHistoryStore, error) {
	s := &SQLiteHistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteHistoryStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			input BLOB,
			output BLOB,
			detail TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS history (
			instance_id TEXT NOT NULL,
			seq_no INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (instance_id, seq_no)
		);`,
	)
	return err
}

func (s *SQLiteHistoryStore) CreateInstance(ctx context.Context, rec InstanceRecord) error {
	input, err := EncodeValue(rec.Input)
	if err != nil {
		return err
	}
	status := rec.Status
	if status == "" {
		status = api.StatusRunning
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO instances (id, workflow, status, input, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Workflow, string(status), input, createdAt.UnixNano(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrInstanceExists
	}
	return err
}

func (s *SQLiteHistoryStore) Append(ctx context.Context, instanceID string, expectedVersion int, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The version bump doubles as the optimistic concurrency check: zero
	// affected rows means another writer appended first.
	res, err := tx.ExecContext(ctx, `
		UPDATE instances SET version = version + ?
		WHERE id = ? AND version = ?`,
		len(events), instanceID, expectedVersion,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM instances WHERE id = ?`, instanceID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrInstanceNotFound
		}
		return ErrHistoryConflict
	}

	for i, ev := range events {
		payload, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (instance_id, seq_no, type, payload)
			VALUES (?, ?, ?, ?)`,
			instanceID, expectedVersion+i, string(ev.Type), payload,
		); err != nil {
			return err
		}
	}

	var rec InstanceRecord
	applyDerived(&rec, events)
	if rec.Status != "" {
		output, err := EncodeValue(rec.Output)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE instances SET status = ?, output = ?, detail = ?
			WHERE id = ?`,
			string(rec.Status), output, rec.Detail, instanceID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteHistoryStore) Load(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instances WHERE id = ?`, instanceID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrInstanceNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM history
		WHERE instance_id = ?
		ORDER BY seq_no ASC`,
		instanceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []api.HistoryEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		ev, err := DecodeEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteHistoryStore) GetInstance(ctx context.Context, instanceID string) (InstanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, status, input, output, detail, created_at
		FROM instances WHERE id = ?`,
		instanceID,
	)
	rec, err := scanInstanceRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return InstanceRecord{}, ErrInstanceNotFound
	}
	return rec, err
}

func (s *SQLiteHistoryStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]InstanceRecord, error) {
	query := `
		SELECT id, workflow, status, input, output, detail, created_at
		FROM instances`
	var args []any
	var clauses []string

	if filter.Workflow != "" {
		clauses = append(clauses, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []InstanceRecord
	for rows.Next() {
		rec, err := scanInstanceRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstanceRecord(row rowScanner) (InstanceRecord, error) {
	var rec InstanceRecord
	var status string
	var input, output []byte
	var createdAt int64

	if err := row.Scan(&rec.ID, &rec.Workflow, &status, &input, &output, &rec.Detail, &createdAt); err != nil {
		return InstanceRecord{}, err
	}
	rec.Status = api.Status(status)
	rec.CreatedAt = time.Unix(0, createdAt)

	inVal, err := DecodeValue(input)
	if err != nil {
		return InstanceRecord{}, err
	}
	rec.Input = inVal

	outVal, err := DecodeValue(output)
	if err != nil {
		return InstanceRecord{}, err
	}
	rec.Output = outVal

	return rec, nil
}
