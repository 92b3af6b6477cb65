package orderflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoPayment is returned by PaymentStore implementations when no payment
// record exists for the order id.
var ErrNoPayment = errors.New("no payment record")

// SQLPaymentStore looks up payment status in a relational payments table:
//
//	payments(order_id INTEGER PRIMARY KEY, payment_status TEXT)
//
// It expects an *sql.DB opened with a registered driver, e.g. pgx:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//	db, err := sql.Open("pgx", dsn)
type SQLPaymentStore struct {
	db *sql.DB
}

// NewSQLPaymentStore wraps an open database handle.
func NewSQLPaymentStore(db *sql.DB) *SQLPaymentStore {
	return &SQLPaymentStore{db: db}
}

var _ PaymentStore = (*SQLPaymentStore)(nil)

func (s *SQLPaymentStore) PaymentStatus(ctx context.Context, orderID int) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT payment_status FROM payments WHERE order_id = $1`, orderID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoPayment
	}
	if err != nil {
		return "", fmt.Errorf("query payment status: %w", err)
	}
	return status, nil
}
