package orderflow

import (
	"encoding/gob"
	"time"
)

func init() {
	// Orders and mail results travel through gob-encoded history events and
	// queue payloads.
	gob.Register(Order{})
	gob.Register(MailResult{})
}

// Order is the immutable input of one fulfillment instance. The id is
// assigned upstream and is unique; once submitted, the order belongs to its
// instance for the instance's lifetime.
type Order struct {
	ID           int       `json:"id"`
	CustomerName string    `json:"customerName"`
	Amount       float64   `json:"amount"`
	OrderDate    time.Time `json:"orderDate"`
	DeliveryDate time.Time `json:"deliveryDate"`
	Email        string    `json:"email"`
}

// MailResult is the explicit outcome of a mail activity. Provider faults are
// caught inside the activity and reported here rather than raised, so the
// orchestrator *could* branch on Sent if notification failure were ever to
// affect the terminal status. Today it does not.
type MailResult struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}
