package orderflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/petrijr/rewind/pkg/api"
)

// PaymentStore looks up the payment status recorded for an order.
// ErrNoPayment means no record exists for the order id.
type PaymentStore interface {
	PaymentStatus(ctx context.Context, orderID int) (string, error)
}

// QueuePublisher publishes a message to a named destination. msgID is a
// deduplication key for downstream consumers under at-least-once delivery.
type QueuePublisher interface {
	Publish(ctx context.Context, destination, msgID string, data []byte) error
}

// Mail is one outbound email.
type Mail struct {
	FromAddress string
	FromName    string
	ToAddress   string
	ToName      string
	Subject     string
	HTMLBody    string
}

// Mailer sends mail through an external provider.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// PaymentStatusCompleted is the only payment status that counts as paid.
const PaymentStatusCompleted = "Completed"

// VendorQueueDestination is where fulfillable orders are published.
const VendorQueueDestination = "vendor-orders"

// Activities bundles the four order-fulfillment activities with their
// collaborators. One value is shared by all workers; collaborators must be
// safe for concurrent use.
type Activities struct {
	Payments PaymentStore
	Queue    QueuePublisher
	Mail     Mailer

	// Sender identity for outbound mail.
	SenderAddress string
	SenderName    string
}

// CheckPaymentStatus reports whether the order's payment has completed.
//
// Contract ambiguity, preserved deliberately: a missing payment record and a
// record whose status is anything other than "Completed" both yield false.
// Callers cannot tell the two apart.
func (a *Activities) CheckPaymentStatus(ctx context.Context, input any) (any, error) {
	orderID, ok := toOrderID(input)
	if !ok {
		return nil, api.Permanent(fmt.Errorf("CheckPaymentStatus: expected order id, got %T", input))
	}

	status, err := a.Payments.PaymentStatus(ctx, orderID)
	if err != nil {
		if err == ErrNoPayment {
			return false, nil
		}
		return nil, api.Transient(fmt.Errorf("payment lookup for order %d: %w", orderID, err))
	}
	return status == PaymentStatusCompleted, nil
}

// SendOrderToVendorQueue publishes the JSON-serialized order to the vendor
// queue. The engine cannot guarantee exactly-once dispatch across a crash,
// so the publish carries the order id as a message id and downstream
// consumers dedupe on it; publishing twice is safe.
func (a *Activities) SendOrderToVendorQueue(ctx context.Context, input any) (any, error) {
	order, ok := input.(Order)
	if !ok {
		return nil, api.Permanent(fmt.Errorf("SendOrderToVendorQueue: expected Order, got %T", input))
	}

	data, err := json.Marshal(order)
	if err != nil {
		return nil, api.Permanent(err)
	}
	if err := a.Queue.Publish(ctx, VendorQueueDestination, strconv.Itoa(order.ID), data); err != nil {
		return nil, api.Transient(fmt.Errorf("publish order %d: %w", order.ID, err))
	}
	return true, nil
}

// SendConfirmationMail mails the customer that the order is confirmed.
// Provider faults are caught here and reported as MailResult, never as an
// activity error, so the orchestration cannot distinguish a transient mail
// outage from a permanent one.
func (a *Activities) SendConfirmationMail(ctx context.Context, input any) (any, error) {
	order, ok := input.(Order)
	if !ok {
		return nil, api.Permanent(fmt.Errorf("SendConfirmationMail: expected Order, got %T", input))
	}

	m := Mail{
		FromAddress: a.SenderAddress,
		FromName:    a.SenderName,
		ToAddress:   order.Email,
		ToName:      order.CustomerName,
		Subject:     fmt.Sprintf("Your Order confirmed with order Id %d", order.ID),
		HTMLBody: fmt.Sprintf(
			"Hi %s,<br/>Your order with Id %d for Rs %.2f/- is confirmed by the seller. "+
				"Your order will be delivered on %s.",
			order.CustomerName, order.ID, order.Amount, order.DeliveryDate.Format("02/01/2006")),
	}
	if err := a.Mail.Send(ctx, m); err != nil {
		return MailResult{Sent: false, Reason: err.Error()}, nil
	}
	return MailResult{Sent: true}, nil
}

// SendCancellationMail mails the customer that the order was cancelled
// because payment did not complete. Same fault handling as
// SendConfirmationMail.
func (a *Activities) SendCancellationMail(ctx context.Context, input any) (any, error) {
	order, ok := input.(Order)
	if !ok {
		return nil, api.Permanent(fmt.Errorf("SendCancellationMail: expected Order, got %T", input))
	}

	m := Mail{
		FromAddress: a.SenderAddress,
		FromName:    a.SenderName,
		ToAddress:   order.Email,
		ToName:      order.CustomerName,
		Subject:     fmt.Sprintf("Order cancelled. Order Id: %d", order.ID),
		HTMLBody: fmt.Sprintf(
			"Hi %s,<br/>Your order with Id %d for Rs %.2f/- is cancelled because the payment "+
				"is not completed. You can try to place the order after sometime.",
			order.CustomerName, order.ID, order.Amount),
	}
	if err := a.Mail.Send(ctx, m); err != nil {
		return MailResult{Sent: false, Reason: err.Error()}, nil
	}
	return MailResult{Sent: true}, nil
}

// toOrderID accepts the integer shapes an order id can take after a trip
// through history serialization.
func toOrderID(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
