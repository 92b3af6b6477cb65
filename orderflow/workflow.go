package orderflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/petrijr/rewind/pkg/api"
)

// Workflow and activity names. Activities are resolved by name through the
// engine registry at startup; these constants are the only place the names
// are spelled.
const (
	WorkflowName = "OrderFulfillment"

	ActivityCheckPaymentStatus     = "CheckPaymentStatus"
	ActivitySendOrderToVendorQueue = "SendOrderToVendorQueue"
	ActivitySendConfirmationMail   = "SendConfirmationMail"
	ActivitySendCancellationMail   = "SendCancellationMail"
)

// Outputs of the two terminal branches.
const (
	OutputConfirmed = "confirmed"
	OutputCancelled = "cancelled"
)

// Orchestrator is the order-fulfillment workflow:
//
//	CheckPaymentStatus(orderID)
//	  true  -> SendOrderToVendorQueue -> SendConfirmationMail -> "confirmed"
//	  false -> SendCancellationMail -> "cancelled"
//
// A failed CheckPaymentStatus fails the whole orchestration; there is no
// fallback. Once payment is verified true there is no compensation path:
// the workflow reaches "confirmed" regardless of how the downstream
// notification calls fare, and the mail activities' MailResult values are
// not branched on.
func Orchestrator(ctx *api.OrchestrationContext, input any) (any, error) {
	order, ok := input.(Order)
	if !ok {
		return nil, fmt.Errorf("orderflow: expected Order input, got %T", input)
	}

	paidRes, err := ctx.CallActivity(ActivityCheckPaymentStatus, order.ID)
	if err != nil {
		return nil, err
	}
	paid, _ := paidRes.(bool)

	if paid {
		if _, err := ctx.CallActivity(ActivitySendOrderToVendorQueue, order); err != nil && !isActivityFailure(err) {
			return nil, err
		}
		if _, err := ctx.CallActivity(ActivitySendConfirmationMail, order); err != nil && !isActivityFailure(err) {
			return nil, err
		}
		return OutputConfirmed, nil
	}

	if _, err := ctx.CallActivity(ActivitySendCancellationMail, order); err != nil && !isActivityFailure(err) {
		return nil, err
	}
	return OutputCancelled, nil
}

// isActivityFailure distinguishes a recorded downstream activity failure
// (which does not change the workflow outcome) from engine control errors
// (suspension, non-determinism) that must be handed back to the engine.
func isActivityFailure(err error) bool {
	var ae *api.ActivityError
	return errors.As(err, &ae)
}

// Register wires the workflow and its activities into the engine. All
// registration happens here so the activity names above resolve exactly
// once, at startup.
func (a *Activities) Register(eng api.Engine) error {
	if err := eng.RegisterWorkflow(api.WorkflowDefinition{
		Name:         WorkflowName,
		Orchestrator: Orchestrator,
	}); err != nil {
		return err
	}

	// The payment lookup and queue publish talk to flaky collaborators and
	// are worth retrying. Mail activities never fail (they catch provider
	// faults internally), so a policy there would be dead weight.
	lookupRetry := &api.RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}

	for _, def := range []api.ActivityDefinition{
		{Name: ActivityCheckPaymentStatus, Fn: a.CheckPaymentStatus, Retry: lookupRetry},
		{Name: ActivitySendOrderToVendorQueue, Fn: a.SendOrderToVendorQueue, Retry: lookupRetry},
		{Name: ActivitySendConfirmationMail, Fn: a.SendConfirmationMail},
		{Name: ActivitySendCancellationMail, Fn: a.SendCancellationMail},
	} {
		if err := eng.RegisterActivity(def); err != nil {
			return err
		}
	}
	return nil
}
