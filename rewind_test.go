package rewind_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/rewind"
	"github.com/petrijr/rewind/orderflow"
	"github.com/petrijr/rewind/pkg/api"
)

// fakePayments answers payment lookups from a map; missing ids behave like
// a missing payment record.
type fakePayments struct {
	mu       sync.Mutex
	statuses map[int]string
	err      error
	calls    int
}

func (f *fakePayments) PaymentStatus(ctx context.Context, orderID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	status, ok := f.statuses[orderID]
	if !ok {
		return "", orderflow.ErrNoPayment
	}
	return status, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakeQueue) Publish(ctx context.Context, destination, msgID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, destination+"/"+msgID)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []orderflow.Mail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, m orderflow.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func testOrder() orderflow.Order {
	return orderflow.Order{
		ID:           1001,
		CustomerName: "Ann",
		Amount:       499.0,
		OrderDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DeliveryDate: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Email:        "ann@x.com",
	}
}

// newOrderRunner wires an in-memory engine with the order workflow and the
// given fakes, registering activities without retry backoff so failure
// tests stay fast.
func newOrderRunner(t *testing.T, acts *orderflow.Activities) *rewind.Runner {
	t.Helper()

	runner := rewind.NewInMemoryRunner()
	eng := runner.Engine

	if err := eng.RegisterWorkflow(rewind.WorkflowDefinition{
		Name:         orderflow.WorkflowName,
		Orchestrator: orderflow.Orchestrator,
	}); err != nil {
		t.Fatalf("register workflow: %v", err)
	}
	for _, def := range []rewind.ActivityDefinition{
		{Name: orderflow.ActivityCheckPaymentStatus, Fn: acts.CheckPaymentStatus},
		{Name: orderflow.ActivitySendOrderToVendorQueue, Fn: acts.SendOrderToVendorQueue},
		{Name: orderflow.ActivitySendConfirmationMail, Fn: acts.SendConfirmationMail},
		{Name: orderflow.ActivitySendCancellationMail, Fn: acts.SendCancellationMail},
	} {
		if err := eng.RegisterActivity(def); err != nil {
			t.Fatalf("register activity %s: %v", def.Name, err)
		}
	}
	return runner
}

// drain processes queued activity tasks until none remain. Everything runs
// on the test goroutine, so execution order is deterministic.
func drain(t *testing.T, runner *rewind.Runner) {
	t.Helper()
	ctx := context.Background()
	for i := 0; runner.QueueLen() > 0; i++ {
		if i > 100 {
			t.Fatalf("task queue did not drain")
		}
		if _, err := runner.Worker.ProcessOne(ctx); err != nil {
			t.Fatalf("process task: %v", err)
		}
	}
}

func eventTypes(events []rewind.HistoryEvent) []rewind.EventType {
	out := make([]rewind.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestOrderFulfillment_Confirmed(t *testing.T) {
	ctx := context.Background()
	payments := &fakePayments{statuses: map[int]string{1001: "Completed"}}
	queue := &fakeQueue{}
	mailer := &fakeMailer{}
	acts := &orderflow.Activities{
		Payments: payments, Queue: queue, Mail: mailer,
		SenderAddress: "orders@example.com", SenderName: "Order Desk",
	}
	runner := newOrderRunner(t, acts)

	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)

	report, err := rewind.GetStatus(ctx, runner.Engine, inst.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Status != rewind.StatusCompleted {
		t.Fatalf("status = %s, want %s", report.Status, rewind.StatusCompleted)
	}
	if report.Output != orderflow.OutputConfirmed {
		t.Fatalf("output = %v, want %q", report.Output, orderflow.OutputConfirmed)
	}

	history, err := runner.Engine.GetHistory(ctx, inst.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// Started, then a scheduled/completed pair per activity, then terminal.
	want := []rewind.EventType{
		rewind.EventOrchestratorStarted,
		rewind.EventActivityScheduled, rewind.EventActivityCompleted,
		rewind.EventActivityScheduled, rewind.EventActivityCompleted,
		rewind.EventActivityScheduled, rewind.EventActivityCompleted,
		rewind.EventOrchestratorCompleted,
	}
	got := eventTypes(history)
	if len(got) != len(want) {
		t.Fatalf("history types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// The two downstream calls must appear in order, after the payment check.
	var activityOrder []string
	for _, ev := range history {
		if ev.Type == rewind.EventActivityScheduled {
			activityOrder = append(activityOrder, ev.Activity)
		}
	}
	wantActivities := []string{
		orderflow.ActivityCheckPaymentStatus,
		orderflow.ActivitySendOrderToVendorQueue,
		orderflow.ActivitySendConfirmationMail,
	}
	for i := range wantActivities {
		if activityOrder[i] != wantActivities[i] {
			t.Fatalf("activity order = %v, want %v", activityOrder, wantActivities)
		}
	}

	if len(queue.published) != 1 || queue.published[0] != "vendor-orders/1001" {
		t.Fatalf("published = %v", queue.published)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].ToAddress != "ann@x.com" {
		t.Fatalf("mail sent = %+v", mailer.sent)
	}
}

func TestOrderFulfillment_Cancelled(t *testing.T) {
	ctx := context.Background()
	payments := &fakePayments{statuses: map[int]string{}} // no payment record
	queue := &fakeQueue{}
	mailer := &fakeMailer{}
	acts := &orderflow.Activities{
		Payments: payments, Queue: queue, Mail: mailer,
		SenderAddress: "orders@example.com",
	}
	runner := newOrderRunner(t, acts)

	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)

	report, _ := rewind.GetStatus(ctx, runner.Engine, inst.ID)
	if report.Status != rewind.StatusCompleted || report.Output != orderflow.OutputCancelled {
		t.Fatalf("report = %+v", report)
	}

	history, _ := runner.Engine.GetHistory(ctx, inst.ID)
	if len(history) != 6 {
		t.Fatalf("history length = %d, want 6: %v", len(history), eventTypes(history))
	}

	// The only downstream call is the cancellation mail.
	var downstream []string
	for _, ev := range history {
		if ev.Type == rewind.EventActivityScheduled && ev.Activity != orderflow.ActivityCheckPaymentStatus {
			downstream = append(downstream, ev.Activity)
		}
	}
	if len(downstream) != 1 || downstream[0] != orderflow.ActivitySendCancellationMail {
		t.Fatalf("downstream activities = %v", downstream)
	}
	if len(queue.published) != 0 {
		t.Fatalf("cancelled order must not reach the vendor queue: %v", queue.published)
	}
}

func TestMailFailureDoesNotChangeOutcome(t *testing.T) {
	ctx := context.Background()
	payments := &fakePayments{statuses: map[int]string{1001: "Completed"}}
	mailer := &fakeMailer{err: errors.New("provider down")}
	acts := &orderflow.Activities{
		Payments: payments, Queue: &fakeQueue{}, Mail: mailer,
		SenderAddress: "orders@example.com",
	}
	runner := newOrderRunner(t, acts)

	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)

	report, _ := rewind.GetStatus(ctx, runner.Engine, inst.ID)
	if report.Status != rewind.StatusCompleted || report.Output != orderflow.OutputConfirmed {
		t.Fatalf("report = %+v, want confirmed despite mail failure", report)
	}

	// The mail fault is recorded as an explicit result, not an activity
	// failure.
	history, _ := runner.Engine.GetHistory(ctx, inst.ID)
	found := false
	for _, ev := range history {
		if ev.Type == rewind.EventActivityCompleted && ev.Activity == orderflow.ActivitySendConfirmationMail {
			res, ok := ev.Result.(orderflow.MailResult)
			if !ok || res.Sent {
				t.Fatalf("confirmation mail result = %+v", ev.Result)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("no confirmation mail result in history")
	}
}

func TestPaymentCheckFailureFailsWorkflow(t *testing.T) {
	ctx := context.Background()
	payments := &fakePayments{err: errors.New("db unreachable")}
	acts := &orderflow.Activities{
		Payments: payments, Queue: &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)

	report, _ := rewind.GetStatus(ctx, runner.Engine, inst.ID)
	if report.Status != rewind.StatusFailed {
		t.Fatalf("status = %s, want FAILED", report.Status)
	}
	if report.Output != nil {
		t.Fatalf("failed workflow must have no output, got %v", report.Output)
	}
}

func TestResumeAfterCompletionIsNoop(t *testing.T) {
	ctx := context.Background()
	acts := &orderflow.Activities{
		Payments: &fakePayments{statuses: map[int]string{1001: "Completed"}},
		Queue:    &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)

	before, _ := runner.Engine.GetHistory(ctx, inst.ID)

	for i := 0; i < 2; i++ {
		resumed, err := rewind.Resume(ctx, runner.Engine, inst.ID)
		if err != nil {
			t.Fatalf("resume #%d: %v", i+1, err)
		}
		if resumed.Status != rewind.StatusCompleted || resumed.Output != orderflow.OutputConfirmed {
			t.Fatalf("resume #%d: %+v", i+1, resumed)
		}
	}

	after, _ := runner.Engine.GetHistory(ctx, inst.ID)
	if len(after) != len(before) {
		t.Fatalf("resume appended events: %d -> %d", len(before), len(after))
	}
	if runner.QueueLen() != 0 {
		t.Fatalf("resume dispatched tasks on a completed instance")
	}
}

func TestSuspendedResumeIsDeterministicAndDispatchesOnce(t *testing.T) {
	ctx := context.Background()
	acts := &orderflow.Activities{
		Payments: &fakePayments{statuses: map[int]string{1001: "Completed"}},
		Queue:    &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	// Do not drain: the instance stays suspended awaiting the payment check.
	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if inst.Status != rewind.StatusRunning {
		t.Fatalf("status = %s, want RUNNING", inst.Status)
	}

	before, _ := runner.Engine.GetHistory(ctx, inst.ID)

	// Replaying a suspended instance must make identical decisions every
	// time: no new events, and no duplicate dispatch of seq 0.
	for i := 0; i < 3; i++ {
		if _, err := rewind.Resume(ctx, runner.Engine, inst.ID); err != nil {
			t.Fatalf("resume #%d: %v", i+1, err)
		}
	}

	after, _ := runner.Engine.GetHistory(ctx, inst.ID)
	if len(after) != len(before) {
		t.Fatalf("replay appended events: %d -> %d", len(before), len(after))
	}
	if runner.QueueLen() != 1 {
		t.Fatalf("queue length = %d, want 1 (single dispatch)", runner.QueueLen())
	}

	drain(t, runner)
	report, _ := rewind.GetStatus(ctx, runner.Engine, inst.ID)
	if report.Output != orderflow.OutputConfirmed {
		t.Fatalf("output = %v", report.Output)
	}
}

func TestIndependentInstances(t *testing.T) {
	ctx := context.Background()
	acts := &orderflow.Activities{
		Payments: &fakePayments{statuses: map[int]string{1001: "Completed"}},
		Queue:    &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	orderA := testOrder()
	orderB := testOrder()
	orderB.ID = 2002 // no payment record: cancellation branch

	instA, err := rewind.StartWithID(ctx, runner.Engine, "a", orderflow.WorkflowName, orderA)
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	instB, err := rewind.StartWithID(ctx, runner.Engine, "b", orderflow.WorkflowName, orderB)
	if err != nil {
		t.Fatalf("start b: %v", err)
	}
	drain(t, runner)

	reportA, _ := rewind.GetStatus(ctx, runner.Engine, instA.ID)
	reportB, _ := rewind.GetStatus(ctx, runner.Engine, instB.ID)
	if reportA.Output != orderflow.OutputConfirmed {
		t.Fatalf("instance a output = %v", reportA.Output)
	}
	if reportB.Output != orderflow.OutputCancelled {
		t.Fatalf("instance b output = %v", reportB.Output)
	}

	// Histories never interleave: every event in a history belongs to that
	// instance's own order.
	histA, _ := runner.Engine.GetHistory(ctx, instA.ID)
	for _, ev := range histA {
		if o, ok := ev.Input.(orderflow.Order); ok && o.ID != orderA.ID {
			t.Fatalf("instance a history holds order %d", o.ID)
		}
	}
	if len(histA) != 8 {
		t.Fatalf("instance a history length = %d, want 8", len(histA))
	}
}

func TestTerminateIgnoresLateResults(t *testing.T) {
	ctx := context.Background()
	acts := &orderflow.Activities{
		Payments: &fakePayments{statuses: map[int]string{1001: "Completed"}},
		Queue:    &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Terminate while the payment check is still queued.
	if _, err := rewind.Terminate(ctx, runner.Engine, inst.ID, "customer gave up"); err != nil {
		t.Fatalf("terminate: %v", err)
	}

	// The in-flight dispatch is not cancelled; its result must be dropped.
	drain(t, runner)

	report, _ := rewind.GetStatus(ctx, runner.Engine, inst.ID)
	if report.Status != rewind.StatusTerminated {
		t.Fatalf("status = %s, want TERMINATED", report.Status)
	}
	history, _ := runner.Engine.GetHistory(ctx, inst.ID)
	for _, ev := range history {
		if ev.Type == rewind.EventActivityCompleted || ev.Type == rewind.EventActivityFailed {
			t.Fatalf("late activity result recorded after termination: %+v", ev)
		}
	}
}

func TestDuplicateInstanceID(t *testing.T) {
	ctx := context.Background()
	acts := &orderflow.Activities{
		Payments: &fakePayments{statuses: map[int]string{1001: "Completed"}},
		Queue:    &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	if _, err := rewind.StartWithID(ctx, runner.Engine, "dup", orderflow.WorkflowName, testOrder()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := rewind.StartWithID(ctx, runner.Engine, "dup", orderflow.WorkflowName, testOrder()); !errors.Is(err, rewind.ErrInstanceExists) {
		t.Fatalf("second start with same id: got %v, want ErrInstanceExists", err)
	}
}

func TestUnknownInstanceSentinel(t *testing.T) {
	ctx := context.Background()
	runner := newOrderRunner(t, &orderflow.Activities{
		Payments: &fakePayments{}, Queue: &fakeQueue{}, Mail: &fakeMailer{},
	})

	if _, err := rewind.GetStatus(ctx, runner.Engine, "missing"); !errors.Is(err, rewind.ErrInstanceNotFound) {
		t.Fatalf("GetStatus: got %v, want ErrInstanceNotFound", err)
	}
	if _, err := rewind.GetInstance(ctx, runner.Engine, "missing"); !errors.Is(err, rewind.ErrInstanceNotFound) {
		t.Fatalf("GetInstance: got %v, want ErrInstanceNotFound", err)
	}
	if _, err := rewind.Terminate(ctx, runner.Engine, "missing", "test"); !errors.Is(err, rewind.ErrInstanceNotFound) {
		t.Fatalf("Terminate: got %v, want ErrInstanceNotFound", err)
	}
}

func TestTransientRetryEventuallySucceeds(t *testing.T) {
	ctx := context.Background()

	var calls int
	flaky := func(ctx context.Context, input any) (any, error) {
		calls++
		if calls < 3 {
			return nil, rewind.Transient(fmt.Errorf("attempt %d", calls))
		}
		return "done", nil
	}

	runner := rewind.NewInMemoryRunner()
	eng := runner.Engine
	if err := eng.RegisterActivity(rewind.ActivityDefinition{
		Name: "Flaky", Fn: flaky,
		Retry: &rewind.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond},
	}); err != nil {
		t.Fatalf("register activity: %v", err)
	}
	if err := eng.RegisterWorkflow(rewind.WorkflowDefinition{
		Name: "FlakyFlow",
		Orchestrator: func(octx *rewind.OrchestrationContext, input any) (any, error) {
			return octx.CallActivity("Flaky", input)
		},
	}); err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	inst, err := rewind.Start(ctx, eng, "FlakyFlow", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)

	report, _ := rewind.GetStatus(ctx, eng, inst.ID)
	if report.Status != rewind.StatusCompleted || report.Output != "done" {
		t.Fatalf("report = %+v", report)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}

	// Retries happen inside one invocation: exactly one result event.
	history, _ := eng.GetHistory(ctx, inst.ID)
	results := 0
	for _, ev := range history {
		if ev.Type == rewind.EventActivityCompleted {
			results++
		}
	}
	if results != 1 {
		t.Fatalf("result events = %d, want 1", results)
	}
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()

	var calls int
	broken := func(ctx context.Context, input any) (any, error) {
		calls++
		return nil, rewind.Permanent(errors.New("malformed input"))
	}

	runner := rewind.NewInMemoryRunner()
	eng := runner.Engine
	if err := eng.RegisterActivity(rewind.ActivityDefinition{
		Name: "Broken", Fn: broken,
		Retry: &rewind.RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond},
	}); err != nil {
		t.Fatalf("register activity: %v", err)
	}
	if err := eng.RegisterWorkflow(rewind.WorkflowDefinition{
		Name: "BrokenFlow",
		Orchestrator: func(octx *rewind.OrchestrationContext, input any) (any, error) {
			return octx.CallActivity("Broken", input)
		},
	}); err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	inst, err := rewind.Start(ctx, eng, "BrokenFlow", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries)", calls)
	}
	report, _ := rewind.GetStatus(ctx, eng, inst.ID)
	if report.Status != rewind.StatusFailed {
		t.Fatalf("status = %s, want FAILED", report.Status)
	}
}

func TestNonDeterministicOrchestratorIsFatal(t *testing.T) {
	ctx := context.Background()

	activityName := "First"
	noop := func(ctx context.Context, input any) (any, error) { return "ok", nil }

	runner := rewind.NewInMemoryRunner()
	eng := runner.Engine
	for _, name := range []string{"First", "Second"} {
		if err := eng.RegisterActivity(rewind.ActivityDefinition{Name: name, Fn: noop}); err != nil {
			t.Fatalf("register activity: %v", err)
		}
	}
	if err := eng.RegisterWorkflow(rewind.WorkflowDefinition{
		Name: "Shifty",
		Orchestrator: func(octx *rewind.OrchestrationContext, input any) (any, error) {
			// Reads mutable package state: exactly the non-determinism the
			// engine must detect.
			return octx.CallActivity(activityName, input)
		},
	}); err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	inst, err := rewind.Start(ctx, eng, "Shifty", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Change behavior between scheduling and replay.
	activityName = "Second"
	drain(t, runner)

	report, _ := rewind.GetStatus(ctx, eng, inst.ID)
	if report.Status != rewind.StatusFailed {
		t.Fatalf("status = %s, want FAILED", report.Status)
	}

	// Failed permanently: further resumes do not revive it.
	resumed, err := rewind.Resume(ctx, eng, inst.ID)
	if err != nil {
		t.Fatalf("resume after failure: %v", err)
	}
	if resumed.Status != rewind.StatusFailed {
		t.Fatalf("resume revived a non-deterministic instance: %s", resumed.Status)
	}
}

func TestRecoverPendingInstances(t *testing.T) {
	ctx := context.Background()
	acts := &orderflow.Activities{
		Payments: &fakePayments{statuses: map[int]string{1001: "Completed"}},
		Queue:    &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	inst, err := rewind.Start(ctx, runner.Engine, orderflow.WorkflowName, testOrder())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	count, err := rewind.RecoverPendingInstances(ctx, runner.Engine)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if count != 1 {
		t.Fatalf("recovered = %d, want 1", count)
	}

	drain(t, runner)
	report, _ := rewind.GetStatus(ctx, runner.Engine, inst.ID)
	if report.Status != rewind.StatusCompleted {
		t.Fatalf("status after recovery = %s", report.Status)
	}
}

func TestListInstancesFilter(t *testing.T) {
	ctx := context.Background()
	acts := &orderflow.Activities{
		Payments: &fakePayments{statuses: map[int]string{1001: "Completed"}},
		Queue:    &fakeQueue{}, Mail: &fakeMailer{},
	}
	runner := newOrderRunner(t, acts)

	if _, err := rewind.StartWithID(ctx, runner.Engine, "done", orderflow.WorkflowName, testOrder()); err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, runner)
	if _, err := rewind.StartWithID(ctx, runner.Engine, "pending", orderflow.WorkflowName, testOrder()); err != nil {
		t.Fatalf("start: %v", err)
	}

	completed, err := rewind.ListInstances(ctx, runner.Engine, rewind.InstanceListOptions{Status: rewind.StatusCompleted})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != "done" {
		t.Fatalf("completed list = %+v", completed)
	}

	running, err := rewind.ListInstances(ctx, runner.Engine, rewind.InstanceListOptions{Status: rewind.StatusRunning})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(running) != 1 || running[0].ID != "pending" {
		t.Fatalf("running list = %+v", running)
	}
}

// Keep the api package honest about await detection: a suspension error is
// not an activity failure and vice versa.
func TestErrorTaxonomyHelpers(t *testing.T) {
	await := &api.AwaitError{Activity: "X", Seq: 0}
	if !rewind.IsAwaitError(await) {
		t.Fatalf("await not detected")
	}
	actErr := &api.ActivityError{Activity: "X", Seq: 0, Reason: "boom"}
	if rewind.IsAwaitError(actErr) {
		t.Fatalf("activity error misdetected as await")
	}
	if !rewind.IsPermanent(rewind.Permanent(errors.New("x"))) {
		t.Fatalf("permanent not detected")
	}
	if rewind.IsPermanent(rewind.Transient(errors.New("x"))) {
		t.Fatalf("transient misdetected as permanent")
	}
}
