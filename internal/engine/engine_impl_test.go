package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/rewind/internal/persistence"
	"github.com/petrijr/rewind/internal/taskqueue"
	"github.com/petrijr/rewind/pkg/api"
)

// outageStore fails the next Append once, simulating a store outage during
// result recording.
type outageStore struct {
	persistence.HistoryStore
	failNextAppend bool
}

func (s *outageStore) Append(ctx context.Context, instanceID string, expectedVersion int, events []api.HistoryEvent) error {
	if s.failNextAppend {
		s.failNextAppend = false
		return errors.New("store unavailable")
	}
	return s.HistoryStore.Append(ctx, instanceID, expectedVersion, events)
}

func newOutageTestEngine(t *testing.T, store *outageStore, queue taskqueue.Queue) api.Engine {
	t.Helper()

	eng := NewEngineWithConfig(Config{Store: store, Queue: queue})
	err := eng.RegisterActivity(api.ActivityDefinition{
		Name: "Work",
		Fn: func(ctx context.Context, input any) (any, error) {
			return "done", nil
		},
	})
	if err != nil {
		t.Fatalf("register activity: %v", err)
	}
	err = eng.RegisterWorkflow(api.WorkflowDefinition{
		Name: "WorkFlow",
		Orchestrator: func(octx *api.OrchestrationContext, input any) (any, error) {
			return octx.CallActivity("Work", input)
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}
	return eng
}

func dequeueTask(t *testing.T, queue taskqueue.Queue) *taskqueue.Task {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	return task
}

// A failed result append must not strand the instance: the consumed task is
// gone from the queue, so a later Resume has to re-dispatch the
// still-unresolved call.
func TestResultStoreOutageAllowsRedispatch(t *testing.T) {
	store := &outageStore{HistoryStore: persistence.NewInMemoryStore()}
	queue := taskqueue.NewInMemoryQueue(8)
	eng := newOutageTestEngine(t, store, queue)
	ctx := context.Background()

	if _, err := eng.CreateInstance(ctx, "inst-1", "WorkFlow", nil); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	task := dequeueTask(t, queue)

	store.failNextAppend = true
	if err := eng.RunActivity(ctx, task.InstanceID, task.Seq, task.Activity, task.Input); err == nil {
		t.Fatalf("expected store outage error from RunActivity")
	}
	if queue.Len() != 0 {
		t.Fatalf("queue length after outage = %d, want 0", queue.Len())
	}

	if _, err := eng.Resume(ctx, "inst-1"); err != nil {
		t.Fatalf("resume after outage: %v", err)
	}
	if queue.Len() != 1 {
		t.Fatalf("after recovery, queue length = %d, want 1 (seq %d re-dispatched)", queue.Len(), task.Seq)
	}

	redelivered := dequeueTask(t, queue)
	if redelivered.Seq != task.Seq || redelivered.Activity != task.Activity {
		t.Fatalf("re-dispatched task = %+v, want seq %d activity %q", redelivered, task.Seq, task.Activity)
	}
	if err := eng.RunActivity(ctx, redelivered.InstanceID, redelivered.Seq, redelivered.Activity, redelivered.Input); err != nil {
		t.Fatalf("run activity after recovery: %v", err)
	}

	report, err := eng.GetStatus(ctx, "inst-1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if report.Status != api.StatusCompleted || report.Output != "done" {
		t.Fatalf("report = %+v", report)
	}
}
