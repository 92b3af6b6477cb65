package taskqueue

import (
	"context"
	"time"
)

// Task is one dispatched activity invocation: the engine enqueues it after
// the activity.scheduled event is durably appended, and a worker executes
// it. InstanceID plus Seq identify the call; redelivery is tolerated because
// result events are de-duplicated per sequence number.
type Task struct {
	InstanceID string
	Seq        int
	Activity   string
	Input      any

	EnqueuedAt time.Time
	Attempts   int
}

// Queue is the async hand-off between the engine and activity workers.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for
	// cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
