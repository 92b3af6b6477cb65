package taskqueue

import "context"

const defaultCapacity = 1024

// InMemoryQueue hands dispatched activity calls to workers over a buffered
// channel. Tasks do not survive a process restart; the engine's recovery
// path re-dispatches pending calls from history, which is what makes this
// queue safe for single-process deployments and tests.
type InMemoryQueue struct {
	tasks chan Task
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a queue holding up to capacity tasks; zero or
// negative means the default capacity.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemoryQueue{tasks: make(chan Task, capacity)}
}

// Enqueue blocks only when the buffer is full.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.tasks:
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.tasks)
}
