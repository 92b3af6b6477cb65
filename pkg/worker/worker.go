package worker

import (
	"context"
	"errors"

	"github.com/petrijr/rewind/internal/taskqueue"
	"github.com/petrijr/rewind/pkg/api"
)

// Worker pulls dispatched activity tasks from a Queue and executes them
// through the Engine, which records the result event and resumes the
// instance. Run several workers against the same queue to execute
// activities concurrently.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
}

// New creates a new Worker.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return &Worker{
		engine: engine,
		queue:  queue,
	}
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (context cancelled).
//   - processed == true: a task was processed; err indicates whether the
//     engine accepted its result.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	err = w.engine.RunActivity(ctx, task.InstanceID, task.Seq, task.Activity, task.Input)
	return true, err
}

// Run processes tasks until ctx is cancelled. Task-level errors are
// delivered to onError (which may be nil) and do not stop the loop, so a
// single bad task cannot kill the worker.
func (w *Worker) Run(ctx context.Context, onError func(error)) {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if onError != nil {
				onError(err)
			}
			continue
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}
