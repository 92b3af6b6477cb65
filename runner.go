package rewind

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/rewind/internal/engine"
	"github.com/petrijr/rewind/internal/taskqueue"
	"github.com/petrijr/rewind/pkg/worker"
)

// Runner bundles an Engine with a pool of activity workers consuming the
// engine's task queue.
//
// Typical usage:
//
//	runner := rewind.NewInMemoryRunner()
//	// register workflows and activities on runner.Engine
//
//	_ = runner.StartWorkers(ctx, 2)
//	defer runner.Stop()
//
//	inst, err := rewind.Start(ctx, runner.Engine, "OrderFulfillment", order)
type Runner struct {
	// Engine is the orchestration engine driven by this runner.
	Engine Engine

	// Worker executes dispatched activity tasks against Engine.
	Worker *worker.Worker

	queue taskqueue.Queue

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRunner wraps an existing Engine with a worker pool over its task queue.
func NewRunner(eng Engine) *Runner {
	q := engine.Queue(eng)
	return &Runner{
		Engine: eng,
		Worker: worker.New(eng, q),
		queue:  q,
	}
}

// NewInMemoryRunner constructs a Runner backed by an in-memory engine.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewInMemoryRunner() *Runner {
	return NewRunner(NewInMemoryEngine())
}

// StartWorkers starts 'concurrency' worker goroutines that continuously
// process activity tasks until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *Runner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("rewind: Runner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			r.Worker.Run(ctx, func(err error) {
				// A single bad task must not kill the worker loop.
				log.Printf("rewind: activity worker error: %v", err)
			})
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// QueueLen reports the approximate number of pending activity tasks.
// Primarily useful in tests.
func (r *Runner) QueueLen() int {
	return r.queue.Len()
}
