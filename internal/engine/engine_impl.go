package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/rewind/internal/persistence"
	"github.com/petrijr/rewind/internal/taskqueue"
	"github.com/petrijr/rewind/pkg/api"
)

// maxConflictRetries bounds the reload-and-retry loop on history version
// conflicts. With the per-instance lock held, conflicts only occur when the
// store is shared with another process.
const maxConflictRetries = 3

// engineImpl drives orchestrations by deterministic replay: every Resume
// re-executes the orchestrator from the beginning against recorded history,
// appends whatever new events the replay decided, and dispatches newly
// scheduled activities to the task queue.
type engineImpl struct {
	store    persistence.HistoryStore
	queue    taskqueue.Queue
	registry *registry
	observer api.Observer

	// locks serializes Resume/result handling per instance
	// (single-writer-per-instance discipline).
	locks sync.Map // instanceID -> *sync.Mutex

	// inflight tracks dispatched-but-unresolved activity calls so a
	// suspension replay does not dispatch the same sequence number twice.
	// It is process-local: after a crash the set is empty and pending
	// calls are re-dispatched, which is why activities must tolerate
	// redelivery.
	inflightMu sync.Mutex
	inflight   map[string]map[int]struct{}
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the constructors in
// the root rewind package.
type Config struct {
	Store    persistence.HistoryStore
	Queue    taskqueue.Queue
	Observer api.Observer
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	queue := cfg.Queue
	if queue == nil {
		queue = taskqueue.NewInMemoryQueue(0)
	}
	return &engineImpl{
		store:    cfg.Store,
		queue:    queue,
		registry: newRegistry(),
		observer: obs,
		inflight: make(map[string]map[int]struct{}),
	}
}

// Queue exposes the task queue the engine dispatches to; workers consume it.
func Queue(eng api.Engine) taskqueue.Queue {
	return eng.(*engineImpl).queue
}

func (e *engineImpl) RegisterWorkflow(def api.WorkflowDefinition) error {
	return e.registry.RegisterWorkflow(def)
}

func (e *engineImpl) RegisterActivity(def api.ActivityDefinition) error {
	return e.registry.RegisterActivity(def)
}

func (e *engineImpl) CreateInstance(ctx context.Context, id, workflow string, input any) (*api.Instance, error) {
	if _, err := e.registry.Workflow(workflow); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	rec := persistence.InstanceRecord{
		ID:        id,
		Workflow:  workflow,
		Input:     input,
		CreatedAt: time.Now(),
		Status:    api.StatusRunning,
	}
	if err := e.store.CreateInstance(ctx, rec); err != nil {
		if errors.Is(err, persistence.ErrInstanceExists) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceExists, id)
		}
		return nil, err
	}

	e.observer.OnInstanceStarted(ctx, &api.Instance{ID: id, Workflow: workflow, Status: api.StatusRunning, Input: input})

	return e.Resume(ctx, id)
}

func (e *engineImpl) Resume(ctx context.Context, id string) (*api.Instance, error) {
	mu := e.instanceLock(id)
	mu.Lock()
	defer mu.Unlock()

	return e.resumeLocked(ctx, id)
}

// resumeLocked runs the replay cycle, reloading and retrying on history
// version conflicts. The per-instance lock must be held.
func (e *engineImpl) resumeLocked(ctx context.Context, id string) (*api.Instance, error) {
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		inst, err := e.replayOnce(ctx, id)
		if errors.Is(err, persistence.ErrHistoryConflict) {
			lastErr = err
			continue
		}
		return inst, err
	}
	return nil, lastErr
}

// replayOnce performs one replay-then-extend cycle: load history, re-run the
// orchestrator in-memory against it, append the events the replay decided,
// and dispatch pending activities.
func (e *engineImpl) replayOnce(ctx context.Context, id string) (*api.Instance, error) {
	rec, err := e.store.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		}
		return nil, err
	}

	history, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Resuming a finished instance is a no-op: nothing is appended and the
	// recorded outcome is returned.
	if report := api.DeriveStatus(history); report.Status.Terminal() {
		return buildInstance(rec, history, report), nil
	}

	def, err := e.registry.Workflow(rec.Workflow)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", id, err)
	}

	octx := api.NewOrchestrationContext(id, history)
	output, runErr := def.Orchestrator(octx, rec.Input)

	var newEvents []api.HistoryEvent
	if len(history) == 0 {
		newEvents = append(newEvents, api.NewOrchestratorStarted(rec.Input))
	}
	newEvents = append(newEvents, octx.Decisions()...)

	var resultErr error
	switch {
	case octx.NonDeterminism() != nil:
		// Replay diverged from recorded history. The decisions made after
		// the divergence are meaningless, so only the failure is recorded.
		nd := octx.NonDeterminism()
		newEvents = []api.HistoryEvent{api.NewOrchestratorFailed(nd.Error())}
		resultErr = nd
	case runErr != nil && api.IsAwaitError(runErr):
		// Suspension point: the instance parks until an activity result
		// arrives. Not a failure.
	case runErr != nil:
		newEvents = append(newEvents, api.NewOrchestratorFailed(runErr.Error()))
		resultErr = runErr
	default:
		newEvents = append(newEvents, api.NewOrchestratorCompleted(output))
	}

	if len(newEvents) > 0 {
		if err := e.store.Append(ctx, id, len(history), newEvents); err != nil {
			return nil, err
		}
	}

	history = append(history, newEvents...)
	report := api.DeriveStatus(history)
	inst := buildInstance(rec, history, report)

	switch report.Status {
	case api.StatusCompleted:
		e.observer.OnInstanceCompleted(ctx, inst)
	case api.StatusFailed:
		e.observer.OnInstanceFailed(ctx, inst, resultErr)
	case api.StatusRunning:
		// Scheduled events are durable; now dispatch whatever is pending
		// and not already in flight.
		if err := e.dispatchPending(ctx, inst, octx.PendingActivities()); err != nil {
			return inst, err
		}
	}

	return inst, resultErr
}

// dispatchPending enqueues every scheduled-but-unresolved activity call that
// is not tracked as in-flight. At most one dispatch happens per sequence
// number per scheduled-but-unresolved transition; a crash wipes the tracking
// set, so redelivery after restart is possible and downstream effects must
// be idempotent.
func (e *engineImpl) dispatchPending(ctx context.Context, inst *api.Instance, pending []api.HistoryEvent) error {
	for _, ev := range pending {
		if !e.markInflight(inst.ID, ev.Seq) {
			continue
		}
		task := taskqueue.Task{
			InstanceID: inst.ID,
			Seq:        ev.Seq,
			Activity:   ev.Activity,
			Input:      ev.Input,
			EnqueuedAt: time.Now(),
		}
		if err := e.queue.Enqueue(ctx, task); err != nil {
			e.unmarkInflight(inst.ID, ev.Seq)
			return err
		}
		e.observer.OnActivityScheduled(ctx, inst, ev.Activity, ev.Seq)
	}
	return nil
}

func (e *engineImpl) RunActivity(ctx context.Context, instanceID string, seq int, name string, input any) error {
	inst := &api.Instance{ID: instanceID}

	def, err := e.registry.Activity(name)
	if err != nil {
		// Dispatch of an unregistered name is a configuration error, never
		// retried.
		err = api.Permanent(err)
		e.observer.OnActivityCompleted(ctx, inst, name, seq, err, 0)
		return e.recordAndContinue(ctx, instanceID, seq, name, nil, err)
	}

	start := time.Now()
	result, invokeErr := e.invokeWithRetry(ctx, def, input)
	e.observer.OnActivityCompleted(ctx, inst, name, seq, invokeErr, time.Since(start))

	return e.recordAndContinue(ctx, instanceID, seq, name, result, invokeErr)
}

// invokeWithRetry runs the activity handler, retrying transient failures
// according to the definition's retry policy with exponential backoff.
func (e *engineImpl) invokeWithRetry(ctx context.Context, def api.ActivityDefinition, input any) (any, error) {
	maxAttempts := 1
	var (
		backoff    time.Duration
		maxBackoff time.Duration
		multiplier float64
	)
	if def.Retry != nil {
		if def.Retry.MaxAttempts > 0 {
			maxAttempts = def.Retry.MaxAttempts
		}
		backoff = def.Retry.InitialBackoff
		maxBackoff = def.Retry.MaxBackoff
		multiplier = def.Retry.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := def.Fn(ctx, input)
		if err == nil {
			return result, nil
		}
		if api.IsPermanent(err) {
			return nil, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		if backoff > 0 {
			delay := backoff
			if maxBackoff > 0 && delay > maxBackoff {
				delay = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			backoff = time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return nil, lastErr
}

// recordAndContinue appends the activity result event and resumes the
// orchestration. Late results for terminal instances and duplicate results
// for an already-resolved sequence number are dropped.
func (e *engineImpl) recordAndContinue(ctx context.Context, instanceID string, seq int, name string, result any, invokeErr error) error {
	// The in-flight mark must clear even when recording fails: the task was
	// already consumed from the queue, so a later Resume is the only path
	// that can re-dispatch the still-unresolved call.
	defer e.unmarkInflight(instanceID, seq)

	appended, err := e.recordResult(ctx, instanceID, seq, name, result, invokeErr)
	if err != nil {
		return err
	}
	if !appended {
		return nil
	}

	mu := e.instanceLock(instanceID)
	mu.Lock()
	defer mu.Unlock()
	_, err = e.resumeLocked(ctx, instanceID)
	if err != nil && !isOrchestrationOutcome(err) {
		return err
	}
	return nil
}

func (e *engineImpl) recordResult(ctx context.Context, instanceID string, seq int, name string, result any, invokeErr error) (bool, error) {
	mu := e.instanceLock(instanceID)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		history, err := e.store.Load(ctx, instanceID)
		if err != nil {
			if errors.Is(err, persistence.ErrInstanceNotFound) {
				return false, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, instanceID)
			}
			return false, err
		}

		// Results arriving after termination (or any terminal event) are
		// ignored, and a sequence number resolves at most once.
		if api.DeriveStatus(history).Status.Terminal() {
			return false, nil
		}
		scheduled := false
		for _, ev := range history {
			if ev.Seq != seq {
				continue
			}
			switch ev.Type {
			case api.EventActivityScheduled:
				scheduled = true
			case api.EventActivityCompleted, api.EventActivityFailed:
				return false, nil
			}
		}
		if !scheduled {
			return false, fmt.Errorf("instance %s: result for unscheduled seq %d", instanceID, seq)
		}

		var ev api.HistoryEvent
		if invokeErr != nil {
			ev = api.NewActivityFailed(seq, name, invokeErr.Error())
		} else {
			ev = api.NewActivityCompleted(seq, name, result)
		}

		err = e.store.Append(ctx, instanceID, len(history), []api.HistoryEvent{ev})
		if errors.Is(err, persistence.ErrHistoryConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, persistence.ErrHistoryConflict
}

func (e *engineImpl) Terminate(ctx context.Context, id, reason string) (*api.Instance, error) {
	mu := e.instanceLock(id)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		rec, err := e.store.GetInstance(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrInstanceNotFound) {
				return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
			}
			return nil, err
		}
		history, err := e.store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if report := api.DeriveStatus(history); report.Status.Terminal() {
			return buildInstance(rec, history, report), nil
		}

		ev := api.NewOrchestratorTerminated(reason)
		err = e.store.Append(ctx, id, len(history), []api.HistoryEvent{ev})
		if errors.Is(err, persistence.ErrHistoryConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		e.clearInflight(id)
		history = append(history, ev)
		inst := buildInstance(rec, history, api.DeriveStatus(history))
		e.observer.OnInstanceTerminated(ctx, inst, reason)
		return inst, nil
	}
	return nil, persistence.ErrHistoryConflict
}

func (e *engineImpl) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	rec, err := e.store.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		}
		return nil, err
	}
	history, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildInstance(rec, history, api.DeriveStatus(history)), nil
}

func (e *engineImpl) GetStatus(ctx context.Context, id string) (api.StatusReport, error) {
	history, err := e.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return api.StatusReport{}, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		}
		return api.StatusReport{}, err
	}
	return api.DeriveStatus(history), nil
}

func (e *engineImpl) GetHistory(ctx context.Context, id string) ([]api.HistoryEvent, error) {
	history, err := e.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrInstanceNotFound, id)
		}
		return nil, err
	}
	return history, nil
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.Instance, error) {
	records, err := e.store.ListInstances(ctx, persistence.InstanceFilter{
		Workflow: opts.Workflow,
		Status:   opts.Status,
	})
	if err != nil {
		return nil, err
	}

	instances := make([]*api.Instance, 0, len(records))
	for _, rec := range records {
		inst := &api.Instance{
			ID:        rec.ID,
			Workflow:  rec.Workflow,
			Status:    rec.Status,
			Input:     rec.Input,
			Output:    rec.Output,
			CreatedAt: rec.CreatedAt,
		}
		if rec.Detail != "" {
			inst.Err = errors.New(rec.Detail)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (e *engineImpl) RecoverPendingInstances(ctx context.Context) (int, error) {
	records, err := e.store.ListInstances(ctx, persistence.InstanceFilter{Status: api.StatusRunning})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range records {
		if _, err := e.Resume(ctx, rec.ID); err != nil && !isOrchestrationOutcome(err) {
			return count, fmt.Errorf("recover %s: %w", rec.ID, err)
		}
		count++
	}
	return count, nil
}

// isOrchestrationOutcome distinguishes "the workflow itself ended badly"
// from engine-level failures; recovery and result handling treat the former
// as handled (it is recorded in history).
func isOrchestrationOutcome(err error) bool {
	var nd *api.NonDeterminismError
	var ae *api.ActivityError
	return errors.As(err, &nd) || errors.As(err, &ae)
}

func (e *engineImpl) instanceLock(id string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (e *engineImpl) markInflight(id string, seq int) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	seqs := e.inflight[id]
	if seqs == nil {
		seqs = make(map[int]struct{})
		e.inflight[id] = seqs
	}
	if _, ok := seqs[seq]; ok {
		return false
	}
	seqs[seq] = struct{}{}
	return true
}

func (e *engineImpl) unmarkInflight(id string, seq int) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()

	if seqs := e.inflight[id]; seqs != nil {
		delete(seqs, seq)
		if len(seqs) == 0 {
			delete(e.inflight, id)
		}
	}
}

func (e *engineImpl) clearInflight(id string) {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	delete(e.inflight, id)
}

func buildInstance(rec persistence.InstanceRecord, history []api.HistoryEvent, report api.StatusReport) *api.Instance {
	inst := &api.Instance{
		ID:         rec.ID,
		Workflow:   rec.Workflow,
		Status:     report.Status,
		Input:      rec.Input,
		Output:     report.Output,
		CreatedAt:  rec.CreatedAt,
		HistoryLen: len(history),
	}
	if report.Error != "" {
		inst.Err = errors.New(report.Error)
	}
	return inst
}
