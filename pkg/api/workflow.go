package api

import (
	"context"
	"time"
)

// Status represents the lifecycle state of an orchestration instance.
type Status string

const (
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusTerminated Status = "TERMINATED"
)

// Terminal reports whether s is a final status. A terminal instance never
// accepts new history events.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// OrchestratorFunc is the orchestration logic of a workflow.
//
// It must be deterministic: given the same input and the same sequence of
// recorded activity results, it must request the same activities in the same
// order and take the same branches. Wall-clock time, random values and any
// other ambient state must be routed through an activity, never read
// directly. Non-deterministic orchestrators corrupt replay and are marked
// failed by the engine.
//
// Errors returned by ctx.CallActivity must be propagated unless the caller
// explicitly inspects them with errors.As; an *AwaitError tells the engine
// to park the instance until the activity result arrives.
type OrchestratorFunc func(ctx *OrchestrationContext, input any) (any, error)

// ActivityFunc is a single named, side-effecting operation. Activities are
// stateless between invocations; retry and idempotency bookkeeping belongs
// to the engine, not the activity.
type ActivityFunc func(ctx context.Context, input any) (any, error)

// WorkflowDefinition binds an orchestrator function to a workflow type name.
type WorkflowDefinition struct {
	Name         string
	Orchestrator OrchestratorFunc
}

// ActivityDefinition binds a handler to an activity name, with an optional
// retry policy applied by workers on transient failures.
type ActivityDefinition struct {
	Name  string
	Fn    ActivityFunc
	Retry *RetryPolicy
}

// RetryPolicy controls how an activity invocation is retried when it returns
// a transient error. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the second attempt; it grows by
// BackoffMultiplier (default 2.0) per attempt, capped at MaxBackoff.
// Permanent errors are never retried regardless of policy.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Instance is one running (or finished) execution of a workflow definition
// for one input. It is mutated only by appending history events; Status and
// Output are projections of that history.
type Instance struct {
	ID        string
	Workflow  string
	Status    Status
	Input     any
	Output    any
	Err       error
	CreatedAt time.Time

	// HistoryLen is the number of history events at the time the instance
	// was loaded. It doubles as the optimistic-concurrency version for
	// appends.
	HistoryLen int
}

// StatusReport is the read-only answer of the status query service.
// Output is non-nil only for completed instances.
type StatusReport struct {
	Status Status `json:"status"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// Workflow, if non-empty, limits results to instances of the given
	// workflow type.
	Workflow string

	// Status, if non-empty, limits results to instances with the given
	// status.
	Status Status
}

// Engine is the durable orchestration engine API.
type Engine interface {
	// RegisterWorkflow registers an orchestrator by workflow type name.
	RegisterWorkflow(def WorkflowDefinition) error

	// RegisterActivity registers an activity handler by name. Dispatching
	// an unregistered name is a permanent activity failure, so all
	// registration should happen at startup.
	RegisterActivity(def ActivityDefinition) error

	// CreateInstance creates a new orchestration instance for the given
	// workflow type and input and drives it to its first suspension point.
	// If id is empty a fresh one is generated. Creating an instance with
	// an id that already exists returns ErrInstanceExists.
	CreateInstance(ctx context.Context, id, workflow string, input any) (*Instance, error)

	// Resume loads the instance's history and replays the orchestrator
	// against it, dispatching any newly scheduled activities. Resuming a
	// terminal instance appends nothing and returns the recorded outcome.
	Resume(ctx context.Context, id string) (*Instance, error)

	// RunActivity executes one dispatched activity invocation: it invokes
	// the registered handler (honoring its retry policy), records the
	// result as a history event, and resumes the instance. Results for
	// terminal instances, and duplicate results for an already-resolved
	// sequence number, are dropped. Intended for workers.
	RunActivity(ctx context.Context, instanceID string, seq int, name string, input any) error

	// Terminate externally cancels an instance. In-flight activity
	// dispatches are not interrupted; their results are ignored when they
	// arrive.
	Terminate(ctx context.Context, id, reason string) (*Instance, error)

	// GetInstance looks up an instance by ID.
	GetInstance(ctx context.Context, id string) (*Instance, error)

	// GetStatus is a read-only projection over the instance's history,
	// safe to call concurrently with an in-flight Resume.
	GetStatus(ctx context.Context, id string) (StatusReport, error)

	// GetHistory returns the instance's full ordered history.
	GetHistory(ctx context.Context, id string) ([]HistoryEvent, error)

	// ListInstances returns instances matching the given options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*Instance, error)

	// RecoverPendingInstances re-resumes every non-terminal instance,
	// re-dispatching activities that were scheduled but never resolved
	// (for example after a process crash). It returns the number of
	// instances resumed and is intended to be called on startup before
	// accepting new work.
	RecoverPendingInstances(ctx context.Context) (int, error)
}
