package api

import (
	"errors"
	"fmt"
)

var (
	// ErrInstanceExists is returned when creating an instance with an id
	// that is already taken.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrInstanceNotFound is returned when an instance id is unknown.
	ErrInstanceNotFound = errors.New("instance not found")
)

// AwaitError is returned by OrchestrationContext calls whose activity result
// is not yet in history. It is not a failure: the orchestrator must return
// it to the engine, which parks the instance until the result arrives.
type AwaitError struct {
	Activity string
	Seq      int
}

func (e *AwaitError) Error() string {
	return fmt.Sprintf("awaiting activity %q (seq %d)", e.Activity, e.Seq)
}

// IsAwaitError reports whether err indicates a suspension point rather than
// a real failure.
func IsAwaitError(err error) bool {
	var a *AwaitError
	return errors.As(err, &a)
}

// ActivityError is the recorded failure of an activity call, surfaced to the
// orchestrator during replay. Orchestrators may inspect it with errors.As to
// decide whether the failure is fatal for the workflow.
type ActivityError struct {
	Activity string
	Seq      int
	Reason   string
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %q (seq %d) failed: %s", e.Activity, e.Seq, e.Reason)
}

// NonDeterminismError reports that replay asked for an activity that does
// not match the recorded history at the same sequence number. It is fatal
// for the instance and never auto-retried; the instance is marked failed
// and requires operator intervention.
type NonDeterminismError struct {
	Seq      int
	Recorded string
	Replayed string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic orchestrator: seq %d recorded %q, replay asked for %q",
		e.Seq, e.Recorded, e.Replayed)
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Transient marks err as retryable (network faults, timeouts). Workers retry
// transient failures according to the activity's RetryPolicy before
// recording activity.failed.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Permanent marks err as non-retryable (malformed input, unregistered
// activity). It surfaces as activity.failed immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent. Unclassified
// errors default to transient, on the assumption that activity collaborators
// fail mostly for network reasons.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
