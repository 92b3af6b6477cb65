package api

import "time"

// EventType identifies a history event.
type EventType string

const (
	EventOrchestratorStarted    EventType = "orchestrator.started"
	EventActivityScheduled      EventType = "activity.scheduled"
	EventActivityCompleted      EventType = "activity.completed"
	EventActivityFailed         EventType = "activity.failed"
	EventOrchestratorCompleted  EventType = "orchestrator.completed"
	EventOrchestratorFailed     EventType = "orchestrator.failed"
	EventOrchestratorTerminated EventType = "orchestrator.terminated"
)

// HistoryEvent is one record in an instance's append-only history. The
// history is the instance's only durable state: replay reconstructs
// everything else from it.
//
// Seq is the correlation key between a scheduled activity call and its
// eventual result. It is assigned at scheduling time, increases
// monotonically within an instance, and is -1 on orchestrator-level events.
// For every activity.completed/activity.failed event there is exactly one
// earlier activity.scheduled event with the same Seq, and at most one
// result event per Seq.
type HistoryEvent struct {
	Type EventType
	Seq  int
	At   time.Time

	// Activity is the activity name on activity.* events.
	Activity string

	// Input is the activity input on activity.scheduled events, and the
	// orchestration input on orchestrator.started.
	Input any

	// Result is the activity result on activity.completed events.
	Result any

	// Output is the terminal orchestration output on
	// orchestrator.completed events.
	Output any

	// Detail carries the failure reason on activity.failed and
	// orchestrator.failed, and the termination reason on
	// orchestrator.terminated.
	Detail string
}

// Terminal reports whether the event ends the orchestration.
func (e HistoryEvent) Terminal() bool {
	switch e.Type {
	case EventOrchestratorCompleted, EventOrchestratorFailed, EventOrchestratorTerminated:
		return true
	}
	return false
}

// NewOrchestratorStarted builds the first event of every history.
func NewOrchestratorStarted(input any) HistoryEvent {
	return HistoryEvent{Type: EventOrchestratorStarted, Seq: -1, At: time.Now(), Input: input}
}

// NewActivityScheduled records that the orchestrator asked for an activity
// call. It is appended durably before the activity is dispatched.
func NewActivityScheduled(seq int, name string, input any) HistoryEvent {
	return HistoryEvent{Type: EventActivityScheduled, Seq: seq, At: time.Now(), Activity: name, Input: input}
}

// NewActivityCompleted records a successful activity result.
func NewActivityCompleted(seq int, name string, result any) HistoryEvent {
	return HistoryEvent{Type: EventActivityCompleted, Seq: seq, At: time.Now(), Activity: name, Result: result}
}

// NewActivityFailed records an activity failure after retries are exhausted.
func NewActivityFailed(seq int, name, reason string) HistoryEvent {
	return HistoryEvent{Type: EventActivityFailed, Seq: seq, At: time.Now(), Activity: name, Detail: reason}
}

// NewOrchestratorCompleted records the terminal output.
func NewOrchestratorCompleted(output any) HistoryEvent {
	return HistoryEvent{Type: EventOrchestratorCompleted, Seq: -1, At: time.Now(), Output: output}
}

// NewOrchestratorFailed records an unrecoverable orchestration fault.
func NewOrchestratorFailed(reason string) HistoryEvent {
	return HistoryEvent{Type: EventOrchestratorFailed, Seq: -1, At: time.Now(), Detail: reason}
}

// NewOrchestratorTerminated records an external cancellation.
func NewOrchestratorTerminated(reason string) HistoryEvent {
	return HistoryEvent{Type: EventOrchestratorTerminated, Seq: -1, At: time.Now(), Detail: reason}
}

// DeriveStatus computes an instance's status and output from its history:
// the last terminal event wins, otherwise the instance is running. Stores
// may cache the result as a listing index, but the history is authoritative.
func DeriveStatus(events []HistoryEvent) StatusReport {
	for i := len(events) - 1; i >= 0; i-- {
		switch events[i].Type {
		case EventOrchestratorCompleted:
			return StatusReport{Status: StatusCompleted, Output: events[i].Output}
		case EventOrchestratorFailed:
			return StatusReport{Status: StatusFailed, Error: events[i].Detail}
		case EventOrchestratorTerminated:
			return StatusReport{Status: StatusTerminated, Error: events[i].Detail}
		}
	}
	return StatusReport{Status: StatusRunning}
}
